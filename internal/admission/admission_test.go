package admission

import (
	"testing"

	"github.com/concord-chat/intercom-router/internal/apierr"
	"github.com/concord-chat/intercom-router/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateWrongSecretUnauthorized(t *testing.T) {
	c := New("wire", "key", client.NewRegistry())
	_, err := c.Authenticate("bob", "sess-1", "nope")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Unauthorized, apiErr.Kind)
}

func TestAuthenticateCorrectSecretEnrollsPending(t *testing.T) {
	c := New("wire", "key", client.NewRegistry())
	snap, err := c.Authenticate("bob", "sess-1", "wire")
	require.NoError(t, err)
	assert.Equal(t, client.StatusPending, snap.Status)
	assert.False(t, snap.AdminFlag)
}

func TestAdminAuthenticateRequiresBothSecrets(t *testing.T) {
	c := New("wire", "key", client.NewRegistry())
	_, err := c.AdminAuthenticate("admin", "sess-a", "wire", "wrong")
	require.Error(t, err)

	snap, err := c.AdminAuthenticate("admin", "sess-a", "wire", "key")
	require.NoError(t, err)
	assert.True(t, snap.AdminFlag)
	assert.Equal(t, client.StatusActive, snap.Status)
}

func TestAdminPathDisabledWhenSecretUnset(t *testing.T) {
	c := New("wire", "", client.NewRegistry())
	_, err := c.AdminAuthenticate("admin", "sess-a", "wire", "")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Unauthorized, apiErr.Kind)
}

func TestAuthenticateLocksOutAfterRepeatedFailures(t *testing.T) {
	c := New("wire", "key", client.NewRegistry())
	for i := 0; i < lockoutMaxAttempts; i++ {
		_, err := c.Authenticate("bob", "sess-repeat", "nope")
		require.Error(t, err)
	}

	// the lockout now rejects even a correct secret from the same handle
	_, err := c.Authenticate("bob", "sess-repeat", "wire")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Unauthorized, apiErr.Kind)
}

func TestAuthenticateRejectsDisplayNameEmptyAfterSanitizing(t *testing.T) {
	c := New("wire", "key", client.NewRegistry())
	_, err := c.Authenticate(string(make([]byte, 64)), "sess-1", "wire")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.BadRequest, apiErr.Kind)
}

func TestAuthenticateSanitizesDisplayName(t *testing.T) {
	c := New("wire", "key", client.NewRegistry())
	snap, err := c.Authenticate("<script>bob</script>", "sess-2", "wire")
	require.NoError(t, err)
	assert.NotContains(t, snap.DisplayName, "<script>")
}

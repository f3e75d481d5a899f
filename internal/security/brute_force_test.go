package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBruteForceProtector(t *testing.T) {
	bfp := NewBruteForceProtector(5, 1*time.Minute)
	assert.NotNil(t, bfp)
	assert.Equal(t, 5, bfp.maxAttempts)
	assert.Equal(t, 1*time.Minute, bfp.lockoutPeriod)
}

func TestBruteForceProtector_RecordFailure(t *testing.T) {
	bfp := NewBruteForceProtector(3, 100*time.Millisecond)

	// First 2 failures should not trigger lockout
	for i := 0; i < 2; i++ {
		bfp.RecordFailure("user1")
		allowed, _, _ := bfp.IsAllowed("user1")
		assert.True(t, allowed, "should be allowed after %d failures", i+1)
	}

	// 3rd failure reaches maxAttempts and triggers lockout
	bfp.RecordFailure("user1")
	allowed, retryAfter, err := bfp.IsAllowed("user1")
	assert.False(t, allowed, "should be locked after 3rd failure")
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.Error(t, err)
}

func TestBruteForceProtector_RecordSuccess(t *testing.T) {
	bfp := NewBruteForceProtector(3, 1*time.Minute)

	// Record failures
	bfp.RecordFailure("user1")
	bfp.RecordFailure("user1")
	assert.Equal(t, 2, bfp.GetAttempts("user1"))

	// Success should reset
	bfp.RecordSuccess("user1")
	assert.Equal(t, 0, bfp.GetAttempts("user1"))
}

func TestBruteForceProtector_IsAllowed(t *testing.T) {
	t.Run("allows before max attempts", func(t *testing.T) {
		bfp := NewBruteForceProtector(5, 1*time.Minute)

		allowed, retryAfter, err := bfp.IsAllowed("new-user")
		assert.True(t, allowed)
		assert.Equal(t, time.Duration(0), retryAfter)
		assert.NoError(t, err)
	})

	t.Run("unlocks after lockout period", func(t *testing.T) {
		bfp := NewBruteForceProtector(1, 50*time.Millisecond)

		// Trigger lockout
		bfp.RecordFailure("user1")
		bfp.RecordFailure("user1")

		allowed, _, _ := bfp.IsAllowed("user1")
		assert.False(t, allowed)

		// Wait for lockout to expire
		time.Sleep(100 * time.Millisecond)

		allowed, retryAfter, err := bfp.IsAllowed("user1")
		assert.True(t, allowed)
		assert.Equal(t, time.Duration(0), retryAfter)
		assert.NoError(t, err)
	})
}

func TestBruteForceProtector_GetAttempts(t *testing.T) {
	bfp := NewBruteForceProtector(10, 1*time.Minute)

	assert.Equal(t, 0, bfp.GetAttempts("new-user"))

	bfp.RecordFailure("user1")
	bfp.RecordFailure("user1")
	bfp.RecordFailure("user1")

	assert.Equal(t, 3, bfp.GetAttempts("user1"))
	assert.Equal(t, 0, bfp.GetAttempts("user2"))
}

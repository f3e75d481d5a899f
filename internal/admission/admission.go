// Package admission implements the Admission Controller: shared-secret
// validation and enrollment of new sessions into the Client Registry
// (spec §4.6). It never touches a channel/transport directly.
package admission

import (
	"crypto/subtle"
	"time"

	"github.com/concord-chat/intercom-router/internal/apierr"
	"github.com/concord-chat/intercom-router/internal/client"
	"github.com/concord-chat/intercom-router/internal/security"
)

// lockoutMaxAttempts/lockoutPeriod bound how many bad secrets a single
// session handle may present before it is locked out for lockoutPeriod. The
// failure count restarts once a lockout expires, so repeated lockouts do not
// grow longer (spec §4.6 names the shared-secret check but not a retry limit;
// one is added here since the check is otherwise guessable at wire speed).
const (
	lockoutMaxAttempts = 5
	lockoutPeriod      = 10 * time.Second
)

// Controller gates new sessions. An empty secret disables its path
// entirely (fails closed, never open — spec §4.6).
type Controller struct {
	serverSecret []byte
	adminSecret  []byte
	clients      *client.Registry
	validator    *security.Validator
	sanitizer    *security.Sanitizer
	bruteForce   *security.BruteForceProtector
}

// New constructs a Controller. adminSecret may be empty, disabling the
// admin path (spec §6: "Absence of a secret means the corresponding path
// is disabled").
func New(serverSecret, adminSecret string, clients *client.Registry) *Controller {
	return &Controller{
		serverSecret: []byte(serverSecret),
		adminSecret:  []byte(adminSecret),
		clients:      clients,
		validator:    security.NewValidator(),
		sanitizer:    security.NewSanitizer(),
		bruteForce:   security.NewBruteForceProtector(lockoutMaxAttempts, lockoutPeriod),
	}
}

// constantTimeEqual compares two secrets without leaking a timing signal
// beyond what subtle.ConstantTimeCompare gives, and rejects outright if
// either side is empty (an unset configured secret fails closed).
func constantTimeEqual(configured, provided []byte) bool {
	if len(configured) == 0 {
		return false
	}
	if len(provided) != len(configured) {
		// still run the comparison so presence/absence of a match cannot be
		// inferred purely from the early-return branch taken
		subtle.ConstantTimeCompare(configured, configured)
		return false
	}
	return subtle.ConstantTimeCompare(configured, provided) == 1
}

// Authenticate validates serverSecret and enrolls the session as pending
// (spec §4.5 authenticate).
func (c *Controller) Authenticate(displayName, sessionHandle, providedSecret string) (client.Snapshot, error) {
	if allowed, retryAfter, err := c.bruteForce.IsAllowed(sessionHandle); !allowed {
		return client.Snapshot{}, apierr.Wrap(apierr.Unauthorized, err, "too many failed attempts; retry in "+retryAfter.Round(time.Second).String())
	}
	if !constantTimeEqual(c.serverSecret, []byte(providedSecret)) {
		c.bruteForce.RecordFailure(sessionHandle)
		return client.Snapshot{}, apierr.New(apierr.Unauthorized, "invalid server secret")
	}
	c.bruteForce.RecordSuccess(sessionHandle)
	name, err := c.sanitizeAndValidateDisplayName(displayName)
	if err != nil {
		return client.Snapshot{}, err
	}
	return c.clients.EnrollPending(name, sessionHandle), nil
}

// AdminAuthenticate validates both secrets and enrolls the session as
// active with the admin flag set (spec §4.5 adminAuthenticate).
func (c *Controller) AdminAuthenticate(displayName, sessionHandle, providedServerSecret, providedAdminSecret string) (client.Snapshot, error) {
	if allowed, retryAfter, err := c.bruteForce.IsAllowed(sessionHandle); !allowed {
		return client.Snapshot{}, apierr.Wrap(apierr.Unauthorized, err, "too many failed attempts; retry in "+retryAfter.Round(time.Second).String())
	}
	if !constantTimeEqual(c.serverSecret, []byte(providedServerSecret)) || !constantTimeEqual(c.adminSecret, []byte(providedAdminSecret)) {
		c.bruteForce.RecordFailure(sessionHandle)
		return client.Snapshot{}, apierr.New(apierr.Unauthorized, "invalid server or admin secret")
	}
	c.bruteForce.RecordSuccess(sessionHandle)
	name, err := c.sanitizeAndValidateDisplayName(displayName)
	if err != nil {
		return client.Snapshot{}, err
	}
	return c.clients.EnrollActiveAdmin(name, sessionHandle), nil
}

// sanitizeAndValidateDisplayName cleans a client-supplied display name and
// rejects it if it still fails basic shape/length checks afterward.
func (c *Controller) sanitizeAndValidateDisplayName(displayName string) (string, error) {
	sanitized := c.sanitizer.SanitizeUsername(displayName)
	if err := c.validator.ValidateUsername(sanitized); err != nil {
		return "", apierr.Wrap(apierr.BadRequest, err, "invalid displayName")
	}
	return sanitized, nil
}

package security

import (
	"fmt"
	"sync"
	"time"
)

// BruteForceProtector protects the admission path against repeated bad
// secret guesses (spec §4.6: the shared-secret check has no retry limit
// of its own). Uses exponential backoff for repeated failures, keyed per
// session handle.
type BruteForceProtector struct {
	mu            sync.RWMutex
	attempts      map[string]*attemptTracker
	maxAttempts   int
	lockoutPeriod time.Duration
	ttl           time.Duration
}

// attemptTracker tracks failed attempts for a specific key
type attemptTracker struct {
	count        int
	firstAttempt time.Time
	lockUntil    time.Time
	mu           sync.Mutex
}

// NewBruteForceProtector creates a new brute force protector
// maxAttempts: maximum failed attempts before lockout
// lockoutPeriod: how long to lock out after max attempts
func NewBruteForceProtector(maxAttempts int, lockoutPeriod time.Duration) *BruteForceProtector {
	bfp := &BruteForceProtector{
		attempts:      make(map[string]*attemptTracker),
		maxAttempts:   maxAttempts,
		lockoutPeriod: lockoutPeriod,
		ttl:           24 * time.Hour,
	}

	go bfp.cleanup()

	return bfp
}

// RecordFailure records a failed attempt
// Complexity: O(1)
func (bfp *BruteForceProtector) RecordFailure(key string) {
	bfp.mu.RLock()
	tracker, exists := bfp.attempts[key]
	bfp.mu.RUnlock()

	if !exists {
		tracker = &attemptTracker{
			count:        0,
			firstAttempt: time.Now(),
		}

		bfp.mu.Lock()
		bfp.attempts[key] = tracker
		bfp.mu.Unlock()
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	tracker.count++

	// Implement exponential backoff
	if tracker.count >= bfp.maxAttempts {
		lockDuration := bfp.lockoutPeriod * time.Duration(1<<uint(tracker.count-bfp.maxAttempts))
		if lockDuration > 24*time.Hour {
			lockDuration = 24 * time.Hour // Cap at 24 hours
		}
		tracker.lockUntil = time.Now().Add(lockDuration)
	}
}

// RecordSuccess records a successful attempt and resets the counter
// Complexity: O(1)
func (bfp *BruteForceProtector) RecordSuccess(key string) {
	bfp.mu.Lock()
	defer bfp.mu.Unlock()

	delete(bfp.attempts, key)
}

// IsAllowed checks if an attempt should be allowed
// Returns (allowed bool, retryAfter time.Duration, error)
// Complexity: O(1)
func (bfp *BruteForceProtector) IsAllowed(key string) (bool, time.Duration, error) {
	bfp.mu.RLock()
	tracker, exists := bfp.attempts[key]
	bfp.mu.RUnlock()

	if !exists {
		return true, 0, nil
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	now := time.Now()

	// Check if still locked out
	if now.Before(tracker.lockUntil) {
		retryAfter := tracker.lockUntil.Sub(now)
		return false, retryAfter, fmt.Errorf("too many failed attempts, try again in %v", retryAfter.Round(time.Second))
	}

	// Reset if lockout period has passed
	if now.After(tracker.lockUntil) && tracker.count >= bfp.maxAttempts {
		tracker.count = 0
		tracker.firstAttempt = now
		tracker.lockUntil = time.Time{}
	}

	return true, 0, nil
}

// GetAttempts returns the number of failed attempts for a key
// Complexity: O(1)
func (bfp *BruteForceProtector) GetAttempts(key string) int {
	bfp.mu.RLock()
	defer bfp.mu.RUnlock()

	tracker, exists := bfp.attempts[key]
	if !exists {
		return 0
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	return tracker.count
}

// cleanup periodically removes old attempt trackers
func (bfp *BruteForceProtector) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		bfp.mu.Lock()

		now := time.Now()
		for key, tracker := range bfp.attempts {
			tracker.mu.Lock()
			if now.Sub(tracker.firstAttempt) > bfp.ttl {
				delete(bfp.attempts, key)
			}
			tracker.mu.Unlock()
		}

		bfp.mu.Unlock()
	}
}

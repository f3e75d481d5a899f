package security

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Validator provides input validation functions for the two pieces of
// free-form text that cross the signaling wire and end up displayed in
// the admin console or broadcast to other sessions: a client's display
// name and a channel's name.
type Validator struct {
	// MaxInputLength is the maximum allowed length for text inputs.
	MaxInputLength int
}

// NewValidator creates a new input validator with secure defaults.
// Complexity: O(1)
func NewValidator() *Validator {
	return &Validator{
		MaxInputLength: 10000, // 10KB
	}
}

// ValidateUsername validates a display name supplied to authenticate or
// adminAuthenticate (spec §4.5).
// Complexity: O(n) where n is the length of the username
func (v *Validator) ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("displayName cannot be empty")
	}

	if len(username) < 2 {
		return fmt.Errorf("displayName must be at least 2 characters")
	}

	if len(username) > 32 {
		return fmt.Errorf("displayName must be at most 32 characters")
	}

	if !utf8.ValidString(username) {
		return fmt.Errorf("displayName contains invalid UTF-8 characters")
	}

	return nil
}

// ValidateTextInput validates general text input against length and
// encoding constraints shared by every wire-carried string field.
// Complexity: O(n) where n is the length of the input
func (v *Validator) ValidateTextInput(input string, fieldName string) error {
	if !utf8.ValidString(input) {
		return fmt.Errorf("%s contains invalid UTF-8 characters", fieldName)
	}

	if len(input) > v.MaxInputLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, v.MaxInputLength)
	}

	return nil
}

// ValidateChannelName validates a channel name supplied to createChannel
// or updateChannel (spec §4.6).
// Complexity: O(n) where n is the length of the channel name
func (v *Validator) ValidateChannelName(name string) error {
	if name == "" {
		return fmt.Errorf("channel name cannot be empty")
	}

	if len(name) < 2 {
		return fmt.Errorf("channel name must be at least 2 characters")
	}

	if len(name) > 64 {
		return fmt.Errorf("channel name must be at most 64 characters")
	}

	// Allow alphanumeric, spaces, underscores, and hyphens
	matched, err := regexp.MatchString(`^[a-zA-Z0-9 _-]+$`, name)
	if err != nil {
		return fmt.Errorf("failed to validate channel name: %w", err)
	}

	if !matched {
		return fmt.Errorf("channel name can only contain letters, numbers, spaces, underscores, and hyphens")
	}

	return nil
}

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewValidator(t *testing.T) {
	v := NewValidator()
	assert.NotNil(t, v)
	assert.Equal(t, 10000, v.MaxInputLength)
}

func TestValidator_ValidateUsername(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		username  string
		wantError bool
	}{
		{"valid username", "john_doe", false},
		{"valid with spaces", "John Doe", false},
		{"valid with unicode", "José", false},
		{"empty username", "", true},
		{"too short", "a", true},
		{"too long", "this_display_name_is_way_too_long_for_validation_rules", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateUsername(tt.username)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_ValidateTextInput(t *testing.T) {
	v := NewValidator()

	t.Run("valid text", func(t *testing.T) {
		err := v.ValidateTextInput("This is valid text", "message")
		assert.NoError(t, err)
	})

	t.Run("too long", func(t *testing.T) {
		longText := make([]byte, v.MaxInputLength+1)
		for i := range longText {
			longText[i] = 'a'
		}
		err := v.ValidateTextInput(string(longText), "message")
		assert.Error(t, err)
	})
}

func TestValidator_ValidateChannelName(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		channel   string
		wantError bool
	}{
		{"valid channel", "general", false},
		{"with spaces", "general chat", false},
		{"with hyphen", "off-topic", false},
		{"with underscore", "dev_team", false},
		{"empty", "", true},
		{"too short", "a", true},
		{"too long", "this_channel_name_is_way_too_long_and_should_fail_validation_test", true},
		{"special chars", "channel#1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateChannelName(tt.channel)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSanitizer(t *testing.T) {
	s := NewSanitizer()
	assert.NotNil(t, s)
	assert.Equal(t, 5000, s.MaxLength)
}

func TestRemoveControlCharacters(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"removes control chars", "hello\x01world", "helloworld"},
		{"keeps newlines", "hello\nworld", "hello\nworld"},
		{"keeps tabs", "hello\tworld", "hello\tworld"},
		{"normal text unchanged", "normal text", "normal text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RemoveControlCharacters(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRemoveNullBytes(t *testing.T) {
	result := RemoveNullBytes("hello\x00world")
	assert.Equal(t, "helloworld", result)
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLength int
		expected  string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"truncates with ellipsis", "hello world", 8, "hello..."},
		{"very short max", "hello", 2, "he"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateString(tt.input, tt.maxLength)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSanitizer_SanitizeUsername(t *testing.T) {
	s := NewSanitizer()

	t.Run("escapes HTML", func(t *testing.T) {
		result := s.SanitizeUsername("<script>alert(1)</script>")
		assert.NotContains(t, result, "<script>")
	})

	t.Run("removes control characters", func(t *testing.T) {
		result := s.SanitizeUsername("bob\x01smith")
		assert.Equal(t, "bobsmith", result)
	})

	t.Run("truncates long names", func(t *testing.T) {
		long := strings.Repeat("a", 100)
		result := s.SanitizeUsername(long)
		assert.Len(t, result, 32)
	})
}

func TestSanitizer_SanitizeMessage(t *testing.T) {
	s := NewSanitizer()

	t.Run("trims and collapses whitespace", func(t *testing.T) {
		result := s.SanitizeMessage("  hello    world  ")
		assert.Equal(t, "hello world", result)
	})

	t.Run("removes null bytes", func(t *testing.T) {
		result := s.SanitizeMessage("hello\x00world")
		assert.Equal(t, "helloworld", result)
	})

	t.Run("truncates very long input", func(t *testing.T) {
		long := strings.Repeat("a", s.MaxLength+100)
		result := s.SanitizeMessage(long)
		assert.Len(t, result, s.MaxLength)
	})
}

func TestNormalizeWhitespace(t *testing.T) {
	result := NormalizeWhitespace("  hello    world  ")
	assert.Equal(t, "hello world", result)
}

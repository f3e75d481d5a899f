package security

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

// Sanitizer cleans the free-form text fields that cross the signaling
// wire before they are displayed in the admin console or broadcast to
// other sessions (spec §4.5: displayName, channel name/description).
type Sanitizer struct {
	// MaxLength is the maximum allowed length after sanitization.
	MaxLength int
}

// NewSanitizer creates a new sanitizer with secure defaults.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		MaxLength: 5000,
	}
}

// RemoveControlCharacters removes control characters from input.
// Complexity: O(n) where n is the length of input
func RemoveControlCharacters(input string) string {
	return strings.Map(func(r rune) rune {
		// Keep newlines, tabs, and carriage returns
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		// Remove other control characters
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
}

// RemoveNullBytes removes null bytes from input.
// Complexity: O(n) where n is the length of input
func RemoveNullBytes(input string) string {
	return strings.ReplaceAll(input, "\x00", "")
}

// TruncateString truncates a string to a maximum length, adding an
// ellipsis if truncated.
// Complexity: O(n) where n is maxLength
func TruncateString(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}

	if maxLength <= 3 {
		return input[:maxLength]
	}

	return input[:maxLength-3] + "..."
}

// SanitizeUsername sanitizes a display name before it is stored in the
// client registry or shown in the admin console.
// Complexity: O(n) where n is the length of username
func (s *Sanitizer) SanitizeUsername(username string) string {
	sanitized := html.EscapeString(username)
	sanitized = RemoveControlCharacters(sanitized)
	sanitized = RemoveNullBytes(sanitized)

	if len(sanitized) > 32 {
		sanitized = sanitized[:32]
	}

	return sanitized
}

// SanitizeMessage sanitizes a general free-form text field such as a
// channel's name or description.
// Complexity: O(n) where n is the length of message
func (s *Sanitizer) SanitizeMessage(message string) string {
	sanitized := RemoveNullBytes(message)
	sanitized = RemoveControlCharacters(sanitized)

	// Collapse runs of whitespace
	sanitized = regexp.MustCompile(`\s+`).ReplaceAllString(sanitized, " ")
	sanitized = strings.TrimSpace(sanitized)

	if len(sanitized) > s.MaxLength {
		sanitized = TruncateString(sanitized, s.MaxLength)
	}

	return sanitized
}

// NormalizeWhitespace normalizes whitespace in input, replacing runs of
// whitespace with a single space.
// Complexity: O(n) where n is the length of input
func NormalizeWhitespace(input string) string {
	normalized := regexp.MustCompile(`\s+`).ReplaceAllString(input, " ")
	return strings.TrimSpace(normalized)
}

package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
)

// Text field length limits.
const (
	MinUsernameLength            = 3
	MaxUsernameLength            = 30
	MaxFullNameLength            = 100
	MaxEmailLength               = 254
	MinPasswordLength            = 8
	MaxPasswordLength            = 72
	MaxTitleLength               = 500
	MaxDescriptionLength         = 5000
	MaxPlaylistNameLength        = 200
	MaxPlaylistDescriptionLength = 2000
	MaxCommentLength             = 5000
	MaxTweetLength               = 280
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.]+$`)

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func required(value, field string) string {
	if strings.TrimSpace(value) == "" {
		return field + " is required"
	}
	return ""
}

func requiredLen(value string, max int, field string) string {
	if msg := required(value, field); msg != "" {
		return msg
	}
	return checkLen(value, max, field)
}

func Title(s string) string       { return requiredLen(s, MaxTitleLength, "title") }
func Description(s string) string { return checkLen(s, MaxDescriptionLength, "description") }
func Comment(s string) string     { return requiredLen(s, MaxCommentLength, "content") }
func Tweet(s string) string       { return requiredLen(s, MaxTweetLength, "content") }
func FullName(s string) string    { return requiredLen(s, MaxFullNameLength, "full name") }
func PlaylistName(s string) string {
	return requiredLen(s, MaxPlaylistNameLength, "name")
}
func PlaylistDescription(s string) string {
	return checkLen(s, MaxPlaylistDescriptionLength, "description")
}

// Username expects an already lower-cased handle.
func Username(s string) string {
	if msg := required(s, "username"); msg != "" {
		return msg
	}
	if len(s) < MinUsernameLength || len(s) > MaxUsernameLength {
		return fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
	}
	if !usernamePattern.MatchString(s) {
		return "username may only contain letters, digits, dots and underscores"
	}
	return ""
}

func Email(s string) string {
	if msg := requiredLen(s, MaxEmailLength, "email"); msg != "" {
		return msg
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "invalid email address"
	}
	return ""
}

func Password(s string) string {
	if len(s) < MinPasswordLength {
		return fmt.Sprintf("password must be at least %d characters", MinPasswordLength)
	}
	if len(s) > MaxPasswordLength {
		return fmt.Sprintf("password must be at most %d characters", MaxPasswordLength)
	}
	return ""
}

// ID checks that s is a canonical UUID.
func ID(s, field string) string {
	if s == "" {
		return field + " is required"
	}
	if _, err := uuid.Parse(s); err != nil || len(s) != 36 {
		return "invalid " + field
	}
	return ""
}

// Check returns an InvalidInput error carrying the first non-empty message.
func Check(messages ...string) error {
	for _, msg := range messages {
		if msg != "" {
			return apperr.Invalid(msg)
		}
	}
	return nil
}

// FieldLimits returns a map of field names to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"username":            MaxUsernameLength,
		"fullName":            MaxFullNameLength,
		"password":            MaxPasswordLength,
		"title":               MaxTitleLength,
		"description":         MaxDescriptionLength,
		"playlistName":        MaxPlaylistNameLength,
		"playlistDescription": MaxPlaylistDescriptionLength,
		"comment":             MaxCommentLength,
		"tweet":               MaxTweetLength,
	}
}

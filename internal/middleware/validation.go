package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength bounds a single chat message in bytes.
const MaxMessageLength = 16 * 1024

// ValidateMessage validates chat input. Blank input is accepted here: the
// dispatcher ignores it.
func ValidateMessage(message string) error {
	if len(message) > MaxMessageLength {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(message) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateChatID validates a chat view id.
func ValidateChatID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid chat ID format")
	}
	return nil
}

// ValidateEmail performs a minimal shape check on a login email.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email cannot be empty")
	}
	if len(email) > 254 {
		return errors.New("email exceeds maximum length")
	}
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 {
		return errors.New("email is not valid")
	}
	return nil
}

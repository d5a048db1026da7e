package utils

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxUsernameLength = 150

var (
	usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateUsername accepts letters, digits and @ . + - _ up to 150 characters
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return errors.New("username must be at most 150 characters")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username may contain only letters, digits and @/./+/-/_")
	}
	return nil
}

// ValidateEmail checks the shape of a non-empty address. Empty is allowed.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	if !emailRegex.MatchString(email) {
		return errors.New("enter a valid email address")
	}
	return nil
}

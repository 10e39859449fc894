package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"directchat/internal/models"
)

var usernameRegex = regexp.MustCompile(`^[^\p{C}]{1,64}$`)

// Message checks message content. Content is stored exactly as sent; only
// blank content is rejected.
func Message(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("%w: message content cannot be empty", models.ErrValidation)
	}
	return input, nil
}

// Printable prepares stored text for a terminal. Control characters other
// than newline and tab are dropped so that content cannot inject escape sequences.
func Printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// ValidateUsername checks that the username is not blank, has at most 64
// characters and no control or format characters.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username cannot be empty", models.ErrValidation)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: username must be at most 64 printable characters", models.ErrValidation)
	}
	return nil
}

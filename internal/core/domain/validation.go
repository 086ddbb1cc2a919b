package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseUserID accepts a decimal user id, optionally prefixed with "@", as typed
// in admin commands. Usernames are not resolved here.
func ParseUserID(input string) (int64, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(input), "@")
	if cleaned == "" {
		return 0, fmt.Errorf("%w: user id cannot be empty", ErrInvalidInput)
	}
	for _, c := range cleaned {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: user id %q must be numeric", ErrInvalidInput, input)
		}
	}
	id, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: user id %q out of range", ErrInvalidInput, input)
	}
	return id, ValidateUserID(id)
}

// ValidateUserID rejects ids that no user can have.
func ValidateUserID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: user id must be positive, got %d", ErrInvalidInput, id)
	}
	return nil
}

// FormatUserID is the canonical string form used as a key in every tier.
func FormatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

package domain

import (
	"fmt"
	"strings"

	"github.com/umisama/go-cpe"
)

// Validation Helpers

const (
	cpe23Prefix = "cpe:2.3:"
	cpe22Prefix = "cpe:/"
)

// ValidatePlatformID checks that id is a well-formed CPE 2.3 formatted string or a CPE 2.2 URI.
func ValidatePlatformID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: platform identifier is required", ErrInvalidInput)
	case strings.HasPrefix(id, cpe23Prefix):
		if _, err := cpe.NewItemFromFormattedString(id); err != nil {
			return fmt.Errorf("%w: malformed CPE 2.3 string %q: %v", ErrInvalidInput, id, err)
		}
	case strings.HasPrefix(id, cpe22Prefix):
		if _, err := cpe.NewItemFromUri(id); err != nil {
			return fmt.Errorf("%w: malformed CPE URI %q: %v", ErrInvalidInput, id, err)
		}
	default:
		return fmt.Errorf("%w: %q is not a CPE identifier", ErrInvalidInput, id)
	}
	return nil
}

// IsCPE23 reports whether id parses as a CPE 2.3 formatted string.
func IsCPE23(id string) bool {
	if !strings.HasPrefix(id, cpe23Prefix) {
		return false
	}
	_, err := cpe.NewItemFromFormattedString(id)
	return err == nil
}

package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is wrapped by errors for file identifiers that cannot name an extracted file.
var ErrInvalidName = errors.New("unusable file name")

// FileIdentifier checks that a decoded file identifier names a single path element. The relative names
// "." and ".." and names holding a separator or NUL are rejected.
func FileIdentifier(identifier string) error {
	switch {
	case identifier == "." || identifier == "..":
		return fmt.Errorf("%q: %w", identifier, ErrInvalidName)
	case strings.ContainsAny(identifier, "/\x00"):
		return fmt.Errorf("%q contains a separator or NUL: %w", identifier, ErrInvalidName)
	}
	return nil
}

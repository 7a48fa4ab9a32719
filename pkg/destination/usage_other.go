//go:build !linux

package destination

import "errors"

// Usage is not available on this platform.
func Usage(path string) (Space, error) {
	return Space{}, errors.ErrUnsupported
}

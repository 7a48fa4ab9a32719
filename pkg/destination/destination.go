package destination

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bgrewell/udf-kit/pkg/filesystem"
)

// Status is the readiness of an extraction destination.
type Status int

const (
	Ready Status = iota
	NotFound
	NotDirectory
	TooSmall
	NotEnoughSpace
	NotBlank
)

var statusNames = map[Status]string{
	Ready:          "ready",
	NotFound:       "destination not found",
	NotDirectory:   "destination is not a directory",
	TooSmall:       "destination file system is smaller than the image",
	NotEnoughSpace: "destination does not have enough free space",
	NotBlank:       "destination is not empty",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Space is the capacity of the file system holding a path.
type Space struct {
	Total uint64
	Free  uint64
}

// Check reports whether path can receive the content of root extracted from an image of imageLength bytes.
// Capacity checks are skipped where the platform cannot report file system usage.
func Check(path string, imageLength int64, root *filesystem.Record) (Status, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return NotFound, nil
	}
	if err != nil {
		return NotFound, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return NotDirectory, nil
	}

	space, err := Usage(path)
	switch {
	case errors.Is(err, errors.ErrUnsupported):
	case err != nil:
		return Ready, err
	case imageLength > 0 && uint64(imageLength) > space.Total:
		return TooSmall, nil
	case root != nil && uint64(root.Size()) > space.Free:
		return NotEnoughSpace, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return Ready, fmt.Errorf("failed to list %s: %w", path, err)
	}
	if len(entries) != 0 {
		return NotBlank, nil
	}
	return Ready, nil
}

// Overwrites returns the names of the top level records of root that already exist below path, whatever
// the type of the existing entry.
func Overwrites(path string, root *filesystem.Record) ([]string, error) {
	var existing []string
	for _, child := range root.Children() {
		if child.IsSystem() {
			continue
		}
		_, err := os.Lstat(filepath.Join(path, child.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", child.Name(), err)
		}
		existing = append(existing, child.Name())
	}
	return existing, nil
}

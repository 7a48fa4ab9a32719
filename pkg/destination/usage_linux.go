//go:build linux

package destination

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Usage returns the size and available space of the file system holding path.
func Usage(path string) (Space, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Space{}, fmt.Errorf("failed to statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return Space{Total: st.Blocks * bsize, Free: st.Bavail * bsize}, nil
}

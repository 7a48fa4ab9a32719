package systemarea

import (
	"fmt"
	"io"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
)

const (
	mbrSignatureOffset = 510
	mbrPartitionTable  = 446
	mbrPartitionSize   = 16
	mbrSignature       = 0xAA55
)

// SystemArea is the 32 KiB area before the volume recognition sequence. Its use is not defined by the
// file system; hybrid images place a master boot record or partition table there.
type SystemArea [consts.UDF_SYSTEM_AREA_SIZE]byte

// Read returns the system area of an image. Images shorter than the system area are an error.
func Read(r io.ReaderAt, size int64) (*SystemArea, error) {
	if size < consts.UDF_SYSTEM_AREA_SIZE {
		return nil, fmt.Errorf("image of %d bytes has no system area", size)
	}
	sa := &SystemArea{}
	if _, err := r.ReadAt(sa[:], 0); err != nil {
		return nil, fmt.Errorf("failed to read system area: %w", err)
	}
	return sa, nil
}

// IsEmpty reports whether every byte of the system area is zero.
func (s *SystemArea) IsEmpty() bool {
	for _, b := range s {
		if b != 0 {
			return false
		}
	}
	return true
}

// HasMBR reports whether the first sector carries the master boot record signature.
func (s *SystemArea) HasMBR() bool {
	return encoding.Uint16(s[:], mbrSignatureOffset) == mbrSignature
}

// PartitionTypes returns the type byte of each used master boot record partition entry.
func (s *SystemArea) PartitionTypes() []byte {
	if !s.HasMBR() {
		return nil
	}
	var types []byte
	for i := 0; i < 4; i++ {
		if t := s[mbrPartitionTable+i*mbrPartitionSize+4]; t != 0 {
			types = append(types, t)
		}
	}
	return types
}

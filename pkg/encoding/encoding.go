package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a requested field starts beyond the end of its buffer.
var ErrOutOfRange = errors.New("offset out of range")

// Uint16 reads a little-endian uint16 at offset. Fields that do not fit in data decode as zero.
func Uint16(data []byte, offset int) uint16 {
	if offset < 0 || offset+2 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint16(data[offset:])
}

// Uint32 reads a little-endian uint32 at offset. Fields that do not fit in data decode as zero.
func Uint32(data []byte, offset int) uint32 {
	if offset < 0 || offset+4 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint32(data[offset:])
}

// Uint64 reads a little-endian uint64 at offset. Fields that do not fit in data decode as zero.
func Uint64(data []byte, offset int) uint64 {
	if offset < 0 || offset+8 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint64(data[offset:])
}

// ReadBytes returns a copy of size bytes starting at offset. When the range runs past the end of data
// only the in-range portion is copied. A start offset past the end of data is an error.
func ReadBytes(data []byte, offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset > len(data) {
		return nil, fmt.Errorf("read %d bytes at %d from %d byte buffer: %w", size, offset, len(data), ErrOutOfRange)
	}
	end := offset + size
	if end > len(data) || end < offset {
		end = len(data)
	}
	out := make([]byte, end-offset)
	copy(out, data[offset:end])
	return out, nil
}

// PutUint16 writes v little-endian at offset.
func PutUint16(data []byte, offset int, v uint16) {
	binary.LittleEndian.PutUint16(data[offset:], v)
}

// PutUint32 writes v little-endian at offset.
func PutUint32(data []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(data[offset:], v)
}

// PutUint64 writes v little-endian at offset.
func PutUint64(data []byte, offset int, v uint64) {
	binary.LittleEndian.PutUint64(data[offset:], v)
}

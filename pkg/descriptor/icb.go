package descriptor

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/encoding"
)

// ICB_TAG_SIZE is the size of the ICB tag embedded in file entries.
const ICB_TAG_SIZE = 20

// FileType is the ICB file type.
type FileType uint8

const (
	FILE_TYPE_OTHER     FileType = 0
	FILE_TYPE_DIRECTORY FileType = 4
	FILE_TYPE_FILE      FileType = 5
)

func (t FileType) String() string {
	switch t {
	case FILE_TYPE_DIRECTORY:
		return "directory"
	case FILE_TYPE_FILE:
		return "file"
	default:
		return fmt.Sprintf("other(%d)", uint8(t))
	}
}

// AllocationType describes how a file entry records the location of its data.
type AllocationType uint8

const (
	ALLOCATION_SHORT    AllocationType = 0
	ALLOCATION_LONG     AllocationType = 1
	ALLOCATION_EXTENDED AllocationType = 2
	ALLOCATION_INLINE   AllocationType = 3
)

func (t AllocationType) String() string {
	switch t {
	case ALLOCATION_SHORT:
		return "short"
	case ALLOCATION_LONG:
		return "long"
	case ALLOCATION_EXTENDED:
		return "extended"
	case ALLOCATION_INLINE:
		return "inline"
	default:
		return fmt.Sprintf("reserved(%d)", uint8(t))
	}
}

// ICBTag is the information control block tag.
type ICBTag struct {
	PriorRecordedEntries uint32   `json:"prior_recorded_entries"`
	StrategyType         uint16   `json:"strategy_type"`
	MaxEntries           uint16   `json:"max_entries"`
	FileType             FileType `json:"file_type"`
	Flags                uint16   `json:"flags"`
}

// UnmarshalICBTag parses an ICB tag at offset.
func UnmarshalICBTag(data []byte, offset int) (ICBTag, error) {
	if offset < 0 || offset+ICB_TAG_SIZE > len(data) {
		return ICBTag{}, fmt.Errorf("icb tag at %d: %w", offset, ErrShortBuffer)
	}
	return ICBTag{
		PriorRecordedEntries: encoding.Uint32(data, offset),
		StrategyType:         encoding.Uint16(data, offset+4),
		MaxEntries:           encoding.Uint16(data, offset+8),
		FileType:             FileType(data[offset+11]),
		Flags:                encoding.Uint16(data, offset+18),
	}, nil
}

// AllocationType returns the allocation descriptor type from the low three flag bits.
func (t ICBTag) AllocationType() AllocationType {
	return AllocationType(t.Flags & 7)
}

func (t ICBTag) IsDirectory() bool {
	return t.FileType == FILE_TYPE_DIRECTORY
}

// Marshal encodes the tag.
func (t ICBTag) Marshal() [ICB_TAG_SIZE]byte {
	var out [ICB_TAG_SIZE]byte
	encoding.PutUint32(out[:], 0, t.PriorRecordedEntries)
	encoding.PutUint16(out[:], 4, t.StrategyType)
	encoding.PutUint16(out[:], 8, t.MaxEntries)
	out[11] = byte(t.FileType)
	encoding.PutUint16(out[:], 18, t.Flags)
	return out
}

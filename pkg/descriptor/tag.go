package descriptor

import (
	"errors"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
)

var (
	// ErrShortBuffer is returned when a descriptor does not fit in the supplied buffer.
	ErrShortBuffer = errors.New("descriptor buffer too short")
	// ErrChecksum is returned when a descriptor tag fails its checksum.
	ErrChecksum = errors.New("descriptor tag checksum mismatch")
	// ErrUnexpectedTag is returned when a descriptor carries a different identifier than required.
	ErrUnexpectedTag = errors.New("unexpected descriptor tag")
	// ErrMalformed is returned when descriptor fields are inconsistent.
	ErrMalformed = errors.New("malformed descriptor")
)

// TagIdentifier identifies the kind of descriptor that follows a tag.
type TagIdentifier uint16

const (
	TAG_SPARING_TABLE             TagIdentifier = 0
	TAG_PRIMARY_VOLUME            TagIdentifier = 1
	TAG_ANCHOR_VOLUME_POINTER     TagIdentifier = 2
	TAG_VOLUME_POINTER            TagIdentifier = 3
	TAG_IMPLEMENTATION_USE_VOLUME TagIdentifier = 4
	TAG_PARTITION                 TagIdentifier = 5
	TAG_LOGICAL_VOLUME            TagIdentifier = 6
	TAG_UNALLOCATED_SPACE         TagIdentifier = 7
	TAG_TERMINATING               TagIdentifier = 8
	TAG_LOGICAL_VOLUME_INTEGRITY  TagIdentifier = 9
	TAG_FILE_SET                  TagIdentifier = 256
	TAG_FILE_IDENTIFIER           TagIdentifier = 257
	TAG_ALLOCATION_EXTENT         TagIdentifier = 258
	TAG_INDIRECT_ENTRY            TagIdentifier = 259
	TAG_TERMINAL_ENTRY            TagIdentifier = 260
	TAG_FILE_ENTRY                TagIdentifier = 261
	TAG_EXTENDED_ATTRIBUTE_HEADER TagIdentifier = 262
	TAG_UNALLOCATED_SPACE_ENTRY   TagIdentifier = 263
	TAG_SPACE_BITMAP              TagIdentifier = 264
	TAG_PARTITION_INTEGRITY       TagIdentifier = 265
	TAG_EXTENDED_FILE_ENTRY       TagIdentifier = 266
)

var tagNames = map[TagIdentifier]string{
	TAG_SPARING_TABLE:             "Sparing Table",
	TAG_PRIMARY_VOLUME:            "Primary Volume Descriptor",
	TAG_ANCHOR_VOLUME_POINTER:     "Anchor Volume Descriptor Pointer",
	TAG_VOLUME_POINTER:            "Volume Descriptor Pointer",
	TAG_IMPLEMENTATION_USE_VOLUME: "Implementation Use Volume Descriptor",
	TAG_PARTITION:                 "Partition Descriptor",
	TAG_LOGICAL_VOLUME:            "Logical Volume Descriptor",
	TAG_UNALLOCATED_SPACE:         "Unallocated Space Descriptor",
	TAG_TERMINATING:               "Terminating Descriptor",
	TAG_LOGICAL_VOLUME_INTEGRITY:  "Logical Volume Integrity Descriptor",
	TAG_FILE_SET:                  "File Set Descriptor",
	TAG_FILE_IDENTIFIER:           "File Identifier Descriptor",
	TAG_ALLOCATION_EXTENT:         "Allocation Extent Descriptor",
	TAG_INDIRECT_ENTRY:            "Indirect Entry",
	TAG_TERMINAL_ENTRY:            "Terminal Entry",
	TAG_FILE_ENTRY:                "File Entry",
	TAG_EXTENDED_ATTRIBUTE_HEADER: "Extended Attribute Header Descriptor",
	TAG_UNALLOCATED_SPACE_ENTRY:   "Unallocated Space Entry",
	TAG_SPACE_BITMAP:              "Space Bitmap Descriptor",
	TAG_PARTITION_INTEGRITY:       "Partition Integrity Entry",
	TAG_EXTENDED_FILE_ENTRY:       "Extended File Entry",
}

func (id TagIdentifier) String() string {
	if name, ok := tagNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Unknown Descriptor (%d)", uint16(id))
}

// Tag is the 16 byte header found at the start of every UDF descriptor.
type Tag struct {
	Identifier    TagIdentifier `json:"identifier"`
	Version       uint16        `json:"version"`
	Checksum      uint8         `json:"checksum"`
	SerialNumber  uint16        `json:"serial_number"`
	DescriptorCRC uint16        `json:"descriptor_crc"`
	CRCLength     uint16        `json:"crc_length"`
	TagLocation   uint32        `json:"tag_location"`
}

// Checksum returns the modulo 256 sum of the first 16 bytes of data, excluding byte 4.
func Checksum(data []byte) uint8 {
	var sum uint8
	for i := 0; i < consts.UDF_TAG_SIZE && i < len(data); i++ {
		if i == 4 {
			continue
		}
		sum += data[i]
	}
	return sum
}

// UnmarshalTag parses and verifies the tag at the start of data.
func UnmarshalTag(data []byte) (Tag, error) {
	if len(data) < consts.UDF_TAG_SIZE {
		return Tag{}, fmt.Errorf("tag needs %d bytes, have %d: %w", consts.UDF_TAG_SIZE, len(data), ErrShortBuffer)
	}
	if data[5] != 0 {
		return Tag{}, fmt.Errorf("reserved tag byte is %#x: %w", data[5], ErrChecksum)
	}
	if sum := Checksum(data); sum != data[4] {
		return Tag{}, fmt.Errorf("computed %#x, recorded %#x: %w", sum, data[4], ErrChecksum)
	}
	return Tag{
		Identifier:    TagIdentifier(encoding.Uint16(data, 0)),
		Version:       encoding.Uint16(data, 2),
		Checksum:      data[4],
		SerialNumber:  encoding.Uint16(data, 6),
		DescriptorCRC: encoding.Uint16(data, 8),
		CRCLength:     encoding.Uint16(data, 10),
		TagLocation:   encoding.Uint32(data, 12),
	}, nil
}

// UnmarshalTagOf parses the tag at the start of data and requires the given identifier.
func UnmarshalTagOf(data []byte, want TagIdentifier) (Tag, error) {
	tag, err := UnmarshalTag(data)
	if err != nil {
		return tag, err
	}
	if tag.Identifier != want {
		return tag, fmt.Errorf("want %s, found %s: %w", want, tag.Identifier, ErrUnexpectedTag)
	}
	return tag, nil
}

// MarshalInto writes the tag into the first 16 bytes of data and fills in the checksum.
func (t Tag) MarshalInto(data []byte) error {
	if len(data) < consts.UDF_TAG_SIZE {
		return ErrShortBuffer
	}
	encoding.PutUint16(data, 0, uint16(t.Identifier))
	encoding.PutUint16(data, 2, t.Version)
	data[5] = 0
	encoding.PutUint16(data, 6, t.SerialNumber)
	encoding.PutUint16(data, 8, t.DescriptorCRC)
	encoding.PutUint16(data, 10, t.CRCLength)
	encoding.PutUint32(data, 12, t.TagLocation)
	data[4] = Checksum(data)
	return nil
}

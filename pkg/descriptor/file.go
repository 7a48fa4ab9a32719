package descriptor

import (
	"fmt"
	"math"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/extent"
)

const (
	fileEntryICBTagOffset = 16
	fileEntryHeaderSize   = 176
)

// FileEntry is the ICB describing a file or directory.
type FileEntry struct {
	Tag                         Tag                `json:"tag"`
	ICBTag                      ICBTag             `json:"icb_tag"`
	InformationLength           uint64             `json:"information_length"`
	LogicalBlocksRecorded       uint64             `json:"logical_blocks_recorded"`
	AccessTime                  encoding.Timestamp `json:"access_time"`
	ModificationTime            encoding.Timestamp `json:"modification_time"`
	ExtendedAttributesLength    uint32             `json:"extended_attributes_length"`
	AllocationDescriptorsLength uint32             `json:"allocation_descriptors_length"`
	// AllocationDescriptors is the raw allocation descriptor area, or the file data when inline.
	AllocationDescriptors []byte `json:"-"`
}

// Unmarshal parses a file entry occupying one logical block.
func (f *FileEntry) Unmarshal(data []byte) error {
	tag, err := UnmarshalTagOf(data, TAG_FILE_ENTRY)
	if err != nil {
		return err
	}
	if len(data) < fileEntryHeaderSize {
		return fmt.Errorf("file entry: %w", ErrShortBuffer)
	}
	f.Tag = tag
	if f.ICBTag, err = UnmarshalICBTag(data, fileEntryICBTagOffset); err != nil {
		return err
	}
	if f.ICBTag.FileType != FILE_TYPE_FILE && f.ICBTag.FileType != FILE_TYPE_DIRECTORY {
		return fmt.Errorf("file type %s: %w", f.ICBTag.FileType, ErrMalformed)
	}

	f.InformationLength = encoding.Uint64(data, 56)
	if f.InformationLength > math.MaxInt64 {
		return fmt.Errorf("information length %d: %w", f.InformationLength, ErrMalformed)
	}
	f.LogicalBlocksRecorded = encoding.Uint64(data, 64)
	if f.AccessTime, err = encoding.UnmarshalTimestamp(data, 72); err != nil {
		return err
	}
	if f.ModificationTime, err = encoding.UnmarshalTimestamp(data, 84); err != nil {
		return err
	}

	f.ExtendedAttributesLength = encoding.Uint32(data, 168)
	f.AllocationDescriptorsLength = encoding.Uint32(data, 172)
	if f.ExtendedAttributesLength&3 != 0 {
		return fmt.Errorf("extended attribute length %d not a multiple of 4: %w", f.ExtendedAttributesLength, ErrMalformed)
	}
	remaining := uint64(len(data) - fileEntryHeaderSize)
	if uint64(f.ExtendedAttributesLength) > remaining {
		return fmt.Errorf("extended attribute length %d exceeds entry: %w", f.ExtendedAttributesLength, ErrMalformed)
	}
	remaining -= uint64(f.ExtendedAttributesLength)
	if uint64(f.AllocationDescriptorsLength) > remaining {
		return fmt.Errorf("allocation descriptor length %d exceeds entry: %w", f.AllocationDescriptorsLength, ErrMalformed)
	}

	start := fileEntryHeaderSize + int(f.ExtendedAttributesLength)
	f.AllocationDescriptors, err = encoding.ReadBytes(data, start, int(f.AllocationDescriptorsLength))
	return err
}

// IsInline reports whether the file data is embedded in the entry.
func (f *FileEntry) IsInline() bool {
	return f.ICBTag.AllocationType() == ALLOCATION_INLINE
}

// Extents decodes the allocation descriptor area. Short descriptors inherit partitionReference.
// Only short and long descriptors are supported.
func (f *FileEntry) Extents(partitionReference uint16) ([]extent.FileExtent, error) {
	var stride int
	switch at := f.ICBTag.AllocationType(); at {
	case ALLOCATION_SHORT:
		stride = extent.SHORT_AD_SIZE
	case ALLOCATION_LONG:
		stride = extent.LONG_AD_SIZE
	default:
		return nil, fmt.Errorf("%s allocation descriptors: %w", at, ErrMalformed)
	}

	ads := f.AllocationDescriptors
	extents := make([]extent.FileExtent, 0, len(ads)/stride)
	for pos := 0; pos < len(ads); pos += stride {
		if pos+stride > len(ads) {
			return nil, fmt.Errorf("allocation descriptor at %d overruns %d bytes: %w", pos, len(ads), ErrMalformed)
		}
		if stride == extent.SHORT_AD_SIZE {
			sad, err := extent.UnmarshalShortAD(ads, pos)
			if err != nil {
				return nil, err
			}
			extents = append(extents, extent.FromShortAD(sad, partitionReference))
		} else {
			lad, err := extent.UnmarshalLongAD(ads, pos)
			if err != nil {
				return nil, err
			}
			extents = append(extents, extent.FromLongAD(lad))
		}
	}
	return extents, nil
}

// File characteristics flags.
const (
	FILE_CHARACTERISTIC_HIDDEN    = 0x01
	FILE_CHARACTERISTIC_DIRECTORY = 0x02
	FILE_CHARACTERISTIC_DELETED   = 0x04
	FILE_CHARACTERISTIC_PARENT    = 0x08
)

// FileIdentifierDescriptor is a directory entry.
type FileIdentifierDescriptor struct {
	Tag                     Tag              `json:"tag"`
	Characteristics         uint8            `json:"characteristics"`
	IdentifierLength        uint8            `json:"identifier_length"`
	ICB                     extent.LongAD    `json:"icb"`
	ImplementationUseLength uint16           `json:"implementation_use_length"`
	Identifier              encoding.DString `json:"identifier"`
	// Size is the number of bytes the entry occupies including padding.
	Size int `json:"size"`
}

// Unmarshal parses a file identifier descriptor at the start of data.
func (fid *FileIdentifierDescriptor) Unmarshal(data []byte) error {
	if len(data) < consts.UDF_FILE_IDENTIFIER_HEADER_SIZE {
		return fmt.Errorf("file identifier needs %d bytes, have %d: %w", consts.UDF_FILE_IDENTIFIER_HEADER_SIZE, len(data), ErrShortBuffer)
	}
	tag, err := UnmarshalTagOf(data, TAG_FILE_IDENTIFIER)
	if err != nil {
		return err
	}
	fid.Tag = tag
	fid.Characteristics = data[18]
	fid.IdentifierLength = data[19]
	if fid.ICB, err = extent.UnmarshalLongAD(data, 20); err != nil {
		return err
	}
	fid.ImplementationUseLength = encoding.Uint16(data, 36)

	idStart := consts.UDF_FILE_IDENTIFIER_HEADER_SIZE + int(fid.ImplementationUseLength)
	size := idStart + int(fid.IdentifierLength)
	if size > len(data) {
		return fmt.Errorf("file identifier of %d bytes overruns %d: %w", size, len(data), ErrShortBuffer)
	}
	if fid.Identifier, err = encoding.UnmarshalDString(data, idStart, int(fid.IdentifierLength)); err != nil {
		return err
	}
	for ; size&3 != 0; size++ {
		if size >= len(data) {
			return fmt.Errorf("file identifier padding overruns %d: %w", len(data), ErrShortBuffer)
		}
		if data[size] != 0 {
			return fmt.Errorf("non-zero padding at %d: %w", size, ErrMalformed)
		}
	}
	fid.Size = size
	return nil
}

// IsParent reports whether the entry links to the parent directory.
func (fid *FileIdentifierDescriptor) IsParent() bool {
	return fid.Characteristics&FILE_CHARACTERISTIC_PARENT != 0
}

// IsDeleted reports whether the entry has been deleted.
func (fid *FileIdentifierDescriptor) IsDeleted() bool {
	return fid.Characteristics&FILE_CHARACTERISTIC_DELETED != 0
}

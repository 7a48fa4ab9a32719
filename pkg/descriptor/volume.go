package descriptor

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/extent"
)

// ExtentAD is an extent of whole sectors: a byte length and a starting sector.
type ExtentAD struct {
	Length   uint32 `json:"length"`
	Location uint32 `json:"location"`
}

// Sectors returns the number of sectors covered by the extent.
func (e ExtentAD) Sectors() int64 {
	return (int64(e.Length) + consts.UDF_SECTOR_SIZE - 1) / consts.UDF_SECTOR_SIZE
}

// AnchorVolumeDescriptorPointer locates the main and reserve volume descriptor sequences.
type AnchorVolumeDescriptorPointer struct {
	Tag        Tag      `json:"tag"`
	MainVDS    ExtentAD `json:"main_vds"`
	ReserveVDS ExtentAD `json:"reserve_vds"`
}

// Unmarshal parses the anchor from a sector.
func (a *AnchorVolumeDescriptorPointer) Unmarshal(data []byte) error {
	tag, err := UnmarshalTagOf(data, TAG_ANCHOR_VOLUME_POINTER)
	if err != nil {
		return err
	}
	if len(data) < consts.UDF_ANCHOR_VDS_OFFSET+16 {
		return fmt.Errorf("anchor: %w", ErrShortBuffer)
	}
	a.Tag = tag
	a.MainVDS = ExtentAD{
		Length:   encoding.Uint32(data, consts.UDF_ANCHOR_VDS_OFFSET),
		Location: encoding.Uint32(data, consts.UDF_ANCHOR_VDS_OFFSET+4),
	}
	a.ReserveVDS = ExtentAD{
		Length:   encoding.Uint32(data, consts.UDF_ANCHOR_VDS_OFFSET+8),
		Location: encoding.Uint32(data, consts.UDF_ANCHOR_VDS_OFFSET+12),
	}
	return nil
}

// PartitionDescriptor describes a physical partition.
type PartitionDescriptor struct {
	Tag              Tag    `json:"tag"`
	Number           uint16 `json:"number"`
	StartingLocation uint32 `json:"starting_location"`
	Length           uint32 `json:"length"`
}

// Unmarshal parses a partition descriptor from a sector.
func (p *PartitionDescriptor) Unmarshal(data []byte) error {
	tag, err := UnmarshalTagOf(data, TAG_PARTITION)
	if err != nil {
		return err
	}
	if len(data) < 196 {
		return fmt.Errorf("partition descriptor: %w", ErrShortBuffer)
	}
	p.Tag = tag
	p.Number = encoding.Uint16(data, 22)
	p.StartingLocation = encoding.Uint32(data, 188)
	p.Length = encoding.Uint32(data, 192)
	return nil
}

const (
	// PARTITION_MAP_TYPE_1 is a physical partition map, the only type supported.
	PARTITION_MAP_TYPE_1 = 1

	partitionMapTableOffset = 440
	partitionMapType1Length = 6
)

// PartitionMap references a partition by number.
type PartitionMap struct {
	Type                 uint8  `json:"type"`
	Length               uint8  `json:"length"`
	VolumeSequenceNumber uint16 `json:"volume_sequence_number"`
	PartitionNumber      uint16 `json:"partition_number"`
}

// LogicalVolumeDescriptor describes a logical volume and the partitions it is built from.
type LogicalVolumeDescriptor struct {
	Tag              Tag                `json:"tag"`
	Identifier       encoding.String128 `json:"identifier"`
	LogicalBlockSize uint32             `json:"logical_block_size"`
	FileSetLocation  extent.LongAD      `json:"file_set_location"`
	MapTableLength   uint32             `json:"map_table_length"`
	PartitionMaps    []PartitionMap     `json:"partition_maps"`
}

// Unmarshal parses a logical volume descriptor from a sector. Only type 1 partition maps are accepted.
func (l *LogicalVolumeDescriptor) Unmarshal(data []byte) error {
	tag, err := UnmarshalTagOf(data, TAG_LOGICAL_VOLUME)
	if err != nil {
		return err
	}
	if len(data) < partitionMapTableOffset {
		return fmt.Errorf("logical volume descriptor: %w", ErrShortBuffer)
	}

	l.Tag = tag
	if l.Identifier, err = encoding.UnmarshalString128(data, 84); err != nil {
		return err
	}
	l.LogicalBlockSize = encoding.Uint32(data, 212)
	if l.LogicalBlockSize < consts.UDF_VIRTUAL_SECTOR_SIZE || l.LogicalBlockSize > consts.UDF_MAX_LOGICAL_BLOCK_SIZE {
		return fmt.Errorf("logical block size %d: %w", l.LogicalBlockSize, ErrMalformed)
	}
	if l.FileSetLocation, err = extent.UnmarshalLongAD(data, 248); err != nil {
		return err
	}
	l.MapTableLength = encoding.Uint32(data, 264)

	count := encoding.Uint32(data, 268)
	if count > consts.UDF_MAX_PARTITIONS {
		return fmt.Errorf("%d partition maps: %w", count, ErrMalformed)
	}

	l.PartitionMaps = make([]PartitionMap, 0, count)
	pos := partitionMapTableOffset
	for i := uint32(0); i < count; i++ {
		if pos+2 > len(data) {
			return fmt.Errorf("partition map %d header overruns sector: %w", i, ErrShortBuffer)
		}
		pm := PartitionMap{Type: data[pos], Length: data[pos+1]}
		if pm.Type != PARTITION_MAP_TYPE_1 {
			return fmt.Errorf("partition map %d has type %d: %w", i, pm.Type, ErrMalformed)
		}
		if pm.Length < partitionMapType1Length {
			return fmt.Errorf("partition map %d has length %d: %w", i, pm.Length, ErrMalformed)
		}
		if pos+int(pm.Length) > len(data) || pos+partitionMapType1Length > len(data) {
			return fmt.Errorf("partition map %d overruns sector: %w", i, ErrShortBuffer)
		}
		pm.VolumeSequenceNumber = encoding.Uint16(data, pos+2)
		pm.PartitionNumber = encoding.Uint16(data, pos+4)
		l.PartitionMaps = append(l.PartitionMaps, pm)
		pos += int(pm.Length)
	}
	return nil
}

// FileSetDescriptor holds the root directory location of a logical volume.
type FileSetDescriptor struct {
	Tag              Tag                `json:"tag"`
	RecordingTime    encoding.Timestamp `json:"recording_time"`
	RootDirectoryICB extent.LongAD      `json:"root_directory_icb"`
}

// Unmarshal parses a file set descriptor.
func (f *FileSetDescriptor) Unmarshal(data []byte) error {
	tag, err := UnmarshalTagOf(data, TAG_FILE_SET)
	if err != nil {
		return err
	}
	if len(data) < 400+extent.LONG_AD_SIZE {
		return fmt.Errorf("file set descriptor: %w", ErrShortBuffer)
	}
	f.Tag = tag
	if f.RecordingTime, err = encoding.UnmarshalTimestamp(data, 16); err != nil {
		return err
	}
	if f.RootDirectoryICB, err = extent.UnmarshalLongAD(data, 400); err != nil {
		return err
	}
	return nil
}

package volume

import (
	"errors"
	"fmt"
	"time"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/descriptor"
	"github.com/bgrewell/udf-kit/pkg/extent"
	"github.com/bgrewell/udf-kit/pkg/filesystem"
)

var (
	// ErrUnmatchedPartition is returned when a partition map names a partition that was not described.
	ErrUnmatchedPartition = errors.New("partition map references unknown partition")
	// ErrPartitionClaimed is returned when two logical volumes map the same partition.
	ErrPartitionClaimed = errors.New("partition claimed by more than one logical volume")
	// ErrNoPartitionMaps is returned for a logical volume without partition maps.
	ErrNoPartitionMaps = errors.New("logical volume has no partition maps")
	// ErrDuplicateRecord is returned when a second record is stored under an existing key.
	ErrDuplicateRecord = errors.New("record already stored for block")
	// ErrExtentOutOfBounds is returned when an extent runs past the end of its partition.
	ErrExtentOutOfBounds = errors.New("extent outside partition")
	// ErrBadPartitionReference is returned when a partition reference does not index a partition map.
	ErrBadPartitionReference = errors.New("invalid partition reference")
)

// Partition is a physical partition and the records already parsed from it.
type Partition struct {
	Number uint16 `json:"number"`
	// Start is the absolute starting sector.
	Start uint32 `json:"start"`
	// Length is the number of sectors.
	Length uint32 `json:"length"`
	// VolumeIndex is the owning logical volume, -1 until linked.
	VolumeIndex int `json:"volume_index"`

	records map[uint32]*filesystem.Record
}

// NewPartition builds a partition from its descriptor.
func NewPartition(pd descriptor.PartitionDescriptor) *Partition {
	return &Partition{
		Number:      pd.Number,
		Start:       pd.StartingLocation,
		Length:      pd.Length,
		VolumeIndex: -1,
		records:     make(map[uint32]*filesystem.Record),
	}
}

// Offset returns the absolute byte offset of the partition.
func (p *Partition) Offset() int64 {
	return int64(p.Start) << consts.UDF_SECTOR_SHIFT
}

// End returns the absolute byte offset just past the partition.
func (p *Partition) End() int64 {
	return (int64(p.Start) + int64(p.Length)) << consts.UDF_SECTOR_SHIFT
}

// Lookup returns the record already stored for a block position.
func (p *Partition) Lookup(key uint32) (*filesystem.Record, bool) {
	r, ok := p.records[key]
	return r, ok
}

// Store adds a record for a block position. Keys can only be stored once.
func (p *Partition) Store(key uint32, r *filesystem.Record) error {
	if _, exists := p.records[key]; exists {
		return fmt.Errorf("partition %d block %d: %w", p.Number, key, ErrDuplicateRecord)
	}
	p.records[key] = r
	return nil
}

// Records returns the number of records stored.
func (p *Partition) Records() int {
	return len(p.records)
}

// PartitionMap links a logical volume partition reference to a partition.
type PartitionMap struct {
	Type            uint8  `json:"type"`
	PartitionNumber uint16 `json:"partition_number"`
	// PartitionIndex indexes the partition list once linked, -1 before.
	PartitionIndex int `json:"partition_index"`
}

// FileSet is the file set of a logical volume.
type FileSet struct {
	RecordingTime time.Time     `json:"recording_time"`
	RootICB       extent.LongAD `json:"root_icb"`
}

// LogicalVolume is a logical volume built on one or more partitions.
type LogicalVolume struct {
	Identifier      string         `json:"identifier"`
	BlockSize       uint32         `json:"block_size"`
	PartitionMaps   []PartitionMap `json:"partition_maps"`
	FileSetLocation extent.LongAD  `json:"file_set_location"`
	FileSet         *FileSet       `json:"file_set,omitempty"`
}

// NewLogicalVolume builds a logical volume from its descriptor.
func NewLogicalVolume(lvd descriptor.LogicalVolumeDescriptor) *LogicalVolume {
	lv := &LogicalVolume{
		Identifier:      lvd.Identifier.String(),
		BlockSize:       lvd.LogicalBlockSize,
		FileSetLocation: lvd.FileSetLocation,
		PartitionMaps:   make([]PartitionMap, 0, len(lvd.PartitionMaps)),
	}
	for _, pm := range lvd.PartitionMaps {
		lv.PartitionMaps = append(lv.PartitionMaps, PartitionMap{
			Type:            pm.Type,
			PartitionNumber: pm.PartitionNumber,
			PartitionIndex:  -1,
		})
	}
	return lv
}

// Link resolves every partition map to an index into partitions and records the owning volume of each
// partition. A partition may belong to one volume only.
func Link(volumes []*LogicalVolume, partitions []*Partition) error {
	for vi, lv := range volumes {
		if len(lv.PartitionMaps) == 0 {
			return fmt.Errorf("volume %d %q: %w", vi, lv.Identifier, ErrNoPartitionMaps)
		}
		for mi := range lv.PartitionMaps {
			pm := &lv.PartitionMaps[mi]
			found := -1
			for pi, p := range partitions {
				if p.Number == pm.PartitionNumber {
					found = pi
					break
				}
			}
			if found < 0 {
				return fmt.Errorf("volume %d map %d partition %d: %w", vi, mi, pm.PartitionNumber, ErrUnmatchedPartition)
			}
			p := partitions[found]
			if p.VolumeIndex >= 0 && p.VolumeIndex != vi {
				return fmt.Errorf("partition %d owned by volume %d, claimed by %d: %w", p.Number, p.VolumeIndex, vi, ErrPartitionClaimed)
			}
			p.VolumeIndex = vi
			pm.PartitionIndex = found
		}
	}
	return nil
}

// Resolver translates partition relative block addresses of one logical volume into absolute offsets.
type Resolver struct {
	Volume     *LogicalVolume
	Partitions []*Partition
}

// Partition returns the partition and its index for a partition reference.
func (r Resolver) Partition(reference uint16) (*Partition, int, error) {
	if int(reference) >= len(r.Volume.PartitionMaps) {
		return nil, -1, fmt.Errorf("reference %d of %d maps: %w", reference, len(r.Volume.PartitionMaps), ErrBadPartitionReference)
	}
	idx := r.Volume.PartitionMaps[reference].PartitionIndex
	if idx < 0 || idx >= len(r.Partitions) {
		return nil, -1, fmt.Errorf("reference %d is unlinked: %w", reference, ErrBadPartitionReference)
	}
	return r.Partitions[idx], idx, nil
}

// Offset returns the absolute byte offset of length bytes at block position, verifying the range lies
// inside the partition.
func (r Resolver) Offset(reference uint16, position uint32, length int64) (int64, error) {
	p, _, err := r.Partition(reference)
	if err != nil {
		return 0, err
	}
	offset := p.Offset() + int64(position)*int64(r.Volume.BlockSize)
	if length < 0 || offset+length > p.End() {
		return 0, fmt.Errorf("block %d length %d in partition %d: %w", position, length, p.Number, ErrExtentOutOfBounds)
	}
	return offset, nil
}

// CheckExtents verifies every extent lies inside its partition.
func (r Resolver) CheckExtents(extents []extent.FileExtent) error {
	for _, e := range extents {
		if _, err := r.Offset(e.PartitionReference, e.Position, int64(e.Length())); err != nil {
			return err
		}
	}
	return nil
}

package extent

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/encoding"
)

const (
	SHORT_AD_SIZE = 8
	LONG_AD_SIZE  = 16

	lengthMask = 0x3FFFFFFF
)

// AllocationState is the extent type packed into the top two bits of an allocation descriptor length.
type AllocationState uint8

const (
	RECORDED_AND_ALLOCATED     AllocationState = 0
	NOT_RECORDED_BUT_ALLOCATED AllocationState = 1
	NOT_RECORDED_NOT_ALLOCATED AllocationState = 2
	NEXT_EXTENT_OF_DESCRIPTORS AllocationState = 3
)

func (s AllocationState) String() string {
	switch s {
	case RECORDED_AND_ALLOCATED:
		return "recorded and allocated"
	case NOT_RECORDED_BUT_ALLOCATED:
		return "allocated not recorded"
	case NOT_RECORDED_NOT_ALLOCATED:
		return "not allocated"
	default:
		return "continuation"
	}
}

// ShortAD is a short allocation descriptor. It does not carry a partition reference.
type ShortAD struct {
	RawLength uint32 `json:"raw_length"`
	Position  uint32 `json:"position"`
}

// UnmarshalShortAD parses a short allocation descriptor at offset.
func UnmarshalShortAD(data []byte, offset int) (ShortAD, error) {
	if offset < 0 || offset+SHORT_AD_SIZE > len(data) {
		return ShortAD{}, fmt.Errorf("short allocation descriptor at %d: %w", offset, encoding.ErrOutOfRange)
	}
	return ShortAD{
		RawLength: encoding.Uint32(data, offset),
		Position:  encoding.Uint32(data, offset+4),
	}, nil
}

func (ad ShortAD) Length() uint32 {
	return ad.RawLength & lengthMask
}

func (ad ShortAD) State() AllocationState {
	return AllocationState(ad.RawLength >> 30)
}

// IsRecordedAndAllocated reports whether the extent holds recorded data.
func (ad ShortAD) IsRecordedAndAllocated() bool {
	return ad.State() == RECORDED_AND_ALLOCATED
}

// Marshal encodes the descriptor.
func (ad ShortAD) Marshal() [SHORT_AD_SIZE]byte {
	var out [SHORT_AD_SIZE]byte
	encoding.PutUint32(out[:], 0, ad.RawLength)
	encoding.PutUint32(out[:], 4, ad.Position)
	return out
}

// LBAddr is a logical block address relative to a partition reference.
type LBAddr struct {
	Position           uint32 `json:"position"`
	PartitionReference uint16 `json:"partition_reference"`
}

// LongAD is a long allocation descriptor.
type LongAD struct {
	RawLength uint32 `json:"raw_length"`
	Location  LBAddr `json:"location"`
}

// UnmarshalLongAD parses a long allocation descriptor at offset.
func UnmarshalLongAD(data []byte, offset int) (LongAD, error) {
	if offset < 0 || offset+LONG_AD_SIZE > len(data) {
		return LongAD{}, fmt.Errorf("long allocation descriptor at %d: %w", offset, encoding.ErrOutOfRange)
	}
	return LongAD{
		RawLength: encoding.Uint32(data, offset),
		Location: LBAddr{
			Position:           encoding.Uint32(data, offset+4),
			PartitionReference: encoding.Uint16(data, offset+8),
		},
	}, nil
}

func (ad LongAD) Length() uint32 {
	return ad.RawLength & lengthMask
}

func (ad LongAD) State() AllocationState {
	return AllocationState(ad.RawLength >> 30)
}

// IsRecordedAndAllocated reports whether the extent holds recorded data.
func (ad LongAD) IsRecordedAndAllocated() bool {
	return ad.State() == RECORDED_AND_ALLOCATED
}

// Marshal encodes the descriptor. The implementation use bytes are left zero.
func (ad LongAD) Marshal() [LONG_AD_SIZE]byte {
	var out [LONG_AD_SIZE]byte
	encoding.PutUint32(out[:], 0, ad.RawLength)
	encoding.PutUint32(out[:], 4, ad.Location.Position)
	encoding.PutUint16(out[:], 8, ad.Location.PartitionReference)
	return out
}

// FileExtent is a run of blocks holding part of a file or directory.
type FileExtent struct {
	PartitionReference uint16 `json:"partition_reference"`
	Position           uint32 `json:"position"`
	RawLength          uint32 `json:"raw_length"`
}

// FromShortAD builds an extent from a short descriptor, inheriting the partition reference.
func FromShortAD(ad ShortAD, partitionReference uint16) FileExtent {
	return FileExtent{
		PartitionReference: partitionReference,
		Position:           ad.Position,
		RawLength:          ad.RawLength,
	}
}

// FromLongAD builds an extent from a long descriptor.
func FromLongAD(ad LongAD) FileExtent {
	return FileExtent{
		PartitionReference: ad.Location.PartitionReference,
		Position:           ad.Location.Position,
		RawLength:          ad.RawLength,
	}
}

// Length returns the extent length in bytes.
func (e FileExtent) Length() uint32 {
	return e.RawLength & lengthMask
}

func (e FileExtent) State() AllocationState {
	return AllocationState(e.RawLength >> 30)
}

func (e FileExtent) IsRecordedAndAllocated() bool {
	return e.State() == RECORDED_AND_ALLOCATED
}

// MakeLength packs a byte length and an allocation state into a raw length field.
func MakeLength(length uint32, state AllocationState) uint32 {
	return length&lengthMask | uint32(state)<<30
}

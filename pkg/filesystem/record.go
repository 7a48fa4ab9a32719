package filesystem

import (
	"path"
	"sync/atomic"
	"time"

	"github.com/bgrewell/udf-kit/pkg/descriptor"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/extent"
)

// Kind identifies the on-disk format backing a record.
type Kind uint8

const (
	KIND_UNKNOWN Kind = iota
	KIND_UDF
)

// UDFAttributes holds the UDF specific state of a record.
type UDFAttributes struct {
	VolumeIndex    int `json:"volume_index"`
	PartitionIndex int `json:"partition_index"`
	// Key is the block position of the file entry inside its partition.
	Key        uint32              `json:"key"`
	Identifier encoding.DString    `json:"identifier"`
	ICB        descriptor.ICBTag   `json:"icb"`
	Extents    []extent.FileExtent `json:"extents"`
	IsInline   bool                `json:"is_inline"`
	InlineData []byte              `json:"-"`

	LogicalBlocksRecorded uint64             `json:"logical_blocks_recorded"`
	AccessTime            encoding.Timestamp `json:"access_time"`
	ModificationTime      encoding.Timestamp `json:"modification_time"`
}

// IsRecordedAndAllocated reports whether every extent holds recorded data.
func (u *UDFAttributes) IsRecordedAndAllocated() bool {
	for _, e := range u.Extents {
		if !e.IsRecordedAndAllocated() {
			return false
		}
	}
	return true
}

// ChunkSize returns the number of bytes described by the extents, or the inline data length.
func (u *UDFAttributes) ChunkSize() int64 {
	if u.IsInline {
		return int64(len(u.InlineData))
	}
	var total int64
	for _, e := range u.Extents {
		total += int64(e.Length())
	}
	return total
}

// Record is a file or directory in an image. Parents own their children; the parent pointer is a
// back reference only.
type Record struct {
	parent   *Record
	children []*Record

	name string

	Kind Kind           `json:"kind"`
	UDF  *UDFAttributes `json:"udf,omitempty"`

	AccessTime time.Time `json:"access_time"`
	ModTime    time.Time `json:"mod_time"`

	// Tag is free for callers to attach their own data.
	Tag any `json:"-"`

	size      atomic.Int64
	sizeKnown atomic.Bool
}

// NewUDFRecord creates an empty UDF backed record.
func NewUDFRecord() *Record {
	return &Record{Kind: KIND_UDF, UDF: &UDFAttributes{VolumeIndex: -1, PartitionIndex: -1}}
}

// Name returns the record name. UDF records decode it from their identifier.
func (r *Record) Name() string {
	if r.name == "" && r.UDF != nil {
		r.name = r.UDF.Identifier.String()
	}
	return r.name
}

// IsUDF reports whether the record came from a UDF file system.
func (r *Record) IsUDF() bool {
	return r.Kind == KIND_UDF && r.UDF != nil
}

func (r *Record) IsDir() bool {
	if r.UDF != nil {
		return r.UDF.ICB.IsDirectory()
	}
	return false
}

// IsSystem reports whether the record has no usable identifier.
func (r *Record) IsSystem() bool {
	if r.UDF != nil {
		return r.UDF.Identifier.IsSystem()
	}
	return r.name == ""
}

// IsRoot reports whether the record has no parent.
func (r *Record) IsRoot() bool {
	return r.parent == nil
}

func (r *Record) Parent() *Record {
	return r.parent
}

// Children returns the ordered child records. The slice must not be modified.
func (r *Record) Children() []*Record {
	return r.children
}

// AddChild appends child and points its parent at r.
func (r *Record) AddChild(child *Record) {
	child.parent = r
	r.children = append(r.children, child)
}

// SetSize records the size of a file. Passing a negative size on a directory resets the cached value
// so it is recomputed from the children on the next call to Size.
func (r *Record) SetSize(size int64) {
	if size < 0 {
		r.size.Store(0)
		r.sizeKnown.Store(false)
		return
	}
	r.size.Store(size)
	r.sizeKnown.Store(true)
}

// Size returns the file size, or for directories the sum of the children sizes computed on first use.
func (r *Record) Size() int64 {
	if r.sizeKnown.Load() || !r.IsDir() {
		return r.size.Load()
	}
	var total int64
	for _, child := range r.children {
		total += child.Size()
	}
	r.size.Store(total)
	r.sizeKnown.Store(true)
	return total
}

// Path returns the slash separated path of the record relative to the root.
func (r *Record) Path() string {
	if r.parent == nil {
		return ""
	}
	return path.Join(r.parent.Path(), r.Name())
}

// Extractable reports whether the record data is fully recorded and consistent with its size.
func (r *Record) Extractable() bool {
	if !r.IsUDF() {
		return false
	}
	if r.IsDir() {
		return true
	}
	return r.UDF.IsRecordedAndAllocated() && r.UDF.ChunkSize() == r.Size()
}

// Walk visits r and its descendants depth first in tree order. Returning SkipDir from fn on a
// directory skips its children.
func (r *Record) Walk(fn func(*Record) error) error {
	if err := fn(r); err != nil {
		if err == SkipDir {
			return nil
		}
		return err
	}
	for _, child := range r.children {
		if err := child.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

package udf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/bgrewell/udf-kit/pkg/filesystem"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/parser"
	"github.com/bgrewell/udf-kit/pkg/systemarea"
	"github.com/bgrewell/udf-kit/pkg/volume"
	"github.com/bgrewell/udf-kit/pkg/vrs"
)

// UDF reads the file systems of a UDF image and extracts them to disk.
//
// Every call that touches the image acquires its own handle, so a UDF created with New holds no open file
// between calls. The record tree is built by Open and is read only afterwards.
type UDF struct {
	location string
	stream   io.ReaderAt
	size     int64

	options *option.OpenOptions
	logger  *logging.Logger

	root       *filesystem.Record
	volumes    []*volume.LogicalVolume
	partitions []*volume.Partition

	progress atomic.Int32
}

// New returns a reader for the image file at location. Nothing is read until Open is called.
func New(location string, opts ...option.OpenOption) *UDF {
	options := option.Apply(opts...)
	return &UDF{
		location: location,
		options:  options,
		logger:   options.Logger.WithName("udf"),
	}
}

// NewFromReader returns a reader for an image held by r. The caller keeps ownership of r and must keep it
// readable for as long as the UDF is used.
func NewFromReader(r io.ReaderAt, size int64, opts ...option.OpenOption) *UDF {
	u := New("", opts...)
	u.stream = r
	u.size = size
	return u
}

// Open parses the image and builds the record tree, replacing any tree from an earlier call.
//
// It returns false with a nil error when the image is not a valid UDF image. Failures to access the image
// are returned as errors.
func (u *UDF) Open() (bool, error) {
	u.root, u.volumes, u.partitions = nil, nil, nil

	reader, size, release, err := u.acquire()
	if err != nil {
		return false, err
	}
	defer release()

	if seq, err := vrs.Read(reader, size); err != nil {
		u.logger.Debug("no volume recognition sequence", "error", err)
	} else {
		u.logger.Debug("volume recognition sequence", "identifiers", seq.Identifiers(), "udf", seq.IsUDF())
	}

	p := parser.NewParser(reader, size, u.options)
	root, err := p.Parse()
	if errors.Is(err, parser.ErrInvalidImage) {
		u.logger.Debug("image rejected", "location", u.location, "reason", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	u.root = root
	u.volumes = p.Volumes()
	u.partitions = p.Partitions()
	u.logger.Info("opened image", "location", u.location, "volumes", len(u.volumes), "size", root.Size())
	return true, nil
}

// OpenStream is Open for an image held by r. The reader replaces any location or reader given before.
func (u *UDF) OpenStream(r io.ReaderAt, size int64) (bool, error) {
	u.location = ""
	u.stream = r
	u.size = size
	return u.Open()
}

// Root returns the root of the record tree, or nil before a successful Open.
func (u *UDF) Root() *filesystem.Record {
	return u.root
}

// Volumes returns the logical volumes of the image.
func (u *UDF) Volumes() []*volume.LogicalVolume {
	return u.volumes
}

// Partitions returns the partitions of the image.
func (u *UDF) Partitions() []*volume.Partition {
	return u.partitions
}

// Location returns the path of the image file, empty for images read from a stream.
func (u *UDF) Location() string {
	return u.location
}

// Progress returns the last extraction progress reported, in percent of the image length.
func (u *UDF) Progress() int {
	return int(u.progress.Load())
}

// RecognitionSequence reads the volume recognition sequence of the image.
func (u *UDF) RecognitionSequence() (*vrs.Sequence, error) {
	reader, size, release, err := u.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return vrs.Read(reader, size)
}

// SystemArea reads the reserved area at the start of the image.
func (u *UDF) SystemArea() (*systemarea.SystemArea, error) {
	reader, size, release, err := u.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return systemarea.Read(reader, size)
}

// SetLogger replaces the logger used by later calls.
func (u *UDF) SetLogger(logger *logging.Logger) {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	u.options.Logger = logger
	u.logger = logger.WithName("udf")
}

// GetLogger returns the logger of the reader.
func (u *UDF) GetLogger() *logging.Logger {
	return u.logger
}

// acquire returns a handle on the image, its length and a function releasing the handle.
func (u *UDF) acquire() (io.ReaderAt, int64, func(), error) {
	if u.stream != nil {
		return u.stream, u.size, func() {}, nil
	}
	f, err := os.Open(u.location)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to open image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, fmt.Errorf("failed to stat image: %w", err)
	}
	return f, info.Size(), func() { f.Close() }, nil
}

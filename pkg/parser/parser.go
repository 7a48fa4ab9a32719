package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/descriptor"
	"github.com/bgrewell/udf-kit/pkg/extent"
	"github.com/bgrewell/udf-kit/pkg/filesystem"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/validation"
	"github.com/bgrewell/udf-kit/pkg/volume"
)

// ErrInvalidImage is wrapped by every error caused by the image content rather than by I/O.
var ErrInvalidImage = errors.New("invalid UDF image")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidImage, fmt.Sprintf(format, args...))
}

func invalidWrap(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidImage, fmt.Sprintf(format, args...), err)
}

func NewParser(reader io.ReaderAt, size int64, options *option.OpenOptions) *Parser {
	if options == nil {
		options = option.DefaultOpenOptions()
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Parser{
		reader:  reader,
		size:    size,
		options: options,
		logger:  logger.WithName("parser"),
		limits:  defaultLimits(),
	}
}

// limits bounds what a single parse may allocate.
type limits struct {
	partitions    int
	volumes       int
	items         int
	files         int
	extents       int
	inlineBytes   int64
	fileNameBytes int64
}

func defaultLimits() limits {
	return limits{
		partitions:    consts.UDF_MAX_PARTITIONS,
		volumes:       consts.UDF_MAX_LOGICAL_VOLUMES,
		items:         consts.UDF_MAX_ITEMS,
		files:         consts.UDF_MAX_FILES,
		extents:       consts.UDF_MAX_EXTENTS,
		inlineBytes:   consts.UDF_MAX_INLINE_EXTENTS_SIZE,
		fileNameBytes: consts.UDF_MAX_FILE_NAME_LENGTH,
	}
}

// Parser reads the descriptors and record tree of a single image. A Parser is used for one parse only.
type Parser struct {
	reader  io.ReaderAt
	size    int64
	options *option.OpenOptions
	logger  *logging.Logger
	limits  limits

	partitions []*volume.Partition
	volumes    []*volume.LogicalVolume

	// Running totals across the whole tree
	itemCount     int
	childCount    int
	numExtents    int
	inlineBytes   int64
	fileNameBytes int64
}

// Partitions returns the partitions found in the volume descriptor sequence.
func (p *Parser) Partitions() []*volume.Partition {
	return p.partitions
}

// Volumes returns the logical volumes found in the volume descriptor sequence.
func (p *Parser) Volumes() []*volume.LogicalVolume {
	return p.volumes
}

// Parse locates the volume descriptors, links volumes to partitions and builds the record tree of every
// logical volume under a single root.
func (p *Parser) Parse() (*filesystem.Record, error) {
	if p.size < consts.UDF_SECTOR_SIZE {
		return nil, invalid("image of %d bytes is smaller than one sector", p.size)
	}

	anchor, err := p.ReadAnchor()
	if err != nil {
		return nil, err
	}
	p.logger.Debug("found anchor volume descriptor pointer",
		"vds_location", anchor.MainVDS.Location, "vds_length", anchor.MainVDS.Length)

	if err = p.ReadVolumeDescriptorSequence(anchor.MainVDS); err != nil {
		return nil, err
	}
	if len(p.volumes) == 0 {
		return nil, invalid("no logical volume descriptors")
	}
	if err = volume.Link(p.volumes, p.partitions); err != nil {
		return nil, invalidWrap(err, "linking volumes")
	}

	root := filesystem.NewUDFRecord()
	for vi, lv := range p.volumes {
		fs, err := p.ReadFileSet(vi)
		if err != nil {
			return nil, err
		}
		lv.FileSet = fs
		p.logger.Debug("reading file set", "volume", lv.Identifier, "root_block", fs.RootICB.Location.Position)
		if err = p.ReadRecord(root, vi, fs.RootICB, consts.UDF_MAX_RECURSE_LEVELS); err != nil {
			return nil, err
		}
	}
	p.logger.Debug("parsed record tree", "items", p.itemCount, "children", p.childCount, "extents", p.numExtents)
	return root, nil
}

// ReadAnchor reads the anchor volume descriptor pointer from the last sector of the image.
func (p *Parser) ReadAnchor() (*descriptor.AnchorVolumeDescriptorPointer, error) {
	last := (p.size>>consts.UDF_SECTOR_SHIFT - 1) << consts.UDF_SECTOR_SHIFT
	buf, err := p.readAt(last, consts.UDF_SECTOR_SIZE)
	if err != nil {
		return nil, err
	}
	anchor := &descriptor.AnchorVolumeDescriptorPointer{}
	if err = anchor.Unmarshal(buf); err != nil {
		p.logger.Debug("no anchor in last sector", "offset", last, "reason", err.Error())
		return nil, invalidWrap(err, "anchor at offset %d", last)
	}
	return anchor, nil
}

// ReadVolumeDescriptorSequence walks the sectors of the sequence collecting partitions and logical volumes
// until the terminating descriptor. Sectors with an unreadable tag or an unhandled descriptor are skipped.
func (p *Parser) ReadVolumeDescriptorSequence(vds descriptor.ExtentAD) error {
	totalSectors := p.size >> consts.UDF_SECTOR_SHIFT
	end := int64(vds.Location) + vds.Sectors()
	for sector := int64(vds.Location); sector < end && sector < totalSectors; sector++ {
		buf, err := p.readAt(sector<<consts.UDF_SECTOR_SHIFT, consts.UDF_SECTOR_SIZE)
		if err != nil {
			return err
		}

		tag, err := descriptor.UnmarshalTag(buf)
		if err != nil {
			p.logger.Trace("skipping volume descriptor sector", "sector", sector, "reason", err.Error())
			continue
		}

		switch tag.Identifier {
		case descriptor.TAG_TERMINATING:
			p.logger.Debug("volume descriptor sequence complete",
				"sector", sector, "partitions", len(p.partitions), "volumes", len(p.volumes))
			return nil
		case descriptor.TAG_PARTITION:
			if len(p.partitions) >= p.limits.partitions {
				return invalid("more than %d partition descriptors", p.limits.partitions)
			}
			pd := descriptor.PartitionDescriptor{}
			if err = pd.Unmarshal(buf); err != nil {
				return invalidWrap(err, "partition descriptor at sector %d", sector)
			}
			p.logger.Debug("partition descriptor", "sector", sector, "number", pd.Number,
				"start", pd.StartingLocation, "length", pd.Length)
			p.partitions = append(p.partitions, volume.NewPartition(pd))
		case descriptor.TAG_LOGICAL_VOLUME:
			if len(p.volumes) >= p.limits.volumes {
				return invalid("more than %d logical volume descriptors", p.limits.volumes)
			}
			lvd := descriptor.LogicalVolumeDescriptor{}
			if err = lvd.Unmarshal(buf); err != nil {
				return invalidWrap(err, "logical volume descriptor at sector %d", sector)
			}
			p.logger.Debug("logical volume descriptor", "sector", sector, "identifier", lvd.Identifier.String(),
				"block_size", lvd.LogicalBlockSize, "maps", len(lvd.PartitionMaps))
			p.volumes = append(p.volumes, volume.NewLogicalVolume(lvd))
		default:
			p.logger.Trace("ignoring volume descriptor", "sector", sector, "identifier", tag.Identifier.String())
		}
	}
	return invalid("volume descriptor sequence at sector %d has no terminating descriptor", vds.Location)
}

// ReadFileSet reads the file set descriptor of a linked logical volume. At most one block is read.
func (p *Parser) ReadFileSet(volumeIndex int) (*volume.FileSet, error) {
	lv := p.volumes[volumeIndex]
	loc := lv.FileSetLocation
	if loc.Length() < consts.UDF_VIRTUAL_SECTOR_SIZE {
		return nil, invalid("volume %q file set extent of %d bytes", lv.Identifier, loc.Length())
	}
	length := loc.Length()
	if length > lv.BlockSize {
		length = lv.BlockSize
	}

	res := p.resolver(volumeIndex)
	buf, err := p.readBlocks(res, loc.Location.PartitionReference, loc.Location.Position, int64(length))
	if err != nil {
		return nil, err
	}
	fsd := descriptor.FileSetDescriptor{}
	if err = fsd.Unmarshal(buf); err != nil {
		return nil, invalidWrap(err, "volume %q file set", lv.Identifier)
	}
	return &volume.FileSet{
		RecordingTime: fsd.RecordingTime.Time(),
		RootICB:       fsd.RootDirectoryICB,
	}, nil
}

// ReadRecord fills record from the file entry at icb. A file entry already parsed in the same partition is
// shared instead of being read again. budget bounds the remaining nesting depth.
func (p *Parser) ReadRecord(record *filesystem.Record, volumeIndex int, icb extent.LongAD, budget int) error {
	if budget <= 0 {
		return invalid("directory nesting deeper than %d levels", consts.UDF_MAX_RECURSE_LEVELS)
	}
	budget--

	res := p.resolver(volumeIndex)
	partition, partitionIndex, err := res.Partition(icb.Location.PartitionReference)
	if err != nil {
		return invalidWrap(err, "file entry icb")
	}

	key := icb.Location.Position
	if existing, ok := partition.Lookup(key); ok {
		p.logger.Trace("sharing file entry", "partition", partition.Number, "block", key, "name", record.Name())
		share(record, existing, key)
		return nil
	}

	attrs := record.UDF
	attrs.VolumeIndex = volumeIndex
	attrs.PartitionIndex = partitionIndex
	attrs.Key = key
	if err = partition.Store(key, record); err != nil {
		return invalidWrap(err, "file entry")
	}
	return p.ReadRecordData(record, volumeIndex, icb, budget)
}

// share copies the parsed state of an already read record into record.
func share(record, existing *filesystem.Record, key uint32) {
	src, dst := existing.UDF, record.UDF
	dst.VolumeIndex = src.VolumeIndex
	dst.PartitionIndex = src.PartitionIndex
	dst.Key = key
	dst.ICB = src.ICB
	dst.Extents = src.Extents
	dst.IsInline = src.IsInline
	dst.InlineData = src.InlineData
	dst.LogicalBlocksRecorded = src.LogicalBlocksRecorded
	dst.AccessTime = src.AccessTime
	dst.ModificationTime = src.ModificationTime
	record.AccessTime = existing.AccessTime
	record.ModTime = existing.ModTime
	if !record.IsDir() {
		record.SetSize(existing.Size())
	} else {
		record.SetSize(-1)
	}
}

// ReadRecordData parses the file entry at icb into record and, for a directory, reads its children.
func (p *Parser) ReadRecordData(record *filesystem.Record, volumeIndex int, icb extent.LongAD, budget int) error {
	if p.itemCount > p.limits.items {
		return invalid("more than %d items", p.limits.items)
	}

	lv := p.volumes[volumeIndex]
	if icb.Length() != lv.BlockSize {
		return invalid("file entry icb of %d bytes, block size is %d", icb.Length(), lv.BlockSize)
	}
	res := p.resolver(volumeIndex)
	buf, err := p.readBlocks(res, icb.Location.PartitionReference, icb.Location.Position, int64(icb.Length()))
	if err != nil {
		return err
	}

	fe := descriptor.FileEntry{}
	if err = fe.Unmarshal(buf); err != nil {
		return invalidWrap(err, "file entry at block %d", icb.Location.Position)
	}

	attrs := record.UDF
	attrs.ICB = fe.ICBTag
	attrs.LogicalBlocksRecorded = fe.LogicalBlocksRecorded
	attrs.AccessTime = fe.AccessTime
	attrs.ModificationTime = fe.ModificationTime
	record.AccessTime = fe.AccessTime.Time()
	record.ModTime = fe.ModificationTime.Time()
	record.SetSize(int64(fe.InformationLength))

	if fe.IsInline() {
		attrs.IsInline = true
		attrs.InlineData = fe.AllocationDescriptors
		attrs.Extents = nil
	} else {
		attrs.IsInline = false
		attrs.InlineData = []byte{}
		if attrs.Extents, err = fe.Extents(icb.Location.PartitionReference); err != nil {
			return invalidWrap(err, "file entry at block %d", icb.Location.Position)
		}
	}
	p.logger.Trace("file entry", "block", icb.Location.Position, "name", record.Name(), "type", fe.ICBTag.FileType.String(),
		"size", fe.InformationLength, "extents", len(attrs.Extents), "inline", attrs.IsInline)

	if record.IsDir() {
		if err = p.readDirectory(record, volumeIndex, budget); err != nil {
			return err
		}
	} else {
		if len(attrs.Extents) > p.limits.extents-p.numExtents {
			return invalid("more than %d extents", p.limits.extents)
		}
		p.numExtents += len(attrs.Extents)
		if int64(len(attrs.InlineData)) > p.limits.inlineBytes-p.inlineBytes {
			return invalid("more than %d bytes of inline data", p.limits.inlineBytes)
		}
		p.inlineBytes += int64(len(attrs.InlineData))
	}

	p.itemCount++
	return nil
}

// readDirectory reads the directory content and recursively parses every entry that is not a parent link
// or deleted.
func (p *Parser) readDirectory(dir *filesystem.Record, volumeIndex int, budget int) error {
	attrs := dir.UDF
	if !attrs.IsRecordedAndAllocated() {
		return invalid("directory %q has unrecorded extents", dir.Path())
	}
	if attrs.ChunkSize() != dir.Size() {
		return invalid("directory %q extents hold %d bytes, size is %d", dir.Path(), attrs.ChunkSize(), dir.Size())
	}
	res := p.resolver(volumeIndex)
	if err := res.CheckExtents(attrs.Extents); err != nil {
		return invalidWrap(err, "directory %q", dir.Path())
	}

	data, err := p.readContent(res, dir)
	if err != nil {
		return err
	}

	for pos := 0; pos < len(data); {
		fid := descriptor.FileIdentifierDescriptor{}
		if err = fid.Unmarshal(data[pos:]); err != nil {
			return invalidWrap(err, "directory %q entry at offset %d", dir.Path(), pos)
		}
		pos += fid.Size
		if fid.IsParent() || fid.IsDeleted() {
			continue
		}

		p.fileNameBytes += int64(len(fid.Identifier.Data))
		if p.fileNameBytes > p.limits.fileNameBytes {
			return invalid("more than %d bytes of file names", p.limits.fileNameBytes)
		}
		if err = validation.FileIdentifier(fid.Identifier.String()); err != nil {
			return invalidWrap(err, "directory %q entry at offset %d", dir.Path(), pos-fid.Size)
		}

		child := filesystem.NewUDFRecord()
		child.UDF.Identifier = fid.Identifier
		dir.AddChild(child)
		p.childCount++
		if p.childCount > p.limits.files {
			return invalid("more than %d directory entries", p.limits.files)
		}

		if err = p.ReadRecord(child, volumeIndex, fid.ICB, budget); err != nil {
			return err
		}
	}

	// The recorded size is the directory stream length; the record size is the sum of its children.
	dir.SetSize(-1)
	return nil
}

// readContent returns the inline data or the concatenated extents of a record.
func (p *Parser) readContent(res volume.Resolver, record *filesystem.Record) ([]byte, error) {
	attrs := record.UDF
	if attrs.IsInline {
		return attrs.InlineData, nil
	}
	if attrs.ChunkSize() >= consts.UDF_MAX_EXTENTS {
		return nil, invalid("content of %d bytes is too large", attrs.ChunkSize())
	}
	data := make([]byte, 0, attrs.ChunkSize())
	for _, e := range attrs.Extents {
		chunk, err := p.readBlocks(res, e.PartitionReference, e.Position, int64(e.Length()))
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
	}
	return data, nil
}

func (p *Parser) resolver(volumeIndex int) volume.Resolver {
	return volume.Resolver{Volume: p.volumes[volumeIndex], Partitions: p.partitions}
}

// readBlocks reads length bytes at a partition relative block position after checking the range lies inside
// the partition.
func (p *Parser) readBlocks(res volume.Resolver, reference uint16, position uint32, length int64) ([]byte, error) {
	offset, err := res.Offset(reference, position, length)
	if err != nil {
		return nil, invalidWrap(err, "reading block %d", position)
	}
	return p.readAt(offset, int(length))
}

// readAt reads exactly size bytes. Reads past the end of the image are structural errors; other read
// failures are returned as is.
func (p *Parser) readAt(offset int64, size int) ([]byte, error) {
	if offset < 0 || offset+int64(size) > p.size {
		return nil, invalid("read of %d bytes at offset %d beyond image end %d", size, offset, p.size)
	}
	buf := make([]byte, size)
	n, err := p.reader.ReadAt(buf, offset)
	if n == size {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, invalid("short read of %d/%d bytes at offset %d", n, size, offset)
	}
	return nil, fmt.Errorf("failed to read %d bytes at offset %d: %w", size, offset, err)
}

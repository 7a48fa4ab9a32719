package testing

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/descriptor"
	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/extent"
)

// Sector layout of a built image. The partition moves past the volume descriptor sequence when extra
// descriptors do not fit before PartitionSector.
const (
	VDSSector       = 32
	VDSSectors      = 4
	PartitionSector = 64
	gapFill         = 0xEE
)

// Node is a file or directory placed in a synthetic image.
type Node struct {
	Name     string
	Dir      bool
	Data     []byte
	Children []*Node
	ModTime  time.Time

	// Inline stores the content inside the file entry.
	Inline bool
	// Long uses long allocation descriptors instead of short ones.
	Long bool
	// Fragments splits the content into that many extents separated by one unused block each.
	Fragments int
	// ExtentLength, when non zero, replaces the recorded length of the last extent.
	ExtentLength uint32
	// State is the allocation state recorded in every extent.
	State extent.AllocationState
	// Deleted marks the directory entry as deleted.
	Deleted bool

	target *Node
	icb    uint32
}

// File returns a file node holding data.
func File(name string, data []byte) *Node {
	return &Node{Name: name, Data: data}
}

// Dir returns a directory node.
func Dir(name string, children ...*Node) *Node {
	return &Node{Name: name, Dir: true, Children: children}
}

// Link returns a directory entry that references the file entry of target.
func Link(name string, target *Node) *Node {
	return &Node{Name: name, target: target}
}

// Chain returns a directory nested depth levels deep, each level named after its depth, with leaf inside
// the innermost directory.
func Chain(depth int, leaf *Node) *Node {
	var inner *Node
	if leaf != nil {
		inner = Dir(fmt.Sprintf("d%d", depth), leaf)
	} else {
		inner = Dir(fmt.Sprintf("d%d", depth))
	}
	for i := depth - 1; i >= 1; i-- {
		inner = Dir(fmt.Sprintf("d%d", i), inner)
	}
	return inner
}

// ImageBuilder writes byte exact UDF images containing one partition and one logical volume.
type ImageBuilder struct {
	BlockSize        uint32
	PartitionNumber  uint16
	VolumeIdentifier string
	RecordingTime    time.Time
	Root             *Node

	// CorruptAnchor breaks the checksum of the anchor volume descriptor pointer.
	CorruptAnchor bool
	// OmitTerminator leaves the terminating descriptor out of the volume descriptor sequence.
	OmitTerminator bool
	// OmitRecognition leaves the volume recognition sequence out of the image.
	OmitRecognition bool
	// MapPartitionNumber, when set, is written to the partition map instead of PartitionNumber.
	MapPartitionNumber *uint16
	// ExtraPartitions adds partition descriptors over the same sectors, numbered after PartitionNumber.
	ExtraPartitions int
	// ExtraVolumes adds logical volumes, each mapping the next extra partition number.
	ExtraVolumes int

	blocks [][]byte
}

// NewImageBuilder returns a builder for an image whose root directory holds children.
func NewImageBuilder(children ...*Node) *ImageBuilder {
	return &ImageBuilder{
		BlockSize:        consts.UDF_SECTOR_SIZE,
		VolumeIdentifier: "UDFKIT_TEST",
		RecordingTime:    time.Date(2024, time.March, 9, 12, 30, 0, 0, time.UTC),
		Root:             Dir("", children...),
	}
}

// Build lays out the tree in the partition and returns the complete image.
func (b *ImageBuilder) Build() ([]byte, error) {
	if b.BlockSize < consts.UDF_VIRTUAL_SECTOR_SIZE || b.BlockSize%consts.UDF_VIRTUAL_SECTOR_SIZE != 0 {
		return nil, fmt.Errorf("unsupported block size %d", b.BlockSize)
	}
	b.blocks = nil

	// Block 0 holds the file set descriptor, then one file entry per node in tree order.
	b.allocate(1)
	b.assignEntries(b.Root)
	if err := b.writeNode(b.Root, b.Root); err != nil {
		return nil, err
	}
	b.writeFileSet()

	partition := bytes.Join(b.blocks, nil)
	partitionSectors := (len(partition) + consts.UDF_SECTOR_SIZE - 1) / consts.UDF_SECTOR_SIZE
	start := b.partitionSector()
	totalSectors := start + partitionSectors + 1
	image := make([]byte, totalSectors*consts.UDF_SECTOR_SIZE)

	if !b.OmitRecognition {
		writeRecognition(image)
	}
	b.writeVolumeDescriptors(image, uint32(partitionSectors))
	copy(image[start*consts.UDF_SECTOR_SIZE:], partition)
	b.writeAnchor(image[(totalSectors-1)*consts.UDF_SECTOR_SIZE:])
	return image, nil
}

// Write builds the image into a file at path.
func (b *ImageBuilder) Write(path string) error {
	image, err := b.Build()
	if err != nil {
		return err
	}
	return os.WriteFile(path, image, 0644)
}

// BlockOffset returns the image offset of a partition block.
func (b *ImageBuilder) BlockOffset(block uint32) int64 {
	return int64(b.partitionSector())*consts.UDF_SECTOR_SIZE + int64(block)*int64(b.BlockSize)
}

func (b *ImageBuilder) vdsSectors() int {
	return VDSSectors + b.ExtraPartitions + b.ExtraVolumes
}

func (b *ImageBuilder) partitionSector() int {
	if end := VDSSector + b.vdsSectors(); end > PartitionSector {
		return end
	}
	return PartitionSector
}

// EntryBlock returns the partition block of the file entry of n, valid after Build.
func (n *Node) EntryBlock() uint32 {
	if n.target != nil {
		return n.target.icb
	}
	return n.icb
}

func (b *ImageBuilder) allocate(count int) uint32 {
	first := uint32(len(b.blocks))
	for i := 0; i < count; i++ {
		b.blocks = append(b.blocks, make([]byte, b.BlockSize))
	}
	return first
}

func (b *ImageBuilder) assignEntries(n *Node) {
	if n.target != nil {
		return
	}
	n.icb = b.allocate(1)
	for _, child := range n.Children {
		b.assignEntries(child)
	}
}

// put writes data across consecutive blocks starting at block.
func (b *ImageBuilder) put(block uint32, data []byte) {
	for len(data) > 0 {
		n := copy(b.blocks[block], data)
		data = data[n:]
		block++
	}
}

func (b *ImageBuilder) blocksFor(size int) int {
	return (size + int(b.BlockSize) - 1) / int(b.BlockSize)
}

func (b *ImageBuilder) writeNode(n, parent *Node) error {
	if n.target != nil {
		return nil
	}
	content := n.Data
	if n.Dir {
		content = b.directoryStream(n, parent)
	}

	var ads []byte
	if n.Inline {
		if 176+len(content) > int(b.BlockSize) {
			return fmt.Errorf("%q: %d bytes do not fit inline", n.Name, len(content))
		}
		ads = content
	} else {
		ads = b.storeExtents(n, content)
	}
	b.writeFileEntry(n, len(content), ads)

	for _, child := range n.Children {
		if err := b.writeNode(child, n); err != nil {
			return err
		}
	}
	return nil
}

// storeExtents allocates blocks for content and returns the encoded allocation descriptors.
func (b *ImageBuilder) storeExtents(n *Node, content []byte) []byte {
	if len(content) == 0 {
		return nil
	}
	fragments := n.Fragments
	if fragments < 1 {
		fragments = 1
	}
	perFragment := b.blocksFor(b.blocksFor(len(content))*int(b.BlockSize)/fragments) * int(b.BlockSize)
	if perFragment == 0 {
		perFragment = int(b.BlockSize)
	}

	var ads []byte
	for len(content) > 0 {
		size := perFragment
		if size > len(content) {
			size = len(content)
		}
		block := b.allocate(b.blocksFor(size))
		b.put(block, content[:size])
		content = content[size:]

		length := uint32(size)
		if len(content) == 0 && n.ExtentLength != 0 {
			length = n.ExtentLength
		}
		raw := extent.MakeLength(length, n.State)
		if n.Long {
			ad := extent.LongAD{RawLength: raw, Location: extent.LBAddr{Position: block}}.Marshal()
			ads = append(ads, ad[:]...)
		} else {
			ad := extent.ShortAD{RawLength: raw, Position: block}.Marshal()
			ads = append(ads, ad[:]...)
		}

		if len(content) > 0 {
			gap := b.allocate(1)
			b.put(gap, bytes.Repeat([]byte{gapFill}, int(b.BlockSize)))
		}
	}
	return ads
}

func (b *ImageBuilder) writeFileEntry(n *Node, size int, ads []byte) {
	buf := b.blocks[n.icb]
	icb := descriptor.ICBTag{StrategyType: 4, MaxEntries: 1, FileType: descriptor.FILE_TYPE_FILE}
	if n.Dir {
		icb.FileType = descriptor.FILE_TYPE_DIRECTORY
	}
	switch {
	case n.Inline:
		icb.Flags = uint16(descriptor.ALLOCATION_INLINE)
	case n.Long:
		icb.Flags = uint16(descriptor.ALLOCATION_LONG)
	default:
		icb.Flags = uint16(descriptor.ALLOCATION_SHORT)
	}
	icbBytes := icb.Marshal()
	copy(buf[16:], icbBytes[:])

	mod := n.ModTime
	if mod.IsZero() {
		mod = b.RecordingTime
	}
	stamp := encoding.MarshalTimestamp(mod)
	encoding.PutUint64(buf, 56, uint64(size))
	encoding.PutUint64(buf, 64, uint64(b.blocksFor(size)))
	copy(buf[72:], stamp[:])
	copy(buf[84:], stamp[:])
	encoding.PutUint32(buf, 168, 0)
	encoding.PutUint32(buf, 172, uint32(len(ads)))
	copy(buf[176:], ads)
	seal(buf, descriptor.TAG_FILE_ENTRY, n.icb)
}

// directoryStream encodes the parent entry followed by one entry per child.
func (b *ImageBuilder) directoryStream(dir, parent *Node) []byte {
	stream := fileIdentifier(descriptor.FILE_CHARACTERISTIC_PARENT|descriptor.FILE_CHARACTERISTIC_DIRECTORY,
		nil, parent.icb, b.BlockSize)
	for _, child := range dir.Children {
		var chars uint8
		isDir := child.Dir
		if child.target != nil {
			isDir = child.target.Dir
		}
		if isDir {
			chars |= descriptor.FILE_CHARACTERISTIC_DIRECTORY
		}
		if child.Deleted {
			chars |= descriptor.FILE_CHARACTERISTIC_DELETED
		}
		name := encoding.EncodeDString(child.Name, encoding.COMPRESSION_ID_8)
		stream = append(stream, fileIdentifier(chars, name, child.EntryBlock(), b.BlockSize)...)
	}
	return stream
}

func fileIdentifier(characteristics uint8, name []byte, icb uint32, blockSize uint32) []byte {
	size := consts.UDF_FILE_IDENTIFIER_HEADER_SIZE + len(name)
	buf := make([]byte, (size+3)&^3)
	encoding.PutUint16(buf, 16, 1)
	buf[18] = characteristics
	buf[19] = byte(len(name))
	ad := extent.LongAD{RawLength: blockSize, Location: extent.LBAddr{Position: icb}}.Marshal()
	copy(buf[20:], ad[:])
	copy(buf[consts.UDF_FILE_IDENTIFIER_HEADER_SIZE:], name)
	seal(buf, descriptor.TAG_FILE_IDENTIFIER, 0)
	return buf
}

func (b *ImageBuilder) writeFileSet() {
	buf := b.blocks[0]
	stamp := encoding.MarshalTimestamp(b.RecordingTime)
	copy(buf[16:], stamp[:])
	root := extent.LongAD{RawLength: b.BlockSize, Location: extent.LBAddr{Position: b.Root.icb}}.Marshal()
	copy(buf[400:], root[:])
	seal(buf, descriptor.TAG_FILE_SET, 0)
}

func (b *ImageBuilder) writeVolumeDescriptors(image []byte, partitionSectors uint32) {
	next := 0
	sector := func() ([]byte, uint32) {
		start := (VDSSector + next) * consts.UDF_SECTOR_SIZE
		location := uint32(VDSSector + next)
		next++
		return image[start : start+consts.UDF_SECTOR_SIZE], location
	}

	pvd, location := sector()
	seal(pvd, descriptor.TAG_PRIMARY_VOLUME, location)

	for i := 0; i <= b.ExtraPartitions; i++ {
		pd, location := sector()
		encoding.PutUint16(pd, 22, b.PartitionNumber+uint16(i))
		encoding.PutUint32(pd, 188, uint32(b.partitionSector()))
		encoding.PutUint32(pd, 192, partitionSectors)
		seal(pd, descriptor.TAG_PARTITION, location)
	}

	mapped := b.PartitionNumber
	if b.MapPartitionNumber != nil {
		mapped = *b.MapPartitionNumber
	}
	for i := 0; i <= b.ExtraVolumes; i++ {
		lvd, location := sector()
		b.writeLogicalVolume(lvd, mapped+uint16(i))
		seal(lvd, descriptor.TAG_LOGICAL_VOLUME, location)
	}

	term, location := sector()
	if !b.OmitTerminator {
		seal(term, descriptor.TAG_TERMINATING, location)
	}
}

func (b *ImageBuilder) writeLogicalVolume(lvd []byte, partitionNumber uint16) {
	id := encoding.MarshalString128(b.VolumeIdentifier)
	copy(lvd[84:], id[:])
	encoding.PutUint32(lvd, 212, b.BlockSize)
	fsd := extent.LongAD{RawLength: b.BlockSize}.Marshal()
	copy(lvd[248:], fsd[:])
	encoding.PutUint32(lvd, 264, 6)
	encoding.PutUint32(lvd, 268, 1)
	lvd[440] = descriptor.PARTITION_MAP_TYPE_1
	lvd[441] = 6
	encoding.PutUint16(lvd, 442, 1)
	encoding.PutUint16(lvd, 444, partitionNumber)
}

func (b *ImageBuilder) writeAnchor(buf []byte) {
	vds := b.vdsSectors() * consts.UDF_SECTOR_SIZE
	encoding.PutUint32(buf, 16, uint32(vds))
	encoding.PutUint32(buf, 20, VDSSector)
	encoding.PutUint32(buf, 24, uint32(vds))
	encoding.PutUint32(buf, 28, VDSSector)
	seal(buf, descriptor.TAG_ANCHOR_VOLUME_POINTER, 0)
	if b.CorruptAnchor {
		buf[4]++
	}
}

// writeRecognition writes BEA01, NSR02 and TEA01 starting at sector 16.
func writeRecognition(image []byte) {
	for i, id := range []string{consts.UDF_STD_IDENTIFIER, consts.UDF_NSR02_IDENTIFIER, consts.UDF_TEA01_IDENTIFIER} {
		start := (consts.UDF_VRS_START_SECTOR + i) * consts.UDF_SECTOR_SIZE
		image[start] = 0
		copy(image[start+1:], id)
		image[start+6] = 1
	}
}

func seal(buf []byte, id descriptor.TagIdentifier, location uint32) {
	tag := descriptor.Tag{Identifier: id, Version: 2, TagLocation: location}
	if err := tag.MarshalInto(buf); err != nil {
		panic(err)
	}
}

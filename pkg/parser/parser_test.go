package parser

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	udftest "github.com/bgrewell/udf-kit/internal/testing"
	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/descriptor"
	"github.com/bgrewell/udf-kit/pkg/extent"
	"github.com/bgrewell/udf-kit/pkg/filesystem"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReader records the offset of every read.
type countingReader struct {
	r     *bytes.Reader
	reads map[int64]int
}

func (c *countingReader) ReadAt(p []byte, off int64) (int, error) {
	c.reads[off]++
	return c.r.ReadAt(p, off)
}

func build(t *testing.T, b *udftest.ImageBuilder) []byte {
	t.Helper()
	image, err := b.Build()
	require.NoError(t, err)
	return image
}

func parse(image []byte) (*Parser, *filesystem.Record, error) {
	p := NewParser(bytes.NewReader(image), int64(len(image)), option.Apply())
	root, err := p.Parse()
	return p, root, err
}

func child(t *testing.T, r *filesystem.Record, name string) *filesystem.Record {
	t.Helper()
	for _, c := range r.Children() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("no child %q in %q", name, r.Path())
	return nil
}

func TestParseTree(t *testing.T) {
	hello := []byte("hello, world\n")
	big := bytes.Repeat([]byte("0123456789abcdef"), 700)
	b := udftest.NewImageBuilder(
		udftest.File("hello.txt", hello),
		udftest.Dir("docs",
			udftest.File("big.bin", big),
			&udftest.Node{Name: "small", Data: []byte("tiny"), Inline: true},
			&udftest.Node{Name: "long.bin", Data: big[:3000], Long: true},
		),
		udftest.Dir("empty"),
	)
	p, root, err := parse(build(t, b))
	require.NoError(t, err)

	require.True(t, root.IsDir())
	require.True(t, root.IsRoot())
	require.Len(t, root.Children(), 3)
	assert.Equal(t, []string{"hello.txt", "docs", "empty"},
		[]string{root.Children()[0].Name(), root.Children()[1].Name(), root.Children()[2].Name()})

	h := child(t, root, "hello.txt")
	assert.False(t, h.IsDir())
	assert.Equal(t, int64(len(hello)), h.Size())
	assert.True(t, h.Extractable())
	require.Len(t, h.UDF.Extents, 1)
	assert.Equal(t, uint32(len(hello)), h.UDF.Extents[0].Length())
	assert.True(t, h.ModTime.Equal(b.RecordingTime))

	docs := child(t, root, "docs")
	assert.Equal(t, "docs/big.bin", child(t, docs, "big.bin").Path())
	small := child(t, docs, "small")
	assert.True(t, small.UDF.IsInline)
	assert.Equal(t, []byte("tiny"), small.UDF.InlineData)
	long := child(t, docs, "long.bin")
	assert.Equal(t, descriptor.ALLOCATION_LONG, long.UDF.ICB.AllocationType())
	assert.True(t, long.Extractable())

	// Directory sizes are the sum of their children
	assert.Equal(t, int64(len(big)+4+3000), docs.Size())
	assert.Equal(t, int64(len(hello)+len(big)+4+3000), root.Size())
	assert.Equal(t, int64(0), child(t, root, "empty").Size())

	folders, files := udftest.GetFileAndFolderCounts(root)
	assert.Equal(t, 2, folders)
	assert.Equal(t, 4, files)

	require.Len(t, p.Volumes(), 1)
	require.Len(t, p.Partitions(), 1)
	assert.Equal(t, "UDFKIT_TEST", p.Volumes()[0].Identifier)
	require.NotNil(t, p.Volumes()[0].FileSet)
	assert.True(t, p.Volumes()[0].FileSet.RecordingTime.Equal(b.RecordingTime))
	assert.Equal(t, 0, p.Partitions()[0].VolumeIndex)

	for _, c := range docs.Children() {
		assert.False(t, udftest.ContainsNonASCIIPrintable(c.Name()))
	}
}

func TestParseFragmentedFile(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4, 5}, 2000)
	b := udftest.NewImageBuilder(&udftest.Node{Name: "frag", Data: data, Fragments: 3})
	_, root, err := parse(build(t, b))
	require.NoError(t, err)

	frag := child(t, root, "frag")
	require.Len(t, frag.UDF.Extents, 3)
	assert.Equal(t, int64(len(data)), frag.UDF.ChunkSize())
	assert.True(t, frag.Extractable())
	// Extents are separated by an unused block
	assert.Greater(t, frag.UDF.Extents[1].Position, frag.UDF.Extents[0].Position+1)
}

func TestParseSmallBlockSize(t *testing.T) {
	b := udftest.NewImageBuilder(udftest.Dir("a", udftest.File("f", bytes.Repeat([]byte("x"), 1500))))
	b.BlockSize = 512
	_, root, err := parse(build(t, b))
	require.NoError(t, err)
	f := child(t, child(t, root, "a"), "f")
	assert.Equal(t, int64(1500), f.Size())
	assert.True(t, f.Extractable())
}

func TestParseSharedFileEntry(t *testing.T) {
	target := udftest.File("original", []byte("shared content"))
	b := udftest.NewImageBuilder(target, udftest.Link("alias", target))
	image := build(t, b)

	reader := &countingReader{r: bytes.NewReader(image), reads: map[int64]int{}}
	p := NewParser(reader, int64(len(image)), option.Apply())
	root, err := p.Parse()
	require.NoError(t, err)

	original := child(t, root, "original")
	alias := child(t, root, "alias")
	assert.NotSame(t, original, alias)
	assert.Equal(t, original.UDF.Extents, alias.UDF.Extents)
	assert.Equal(t, original.Size(), alias.Size())
	assert.Equal(t, original.UDF.Key, alias.UDF.Key)
	assert.True(t, alias.Extractable())

	// The shared file entry block is read once
	assert.Equal(t, 1, reader.reads[b.BlockOffset(target.EntryBlock())])
	assert.Equal(t, 2, p.Partitions()[0].Records())
}

func TestParseDeletedEntriesSkipped(t *testing.T) {
	b := udftest.NewImageBuilder(
		udftest.File("kept", []byte("k")),
		&udftest.Node{Name: "gone", Data: []byte("g"), Deleted: true},
	)
	_, root, err := parse(build(t, b))
	require.NoError(t, err)
	require.Len(t, root.Children(), 1)
	assert.Equal(t, "kept", root.Children()[0].Name())
}

func TestParseRecursionLimit(t *testing.T) {
	t.Run("AtLimit", func(t *testing.T) {
		b := udftest.NewImageBuilder(udftest.Chain(consts.UDF_MAX_RECURSE_LEVELS-1, nil))
		_, root, err := parse(build(t, b))
		require.NoError(t, err)
		folders, _ := udftest.GetFileAndFolderCounts(root)
		assert.Equal(t, consts.UDF_MAX_RECURSE_LEVELS-1, folders)
	})

	t.Run("BeyondLimit", func(t *testing.T) {
		b := udftest.NewImageBuilder(udftest.Chain(consts.UDF_MAX_RECURSE_LEVELS+50, nil))
		_, _, err := parse(build(t, b))
		require.ErrorIs(t, err, ErrInvalidImage)
		assert.Contains(t, err.Error(), "nesting")
	})
}

func TestParseRejects(t *testing.T) {
	mapped := uint16(9)
	cases := []struct {
		name     string
		mutate   func(b *udftest.ImageBuilder)
		damage   func(image []byte)
		want     error
		contains string
	}{
		{name: "BadAnchorChecksum", mutate: func(b *udftest.ImageBuilder) { b.CorruptAnchor = true }, want: descriptor.ErrChecksum},
		{name: "MissingTerminator", mutate: func(b *udftest.ImageBuilder) { b.OmitTerminator = true }},
		{name: "UnmatchedPartitionMap", mutate: func(b *udftest.ImageBuilder) { b.MapPartitionNumber = &mapped }},
		{name: "DirectorySizeMismatch", mutate: func(b *udftest.ImageBuilder) {
			b.Root.Children = append(b.Root.Children, &udftest.Node{Name: "d", Dir: true, ExtentLength: 4096})
		}},
		{name: "UnrecordedDirectory", mutate: func(b *udftest.ImageBuilder) {
			b.Root.Children = append(b.Root.Children, &udftest.Node{Name: "d", Dir: true, State: extent.NOT_RECORDED_BUT_ALLOCATED})
		}},
		{name: "DotName", mutate: func(b *udftest.ImageBuilder) {
			b.Root.Children = append(b.Root.Children, udftest.File("..", []byte("x")))
		}},
		{name: "SlashName", mutate: func(b *udftest.ImageBuilder) {
			b.Root.Children = append(b.Root.Children, udftest.File("a/b", []byte("x")))
		}},
		{name: "CorruptFileEntryTag", damage: func(image []byte) {
			// Root file entry is block 1 of the partition
			image[udftest.PartitionSector*consts.UDF_SECTOR_SIZE+consts.UDF_SECTOR_SIZE+4]++
		}, want: descriptor.ErrChecksum},
		{name: "CorruptFileSet", damage: func(image []byte) {
			image[udftest.PartitionSector*consts.UDF_SECTOR_SIZE]++
		}},
		{name: "Truncated", damage: func(image []byte) {}},
		{name: "TooManyPartitions", mutate: func(b *udftest.ImageBuilder) {
			b.ExtraPartitions = consts.UDF_MAX_PARTITIONS
		}, contains: "more than 64 partition descriptors"},
		{name: "TooManyVolumes", mutate: func(b *udftest.ImageBuilder) {
			b.ExtraVolumes = consts.UDF_MAX_LOGICAL_VOLUMES
		}, contains: "more than 64 logical volume descriptors"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := udftest.NewImageBuilder(udftest.File("a", []byte("data")))
			if tc.mutate != nil {
				tc.mutate(b)
			}
			image := build(t, b)
			if tc.damage != nil {
				tc.damage(image)
			}
			if tc.name == "Truncated" {
				image = image[:consts.UDF_SECTOR_SIZE-1]
			}
			_, _, err := parse(image)
			require.ErrorIs(t, err, ErrInvalidImage)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
			if tc.contains != "" {
				assert.Contains(t, err.Error(), tc.contains)
			}
		})
	}
}

func TestParseDescriptorLimits(t *testing.T) {
	t.Run("Partitions", func(t *testing.T) {
		b := udftest.NewImageBuilder(udftest.File("a", []byte("data")))
		b.ExtraPartitions = consts.UDF_MAX_PARTITIONS - 1
		p, root, err := parse(build(t, b))
		require.NoError(t, err)
		assert.Len(t, p.Partitions(), consts.UDF_MAX_PARTITIONS)
		assert.Equal(t, "a", child(t, root, "a").Name())
	})

	t.Run("Volumes", func(t *testing.T) {
		b := udftest.NewImageBuilder()
		b.ExtraPartitions = consts.UDF_MAX_LOGICAL_VOLUMES - 1
		b.ExtraVolumes = consts.UDF_MAX_LOGICAL_VOLUMES - 1
		p, _, err := parse(build(t, b))
		require.NoError(t, err)
		require.Len(t, p.Volumes(), consts.UDF_MAX_LOGICAL_VOLUMES)
		for i, lv := range p.Volumes() {
			assert.NotNil(t, lv.FileSet, "volume %d", i)
		}
	})
}

func TestParseRunningLimits(t *testing.T) {
	cases := []struct {
		name     string
		lower    func(l *limits)
		contains string
	}{
		{name: "Items", lower: func(l *limits) { l.items = 1 }, contains: "more than 1 items"},
		{name: "DirectoryEntries", lower: func(l *limits) { l.files = 2 }, contains: "more than 2 directory entries"},
		{name: "Extents", lower: func(l *limits) { l.extents = 2 }, contains: "more than 2 extents"},
		{name: "InlineBytes", lower: func(l *limits) { l.inlineBytes = 3 }, contains: "more than 3 bytes of inline data"},
		{name: "FileNameBytes", lower: func(l *limits) { l.fileNameBytes = 4 }, contains: "more than 4 bytes of file names"},
	}

	image := build(t, udftest.NewImageBuilder(
		udftest.File("plain.txt", []byte("plain")),
		&udftest.Node{Name: "frag", Data: bytes.Repeat([]byte{7}, 3*consts.UDF_SECTOR_SIZE), Fragments: 3},
		&udftest.Node{Name: "tiny", Data: []byte("tiny"), Inline: true},
	))

	_, _, err := parse(image)
	require.NoError(t, err)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewParser(bytes.NewReader(image), int64(len(image)), option.Apply())
			tc.lower(&p.limits)
			_, err := p.Parse()
			require.ErrorIs(t, err, ErrInvalidImage)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestParseFileSizeMismatchIsNotExtractable(t *testing.T) {
	b := udftest.NewImageBuilder(&udftest.Node{Name: "ten", Data: []byte("0123456789"), ExtentLength: 12})
	_, root, err := parse(build(t, b))
	require.NoError(t, err)
	ten := child(t, root, "ten")
	assert.Equal(t, int64(10), ten.Size())
	assert.Equal(t, int64(12), ten.UDF.ChunkSize())
	assert.False(t, ten.Extractable())
}

type failingReader struct{}

var errDevice = errors.New("device error")

func (failingReader) ReadAt(p []byte, off int64) (int, error) {
	return 0, errDevice
}

func TestParseReadFailure(t *testing.T) {
	p := NewParser(failingReader{}, 1<<20, nil)
	_, err := p.Parse()
	require.ErrorIs(t, err, errDevice)
	assert.False(t, errors.Is(err, ErrInvalidImage))
}

func TestParseShortRead(t *testing.T) {
	image := build(t, udftest.NewImageBuilder())
	// Claim a larger size than the reader holds so the anchor read comes up short
	p := NewParser(io.NewSectionReader(bytes.NewReader(image), 0, int64(len(image))), int64(len(image))+consts.UDF_SECTOR_SIZE, nil)
	_, err := p.Parse()
	require.ErrorIs(t, err, ErrInvalidImage)
	assert.True(t, strings.Contains(err.Error(), "short read"))
}

package descriptor

import (
	"errors"
	"testing"

	"github.com/bgrewell/udf-kit/pkg/encoding"
	"github.com/bgrewell/udf-kit/pkg/extent"
	"github.com/stretchr/testify/require"
)

func seal(t *testing.T, buf []byte, id TagIdentifier) {
	t.Helper()
	require.NoError(t, Tag{Identifier: id, Version: 2, SerialNumber: 1, TagLocation: 257}.MarshalInto(buf))
}

func TestTagChecksum(t *testing.T) {
	buf := make([]byte, 16)
	seal(t, buf, TAG_PRIMARY_VOLUME)

	tag, err := UnmarshalTag(buf)
	require.NoError(t, err)
	require.Equal(t, TAG_PRIMARY_VOLUME, tag.Identifier)
	require.Equal(t, uint16(2), tag.Version)
	require.Equal(t, uint32(257), tag.TagLocation)

	for i := 0; i < 16; i++ {
		corrupted := append([]byte(nil), buf...)
		corrupted[i] ^= 0x5A
		_, err := UnmarshalTag(corrupted)
		require.Error(t, err, "byte %d", i)
		require.True(t, errors.Is(err, ErrChecksum), "byte %d", i)
	}
}

func TestTagReservedByte(t *testing.T) {
	buf := make([]byte, 16)
	seal(t, buf, TAG_TERMINATING)
	// Keep the checksum consistent but set the reserved byte.
	buf[5] = 1
	buf[4] = Checksum(buf)
	_, err := UnmarshalTag(buf)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestTagShortAndUnexpected(t *testing.T) {
	_, err := UnmarshalTag(make([]byte, 15))
	require.ErrorIs(t, err, ErrShortBuffer)

	buf := make([]byte, 16)
	seal(t, buf, TAG_PARTITION)
	_, err = UnmarshalTagOf(buf, TAG_LOGICAL_VOLUME)
	require.ErrorIs(t, err, ErrUnexpectedTag)

	// An all-zero sector checksums as a sparing table tag.
	_, err = UnmarshalTagOf(make([]byte, 2048), TAG_ANCHOR_VOLUME_POINTER)
	require.ErrorIs(t, err, ErrUnexpectedTag)
}

func TestTagIdentifierString(t *testing.T) {
	require.Equal(t, "File Entry", TAG_FILE_ENTRY.String())
	require.Equal(t, "Unknown Descriptor (999)", TagIdentifier(999).String())
}

func TestAnchor(t *testing.T) {
	buf := make([]byte, 2048)
	encoding.PutUint32(buf, 16, 16*2048)
	encoding.PutUint32(buf, 20, 32)
	encoding.PutUint32(buf, 24, 4096)
	encoding.PutUint32(buf, 28, 48)
	seal(t, buf, TAG_ANCHOR_VOLUME_POINTER)

	var avdp AnchorVolumeDescriptorPointer
	require.NoError(t, avdp.Unmarshal(buf))
	require.Equal(t, ExtentAD{Length: 16 * 2048, Location: 32}, avdp.MainVDS)
	require.Equal(t, int64(16), avdp.MainVDS.Sectors())
	require.Equal(t, int64(2), avdp.ReserveVDS.Sectors())
	require.Equal(t, int64(1), ExtentAD{Length: 1}.Sectors())
}

func TestPartitionDescriptor(t *testing.T) {
	buf := make([]byte, 2048)
	encoding.PutUint16(buf, 22, 7)
	encoding.PutUint32(buf, 188, 257)
	encoding.PutUint32(buf, 192, 1000)
	seal(t, buf, TAG_PARTITION)

	var pd PartitionDescriptor
	require.NoError(t, pd.Unmarshal(buf))
	require.Equal(t, uint16(7), pd.Number)
	require.Equal(t, uint32(257), pd.StartingLocation)
	require.Equal(t, uint32(1000), pd.Length)
}

func logicalVolume(t *testing.T, blockSize uint32, maps [][]byte) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	id := encoding.MarshalString128("VOLUME")
	copy(buf[84:], id[:])
	encoding.PutUint32(buf, 212, blockSize)
	fsd := extent.LongAD{RawLength: 2048, Location: extent.LBAddr{Position: 0}}.Marshal()
	copy(buf[248:], fsd[:])
	encoding.PutUint32(buf, 268, uint32(len(maps)))
	pos := 440
	for _, m := range maps {
		copy(buf[pos:], m)
		pos += len(m)
	}
	seal(t, buf, TAG_LOGICAL_VOLUME)
	return buf
}

func TestLogicalVolumeDescriptor(t *testing.T) {
	type1 := []byte{1, 6, 1, 0, 3, 0}

	t.Run("Valid", func(t *testing.T) {
		var lvd LogicalVolumeDescriptor
		require.NoError(t, lvd.Unmarshal(logicalVolume(t, 2048, [][]byte{type1})))
		require.Equal(t, "VOLUME", lvd.Identifier.String())
		require.Equal(t, uint32(2048), lvd.LogicalBlockSize)
		require.Equal(t, uint32(2048), lvd.FileSetLocation.Length())
		require.Len(t, lvd.PartitionMaps, 1)
		require.Equal(t, uint16(3), lvd.PartitionMaps[0].PartitionNumber)
	})

	t.Run("SmallBlockSize", func(t *testing.T) {
		var lvd LogicalVolumeDescriptor
		require.ErrorIs(t, lvd.Unmarshal(logicalVolume(t, 256, [][]byte{type1})), ErrMalformed)
	})

	t.Run("UnsupportedMapType", func(t *testing.T) {
		var lvd LogicalVolumeDescriptor
		type2 := make([]byte, 64)
		type2[0], type2[1] = 2, 64
		require.ErrorIs(t, lvd.Unmarshal(logicalVolume(t, 2048, [][]byte{type1, type2})), ErrMalformed)
	})

	t.Run("TooManyMaps", func(t *testing.T) {
		buf := logicalVolume(t, 2048, [][]byte{type1})
		encoding.PutUint32(buf, 268, 65)
		var lvd LogicalVolumeDescriptor
		require.ErrorIs(t, lvd.Unmarshal(buf), ErrMalformed)
	})

	t.Run("MapOverrunsSector", func(t *testing.T) {
		buf := logicalVolume(t, 2048, nil)
		encoding.PutUint32(buf, 268, 64)
		for pos := 440; pos+1 < len(buf); pos += 255 {
			buf[pos], buf[pos+1] = 1, 255
		}
		var lvd LogicalVolumeDescriptor
		require.ErrorIs(t, lvd.Unmarshal(buf), ErrShortBuffer)
	})
}

func TestFileSetDescriptor(t *testing.T) {
	buf := make([]byte, 2048)
	root := extent.LongAD{RawLength: 2048, Location: extent.LBAddr{Position: 2, PartitionReference: 0}}.Marshal()
	copy(buf[400:], root[:])
	seal(t, buf, TAG_FILE_SET)

	var fsd FileSetDescriptor
	require.NoError(t, fsd.Unmarshal(buf))
	require.Equal(t, uint32(2), fsd.RootDirectoryICB.Location.Position)

	var wrong FileSetDescriptor
	seal(t, buf, TAG_FILE_ENTRY)
	require.ErrorIs(t, wrong.Unmarshal(buf), ErrUnexpectedTag)
}

func fileEntry(t *testing.T, fileType FileType, alloc AllocationType, size uint64, eaLen uint32, ads []byte) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	icb := ICBTag{StrategyType: 4, FileType: fileType, Flags: uint16(alloc)}.Marshal()
	copy(buf[16:], icb[:])
	encoding.PutUint64(buf, 56, size)
	encoding.PutUint32(buf, 168, eaLen)
	encoding.PutUint32(buf, 172, uint32(len(ads)))
	copy(buf[176+int(eaLen):], ads)
	seal(t, buf, TAG_FILE_ENTRY)
	return buf
}

func TestFileEntry(t *testing.T) {
	t.Run("ShortExtents", func(t *testing.T) {
		var ads []byte
		for _, sad := range []extent.ShortAD{{RawLength: 2048, Position: 10}, {RawLength: 100, Position: 11}} {
			raw := sad.Marshal()
			ads = append(ads, raw[:]...)
		}
		var fe FileEntry
		require.NoError(t, fe.Unmarshal(fileEntry(t, FILE_TYPE_FILE, ALLOCATION_SHORT, 2148, 8, ads)))
		require.False(t, fe.IsInline())
		extents, err := fe.Extents(4)
		require.NoError(t, err)
		require.Len(t, extents, 2)
		require.Equal(t, uint16(4), extents[1].PartitionReference)
		require.Equal(t, uint32(11), extents[1].Position)
		require.Equal(t, uint32(100), extents[1].Length())
	})

	t.Run("LongExtents", func(t *testing.T) {
		lad := extent.LongAD{RawLength: 512, Location: extent.LBAddr{Position: 3, PartitionReference: 1}}.Marshal()
		var fe FileEntry
		require.NoError(t, fe.Unmarshal(fileEntry(t, FILE_TYPE_DIRECTORY, ALLOCATION_LONG, 512, 0, lad[:])))
		require.True(t, fe.ICBTag.IsDirectory())
		extents, err := fe.Extents(0)
		require.NoError(t, err)
		require.Equal(t, []extent.FileExtent{{PartitionReference: 1, Position: 3, RawLength: 512}}, extents)
	})

	t.Run("Inline", func(t *testing.T) {
		var fe FileEntry
		require.NoError(t, fe.Unmarshal(fileEntry(t, FILE_TYPE_FILE, ALLOCATION_INLINE, 5, 0, []byte("hello"))))
		require.True(t, fe.IsInline())
		require.Equal(t, []byte("hello"), fe.AllocationDescriptors)
	})

	t.Run("PartialStride", func(t *testing.T) {
		var fe FileEntry
		require.NoError(t, fe.Unmarshal(fileEntry(t, FILE_TYPE_FILE, ALLOCATION_SHORT, 0, 0, make([]byte, 12))))
		_, err := fe.Extents(0)
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("ExtendedUnsupported", func(t *testing.T) {
		var fe FileEntry
		require.NoError(t, fe.Unmarshal(fileEntry(t, FILE_TYPE_FILE, ALLOCATION_EXTENDED, 0, 0, nil)))
		_, err := fe.Extents(0)
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("MisalignedExtendedAttributes", func(t *testing.T) {
		var fe FileEntry
		require.ErrorIs(t, fe.Unmarshal(fileEntry(t, FILE_TYPE_FILE, ALLOCATION_SHORT, 0, 6, nil)), ErrMalformed)
	})

	t.Run("AllocationDescriptorsOverrun", func(t *testing.T) {
		buf := fileEntry(t, FILE_TYPE_FILE, ALLOCATION_SHORT, 0, 0, nil)
		encoding.PutUint32(buf, 172, 2048-176+1)
		var fe FileEntry
		require.ErrorIs(t, fe.Unmarshal(buf), ErrMalformed)
	})

	t.Run("OtherFileType", func(t *testing.T) {
		var fe FileEntry
		require.ErrorIs(t, fe.Unmarshal(fileEntry(t, FILE_TYPE_OTHER, ALLOCATION_SHORT, 0, 0, nil)), ErrMalformed)
	})
}

func fid(t *testing.T, characteristics byte, name []byte, implUse int, trailer int) []byte {
	t.Helper()
	size := 38 + implUse + len(name)
	padded := (size + 3) &^ 3
	buf := make([]byte, padded+trailer)
	buf[18] = characteristics
	buf[19] = byte(len(name))
	icb := extent.LongAD{RawLength: 2048, Location: extent.LBAddr{Position: 9}}.Marshal()
	copy(buf[20:], icb[:])
	encoding.PutUint16(buf, 36, uint16(implUse))
	copy(buf[38+implUse:], name)
	seal(t, buf, TAG_FILE_IDENTIFIER)
	return buf
}

func TestFileIdentifierDescriptor(t *testing.T) {
	t.Run("Padded", func(t *testing.T) {
		name := encoding.EncodeDString("a.txt", encoding.COMPRESSION_ID_8)
		var f FileIdentifierDescriptor
		require.NoError(t, f.Unmarshal(fid(t, 0, name, 2, 10)))
		require.Equal(t, 48, f.Size)
		require.Equal(t, "a.txt", f.Identifier.String())
		require.Equal(t, uint32(9), f.ICB.Location.Position)
		require.False(t, f.IsParent())
	})

	t.Run("Parent", func(t *testing.T) {
		var f FileIdentifierDescriptor
		require.NoError(t, f.Unmarshal(fid(t, FILE_CHARACTERISTIC_PARENT|FILE_CHARACTERISTIC_DIRECTORY, nil, 0, 0)))
		require.True(t, f.IsParent())
		require.Equal(t, 40, f.Size)
		require.True(t, f.Identifier.IsSystem())
	})

	t.Run("TooShort", func(t *testing.T) {
		var f FileIdentifierDescriptor
		require.ErrorIs(t, f.Unmarshal(make([]byte, 37)), ErrShortBuffer)
	})

	t.Run("IdentifierOverrun", func(t *testing.T) {
		buf := fid(t, 0, []byte{8, 'a', 'b'}, 0, 0)
		var f FileIdentifierDescriptor
		require.ErrorIs(t, f.Unmarshal(buf[:40]), ErrShortBuffer)
	})

	t.Run("NonZeroPadding", func(t *testing.T) {
		buf := fid(t, 0, []byte{8, 'a', 'b'}, 0, 0)
		buf[len(buf)-1] = 0xFF
		var f FileIdentifierDescriptor
		require.ErrorIs(t, f.Unmarshal(buf), ErrMalformed)
	})
}

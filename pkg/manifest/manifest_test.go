package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	// BLAKE3 of the empty input
	h := NewHasher()
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", Sum(h).String())

	h.Write([]byte("hello "))
	h.Write([]byte("world"))
	streamed := Sum(h)

	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte("hello world"), 0644))
	fromFile, err := DigestFile(p)
	require.NoError(t, err)
	assert.Equal(t, streamed, fromFile)

	_, err = DigestFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	r := NewReport("image.iso", "/out")
	r.AddDirectory()
	r.AddFile(FileEntry{Path: "a/b.txt", Size: 11, ModTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)})
	r.AddFile(FileEntry{Path: "c", Size: 5})
	r.Skip("bad", "extents do not match size")
	r.Finish(true)

	assert.Equal(t, 1, r.Directories)
	assert.Equal(t, 2, r.Files)
	assert.Equal(t, int64(16), r.Bytes)
	assert.True(t, r.Completed)
	assert.False(t, r.Finished.Before(r.Started))

	var buf bytes.Buffer
	require.NoError(t, r.WriteYAML(&buf))
	out := buf.String()
	assert.True(t, strings.Contains(out, "image: image.iso"))
	assert.True(t, strings.Contains(out, "path: a/b.txt"))
	assert.True(t, strings.Contains(out, "reason: extents do not match size"))

	p := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, r.Save(p))
	loaded, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, r.Files, loaded.Files)
	assert.Equal(t, r.Entries[0].Path, loaded.Entries[0].Path)
	assert.True(t, r.Entries[0].ModTime.Equal(loaded.Entries[0].ModTime))
	assert.Equal(t, r.Skipped, loaded.Skipped)
}

func TestVerify(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "d", "same"), []byte("same"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "changed"), []byte("before"), 0644))

	same, err := DigestFile(filepath.Join(root, "d", "same"))
	require.NoError(t, err)
	changed, err := DigestFile(filepath.Join(root, "changed"))
	require.NoError(t, err)

	r := NewReport("x", root)
	r.AddFile(FileEntry{Path: "d/same", Size: 4, BLAKE3: same.String()})
	r.AddFile(FileEntry{Path: "changed", Size: 6, BLAKE3: changed.String()})
	r.AddFile(FileEntry{Path: "nodigest", Size: 1})

	require.NoError(t, os.WriteFile(filepath.Join(root, "changed"), []byte("after!"), 0644))
	mismatched, err := r.Verify(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"changed"}, mismatched)
}

package udf

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/bgrewell/udf-kit/pkg/filesystem"
	"github.com/bgrewell/udf-kit/pkg/manifest"
	"github.com/bgrewell/udf-kit/pkg/volume"
)

// ErrCorruptImage is returned when the image holds less data than its records describe.
var ErrCorruptImage = errors.New("corrupt image")

// ErrNotOpen is returned when extracting before a successful Open.
var ErrNotOpen = errors.New("image is not open")

// extraction is the state of one ExtractFiles call.
type extraction struct {
	u      *UDF
	ctx    context.Context
	reader io.ReaderAt
	report *manifest.Report

	imageLength int64
	extracted   int64
	lastPercent int

	fileNumber int
	fileCount  int
	buffer     []byte
	cancelled  bool
}

// ExtractFiles writes root and everything below it into destination. When root is nil the whole tree is
// extracted.
//
// Cancelling ctx stops the extraction before the next directory entry or chunk. The returned report then
// has Completed unset and the error is nil. Errors accessing the image or the destination abort the
// remaining tree.
func (u *UDF) ExtractFiles(ctx context.Context, destination string, root *filesystem.Record) (*manifest.Report, error) {
	if root == nil {
		root = u.root
	}
	if root == nil {
		return nil, ErrNotOpen
	}

	reader, size, release, err := u.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	x := &extraction{
		u:           u,
		ctx:         ctx,
		reader:      reader,
		report:      manifest.NewReport(u.location, destination),
		imageLength: size,
		buffer:      make([]byte, u.options.ChunkSize),
	}
	u.progress.Store(0)
	_ = root.Walk(func(r *filesystem.Record) error {
		if !r.IsDir() {
			x.fileCount++
		}
		return nil
	})

	u.logger.Info("extracting", "destination", destination, "files", x.fileCount, "bytes", root.Size())
	if err = x.extract(root, destination, ""); err != nil {
		x.report.Finish(false)
		return x.report, err
	}
	x.report.Finish(!x.cancelled)
	if x.cancelled {
		u.logger.Info("extraction cancelled", "files", x.report.Files, "bytes", x.report.Bytes)
	} else {
		u.logger.Info("extraction complete", "files", x.report.Files, "directories", x.report.Directories, "skipped", len(x.report.Skipped))
	}
	return x.report, nil
}

// stopped reports whether the context was cancelled, remembering it once seen.
func (x *extraction) stopped() bool {
	if x.cancelled {
		return true
	}
	if x.ctx.Err() != nil {
		x.cancelled = true
	}
	return x.cancelled
}

// extract writes record to target. rel is the slash separated path used in the report.
func (x *extraction) extract(record *filesystem.Record, target, rel string) error {
	if !record.IsUDF() {
		return nil
	}
	if record.IsDir() {
		return x.extractDirectory(record, target, rel)
	}
	return x.extractFile(record, target, rel)
}

func (x *extraction) extractDirectory(dir *filesystem.Record, target, rel string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", target, err)
	}
	if rel != "" {
		x.report.AddDirectory()
	}
	x.u.logger.Trace("created directory", "path", target)

	for _, child := range dir.Children() {
		if x.stopped() {
			return nil
		}
		name := child.Name()
		if child.IsSystem() || name == "" {
			continue
		}
		if err := x.extract(child, filepath.Join(target, name), path.Join(rel, name)); err != nil {
			return err
		}
	}
	return nil
}

func (x *extraction) extractFile(file *filesystem.Record, target, rel string) error {
	x.fileNumber++
	if !file.Extractable() {
		x.u.logger.Debug("skipping file", "path", rel, "reason", "extents not recorded or size mismatch")
		x.report.Skip(rel, "data is not fully recorded or does not match the file size")
		return nil
	}
	if file.UDF.VolumeIndex < 0 || file.UDF.VolumeIndex >= len(x.u.volumes) {
		x.report.Skip(rel, "record has no volume")
		return nil
	}
	res := volume.Resolver{Volume: x.u.volumes[file.UDF.VolumeIndex], Partitions: x.u.partitions}
	if err := res.CheckExtents(file.UDF.Extents); err != nil {
		x.u.logger.Debug("skipping file", "path", rel, "reason", err)
		x.report.Skip(rel, err.Error())
		return nil
	}

	// Overwrite the file if it already exists
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", target, err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}

	var hasher hash.Hash
	var w io.Writer = out
	if x.u.options.ComputeDigests {
		hasher = manifest.NewHasher()
		w = io.MultiWriter(out, hasher)
	}

	written, err := x.copyData(w, file, res, target)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", target, cerr)
	}
	if err != nil {
		return err
	}
	if x.cancelled {
		return nil
	}

	if x.u.options.PreserveTimes && !file.ModTime.IsZero() {
		atime := file.AccessTime
		if atime.IsZero() {
			atime = file.ModTime
		}
		if err := os.Chtimes(target, atime, file.ModTime); err != nil {
			return fmt.Errorf("failed to set timestamps on %s: %w", target, err)
		}
	}

	entry := manifest.FileEntry{Path: rel, Size: written, ModTime: file.ModTime}
	if hasher != nil {
		entry.BLAKE3 = manifest.Sum(hasher).String()
	}
	x.report.AddFile(entry)
	x.u.logger.Trace("extracted file", "path", rel, "bytes", written)
	return nil
}

// copyData writes the content of file to w, returning the number of bytes written.
func (x *extraction) copyData(w io.Writer, file *filesystem.Record, res volume.Resolver, target string) (int64, error) {
	size := file.Size()
	if file.UDF.IsInline {
		if len(file.UDF.InlineData) == 0 {
			return 0, nil
		}
		if _, err := w.Write(file.UDF.InlineData); err != nil {
			return 0, fmt.Errorf("failed to write to file %s: %w", target, err)
		}
		x.advance(target, int64(len(file.UDF.InlineData)), int64(len(file.UDF.InlineData)), size)
		return int64(len(file.UDF.InlineData)), nil
	}

	var written int64
	for _, e := range file.UDF.Extents {
		length := int64(e.Length())
		start, err := res.Offset(e.PartitionReference, e.Position, length)
		if err != nil {
			return written, err
		}
		for done := int64(0); done < length; {
			if x.stopped() {
				return written, nil
			}
			chunk := int64(len(x.buffer))
			if remaining := length - done; remaining < chunk {
				chunk = remaining
			}

			n, err := x.reader.ReadAt(x.buffer[:chunk], start+done)
			if int64(n) != chunk {
				if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					return written, fmt.Errorf("failed to read %s from image: %w", file.Path(), err)
				}
				return written, fmt.Errorf("read %d of %d bytes at offset %d for %s: %w", n, chunk, start+done, file.Path(), ErrCorruptImage)
			}

			if _, err := w.Write(x.buffer[:n]); err != nil {
				return written, fmt.Errorf("failed to write to file %s: %w", target, err)
			}
			done += int64(n)
			written += int64(n)
			x.advance(target, int64(n), written, size)
		}
	}
	return written, nil
}

// advance accounts for n more bytes written to the current file and reports progress.
func (x *extraction) advance(target string, n, written, size int64) {
	if cb := x.u.options.ExtractionProgressCallback; cb != nil {
		cb(target, written, size, x.fileNumber, x.fileCount)
	}

	x.extracted += n
	if x.imageLength <= 0 {
		return
	}
	percent := int(x.extracted * 100 / x.imageLength)
	if percent > x.lastPercent {
		x.lastPercent = percent
		x.u.progress.Store(int32(percent))
		if cb := x.u.options.ProgressCallback; cb != nil {
			cb(percent)
		}
	}
}

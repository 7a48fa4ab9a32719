package manifest

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Digest is a 32-byte BLAKE3 digest of file content.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// NewHasher returns a BLAKE3 hasher for streaming file content.
func NewHasher() hash.Hash {
	return blake3.New()
}

// Sum returns the digest accumulated by a hasher from NewHasher.
func Sum(h hash.Hash) Digest {
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// DigestFile hashes the file at path.
func DigestFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()
	h := NewHasher()
	if _, err = io.Copy(h, f); err != nil {
		return Digest{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return Sum(h), nil
}

// FileEntry describes one extracted file.
type FileEntry struct {
	Path    string    `yaml:"path"`
	Size    int64     `yaml:"size"`
	ModTime time.Time `yaml:"mod_time"`
	BLAKE3  string    `yaml:"blake3,omitempty"`
}

// SkippedEntry is a record that was not written and why.
type SkippedEntry struct {
	Path   string `yaml:"path"`
	Reason string `yaml:"reason"`
}

// Report summarizes an extraction run.
type Report struct {
	Image       string         `yaml:"image"`
	Destination string         `yaml:"destination"`
	Started     time.Time      `yaml:"started"`
	Finished    time.Time      `yaml:"finished"`
	Completed   bool           `yaml:"completed"`
	Directories int            `yaml:"directories"`
	Files       int            `yaml:"files"`
	Bytes       int64          `yaml:"bytes"`
	Entries     []FileEntry    `yaml:"files_written,omitempty"`
	Skipped     []SkippedEntry `yaml:"skipped,omitempty"`
}

// NewReport starts a report for extracting image into destination.
func NewReport(image, destination string) *Report {
	return &Report{Image: image, Destination: destination, Started: time.Now()}
}

// AddDirectory counts a created directory.
func (r *Report) AddDirectory() {
	r.Directories++
}

// AddFile records a written file.
func (r *Report) AddFile(entry FileEntry) {
	r.Files++
	r.Bytes += entry.Size
	r.Entries = append(r.Entries, entry)
}

// Skip records a record that was not extracted.
func (r *Report) Skip(path, reason string) {
	r.Skipped = append(r.Skipped, SkippedEntry{Path: path, Reason: reason})
}

// Finish stamps the finish time and completion state.
func (r *Report) Finish(completed bool) {
	r.Finished = time.Now()
	r.Completed = completed
}

// WriteYAML encodes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// Save writes the report as YAML to path.
func (r *Report) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err = r.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a report written by Save.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	r := &Report{}
	if err = yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return r, nil
}

// Verify re-hashes every file with a recorded digest below root and returns the paths whose content no
// longer matches.
func (r *Report) Verify(root string) ([]string, error) {
	var mismatched []string
	for _, e := range r.Entries {
		if e.BLAKE3 == "" {
			continue
		}
		d, err := DigestFile(filepath.Join(root, filepath.FromSlash(e.Path)))
		if err != nil {
			return nil, err
		}
		if d.String() != e.BLAKE3 {
			mismatched = append(mismatched, e.Path)
		}
	}
	return mismatched, nil
}

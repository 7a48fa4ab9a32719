package testing

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// GroundTruthEntry is an entry expected in an extracted directory.
type GroundTruthEntry struct {
	Name        string
	IsDirectory bool
	Data        []byte
}

// GroundTruth flattens the tree below root into slash separated paths. Deleted entries are left out and
// links resolve to their target content.
func GroundTruth(root *Node) map[string]GroundTruthEntry {
	entries := make(map[string]GroundTruthEntry)
	var walk func(n *Node, parent string)
	walk = func(n *Node, parent string) {
		for _, child := range n.Children {
			if child.Deleted {
				continue
			}
			name := path.Join(parent, child.Name)
			src := child
			if child.target != nil {
				src = child.target
			}
			entries[name] = GroundTruthEntry{Name: name, IsDirectory: src.Dir, Data: src.Data}
			if src == child && child.Dir {
				walk(child, name)
			}
		}
	}
	walk(root, "")
	return entries
}

// Validate compares the files and directories below dir against the tree rooted at root. Missing, extra
// and differing entries are reported in the returned error.
func Validate(dir string, root *Node) error {
	groundTruth := GroundTruth(root)

	found := make(map[string]bool)
	var problems []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." {
			return err
		}
		name := filepath.ToSlash(rel)
		found[name] = true

		gt, ok := groundTruth[name]
		switch {
		case !ok:
			problems = append(problems, "extra: "+name)
		case gt.IsDirectory != d.IsDir():
			problems = append(problems, "type mismatch: "+name)
		case !d.IsDir():
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			if !bytes.Equal(data, gt.Data) {
				problems = append(problems, fmt.Sprintf("content mismatch: %s (%d bytes, want %d)", name, len(data), len(gt.Data)))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for name := range groundTruth {
		if !found[name] {
			problems = append(problems, "missing: "+name)
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("extracted tree differs:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// ContainsNonASCIIPrintable returns true if the string has any
// characters outside ASCII [32..126], i.e., not a standard printable.
func ContainsNonASCIIPrintable(s string) bool {
	for _, r := range s {
		if r < 32 || r > 126 {
			return true
		}
	}
	return false
}

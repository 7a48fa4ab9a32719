package testing

import "github.com/bgrewell/udf-kit/pkg/filesystem"

// GetFileAndFolderCounts returns the number of directories below root and the number of non system files.
func GetFileAndFolderCounts(root *filesystem.Record) (int, int) {
	var folderCount, fileCount int

	// Function needs to be declared before it is assigned to the anonymous function so that it can
	// be called recursively.
	var walk func(r *filesystem.Record)

	walk = func(r *filesystem.Record) {
		if !r.IsRoot() {
			folderCount++
		}
		for _, child := range r.Children() {
			if child.IsDir() {
				walk(child)
			} else if !child.IsSystem() {
				fileCount++
			}
		}
	}

	walk(root)
	return folderCount, fileCount
}

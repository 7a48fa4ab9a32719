package filesystem

import "io/fs"

// SkipDir is returned from a Walk callback to skip the children of a directory.
var SkipDir = fs.SkipDir

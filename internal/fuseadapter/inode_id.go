package fuseadapter

import "hash/fnv"

// Virtual entries that exist only at the mount root, outside the
// Overlay namespace proper.
const (
	snapshotDirName = ".snapshot"
	controlFileName = ".ori_control"
)

// stableIno returns a stable inode number for a path string, so the
// same overlay path always maps to the same inode across Lookup calls.
func stableIno(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

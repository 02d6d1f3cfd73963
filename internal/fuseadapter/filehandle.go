package fuseadapter

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/ori-fs/ori/internal/overlay"
)

// fileHandle is the FileHandle go-fuse hands back from Open/Create for a
// regular file, carrying the overlay handle number OpenFile allocated.
// Unlike the teacher's WriteHandle it never buffers a whole file in
// memory: every Read/Write goes straight through to the Overlay's
// pread/pwrite-style namespace calls, which themselves own the spill
// file or Store fetch.
type fileHandle struct {
	ov *overlay.Overlay
	fi *overlay.FileInfo
	fh uint64
}

var (
	_ fs.FileReader   = (*fileHandle)(nil)
	_ fs.FileWriter   = (*fileHandle)(nil)
	_ fs.FileFlusher  = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
	_ fs.FileFsyncer  = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := h.ov.ReadFile(h.fi, len(dest), off)
	if err != nil {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(data), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.ov.WriteFile(h.fi, data, off)
	if err != nil {
		return uint32(n), toErrno(err)
	}
	return uint32(n), 0
}

// Flush is a no-op: every Write already lands on the spill file, and the
// commit pipeline is the only operation
// that actually folds content back into the Store.
func (h *fileHandle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	h.ov.Release(h.fh)
	return 0
}

func (h *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return 0
}

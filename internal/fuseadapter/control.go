package fuseadapter

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/ori-fs/ori/internal/overlay"
)

// ControlNode is the single file at /.ori_control: reading it back
// returns the repository's absolute working-tree root, and every write
// attempt is refused.
type ControlNode struct {
	fs.Inode
	ov *overlay.Overlay
}

var (
	_ fs.NodeGetattrer = (*ControlNode)(nil)
	_ fs.NodeSetattrer = (*ControlNode)(nil)
	_ fs.NodeOpener    = (*ControlNode)(nil)
	_ fs.NodeReader    = (*ControlNode)(nil)
)

func (c *ControlNode) contents() []byte {
	return []byte(c.ov.RepoRoot() + "\n")
}

func (c *ControlNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0444
	out.Size = uint64(len(c.contents()))
	return 0
}

// Setattr refuses every attribute change, truncation included: the
// control file's content is computed, never stored.
func (c *ControlNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EACCES
}

func (c *ControlNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EACCES
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (c *ControlNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data := c.contents()
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return fuse.ReadResultData(data[off:end]), 0
}

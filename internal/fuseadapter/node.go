// Package fuseadapter translates POSIX filesystem callbacks into calls
// against an Overlay, and is the one layer in this codebase that thinks
// in terms of inodes, errno, and the kernel's attribute structs.
package fuseadapter

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/ori-fs/ori/internal/overlay"
)

// OriNode is a single directory or file entry, identified by its full
// overlay path. The same type serves the mount root, every directory,
// and every regular file or symlink below it: OriNode itself carries no
// state beyond the path, so distinct Lookup calls for the same path
// are always handed the same data straight from the Overlay.
type OriNode struct {
	fs.Inode
	ov   *overlay.Overlay
	path string
}

var (
	_ fs.NodeLookuper   = (*OriNode)(nil)
	_ fs.NodeReaddirer  = (*OriNode)(nil)
	_ fs.NodeGetattrer  = (*OriNode)(nil)
	_ fs.NodeSetattrer  = (*OriNode)(nil)
	_ fs.NodeMkdirer    = (*OriNode)(nil)
	_ fs.NodeRmdirer    = (*OriNode)(nil)
	_ fs.NodeUnlinker   = (*OriNode)(nil)
	_ fs.NodeCreater    = (*OriNode)(nil)
	_ fs.NodeOpener     = (*OriNode)(nil)
	_ fs.NodeSymlinker  = (*OriNode)(nil)
	_ fs.NodeReadlinker = (*OriNode)(nil)
	_ fs.NodeRenamer    = (*OriNode)(nil)
	_ fs.NodeMknoder    = (*OriNode)(nil)
)

func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func fuseMode(fi overlay.FileAttr) uint32 {
	mode := fi.Stat.Mode
	switch fi.Kind {
	case overlay.KindDir:
		return mode | syscall.S_IFDIR
	case overlay.KindSymlink:
		return mode | syscall.S_IFLNK
	default:
		return mode | syscall.S_IFREG
	}
}

func fillAttr(out *fuse.Attr, fi overlay.FileAttr) {
	out.Mode = fuseMode(fi)
	out.Size = uint64(fi.Stat.Size)
	out.Uid = fi.Stat.UID
	out.Gid = fi.Stat.GID
	if fi.Stat.NLink > 0 {
		out.Nlink = fi.Stat.NLink
	} else {
		out.Nlink = 1
	}
	out.SetTimes(&fi.Stat.Mtime, &fi.Stat.Mtime, &fi.Stat.Ctime)
}

// Lookup resolves name inside the directory at o.path. The two
// top-level virtual entries, ".snapshot" and ".ori_control", only exist
// directly under the mount root.
func (o *OriNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if o.path == "/" {
		switch name {
		case snapshotDirName:
			n := &SnapshotRootNode{ov: o.ov}
			return o.NewInode(ctx, n, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: stableIno("/.snapshot")}), 0
		case controlFileName:
			n := &ControlNode{ov: o.ov}
			return o.NewInode(ctx, n, fs.StableAttr{Mode: syscall.S_IFREG, Ino: stableIno("/.ori_control")}), 0
		}
	}

	p := childPath(o.path, name)
	fi, err := o.ov.Stat(p)
	if err != nil {
		return nil, toErrno(err)
	}
	child := &OriNode{ov: o.ov, path: p}
	fillAttr(&out.Attr, fi)
	return o.NewInode(ctx, child, fs.StableAttr{Mode: fuseMode(fi), Ino: stableIno(p)}), 0
}

func (o *OriNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := o.ov.Readdir(o.path)
	if err != nil {
		return nil, toErrno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(names)+2)
	if o.path == "/" {
		entries = append(entries,
			fuse.DirEntry{Name: snapshotDirName, Mode: syscall.S_IFDIR, Ino: stableIno("/.snapshot")},
			fuse.DirEntry{Name: controlFileName, Mode: syscall.S_IFREG, Ino: stableIno("/.ori_control")},
		)
	}
	for _, name := range names {
		p := childPath(o.path, name)
		fi, err := o.ov.Stat(p)
		if err != nil {
			continue
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: fuseMode(fi), Ino: stableIno(p)})
	}
	return fs.NewListDirStream(entries), 0
}

func (o *OriNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fi, err := o.ov.Stat(o.path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&out.Attr, fi)
	return 0
}

func (o *OriNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if in.Valid&fuse.FATTR_MODE != 0 {
		if err := o.ov.Chmod(o.path, in.Mode&07777); err != nil {
			return toErrno(err)
		}
	}
	if in.Valid&(fuse.FATTR_UID|fuse.FATTR_GID) != 0 {
		if err := o.ov.Chown(o.path, in.Uid, in.Gid); err != nil {
			return toErrno(err)
		}
	}
	if in.Valid&fuse.FATTR_MTIME != 0 {
		mtime := time.Unix(int64(in.Mtime), int64(in.Mtimensec))
		if err := o.ov.Utimens(o.path, mtime); err != nil {
			return toErrno(err)
		}
	}
	if in.Valid&fuse.FATTR_SIZE != 0 {
		fi, fh, err := o.ov.OpenFile(o.path, true, false)
		if err != nil {
			return toErrno(err)
		}
		defer o.ov.Release(fh)
		if err := o.ov.Truncate(fi, int64(in.Size)); err != nil {
			return toErrno(err)
		}
	}
	return o.Getattr(ctx, fh, out)
}

func (o *OriNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := childPath(o.path, name)
	fi, err := o.ov.AddDir(p, mode)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, fi.Attr())
	return o.NewInode(ctx, &OriNode{ov: o.ov, path: p}, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: stableIno(p)}), 0
}

func (o *OriNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return toErrno(o.ov.RmDir(childPath(o.path, name)))
}

func (o *OriNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return toErrno(o.ov.Unlink(childPath(o.path, name)))
}

// Mknod is refused: Ori only creates regular files, directories, and
// symlinks, never device or special files.
func (o *OriNode) Mknod(ctx context.Context, name string, mode, rdev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.ENOSYS
}

func (o *OriNode) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	p := childPath(o.path, name)
	fi, err := o.ov.AddFile(p, mode)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	_, fh, err := o.ov.OpenFile(p, true, flags&syscall.O_TRUNC != 0)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	fillAttr(&out.Attr, fi.Attr())
	child := o.NewInode(ctx, &OriNode{ov: o.ov, path: p}, fs.StableAttr{Mode: syscall.S_IFREG, Ino: stableIno(p)})
	return child, &fileHandle{ov: o.ov, fi: fi, fh: fh}, 0, 0
}

func (o *OriNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	writing := flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0
	fi, fh, err := o.ov.OpenFile(o.path, writing, flags&syscall.O_TRUNC != 0)
	if err != nil {
		return nil, 0, toErrno(err)
	}
	return &fileHandle{ov: o.ov, fi: fi, fh: fh}, 0, 0
}

func (o *OriNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := childPath(o.path, name)
	fi, err := o.ov.AddSymlink(p, target)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, fi.Attr())
	return o.NewInode(ctx, &OriNode{ov: o.ov, path: p}, fs.StableAttr{Mode: syscall.S_IFLNK, Ino: stableIno(p)}), 0
}

func (o *OriNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	fi, err := o.ov.Stat(o.path)
	if err != nil {
		return nil, toErrno(err)
	}
	if fi.Kind != overlay.KindSymlink {
		return nil, syscall.EINVAL
	}
	return []byte(fi.Link), 0
}

func (o *OriNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	dst, ok := newParent.(*OriNode)
	if !ok {
		return syscall.EXDEV
	}
	from := childPath(o.path, name)
	to := childPath(dst.path, newName)
	return toErrno(o.ov.Rename(from, to))
}

package fuseadapter

import (
	"context"
	"sort"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/ori-fs/ori/internal/model"
	"github.com/ori-fs/ori/internal/overlay"
)

// snapshotSymlinkBit matches overlay's symlinkModeBit: a Tree entry's
// Mode has this bit set when its Blob content is a symlink target
// rather than regular file content.
const snapshotSymlinkBit = uint16(syscall.S_IFLNK)

func snapshotChildPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func snapshotFuseMode(e model.TreeEntry) uint32 {
	if e.Type == model.EntryTree {
		return uint32(e.Mode) | syscall.S_IFDIR
	}
	if e.Mode&snapshotSymlinkBit == snapshotSymlinkBit {
		return uint32(e.Mode)
	}
	return uint32(e.Mode) | syscall.S_IFREG
}

func fillSnapshotAttr(out *fuse.Attr, e model.TreeEntry) {
	out.Mode = snapshotFuseMode(e)
	if v, ok := e.Attrs[model.AttrFilesize]; ok {
		out.Size = v.UInt
	}
	if v, ok := e.Attrs[model.AttrMtime]; ok {
		out.SetTimes(&v.Time, &v.Time, &v.Time)
	}
}

// SnapshotRootNode is the /.snapshot directory: one subdirectory per
// name listSnapshots() returns.
type SnapshotRootNode struct {
	fs.Inode
	ov *overlay.Overlay
}

var (
	_ fs.NodeLookuper  = (*SnapshotRootNode)(nil)
	_ fs.NodeReaddirer = (*SnapshotRootNode)(nil)
	_ fs.NodeGetattrer = (*SnapshotRootNode)(nil)
)

func (s *SnapshotRootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0555
	return 0
}

func (s *SnapshotRootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	view, err := s.ov.OpenSnapshot(name)
	if err != nil {
		return nil, toErrno(err)
	}
	out.Attr.Mode = syscall.S_IFDIR | 0555
	child := &SnapshotNode{ov: s.ov, view: view, name: name, path: ""}
	return s.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: stableIno("/.snapshot/" + name)}), 0
}

func (s *SnapshotRootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	snaps, err := s.ov.ListSnapshots()
	if err != nil {
		return nil, toErrno(err)
	}
	names := make([]string, 0, len(snaps))
	for name := range snaps {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]fuse.DirEntry, len(names))
	for i, name := range names {
		entries[i] = fuse.DirEntry{Name: name, Mode: syscall.S_IFDIR, Ino: stableIno("/.snapshot/" + name)}
	}
	return fs.NewListDirStream(entries), 0
}

// SnapshotNode is one file or directory inside a named snapshot's tree.
// It is read-only top to bottom: every write callback refuses with
// AccessDenied, per the spec's "writes into /.snapshot/... fail"
// invariant.
type SnapshotNode struct {
	fs.Inode
	ov   *overlay.Overlay
	view *overlay.SnapshotView
	name string // owning snapshot's name, for inode stability only
	path string // "/"-joined path within the snapshot; "" is the root
}

var (
	_ fs.NodeLookuper   = (*SnapshotNode)(nil)
	_ fs.NodeReaddirer  = (*SnapshotNode)(nil)
	_ fs.NodeGetattrer  = (*SnapshotNode)(nil)
	_ fs.NodeSetattrer  = (*SnapshotNode)(nil)
	_ fs.NodeOpener     = (*SnapshotNode)(nil)
	_ fs.NodeReader     = (*SnapshotNode)(nil)
	_ fs.NodeReadlinker = (*SnapshotNode)(nil)
	_ fs.NodeMkdirer    = (*SnapshotNode)(nil)
	_ fs.NodeCreater    = (*SnapshotNode)(nil)
	_ fs.NodeUnlinker   = (*SnapshotNode)(nil)
	_ fs.NodeRmdirer    = (*SnapshotNode)(nil)
	_ fs.NodeSymlinker  = (*SnapshotNode)(nil)
	_ fs.NodeRenamer    = (*SnapshotNode)(nil)
)

func (s *SnapshotNode) ino(rel string) uint64 {
	return stableIno("/.snapshot/" + s.name + "/" + rel)
}

func (s *SnapshotNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if s.path == "" {
		out.Mode = syscall.S_IFDIR | 0555
		return 0
	}
	entry, err := s.view.Lookup(s.path)
	if err != nil {
		return toErrno(err)
	}
	fillSnapshotAttr(&out.Attr, entry)
	return 0
}

func (s *SnapshotNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	rel := snapshotChildPath(s.path, name)
	entry, err := s.view.Lookup(rel)
	if err != nil {
		return nil, toErrno(err)
	}
	fillSnapshotAttr(&out.Attr, entry)
	child := &SnapshotNode{ov: s.ov, view: s.view, name: s.name, path: rel}
	return s.NewInode(ctx, child, fs.StableAttr{Mode: snapshotFuseMode(entry), Ino: s.ino(rel)}), 0
}

func (s *SnapshotNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	children, err := s.view.Readdir(s.path)
	if err != nil {
		return nil, toErrno(err)
	}
	entries := make([]fuse.DirEntry, len(children))
	for i, e := range children {
		rel := snapshotChildPath(s.path, e.Name)
		entries[i] = fuse.DirEntry{Name: e.Name, Mode: snapshotFuseMode(e), Ino: s.ino(rel)}
	}
	return fs.NewListDirStream(entries), 0
}

func (s *SnapshotNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EACCES
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (s *SnapshotNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := s.view.ReadFile(s.path)
	if err != nil {
		return nil, toErrno(err)
	}
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return fuse.ReadResultData(data[off:end]), 0
}

func (s *SnapshotNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	entry, err := s.view.Lookup(s.path)
	if err != nil {
		return nil, toErrno(err)
	}
	if entry.Mode&snapshotSymlinkBit != snapshotSymlinkBit {
		return nil, syscall.EINVAL
	}
	target, err := s.view.ReadFile(s.path)
	if err != nil {
		return nil, toErrno(err)
	}
	return target, 0
}

func (s *SnapshotNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EACCES
}

func (s *SnapshotNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EACCES
}

func (s *SnapshotNode) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EACCES
}

func (s *SnapshotNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return syscall.EACCES
}

func (s *SnapshotNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return syscall.EACCES
}

func (s *SnapshotNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EACCES
}

func (s *SnapshotNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return syscall.EACCES
}

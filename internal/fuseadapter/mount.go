package fuseadapter

import (
	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/ori-fs/ori/internal/overlay"
)

// MountOptions controls the FUSE session itself, separate from the
// repo/clone/cache/journal options the CLI parses out of `-o` before
// opening the Overlay that backs this mount.
type MountOptions struct {
	Debug          bool
	SingleThreaded bool
}

// Mount mounts ov's namespace at mountpoint. Returns the running
// server; call Wait to block until unmount, Unmount to stop it.
func Mount(mountpoint string, ov *overlay.Overlay, opts MountOptions) (*gofuse.Server, error) {
	root := &OriNode{ov: ov, path: "/"}
	fuseOpts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			FsName:         "ori",
			Name:           "ori",
			DisableXAttrs:  true,
			Debug:          opts.Debug,
			SingleThreaded: opts.SingleThreaded,
		},
	}
	return fs.Mount(mountpoint, root, fuseOpts)
}

package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// safeWrite writes data to path atomically: temp file in the same
// directory, fsync, rename. The same-directory requirement is what makes
// the rename atomic — it guarantees both names live on one filesystem.
func safeWrite(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("store: fsync temp file: %w", err)
	}
	if err = f.Chmod(perm); err != nil {
		f.Close()
		return fmt.Errorf("store: chmod temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: rename temp to target: %w", err)
	}
	return nil
}

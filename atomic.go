package nocloud

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// WriteFileAtomic writes r to a temporary file beside name and renames it
// into place, so readers see either the old or the new content.
func WriteFileAtomic(fsys afero.Fs, name string, r io.Reader, perm fs.FileMode) (err error) {
	dir := filepath.Dir(name)
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return &PathError{Op: "mkdir", Path: dir, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}

	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(name)+".tmp-")
	if err != nil {
		return &PathError{Op: "create", Path: name, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = fsys.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return &PathError{Op: "write", Path: name, Err: err}
	}
	if err = tmp.Sync(); err != nil {
		return &PathError{Op: "sync", Path: name, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	if err = tmp.Close(); err != nil {
		return &PathError{Op: "close", Path: name, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	if err = fsys.Chmod(tmpName, perm); err != nil {
		return &PathError{Op: "chmod", Path: name, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	if err = fsys.Rename(tmpName, name); err != nil {
		return &PathError{Op: "rename", Path: name, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	return nil
}

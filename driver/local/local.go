// Package local stores objects as files below a directory, typically a
// mounted backup disk or a network share.
package local

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/walker"
)

// Adapter provides a directory implementation of nocloud.Backend
type Adapter struct {
	root   string
	remote afero.Fs
	local  afero.Fs
}

// New creates an adapter storing objects under root on remote. Local files
// are read from and written to local.
func New(root string, remote, local afero.Fs) (*Adapter, error) {
	root = filepath.Clean(root)
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("%w: local driver path %q must be absolute", nocloud.ErrConfigParse, root)
	}

	// Ensure the root directory exists
	if err := remote.MkdirAll(root, 0o700); err != nil {
		return nil, &nocloud.PathError{Op: "open", Path: root, Err: fmt.Errorf("%w: %w", nocloud.ErrFatalBackend, err)}
	}

	return &Adapter{root: root, remote: remote, local: local}, nil
}

// Put implements nocloud.Backend
func (a *Adapter) Put(ctx context.Context, localPath, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	target, err := a.objectPath("put", key)
	if err != nil {
		return err
	}

	f, err := a.local.Open(localPath)
	if err != nil {
		return &nocloud.PathError{Op: "put", Path: localPath, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
	}
	defer f.Close()

	return nocloud.WriteFileAtomic(a.remote, target, f, nocloud.SecureMode)
}

// Get implements nocloud.Backend
func (a *Adapter) Get(ctx context.Context, key, localPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	source, err := a.objectPath("get", key)
	if err != nil {
		return err
	}

	f, err := a.remote.Open(source)
	if err != nil {
		if exists, _ := afero.Exists(a.remote, source); !exists {
			return &nocloud.PathError{Op: "get", Path: key, Err: nocloud.ErrNotExist}
		}
		return &nocloud.PathError{Op: "get", Path: key, Err: fmt.Errorf("%w: %w", nocloud.ErrFatalBackend, err)}
	}
	defer f.Close()

	return nocloud.WriteFileAtomic(a.local, localPath, f, nocloud.SecureMode)
}

// List implements nocloud.Backend
func (a *Adapter) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for entry, err := range walker.Walk(a.remote, a.root, walker.WithoutDefaultIgnores()) {
		if err != nil {
			if walker.IsFatal(err) {
				return nil, &nocloud.PathError{Op: "list", Path: a.root, Err: fmt.Errorf("%w: %w", nocloud.ErrFatalBackend, err)}
			}
			return nil, &nocloud.PathError{Op: "list", Path: a.root, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, err := filepath.Rel(a.root, entry.Path)
		if err != nil {
			continue
		}
		key := filepath.ToSlash(rel)
		if isTempFile(entry.Name()) || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements nocloud.Backend
func (a *Adapter) Close() error {
	return nil
}

// objectPath maps a key to a file under root, rejecting keys that escape it
func (a *Adapter) objectPath(op, key string) (string, error) {
	full := filepath.Join(a.root, filepath.FromSlash(key))
	if key == "" || full == a.root || !isPathUnderRoot(a.root, full) {
		return "", &nocloud.PathError{Op: op, Path: key, Err: fmt.Errorf("%w: key escapes storage root", nocloud.ErrFatalBackend)}
	}
	return full, nil
}

func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// isTempFile matches the names WriteFileAtomic uses while writing
func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}

// Package walker lists the regular files under a root directory.
package walker

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/gobeaver/nocloud"
)

// DefaultIgnores are names never visited: version control metadata and
// files the operating system drops into folders.
var DefaultIgnores = []string{".hg", ".git", ".env", ".DS_Store", ".localized"}

type options struct {
	ignores  []string
	patterns []glob.Glob
	log      logrus.FieldLogger
}

// Option configures a walk.
type Option func(*options) error

// WithIgnore adds glob patterns matched against the base name and the
// slash path relative to the root.
func WithIgnore(patterns ...string) Option {
	return func(o *options) error {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return fmt.Errorf("invalid ignore pattern %q: %w", p, err)
			}
			o.patterns = append(o.patterns, g)
		}
		return nil
	}
}

// WithoutDefaultIgnores visits names listed in DefaultIgnores too.
func WithoutDefaultIgnores() Option {
	return func(o *options) error {
		o.ignores = nil
		return nil
	}
}

// WithLogger sets the logger warnings are reported to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) error {
		o.log = log
		return nil
	}
}

// Walk returns a lazy depth-first sequence of the regular files under root
// in lexical order. Each range over the sequence walks the tree again.
//
// Root itself is followed when it is a symbolic link. A failure to read
// root, or a root that is neither a directory nor a regular file, is
// yielded once wrapping nocloud.ErrTraversal and ends the sequence. An
// unreadable subdirectory is yielded as a warning and skipped. Symbolic
// links, sockets and devices below root are skipped silently.
func Walk(fsys afero.Fs, root string, opts ...Option) iter.Seq2[nocloud.FileEntry, error] {
	o := &options{ignores: DefaultIgnores, log: logrus.StandardLogger()}
	var optErr error
	for _, opt := range opts {
		optErr = multierr.Append(optErr, opt(o))
	}

	root = filepath.Clean(root)

	return func(yield func(nocloud.FileEntry, error) bool) {
		if optErr != nil {
			yield(nocloud.FileEntry{}, traversalError(root, optErr))
			return
		}

		info, err := fsys.Stat(root)
		if err != nil {
			yield(nocloud.FileEntry{}, traversalError(root, err))
			return
		}

		switch {
		case info.Mode().IsRegular():
			yield(newEntry(root, info), nil)
		case info.IsDir():
			entries, err := afero.ReadDir(fsys, root)
			if err != nil {
				yield(nocloud.FileEntry{}, traversalError(root, err))
				return
			}
			w := &walk{fsys: fsys, root: root, opts: o, yield: yield}
			w.entries(root, entries)
		default:
			yield(nocloud.FileEntry{}, traversalError(root, fmt.Errorf("%s is not a regular file or directory", info.Mode().Type())))
		}
	}
}

type walk struct {
	fsys  afero.Fs
	root  string
	opts  *options
	yield func(nocloud.FileEntry, error) bool
}

// dir reads and visits one directory. It returns false once the consumer
// stops.
func (w *walk) dir(dir string) bool {
	entries, err := afero.ReadDir(w.fsys, dir)
	if err != nil {
		w.opts.log.WithError(err).WithField("path", dir).Warn("Skipping unreadable directory")
		return w.yield(nocloud.FileEntry{}, &nocloud.PathError{Op: "readdir", Path: dir, Err: err})
	}
	return w.entries(dir, entries)
}

func (w *walk) entries(dir string, entries []os.FileInfo) bool {
	for _, info := range entries {
		p := filepath.Join(dir, info.Name())
		if w.ignored(p, info.Name()) {
			continue
		}

		mode := info.Mode()
		switch {
		case mode&fs.ModeSymlink != 0:
			continue
		case mode.IsDir():
			if !w.dir(p) {
				return false
			}
		case mode.IsRegular():
			if !w.yield(newEntry(p, info), nil) {
				return false
			}
		}
	}
	return true
}

func (w *walk) ignored(p, name string) bool {
	for _, ignore := range w.opts.ignores {
		if name == ignore {
			return true
		}
	}
	if len(w.opts.patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range w.opts.patterns {
		if g.Match(name) || g.Match(rel) {
			return true
		}
	}
	return false
}

func newEntry(p string, info fs.FileInfo) nocloud.FileEntry {
	return nocloud.FileEntry{
		Path: p,
		Size: info.Size(),
		Mode: info.Mode().Perm(),
		Dir:  filepath.Dir(p),
	}
}

func traversalError(root string, err error) error {
	return &nocloud.PathError{Op: "walk", Path: root, Err: fmt.Errorf("%w: %w", nocloud.ErrTraversal, err)}
}

// IsFatal reports whether an error yielded by Walk ended the traversal.
func IsFatal(err error) bool {
	return errors.Is(err, nocloud.ErrTraversal)
}

// Package resolver finds the configuration document that governs a path:
// the nearest one found walking up from the path's directory.
package resolver

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/crypt"
	"github.com/gobeaver/nocloud/walker"
)

// DecryptPrompt is the prompt passed to Passwords for encrypted documents.
const DecryptPrompt = "Decryption password"

// Resolver looks up configuration documents. Results are memoized per
// directory for the lifetime of the Resolver, which should not outlive one
// command invocation.
type Resolver struct {
	fs        afero.Fs
	cipher    *crypt.Cipher
	passwords Passwords
	boundary  string
	log       logrus.FieldLogger

	mu   sync.Mutex
	dirs map[string]*lookup
}

type lookup struct {
	once sync.Once
	cfg  *nocloud.RemoteConfig
	err  error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCipher sets the cipher used for encrypted documents.
func WithCipher(c *crypt.Cipher) Option {
	return func(r *Resolver) { r.cipher = c }
}

// WithPasswords sets the password source for encrypted documents.
func WithPasswords(p Passwords) Option {
	return func(r *Resolver) { r.passwords = p }
}

// WithBoundary stops the upward search at dir (inclusive). Without it the
// search continues to the filesystem root.
func WithBoundary(dir string) Option {
	return func(r *Resolver) { r.boundary = filepath.Clean(dir) }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Resolver) { r.log = log }
}

// New creates a Resolver over fsys.
func New(fsys afero.Fs, opts ...Option) *Resolver {
	r := &Resolver{
		fs:     fsys,
		cipher: crypt.New(),
		log:    logrus.StandardLogger(),
		dirs:   make(map[string]*lookup),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the configuration governing path. The search starts in
// path itself when it is a directory, otherwise in its parent.
func (r *Resolver) Resolve(path string) (*nocloud.RemoteConfig, error) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if info, err := r.fs.Stat(path); err == nil && info.IsDir() {
		dir = path
	}
	return r.ResolveDir(dir)
}

// ResolveDir returns the configuration of the nearest ancestor of dir,
// dir included, that holds a configuration document. A broken document
// is an error; the search does not skip past it.
func (r *Resolver) ResolveDir(dir string) (*nocloud.RemoteConfig, error) {
	dir = filepath.Clean(dir)
	for _, d := range r.ancestors(dir) {
		l := r.lookupDir(d)
		if l.cfg != nil || l.err != nil {
			return l.cfg, l.err
		}
	}
	return nil, &nocloud.PathError{Op: "resolve", Path: dir, Err: nocloud.ErrConfigNotFound}
}

// FindDirs returns the directories under root (root included) that hold a
// configuration document, in lexical order.
func (r *Resolver) FindDirs(root string) ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)
	for entry, err := range walker.Walk(r.fs, root, walker.WithLogger(r.log)) {
		if err != nil {
			if walker.IsFatal(err) {
				return nil, err
			}
			continue
		}
		if nocloud.IsConfigDocument(entry.Path) && !seen[entry.Dir] {
			seen[entry.Dir] = true
			dirs = append(dirs, entry.Dir)
		}
	}
	return dirs, nil
}

// Load reads the document at source. Encrypted documents are decrypted in
// memory.
func (r *Resolver) Load(source string) (*nocloud.RemoteConfig, error) {
	var (
		data []byte
		err  error
	)
	if nocloud.IsEncrypted(source) {
		data, err = r.decrypt(source)
	} else {
		data, err = afero.ReadFile(r.fs, source)
		if err != nil {
			err = &nocloud.PathError{Op: "load", Path: source, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
		}
	}
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data, filepath.Dir(source), source)
	if err != nil {
		return nil, err
	}
	if !nocloud.IsRegistered(cfg.Driver) {
		return nil, &nocloud.PathError{
			Op:   "load",
			Path: source,
			Err:  fmt.Errorf("%w: %s", nocloud.ErrUnsupportedDriver, cfg.Driver),
		}
	}

	r.log.WithFields(logrus.Fields{"scope": cfg.Scope, "driver": cfg.Driver}).Debug("Loaded configuration")
	return cfg, nil
}

func (r *Resolver) decrypt(source string) ([]byte, error) {
	if r.passwords == nil {
		return nil, &nocloud.PathError{
			Op:   "load",
			Path: source,
			Err:  fmt.Errorf("%w: no password available for encrypted configuration", nocloud.ErrAuthentication),
		}
	}
	pw, err := r.passwords.Password(DecryptPrompt)
	if err != nil {
		return nil, &nocloud.PathError{Op: "load", Path: source, Err: fmt.Errorf("%w: %w", nocloud.ErrAuthentication, err)}
	}
	return r.cipher.ReadFile(r.fs, source, pw)
}

// lookupDir loads the document stored directly in dir, once.
func (r *Resolver) lookupDir(dir string) *lookup {
	r.mu.Lock()
	l, ok := r.dirs[dir]
	if !ok {
		l = &lookup{}
		r.dirs[dir] = l
	}
	r.mu.Unlock()

	l.once.Do(func() {
		for _, name := range nocloud.ConfigNames {
			p := filepath.Join(dir, name)
			info, err := r.fs.Stat(p)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			l.cfg, l.err = r.Load(p)
			return
		}
	})
	return l
}

// ancestors lists dir and its parents up to the boundary or the
// filesystem root.
func (r *Resolver) ancestors(dir string) []string {
	var chain []string
	for {
		chain = append(chain, dir)
		if r.boundary != "" && dir == r.boundary {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if r.boundary != "" && !nocloud.Within(r.boundary, chain[0]) {
		return nil
	}
	return chain
}

// Package memory provides an in-process backend. Objects live in named
// stores so tests can inspect what a push produced and seed what a pull
// should fetch.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
)

// object is one stored key
type object struct {
	content []byte
	hash    string
	modTime time.Time
}

// Config holds configuration for a store
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64

	// Hook runs before every operation; a non-nil error fails the call.
	// op is "put", "get" or "list".
	Hook func(op, key string) error
}

// Store holds objects shared by every handle opened on it.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*object
	maxSize int64
	size    int64
	hook    func(op, key string) error

	opened atomic.Int64
	closed atomic.Int64
}

// NewStore creates an empty store
func NewStore(cfg ...Config) *Store {
	s := &Store{objects: make(map[string]*object)}
	if len(cfg) > 0 {
		s.maxSize = cfg[0].MaxSize
		s.hook = cfg[0].Hook
	}
	return s
}

var (
	storesMu sync.RWMutex
	stores   = make(map[string]*Store)
)

// Register makes s reachable by configuration documents with
// "store: name". It replaces any store registered under name.
func Register(name string, s *Store) {
	storesMu.Lock()
	defer storesMu.Unlock()
	stores[name] = s
}

// Unregister removes a named store.
func Unregister(name string) {
	storesMu.Lock()
	defer storesMu.Unlock()
	delete(stores, name)
}

func lookupStore(name string) (*Store, bool) {
	storesMu.RLock()
	defer storesMu.RUnlock()
	s, ok := stores[name]
	return s, ok
}

// Put stores data at key, replacing any previous object
func (s *Store) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newSize := s.size + int64(len(data))
	if existing, exists := s.objects[key]; exists {
		newSize -= int64(len(existing.content))
	}
	if s.maxSize > 0 && newSize > s.maxSize {
		return &nocloud.PathError{Op: "put", Path: key, Err: fmt.Errorf("%w: store quota exceeded", nocloud.ErrFatalBackend)}
	}

	s.objects[key] = &object{
		content: bytes.Clone(data),
		hash:    nocloud.HashBytes(data),
		modTime: time.Now(),
	}
	s.size = newSize
	return nil
}

// Read returns a copy of the object at key
func (s *Store) Read(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[key]
	if !exists {
		return nil, &nocloud.PathError{Op: "get", Path: key, Err: nocloud.ErrNotExist}
	}
	return bytes.Clone(obj.content), nil
}

// Keys returns every key with prefix, sorted
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Checksums maps every key to the xxhash of its content
func (s *Store) Checksums() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]string, len(s.objects))
	for k, obj := range s.objects {
		sums[k] = obj.hash
	}
	return sums
}

// Size returns the current total size of all stored objects
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Handles returns how many handles were opened and closed on the store
func (s *Store) Handles() (opened, closed int64) {
	return s.opened.Load(), s.closed.Load()
}

func (s *Store) runHook(op, key string) error {
	if s.hook == nil {
		return nil
	}
	if err := s.hook(op, key); err != nil {
		return &nocloud.PathError{Op: op, Path: key, Err: err}
	}
	return nil
}

// Adapter is one handle on a store
type Adapter struct {
	store  *Store
	local  afero.Fs
	closed atomic.Bool
}

// New opens a handle on store reading and writing local files through local
func New(store *Store, local afero.Fs) *Adapter {
	store.opened.Add(1)
	return &Adapter{store: store, local: local}
}

func (a *Adapter) check(ctx context.Context, op, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if a.closed.Load() {
		return &nocloud.PathError{Op: op, Path: key, Err: fmt.Errorf("%w: handle closed", nocloud.ErrFatalBackend)}
	}
	return a.store.runHook(op, key)
}

// Put implements nocloud.Backend
func (a *Adapter) Put(ctx context.Context, localPath, key string) error {
	if err := a.check(ctx, "put", key); err != nil {
		return err
	}

	data, err := afero.ReadFile(a.local, localPath)
	if err != nil {
		return &nocloud.PathError{Op: "put", Path: localPath, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
	}
	return a.store.Put(key, data)
}

// Get implements nocloud.Backend
func (a *Adapter) Get(ctx context.Context, key, localPath string) error {
	if err := a.check(ctx, "get", key); err != nil {
		return err
	}

	data, err := a.store.Read(key)
	if err != nil {
		return err
	}
	return nocloud.WriteFileAtomic(a.local, localPath, bytes.NewReader(data), nocloud.SecureMode)
}

// List implements nocloud.Backend
func (a *Adapter) List(ctx context.Context, prefix string) ([]string, error) {
	if err := a.check(ctx, "list", prefix); err != nil {
		return nil, err
	}
	return a.store.Keys(prefix), nil
}

// Close implements nocloud.Backend
func (a *Adapter) Close() error {
	if a.closed.CompareAndSwap(false, true) {
		a.store.closed.Add(1)
	}
	return nil
}

package nocloud

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrScopeExists is returned when a directory is added twice
	ErrScopeExists = errors.New("scope already exists")
	// ErrEmptyScope is returned when the scope directory is empty
	ErrEmptyScope = errors.New("scope directory cannot be empty")
)

// Scope is a directory governed by one configuration document. Config is
// nil when the document could not be loaded; Err then says why.
type Scope struct {
	Dir    string
	Config *RemoteConfig
	Err    error
}

// ScopeTable maps directories to the scopes rooted there and finds the
// nearest enclosing scope of a path.
type ScopeTable struct {
	mu     sync.RWMutex
	scopes map[string]*Scope
	// sorted dirs for longest-prefix matching
	sortedDirs []string
}

// NewScopeTable creates an empty table.
func NewScopeTable() *ScopeTable {
	return &ScopeTable{
		scopes: make(map[string]*Scope),
	}
}

// Add registers a scope at s.Dir.
func (t *ScopeTable) Add(s *Scope) error {
	dir := normalizeScopeDir(s.Dir)
	if dir == "" {
		return ErrEmptyScope
	}
	s.Dir = dir

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.scopes[dir]; exists {
		return fmt.Errorf("%w: %s", ErrScopeExists, dir)
	}

	t.scopes[dir] = s
	t.updateSortedDirs()

	return nil
}

// Lookup returns the scope whose directory is the nearest ancestor
// (inclusive) of p.
func (t *ScopeTable) Lookup(p string) (*Scope, bool) {
	p = normalizeScopeDir(p)
	if p == "" {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, dir := range t.sortedDirs {
		if within(dir, p) {
			return t.scopes[dir], true
		}
	}
	return nil, false
}

// Governs reports whether the scope at dir is the nearest one for p.
func (t *ScopeTable) Governs(dir, p string) bool {
	s, ok := t.Lookup(p)
	return ok && s.Dir == normalizeScopeDir(dir)
}

// Scopes returns every scope, deepest first.
func (t *ScopeTable) Scopes() []*Scope {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*Scope, 0, len(t.sortedDirs))
	for _, dir := range t.sortedDirs {
		result = append(result, t.scopes[dir])
	}
	return result
}

// Len returns the number of scopes.
func (t *ScopeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.scopes)
}

// updateSortedDirs sorts by length descending, ties by name.
// Must be called with lock held.
func (t *ScopeTable) updateSortedDirs() {
	dirs := make([]string, 0, len(t.scopes))
	for d := range t.scopes {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		if len(dirs[i]) != len(dirs[j]) {
			return len(dirs[i]) > len(dirs[j])
		}
		return dirs[i] < dirs[j]
	})
	t.sortedDirs = dirs
}

func normalizeScopeDir(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

// within reports whether p is dir or below it.
func within(dir, p string) bool {
	if p == dir {
		return true
	}
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(p, dir)
	}
	return strings.HasPrefix(p, dir+string(filepath.Separator))
}

// Within reports whether p is dir or a descendant of it.
func Within(dir, p string) bool {
	return within(filepath.Clean(dir), filepath.Clean(p))
}

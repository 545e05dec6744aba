package nocloud

import (
	"errors"
	"testing"
)

func TestScopeTable_Lookup(t *testing.T) {
	table := NewScopeTable()
	for _, dir := range []string{"/a", "/a/b", "/a/bc", "/x/y/"} {
		if err := table.Add(&Scope{Dir: dir}); err != nil {
			t.Fatalf("Add(%s) error = %v", dir, err)
		}
	}

	tests := []struct {
		path    string
		wantDir string
		wantOK  bool
	}{
		{"/a/b/c.txt", "/a/b", true},
		{"/a/b", "/a/b", true},
		{"/a/bc/d/e.txt", "/a/bc", true},
		{"/a/bd/e.txt", "/a", true},
		{"/a/d.txt", "/a", true},
		{"/x/y/z", "/x/y", true},
		{"/x/z", "", false},
		{"/ab/c.txt", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s, ok := table.Lookup(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if ok && s.Dir != tt.wantDir {
				t.Errorf("Lookup(%q) = %s, want %s", tt.path, s.Dir, tt.wantDir)
			}
		})
	}
}

func TestScopeTable_Add(t *testing.T) {
	table := NewScopeTable()

	if err := table.Add(&Scope{Dir: "/a"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := table.Add(&Scope{Dir: "/a/"}); !errors.Is(err, ErrScopeExists) {
		t.Errorf("Add() duplicate error = %v, want ErrScopeExists", err)
	}
	if err := table.Add(&Scope{Dir: ""}); !errors.Is(err, ErrEmptyScope) {
		t.Errorf("Add() empty error = %v, want ErrEmptyScope", err)
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestScopeTable_Governs(t *testing.T) {
	table := NewScopeTable()
	_ = table.Add(&Scope{Dir: "/root"})
	_ = table.Add(&Scope{Dir: "/root/nested"})

	if !table.Governs("/root", "/root/file") {
		t.Error("root scope should govern /root/file")
	}
	if table.Governs("/root", "/root/nested/file") {
		t.Error("root scope should not govern files of a nested scope")
	}
	if !table.Governs("/root/nested", "/root/nested/deep/file") {
		t.Error("nested scope should govern its own subtree")
	}

	scopes := table.Scopes()
	if len(scopes) != 2 || scopes[0].Dir != "/root/nested" {
		t.Errorf("Scopes() should list deepest first, got %v", scopes)
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/a", "/a", true},
		{"/a", "/a/b", true},
		{"/a/", "/a/b", true},
		{"/a", "/ab", false},
		{"/", "/anything", true},
		{"/a/b", "/a", false},
	}
	for _, tt := range tests {
		if got := Within(tt.dir, tt.path); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

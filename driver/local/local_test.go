package local

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
)

func TestNew(t *testing.T) {
	t.Run("creates root directory", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		if _, err := New("/backup", fsys, fsys); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok, _ := afero.DirExists(fsys, "/backup"); !ok {
			t.Error("expected root directory to exist")
		}
	})

	t.Run("rejects relative root", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		if _, err := New("backup", fsys, fsys); !errors.Is(err, nocloud.ErrConfigParse) {
			t.Errorf("expected ErrConfigParse, got %v", err)
		}
	})
}

func TestPutGetList(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "/home/docs/a.txt", []byte("alpha"), 0o644)
	_ = afero.WriteFile(fsys, "/home/docs/sub/b.txt", []byte("beta"), 0o644)

	a, err := New("/backup", fsys, fsys)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Put(ctx, "/home/docs/a.txt", "a.txt"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := a.Put(ctx, "/home/docs/sub/b.txt", "sub/b.txt"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	keys, err := a.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "a.txt" || keys[1] != "sub/b.txt" {
		t.Errorf("List() = %v", keys)
	}

	keys, _ = a.List(ctx, "sub/")
	if len(keys) != 1 || keys[0] != "sub/b.txt" {
		t.Errorf("List(sub/) = %v", keys)
	}

	if err := a.Get(ctx, "sub/b.txt", "/restore/b.txt"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := afero.ReadFile(fsys, "/restore/b.txt")
	if string(data) != "beta" {
		t.Errorf("restored content = %q", data)
	}

	if err := a.Get(ctx, "missing.txt", "/restore/missing.txt"); !errors.Is(err, nocloud.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "/src", []byte("x"), 0o600)
	a, _ := New("/backup", fsys, fsys)

	for _, key := range []string{"../etc/passwd", "", "a/../../x"} {
		if err := a.Put(ctx, "/src", key); !errors.Is(err, nocloud.ErrFatalBackend) {
			t.Errorf("Put(%q) expected ErrFatalBackend, got %v", key, err)
		}
	}
}

func TestRegisteredDriver(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cfg := &nocloud.RemoteConfig{Driver: "local", Credentials: map[string]string{"path": "/mnt/backup"}}

	b, err := nocloud.Open(context.Background(), cfg, fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()

	if ok, _ := afero.DirExists(fsys, "/mnt/backup"); !ok {
		t.Error("expected backup directory to be created")
	}
}

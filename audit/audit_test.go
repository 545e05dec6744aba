package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nocloud"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		path string
		mode os.FileMode
		want SecurityState
		code string
	}{
		{"encrypted secure", "/d/x.crypt", 0o600, SecurityState{Encrypted: true, ModeCompliant: true}, "  "},
		{"encrypted open", "/d/x.crypt", 0o644, SecurityState{Encrypted: true}, " m"},
		{"clear secure", "/d/x", 0o600, SecurityState{ModeCompliant: true}, "c "},
		{"clear open", "/d/x", 0o644, SecurityState{}, "cm"},
		{"owner only read", "/d/x.crypt", 0o400, SecurityState{Encrypted: true}, " m"},
		{"suffix in the middle", "/d/x.crypt.txt", 0o600, SecurityState{ModeCompliant: true}, "c "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(nocloud.FileEntry{Path: tt.path, Mode: tt.mode})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.code, got.Code())
			assert.Equal(t, tt.code == "  ", got.Compliant())
		})
	}
}

func TestAuditFixesModes(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/docs/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/docs/b.txt.crypt", []byte("b"), 0o600))
	require.NoError(t, afero.WriteFile(fsys, "/docs/c.txt.crypt", []byte("c"), 0o640))

	var streamed []string
	auditor := New(fsys, OnFinding(func(f Finding) { streamed = append(streamed, f.String()) }))

	report, err := auditor.Audit(context.Background(), "/docs", true)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, []string{"cm /docs/a.txt", " m /docs/c.txt.crypt"}, streamed)
	assert.Empty(t, report.Failed())

	for _, name := range []string{"/docs/a.txt", "/docs/c.txt.crypt"} {
		info, err := fsys.Stat(name)
		require.NoError(t, err)
		assert.Equal(t, nocloud.SecureMode, info.Mode().Perm(), name)
	}

	// Only the clear-text file is left to report, and nothing changes.
	again, err := auditor.Audit(context.Background(), "/docs", true)
	require.NoError(t, err)
	require.Len(t, again.Findings, 1)
	assert.Equal(t, "c  /docs/a.txt", again.Findings[0].String())
	assert.False(t, again.Findings[0].Fixed)
}

func TestAuditDryRun(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/docs/a.txt", []byte("a"), 0o644))

	report, err := New(fsys).Audit(context.Background(), "/docs", false)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.False(t, report.Findings[0].Fixed)

	info, err := fsys.Stat("/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

type chmodFailFs struct {
	afero.Fs
}

func (c chmodFailFs) Chmod(name string, mode os.FileMode) error {
	return errors.New("read-only filesystem")
}

func TestAuditRecordsFixFailures(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/docs/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(base, "/docs/b.txt", []byte("b"), 0o644))

	report, err := New(chmodFailFs{base}).Audit(context.Background(), "/docs", true)
	require.NoError(t, err)
	require.Len(t, report.Failed(), 2)
	assert.ErrorIs(t, report.Failed()[0].Err, nocloud.ErrIO)
}

func TestAuditMissingRoot(t *testing.T) {
	_, err := New(afero.NewMemMapFs()).Audit(context.Background(), "/nope", true)
	assert.ErrorIs(t, err, nocloud.ErrTraversal)
}

func TestAuditCancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/docs/a.txt", []byte("a"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fsys).Audit(ctx, "/docs", true)
	assert.ErrorIs(t, err, nocloud.ErrCancelled)

	info, _ := fsys.Stat("/docs/a.txt")
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestAuditSymlinkedRoot(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(target, "secret.txt"), []byte("s"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	report, err := New(afero.NewOsFs()).Audit(context.Background(), link, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "cm "+filepath.Join(link, "secret.txt"), report.Findings[0].String())
	assert.True(t, report.Findings[0].Fixed)

	info, err := os.Stat(filepath.Join(target, "secret.txt"))
	require.NoError(t, err)
	assert.Equal(t, nocloud.SecureMode, info.Mode().Perm())
}

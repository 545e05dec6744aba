package s3

import (
	"context"
	"net/http"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/driver/s3/s3test"
)

func openBackend(t *testing.T, srv *s3test.Server, fsys afero.Fs) nocloud.Backend {
	t.Helper()
	cfg := &nocloud.RemoteConfig{
		Driver: nocloud.DriverMinio,
		Credentials: map[string]string{
			"bucket":   "backup",
			"endpoint": srv.URL,
			"key":      "AKIDEXAMPLE",
			"secret":   "secret",
		},
		Source: "/home/.no-cloud.yml",
	}
	b, err := nocloud.Open(context.Background(), cfg, fsys)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestAdapterRoundTrip(t *testing.T) {
	srv := s3test.New(t, "backup")
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/home/docs/a.txt", []byte("alpha"), 0o600))
	require.NoError(t, afero.WriteFile(fsys, "/home/docs/sub/b.txt", []byte("beta"), 0o600))

	b := openBackend(t, srv, fsys)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "/home/docs/a.txt", "docs/a.txt"))
	require.NoError(t, b.Put(ctx, "/home/docs/sub/b.txt", "docs/sub/b.txt"))
	stored, ok := srv.Object("docs/a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("alpha"), stored)

	keys, err := b.List(ctx, "docs/sub/")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/sub/b.txt"}, keys)

	keys, err = b.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a.txt", "docs/sub/b.txt"}, keys)

	require.NoError(t, b.Get(ctx, "docs/sub/b.txt", "/restore/b.txt"))
	data, err := afero.ReadFile(fsys, "/restore/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))

	info, err := fsys.Stat("/restore/b.txt")
	require.NoError(t, err)
	assert.Equal(t, nocloud.SecureMode, info.Mode().Perm())
}

func TestAdapterListSkipsFolderMarkers(t *testing.T) {
	srv := s3test.New(t, "backup")
	srv.SetObject("docs/", nil)
	srv.SetObject("docs/a.txt", []byte("a"))

	b := openBackend(t, srv, afero.NewMemMapFs())
	keys, err := b.List(context.Background(), "docs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a.txt"}, keys)
}

func TestAdapterErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"service unavailable is transient", http.StatusServiceUnavailable, "ServiceUnavailable", nocloud.ErrTransient},
		{"slow down is transient", http.StatusServiceUnavailable, "SlowDown", nocloud.ErrTransient},
		{"unknown 5xx is transient", http.StatusBadGateway, "BadGateway", nocloud.ErrTransient},
		{"access denied is fatal", http.StatusForbidden, "AccessDenied", nocloud.ErrFatalBackend},
		{"bad signature is fatal", http.StatusForbidden, "SignatureDoesNotMatch", nocloud.ErrFatalBackend},
		{"unknown 4xx is fatal", http.StatusBadRequest, "WeirdRequest", nocloud.ErrFatalBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := s3test.New(t, "backup")
			srv.SetFault(func(*http.Request) (int, string) { return tt.status, tt.code })

			fsys := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fsys, "/a.txt", []byte("a"), 0o600))
			b := openBackend(t, srv, fsys)

			err := b.Put(context.Background(), "/a.txt", "a.txt")
			assert.ErrorIs(t, err, tt.want)

			_, err = b.List(context.Background(), "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAdapterGetMissingKey(t *testing.T) {
	srv := s3test.New(t, "backup")
	fsys := afero.NewMemMapFs()
	b := openBackend(t, srv, fsys)

	err := b.Get(context.Background(), "missing.txt", "/restore/missing.txt")
	assert.ErrorIs(t, err, nocloud.ErrNotExist)

	exists, _ := afero.Exists(fsys, "/restore/missing.txt")
	assert.False(t, exists)
}

func TestRequiredKeys(t *testing.T) {
	tests := []struct {
		driver string
		creds  map[string]string
		want   string
	}{
		{nocloud.DriverS3, map[string]string{"bucket": "b"}, "key, secret"},
		{nocloud.DriverMinio, map[string]string{"bucket": "b", "key": "k", "secret": "s"}, "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := &nocloud.RemoteConfig{Driver: tt.driver, Credentials: tt.creds, Source: "/x/.no-cloud.yml"}
			_, err := nocloud.Open(context.Background(), cfg, afero.NewMemMapFs())
			require.Error(t, err)
			assert.ErrorIs(t, err, nocloud.ErrConfigParse)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInvalidPathStyle(t *testing.T) {
	cfg := &nocloud.RemoteConfig{
		Driver: nocloud.DriverS3,
		Credentials: map[string]string{
			"bucket":     "b",
			"key":        "k",
			"secret":     "s",
			"path_style": "sometimes",
		},
	}
	_, err := nocloud.Open(context.Background(), cfg, afero.NewMemMapFs())
	assert.ErrorIs(t, err, nocloud.ErrConfigParse)
}

package resolver

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nocloud"
	"github.com/gobeaver/nocloud/crypt"
	_ "github.com/gobeaver/nocloud/driver/s3"
	_ "github.com/gobeaver/nocloud/driver/sftp"
)

func write(t *testing.T, fsys afero.Fs, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, name, []byte(content), 0o600))
}

func TestResolveNearestWins(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "/a/.no-cloud.yml", "driver: s3\nbucket: B1\n")
	write(t, fsys, "/a/b/.no-cloud.yml", "driver: s3\nbucket: B2\n")
	write(t, fsys, "/a/b/c.txt", "c")
	write(t, fsys, "/a/d.txt", "d")
	write(t, fsys, "/a/e/f/g.txt", "g")

	r := New(fsys)

	tests := []struct {
		path       string
		wantBucket string
		wantScope  string
	}{
		{"/a/b/c.txt", "B2", "/a/b"},
		{"/a/d.txt", "B1", "/a"},
		{"/a/e/f/g.txt", "B1", "/a"},
		{"/a/b", "B2", "/a/b"},
		{"/a/b/not-yet-pulled.txt", "B2", "/a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			cfg, err := r.Resolve(tt.path)
			require.NoError(t, err)
			assert.Equal(t, "s3", cfg.Driver)
			assert.Equal(t, tt.wantBucket, cfg.Get("bucket"))
			assert.Equal(t, tt.wantScope, cfg.Scope)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "/x/y.txt", "y")

	_, err := New(fsys).Resolve("/x/y.txt")
	assert.ErrorIs(t, err, nocloud.ErrConfigNotFound)
	assert.True(t, nocloud.IsConfigNotFound(err))
}

func TestResolveBoundary(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "/a/.no-cloud.yml", "driver: s3\n")
	write(t, fsys, "/a/b/c.txt", "c")

	_, err := New(fsys, WithBoundary("/a/b")).Resolve("/a/b/c.txt")
	assert.ErrorIs(t, err, nocloud.ErrConfigNotFound)

	cfg, err := New(fsys, WithBoundary("/a")).Resolve("/a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "/a", cfg.Scope)

	_, err = New(fsys, WithBoundary("/other")).Resolve("/a/b/c.txt")
	assert.ErrorIs(t, err, nocloud.ErrConfigNotFound)
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"missing driver", "bucket: b\n", nocloud.ErrConfigParse},
		{"malformed", "driver: [s3\n", nocloud.ErrConfigParse},
		{"not a mapping", "- s3\n", nocloud.ErrConfigParse},
		{"nested value", "driver: s3\nbucket:\n  name: b\n", nocloud.ErrConfigParse},
		{"empty", "", nocloud.ErrConfigParse},
		{"unknown driver", "driver: ftp\n", nocloud.ErrUnsupportedDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			write(t, fsys, "/p/.no-cloud.yml", tt.doc)
			write(t, fsys, "/.no-cloud.yml", "driver: s3\n")

			_, err := New(fsys).Resolve("/p/file")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolveSFTPIsDeclared(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "/s/.no-cloud.yml", "driver: sftp\nhost: example.com\nuser: root\n")

	cfg, err := New(fsys).Resolve("/s/file")
	require.NoError(t, err)
	assert.Equal(t, "sftp", cfg.Driver)
	assert.Equal(t, "example.com", cfg.Get("host"))
}

func TestParse(t *testing.T) {
	doc := "driver: S3\nbucket: b\nregion: eu-west-1\nport: 22\nprefix: /backups/\n---\ndriver: sftp\n"

	cfg, err := Parse([]byte(doc), "/scope", "/scope/.no-cloud.yml")
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.Driver)
	assert.Equal(t, "backups", cfg.Prefix)
	assert.Equal(t, map[string]string{"bucket": "b", "region": "eu-west-1", "port": "22"}, cfg.Credentials)
	assert.Equal(t, "/scope", cfg.Scope)
}

func TestResolveEncryptedConfig(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cipher := crypt.New(crypt.WithKDF(crypt.KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}))

	token, err := cipher.Encrypt([]byte("driver: s3\nbucket: secret-bucket\n"), []byte("pw"))
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fsys, "/e/.no-cloud.yml.crypt", token, 0o600))
	write(t, fsys, "/e/.no-cloud.yml", "driver: s3\nbucket: clear-bucket\n")

	var asked atomic.Int32
	passwords := Once(PasswordFunc(func(prompt string) ([]byte, error) {
		asked.Add(1)
		assert.Equal(t, DecryptPrompt, prompt)
		return []byte("pw"), nil
	}))

	r := New(fsys, WithCipher(cipher), WithPasswords(passwords))
	cfg, err := r.Resolve("/e/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "secret-bucket", cfg.Get("bucket"))
	assert.Equal(t, "/e/.no-cloud.yml.crypt", cfg.Source)

	_, err = New(fsys, WithCipher(cipher), WithPasswords(passwords)).Resolve("/e/b.txt")
	require.NoError(t, err)
	assert.Equal(t, int32(1), asked.Load())

	_, err = New(fsys, WithCipher(cipher), WithPasswords(StaticPassword("wrong"))).Resolve("/e/a.txt")
	assert.ErrorIs(t, err, nocloud.ErrAuthentication)

	_, err = New(fsys, WithCipher(cipher)).Resolve("/e/a.txt")
	assert.ErrorIs(t, err, nocloud.ErrAuthentication)
}

func TestResolveMemoizesPerInstance(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "/m/.no-cloud.yml", "driver: s3\nbucket: one\n")

	r := New(fsys)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve("/m/x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	write(t, fsys, "/m/.no-cloud.yml", "driver: s3\nbucket: two\n")

	cfg, err := r.Resolve("/m/x")
	require.NoError(t, err)
	assert.Equal(t, "one", cfg.Get("bucket"))

	cfg, err = New(fsys).Resolve("/m/x")
	require.NoError(t, err)
	assert.Equal(t, "two", cfg.Get("bucket"))
}

func TestFindDirs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "/r/.no-cloud.yml", "driver: s3\n")
	write(t, fsys, "/r/a/.no-cloud.yml.crypt", "x")
	write(t, fsys, "/r/a/.no-cloud.yml", "driver: s3\n")
	write(t, fsys, "/r/b/c/.no-cloud.yml", "driver: s3\n")
	write(t, fsys, "/r/b/file.txt", "f")

	dirs, err := New(fsys).FindDirs("/r")
	require.NoError(t, err)
	assert.Equal(t, []string{"/r", "/r/a", "/r/b/c"}, dirs)

	_, err = New(fsys).FindDirs("/missing")
	assert.True(t, errors.Is(err, nocloud.ErrTraversal))
}

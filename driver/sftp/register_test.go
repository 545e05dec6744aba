package sftp

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nocloud"
)

func TestOpenFailsWithoutConnecting(t *testing.T) {
	cfg := &nocloud.RemoteConfig{
		Driver: nocloud.DriverSFTP,
		Credentials: map[string]string{
			"host":        "backup.example.com",
			"user":        "alice",
			"private_key": "~/.ssh/id_ed25519",
		},
		Source: "/home/alice/.no-cloud.yml",
	}

	require.True(t, nocloud.IsRegistered(nocloud.DriverSFTP))

	b, err := nocloud.Open(context.Background(), cfg, afero.NewMemMapFs())
	assert.Nil(t, b)
	assert.ErrorIs(t, err, nocloud.ErrUnsupportedDriver)
	assert.Equal(t, nocloud.KindUnsupportedDriver, nocloud.Kind(err))
	assert.Contains(t, err.Error(), "alice@backup.example.com")
}

func TestParseConfig(t *testing.T) {
	cfg := &nocloud.RemoteConfig{Credentials: map[string]string{"host": "h", "user": "u", "private_key": "k"}}
	assert.Equal(t, Config{Host: "h", User: "u", PrivateKey: "k"}, ParseConfig(cfg))
}

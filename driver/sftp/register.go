// Package sftp registers the sftp driver name. Configurations naming it
// parse, but opening a handle always fails so no connection is attempted.
package sftp

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
)

// Config holds the keys an sftp remote configuration carries
type Config struct {
	Host       string
	User       string
	PrivateKey string
}

// ParseConfig extracts the sftp keys from a remote configuration
func ParseConfig(cfg *nocloud.RemoteConfig) Config {
	return Config{
		Host:       cfg.Get("host"),
		User:       cfg.Get("user"),
		PrivateKey: cfg.Get("private_key"),
	}
}

func init() {
	nocloud.RegisterDriver(nocloud.DriverSFTP, func(_ context.Context, cfg *nocloud.RemoteConfig, _ afero.Fs) (nocloud.Backend, error) {
		c := ParseConfig(cfg)
		return nil, &nocloud.PathError{
			Op:   "open",
			Path: cfg.Source,
			Err:  fmt.Errorf("%w: sftp transfers to %s@%s are not implemented", nocloud.ErrUnsupportedDriver, c.User, c.Host),
		}
	})
}

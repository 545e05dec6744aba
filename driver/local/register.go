package local

import (
	"context"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
)

func init() {
	nocloud.RegisterDriver(nocloud.DriverLocal, func(ctx context.Context, cfg *nocloud.RemoteConfig, local afero.Fs) (nocloud.Backend, error) {
		if err := cfg.Require("path"); err != nil {
			return nil, err
		}
		root, err := homedir.Expand(cfg.Get("path"))
		if err != nil {
			return nil, &nocloud.PathError{Op: "open", Path: cfg.Source, Err: err}
		}
		return New(root, local, local)
	})
}

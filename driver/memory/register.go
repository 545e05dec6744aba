package memory

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
)

func init() {
	nocloud.RegisterDriver(nocloud.DriverMemory, func(ctx context.Context, cfg *nocloud.RemoteConfig, local afero.Fs) (nocloud.Backend, error) {
		if err := cfg.Require("store"); err != nil {
			return nil, err
		}
		store, ok := lookupStore(cfg.Get("store"))
		if !ok {
			return nil, &nocloud.PathError{
				Op:   "open",
				Path: cfg.Source,
				Err:  fmt.Errorf("%w: no memory store named %q", nocloud.ErrFatalBackend, cfg.Get("store")),
			}
		}
		return New(store, local), nil
	})
}

package nocloud

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

// DriverFactory is a function that opens a Backend for a remote config.
// local is the filesystem Put reads from and Get writes to.
type DriverFactory func(ctx context.Context, cfg *RemoteConfig, local afero.Fs) (Backend, error)

var (
	driverFactories = make(map[string]DriverFactory)
	factoryMutex    sync.RWMutex
)

// RegisterDriver registers a driver factory function
func RegisterDriver(name string, factory DriverFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	driverFactories[name] = factory
}

// IsRegistered reports whether a factory exists for the driver name
func IsRegistered(name string) bool {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()
	_, ok := driverFactories[name]
	return ok
}

// Drivers returns the registered driver names in sorted order
func Drivers() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()

	names := make([]string, 0, len(driverFactories))
	for name := range driverFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a backend handle from config. The caller owns the handle and
// must Close it.
func Open(ctx context.Context, cfg *RemoteConfig, local afero.Fs) (Backend, error) {
	factoryMutex.RLock()
	factory, exists := driverFactories[cfg.Driver]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: driver %s not registered", ErrUnsupportedDriver, cfg.Driver)
	}

	return factory(ctx, cfg, local)
}

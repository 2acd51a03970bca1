// factory.go maps export backend names (local, s3, azure, gcs) to constructor
// functions and dispatches NewStorage calls.
package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/3mpowered/dataverse-convenience/internal/config"
)

// FactoryFunc creates a storage backend from the application configuration
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage creates the backend selected by export.backend
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.Export.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %q (registered: %s)", cfg.Export.Backend, strings.Join(registered(), ", "))
	}

	return factory(cfg)
}

func registered() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

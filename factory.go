package entrystore

import (
	"fmt"
)

// BackendType names a registered store backend.
type BackendType string

const (
	BackendCSV    BackendType = "csv"
	BackendSQLite BackendType = "sqlite"
)

// Factory is a function type that creates a Store instance.
type Factory func(config map[string]interface{}) (Store, error)

// factories holds registered store factories.
var factories = make(map[BackendType]Factory)

// Register registers a store factory.
func Register(backendType BackendType, factory Factory) {
	factories[backendType] = factory
}

// Create creates a new Store instance based on the backend type.
func Create(backendType BackendType, config map[string]interface{}) (Store, error) {
	factory, ok := factories[backendType]
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
	return factory(config)
}

// SupportedTypes returns a list of supported backend types.
func SupportedTypes() []BackendType {
	types := make([]BackendType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	return types
}

// IsSupported returns true if the backend type is supported.
func IsSupported(backendType BackendType) bool {
	_, ok := factories[backendType]
	return ok
}

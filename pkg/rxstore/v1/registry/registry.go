package registry

import (
	v1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
)

// StoreFactory creates the store registered under an id. It is called at most
// once per id while that id stays registered.
type StoreFactory func(id string) (v1.StoreV1, error)

// Registry defines the public interface for a set of named, shared stores.
// Implementations must be safe for concurrent use.
type Registry interface {
	// GetOrCreate returns the store registered under id, creating it with
	// factory when absent. A failing factory leaves nothing registered and
	// its error is reported as a ConfigError.
	GetOrCreate(id string, factory StoreFactory) (v1.StoreV1, error)

	// Get returns the store registered under id.
	Get(id string) (v1.StoreV1, bool)

	// Remove disposes and forgets the store registered under id. It reports
	// whether a store was registered.
	Remove(id string) bool

	// List returns the registered ids in sorted order.
	List() []string

	// DisposeAll disposes and forgets every registered store.
	DisposeAll()
}

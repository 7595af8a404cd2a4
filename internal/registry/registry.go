// Package registry keeps named stores that several parts of a program share.
package registry

import (
	"fmt"
	"sort"
	"sync"

	rxv1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
	rxlog "github.com/gxo-labs/rxstore/pkg/rxstore/v1/log"
	rxregistry "github.com/gxo-labs/rxstore/pkg/rxstore/v1/registry"
)

// StaticRegistry implements rxregistry.Registry with a map guarded by a mutex.
type StaticRegistry struct {
	stores map[string]rxv1.StoreV1
	mu     sync.RWMutex
	log    rxlog.Logger
}

var _ rxregistry.Registry = (*StaticRegistry)(nil)

// NewStaticRegistry creates an empty registry. log must not be nil.
func NewStaticRegistry(log rxlog.Logger) *StaticRegistry {
	if log == nil {
		panic("registry.NewStaticRegistry requires a non-nil logger")
	}
	return &StaticRegistry{
		stores: make(map[string]rxv1.StoreV1),
		log:    log.With("component", "Registry"),
	}
}

// GetOrCreate returns the store under id or creates it. The factory runs
// under the registry lock, so concurrent callers for the same id share one
// store.
func (r *StaticRegistry) GetOrCreate(id string, factory rxregistry.StoreFactory) (rxv1.StoreV1, error) {
	if id == "" {
		return nil, rxerrors.NewConfigError("store registration error: id cannot be empty", nil)
	}

	r.mu.RLock()
	s, ok := r.stores[id]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	if factory == nil {
		return nil, rxerrors.NewConfigError(fmt.Sprintf("store registration error for '%s': factory cannot be nil", id), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[id]; ok {
		return s, nil
	}
	s, err := factory(id)
	if err != nil {
		return nil, rxerrors.NewConfigError(fmt.Sprintf("failed to create store '%s'", id), err)
	}
	if s == nil {
		return nil, rxerrors.NewConfigError(fmt.Sprintf("factory for store '%s' returned nil", id), nil)
	}
	r.stores[id] = s
	r.log.Debugf("Registered store '%s'", id)
	return s, nil
}

// Get returns the store registered under id.
func (r *StaticRegistry) Get(id string) (rxv1.StoreV1, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	return s, ok
}

// Remove disposes the store under id and forgets it.
func (r *StaticRegistry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.stores[id]
	delete(r.stores, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Dispose()
	r.log.Debugf("Removed store '%s'", id)
	return true
}

// List returns the registered ids, sorted.
func (r *StaticRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DisposeAll disposes every store and empties the registry.
func (r *StaticRegistry) DisposeAll() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]rxv1.StoreV1)
	r.mu.Unlock()

	for id, s := range stores {
		s.Dispose()
		r.log.Debugf("Disposed store '%s'", id)
	}
}

// Package rxstore is the entry point for building reactive state stores.
//
// A store holds one tree of string keys to values, notifies subscribers on
// every committed change, and keeps an undo/redo ledger of tracked
// mutations. Remote data flows in through the sync pipeline methods on the
// store (FetchDataAuto, FetchDataWithoutAuto, SaveAPIData), which compose
// debounce, throttle, cache and retry stages.
package rxstore

import (
	"github.com/gxo-labs/rxstore/internal/binding"
	"github.com/gxo-labs/rxstore/internal/channel"
	"github.com/gxo-labs/rxstore/internal/config"
	"github.com/gxo-labs/rxstore/internal/logger"
	"github.com/gxo-labs/rxstore/internal/registry"
	"github.com/gxo-labs/rxstore/internal/store"
	rxv1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
	rxlog "github.com/gxo-labs/rxstore/pkg/rxstore/v1/log"
	rxregistry "github.com/gxo-labs/rxstore/pkg/rxstore/v1/registry"
	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
)

// New creates a store. See the With* options in pkg/rxstore/v1.
func New(opts ...rxv1.StoreOption) (rxv1.StoreV1, error) {
	s, err := store.New(opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromFile creates a store from a settings file with environment
// overrides applied. Options in opts are applied after the file's, so they
// win. The returned settings give access to the file's fetch profiles.
func NewFromFile(path string, opts ...rxv1.StoreOption) (rxv1.StoreV1, *config.Settings, error) {
	settings, err := config.LoadFromFileWithEnv(path)
	if err != nil {
		return nil, nil, err
	}

	s, err := New(append(settings.StoreOptions(), opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return s, settings, nil
}

// NewRegistry creates an empty registry of named stores. A nil log uses a
// stderr logger at info level.
func NewRegistry(log rxlog.Logger) rxregistry.Registry {
	if log == nil {
		log = logger.NewDefaultLogger("info")
	}
	return registry.NewStaticRegistry(log)
}

// NewHub creates a set of named notification channels for signals that are
// not store state. A nil log uses a stderr logger at info level.
func NewHub(log rxlog.Logger) *channel.Hub {
	if log == nil {
		log = logger.NewDefaultLogger("info")
	}
	return channel.NewHub(log)
}

// Bind exposes key of target as a typed field.
func Bind[T any](target rxstate.Dispatcher, key string) binding.Field[T] {
	return binding.Bind[T](target, key)
}

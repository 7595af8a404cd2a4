package v1

import (
	"context"
	"time"

	"github.com/juju/clock"

	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/events"
	rxlog "github.com/gxo-labs/rxstore/pkg/rxstore/v1/log"
	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/metrics"
	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/tracing"
)

// StoreV1 defines the public interface of a reactive state store.
type StoreV1 interface {
	state.Dispatcher

	// Name identifies the store in logs, metrics and events.
	Name() string

	// SetState shallow-merges partial into the live tree. By default the
	// mutation is recorded in history and notifies subscribers.
	SetState(partial state.Tree, action state.Action, opts ...SetOption)
	// SetStateFunc is SetState with the partial computed from the current tree.
	SetStateFunc(fn func(current state.Tree) state.Tree, action state.Action, opts ...SetOption)

	// DispatchUntracked merges {key: value}, notifying but not recording history.
	DispatchUntracked(key string, value interface{})
	// DispatchWithoutNotify merges {key: value} into history without notifying.
	DispatchWithoutNotify(key string, value interface{}, action ...state.Action)
	// DispatchWithTimerClean dispatches and schedules the key's removal after clean.
	DispatchWithTimerClean(key string, value interface{}, clean time.Duration)
	// Seed sets key silently and without history, as an Initialize action.
	Seed(key string, value interface{})

	// PrevState and NextState move the history cursor and replay the
	// corresponding tree. Misuse is a silent no-op.
	PrevState()
	NextState()

	// RunInAction runs fn with notifications suspended and collapses the
	// history it produced into a single entry and a single notification.
	RunInAction(fn func() error) error

	// Subscribe delivers every subsequently committed tree to fn.
	Subscribe(fn func(state.Tree)) Subscription

	// History returns a snapshot of the ledger, oldest entry first.
	History() []state.HistoryEntry
	// Expiry reports when a timer-cleaned key is due for removal.
	Expiry(key string) (time.Time, bool)

	// FetchDataWithoutAuto runs the sync pipeline without committing. A string
	// keyOrValue is a cache key; any other value is used as the cached value.
	FetchDataWithoutAuto(ctx context.Context, keyOrValue interface{}, handler Handler, settings *FetchSettings) Result
	// FetchDataAuto runs the sync pipeline and commits a truthy result under key.
	FetchDataAuto(ctx context.Context, key string, handler Handler, settings *FetchSettings) Result
	// SaveAPIData runs the pipeline without cache and hands the result to callback.
	SaveAPIData(ctx context.Context, handler Handler, settings *FetchSettings, callback func(interface{})) Result

	// Dispose releases the store. Pending timers and pipeline commits are dropped.
	Dispose()
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	ID() string
	Unsubscribe()
}

// Handler is a remote operation feeding the sync pipeline. It is treated as
// a black box that may fail.
type Handler func(ctx context.Context) (interface{}, error)

// FetchSettings configures the optional sync pipeline stages. A zero field
// disables its stage.
type FetchSettings struct {
	InitData         interface{}   `yaml:"-" json:"-"`
	DebounceTime     time.Duration `yaml:"debounce,omitempty" json:"debounce,omitempty"`
	ThrottleTime     time.Duration `yaml:"throttle,omitempty" json:"throttle,omitempty"`
	RetryCount       int           `yaml:"retry_count,omitempty" json:"retry_count,omitempty"`
	InitialDelayTime time.Duration `yaml:"initial_delay,omitempty" json:"initial_delay,omitempty"`
	CacheTime        time.Duration `yaml:"cache_time,omitempty" json:"cache_time,omitempty"`
	// Coalesce shares one in-flight handler invocation between concurrent
	// calls for the same key.
	Coalesce bool `yaml:"coalesce,omitempty" json:"coalesce,omitempty"`
	// Key groups SaveAPIData calls into shared debounce and throttle windows.
	Key string `yaml:"-" json:"-"`
}

// Result is the eventual outcome of a sync pipeline call.
type Result interface {
	// Done is closed once the call has settled.
	Done() <-chan struct{}
	// Await blocks until the call settles or ctx ends. Handler failures are
	// absorbed into a nil value; the only error a settled call reports is
	// ErrDropped (or ErrStoreDisposed).
	Await(ctx context.Context) (interface{}, error)
}

// SetOptions controls a single SetState call.
type SetOptions struct {
	SkipHistory bool
	SkipNotify  bool
}

// SetOption mutates SetOptions.
type SetOption func(*SetOptions)

// WithoutHistory excludes the mutation from the history ledger.
func WithoutHistory() SetOption {
	return func(o *SetOptions) { o.SkipHistory = true }
}

// WithoutNotify commits the mutation without notifying subscribers.
func WithoutNotify() SetOption {
	return func(o *SetOptions) { o.SkipNotify = true }
}

// ResolveSetOptions folds opts over the defaults (track history, notify).
func ResolveSetOptions(opts ...SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Configurable is implemented by stores accepting StoreOptions.
type Configurable interface {
	SetName(name string) error
	SetHistoryCapacity(capacity int) error
	SetClock(clk clock.Clock) error
	SetLogger(log rxlog.Logger) error
	SetEventBus(bus events.Bus) error
	SetMetricsRegistryProvider(provider metrics.RegistryProvider) error
	SetTracerProvider(provider tracing.TracerProvider) error
	SetInitialState(initial state.Tree) error
}

// StoreOption is a function type used to configure a store at creation.
type StoreOption func(Configurable) error

// WithName names the store for logs, metrics and events.
func WithName(name string) StoreOption {
	return func(c Configurable) error {
		if name == "" {
			return rxerrors.NewConfigError("store name cannot be empty", nil)
		}
		return c.SetName(name)
	}
}

// WithHistoryCapacity bounds the history ledger. Zero means unbounded.
func WithHistoryCapacity(capacity int) StoreOption {
	return func(c Configurable) error {
		if capacity < 0 {
			return rxerrors.NewConfigError("history capacity cannot be negative", nil)
		}
		return c.SetHistoryCapacity(capacity)
	}
}

// WithClock replaces the wall clock used for timers, debounce, throttle and
// retry backoff.
func WithClock(clk clock.Clock) StoreOption {
	return func(c Configurable) error {
		if clk == nil {
			return rxerrors.NewConfigError("clock cannot be nil", nil)
		}
		return c.SetClock(clk)
	}
}

// WithLogger provides the store logger.
func WithLogger(log rxlog.Logger) StoreOption {
	return func(c Configurable) error {
		if log == nil {
			return rxerrors.NewConfigError("logger cannot be nil", nil)
		}
		return c.SetLogger(log)
	}
}

// WithEventBus is a store option to provide a lifecycle event bus.
func WithEventBus(bus events.Bus) StoreOption {
	return func(c Configurable) error {
		if bus == nil {
			return rxerrors.NewConfigError("event bus cannot be nil", nil)
		}
		return c.SetEventBus(bus)
	}
}

// WithMetricsRegistryProvider is a store option to provide a custom metrics provider.
func WithMetricsRegistryProvider(provider metrics.RegistryProvider) StoreOption {
	return func(c Configurable) error {
		if provider == nil {
			return rxerrors.NewConfigError("metrics registry provider cannot be nil", nil)
		}
		return c.SetMetricsRegistryProvider(provider)
	}
}

// WithTracerProvider is a store option to provide a custom tracing provider.
func WithTracerProvider(provider tracing.TracerProvider) StoreOption {
	return func(c Configurable) error {
		if provider == nil {
			return rxerrors.NewConfigError("tracer provider cannot be nil", nil)
		}
		return c.SetTracerProvider(provider)
	}
}

// WithInitialState seeds the live tree before the store is handed out. The
// seed is neither recorded in history nor notified.
func WithInitialState(initial state.Tree) StoreOption {
	return func(c Configurable) error {
		return c.SetInitialState(initial)
	}
}

type seedKey struct{}

// ContextWithSeed returns a context carrying the pipeline seed value.
func ContextWithSeed(ctx context.Context, seed interface{}) context.Context {
	return context.WithValue(ctx, seedKey{}, seed)
}

// SeedFromContext returns the FetchSettings.InitData value a pipeline call
// was started with, or nil. Handlers may use it as their request payload.
func SeedFromContext(ctx context.Context) interface{} {
	return ctx.Value(seedKey{})
}

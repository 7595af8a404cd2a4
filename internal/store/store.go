// Package store implements the reactive state store: a single live tree
// that is replaced (never edited) on every commit, a bounded undo/redo
// ledger, change notifications, timed key cleanup, and the sync pipeline
// entry points.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/gxo-labs/rxstore/internal/channel"
	intEvents "github.com/gxo-labs/rxstore/internal/events"
	"github.com/gxo-labs/rxstore/internal/history"
	"github.com/gxo-labs/rxstore/internal/logger"
	intMetrics "github.com/gxo-labs/rxstore/internal/metrics"
	"github.com/gxo-labs/rxstore/internal/pipeline"
	internalstate "github.com/gxo-labs/rxstore/internal/state"
	intTracing "github.com/gxo-labs/rxstore/internal/tracing"
	"github.com/gxo-labs/rxstore/internal/util"
	rxv1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/events"
	rxlog "github.com/gxo-labs/rxstore/pkg/rxstore/v1/log"
	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/metrics"
	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
	rxtracing "github.com/gxo-labs/rxstore/pkg/rxstore/v1/tracing"
)

const defaultName = "default"

// Store is the default implementation of rxv1.StoreV1.
//
// Mutations are serialized by mu. Committed trees are queued under mu and
// delivered in commit order by one goroutine at a time, after mu is
// released, so subscribers may read from or dispatch into the store and an
// observer is never entered concurrently.
type Store struct {
	mu       sync.Mutex
	tree     rxstate.Tree
	ledger   *history.Ledger
	subject  *channel.Subject[rxstate.Tree]
	cleanups map[string]*cleanup
	cleanSeq uint64
	// suspend counts open RunInAction scopes; suppressed records that a
	// notification was withheld while one was open.
	suspend    int
	suppressed bool
	disposed   bool
	// pending holds committed trees awaiting delivery; delivering is set
	// while a goroutine drains it.
	pending    []rxstate.Tree
	delivering bool

	ctx    context.Context
	cancel context.CancelFunc

	// Configuration
	name            string
	historyCapacity int
	initial         rxstate.Tree
	clock           clock.Clock
	log             rxlog.Logger
	eventBus        events.Bus
	metricsProvider metrics.RegistryProvider
	tracerProvider  rxtracing.TracerProvider

	metrics  *intMetrics.StoreMetrics
	pipeline *pipeline.Pipeline
}

type cleanup struct {
	timer  clock.Timer
	expiry time.Time
	seq    uint64
}

var (
	_ rxv1.StoreV1      = (*Store)(nil)
	_ rxv1.Configurable = (*Store)(nil)
	_ pipeline.Target   = (*Store)(nil)
)

// New creates a store configured by opts. Unset dependencies fall back to
// a stderr logger, the wall clock, a NoOp event bus, a private Prometheus
// registry and a NoOp tracer.
func New(opts ...rxv1.StoreOption) (*Store, error) {
	s := &Store{
		name:     defaultName,
		cleanups: make(map[string]*cleanup),
		subject:  channel.NewSubject[rxstate.Tree](),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, rxerrors.NewConfigError(fmt.Sprintf("failed to apply store option: %v", err), err)
		}
	}

	if s.log == nil {
		s.log = logger.NewDefaultLogger("info")
	}
	s.log = s.log.With("component", "Store", "store", s.name)
	if s.clock == nil {
		s.clock = clock.WallClock
	}
	if s.eventBus == nil {
		s.log.Debugf("No event bus provided, using default NoOp bus.")
		s.eventBus = intEvents.NewNoOpEventBus()
	}
	if s.metricsProvider == nil {
		s.log.Debugf("No metrics provider provided, using default Prometheus provider.")
		s.metricsProvider = intMetrics.NewPrometheusRegistryProvider()
	}
	if s.tracerProvider == nil {
		s.log.Debugf("No tracer provider provided, using default NoOp provider.")
		s.tracerProvider = intTracing.NewNoOpProvider()
	}

	collectors, err := intMetrics.NewCollectors(s.metricsProvider.Registry())
	if err != nil {
		return nil, rxerrors.NewConfigError("failed to register store metrics", err)
	}
	s.metrics = collectors.ForStore(s.name)

	s.ledger = history.NewLedger(s.historyCapacity)
	s.tree = internalstate.Replace(s.initial)
	s.initial = nil
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.pipeline = pipeline.New(s.ctx, pipeline.Config{
		Store:   s.name,
		Target:  s,
		Log:     s.log,
		Clock:   s.clock,
		Tracer:  s.tracerProvider.GetTracer(intTracing.TracerName),
		Bus:     s.eventBus,
		Metrics: s.metrics,
	})

	s.log.Debugf("Store created (history capacity %d)", s.historyCapacity)
	return s, nil
}

// --- Configurable ---

func (s *Store) SetName(name string) error {
	if name == "" {
		return rxerrors.NewConfigError("store name cannot be empty", nil)
	}
	s.name = name
	return nil
}

func (s *Store) SetHistoryCapacity(capacity int) error {
	if capacity < 0 {
		return rxerrors.NewConfigError("history capacity cannot be negative", nil)
	}
	s.historyCapacity = capacity
	return nil
}

func (s *Store) SetClock(clk clock.Clock) error {
	if clk == nil {
		return rxerrors.NewConfigError("clock cannot be nil", nil)
	}
	s.clock = clk
	return nil
}

func (s *Store) SetLogger(log rxlog.Logger) error {
	if log == nil {
		return rxerrors.NewConfigError("logger cannot be nil", nil)
	}
	s.log = log
	return nil
}

func (s *Store) SetEventBus(bus events.Bus) error {
	if bus == nil {
		return rxerrors.NewConfigError("event bus cannot be nil", nil)
	}
	s.eventBus = bus
	return nil
}

func (s *Store) SetMetricsRegistryProvider(provider metrics.RegistryProvider) error {
	if provider == nil {
		return rxerrors.NewConfigError("metrics registry provider cannot be nil", nil)
	}
	s.metricsProvider = provider
	return nil
}

func (s *Store) SetTracerProvider(provider rxtracing.TracerProvider) error {
	if provider == nil {
		return rxerrors.NewConfigError("tracer provider cannot be nil", nil)
	}
	s.tracerProvider = provider
	return nil
}

// SetInitialState seeds the tree the store starts with. Values are shared,
// not copied.
func (s *Store) SetInitialState(initial rxstate.Tree) error {
	s.initial = internalstate.Merge(s.initial, initial)
	return nil
}

// --- Reads ---

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// GetState returns the live tree, or a deep copy of it when cloneDeep is
// true. The live tree must be treated as read-only.
func (s *Store) GetState(cloneDeep bool) rxstate.Tree {
	s.mu.Lock()
	tree := s.tree
	s.mu.Unlock()
	if cloneDeep {
		return util.CloneTree(tree)
	}
	return tree
}

// GetStateByKey returns the value under key, or nil.
func (s *Store) GetStateByKey(key string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := internalstate.Lookup(s.tree, key)
	return v
}

// History returns a snapshot of the ledger, oldest first.
func (s *Store) History() []rxstate.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Entries()
}

// HistoryLen returns the number of ledger entries.
func (s *Store) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Len()
}

// Expiry reports when the timed cleanup of key is due.
func (s *Store) Expiry(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cleanups[key]
	if !ok {
		return time.Time{}, false
	}
	return c.expiry, true
}

// Subscribe delivers every later notifying commit to fn, synchronously and
// in subscription order. There is no replay of the current tree.
func (s *Store) Subscribe(fn func(rxstate.Tree)) rxv1.Subscription {
	return s.subject.Subscribe(fn)
}

// Disposed reports whether Dispose has been called.
func (s *Store) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose stops pending cleanups, cancels pending pipeline calls and ends
// every subscription. Later mutations are silently ignored.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	for key, c := range s.cleanups {
		c.timer.Stop()
		delete(s.cleanups, key)
	}
	s.pending = nil
	s.mu.Unlock()

	s.cancel()
	s.subject.Dispose()
	s.emit(events.StoreDisposed, "", nil)
	s.metrics.Forget()
	s.log.Debugf("Store disposed")
}

// --- Sync pipeline ---

// FetchDataWithoutAuto runs the sync pipeline without committing.
func (s *Store) FetchDataWithoutAuto(ctx context.Context, keyOrValue interface{}, handler rxv1.Handler, settings *rxv1.FetchSettings) rxv1.Result {
	return s.pipeline.FetchWithoutAuto(ctx, keyOrValue, handler, settings)
}

// FetchDataAuto runs the sync pipeline and commits a truthy result under key.
func (s *Store) FetchDataAuto(ctx context.Context, key string, handler rxv1.Handler, settings *rxv1.FetchSettings) rxv1.Result {
	return s.pipeline.FetchAuto(ctx, key, handler, settings)
}

// SaveAPIData runs the sync pipeline without cache and hands the result to callback.
func (s *Store) SaveAPIData(ctx context.Context, handler rxv1.Handler, settings *rxv1.FetchSettings, callback func(interface{})) rxv1.Result {
	return s.pipeline.Save(ctx, handler, settings, callback)
}

func (s *Store) emit(t events.EventType, key string, payload map[string]interface{}) {
	s.eventBus.Emit(events.Event{
		Type:      t,
		Timestamp: s.clock.Now(),
		Store:     s.name,
		Key:       key,
		Payload:   payload,
	})
}

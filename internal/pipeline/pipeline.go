// Package pipeline turns a remote handler into a debounced, throttled,
// cached, retried and error-absorbing asynchronous call whose result can be
// committed into a store.
//
// Stages always run in the same order: seed, debounce, throttle, cache
// short-circuit, absorb, retry, unwrap, and finally the handler itself. A
// zero setting leaves its stage out.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	internalevents "github.com/gxo-labs/rxstore/internal/events"
	"github.com/gxo-labs/rxstore/internal/metrics"
	"github.com/gxo-labs/rxstore/internal/retry"
	"github.com/gxo-labs/rxstore/internal/tracing"
	"github.com/gxo-labs/rxstore/internal/util"
	rxv1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/events"
	rxlog "github.com/gxo-labs/rxstore/pkg/rxstore/v1/log"
	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
)

var errNoHandler = errors.New("no handler configured")

// Target is the store a pipeline reads its cache from and commits into.
type Target interface {
	rxstate.StateReader
	DispatchUntracked(key string, value interface{})
	DispatchUntrackedWithTimerClean(key string, value interface{}, clean time.Duration)
}

// Config wires a Pipeline to its store.
type Config struct {
	Store   string
	Target  Target
	Log     rxlog.Logger
	Clock   clock.Clock
	Tracer  oteltrace.Tracer
	Bus     events.Bus
	Metrics *metrics.StoreMetrics
}

// Pipeline runs sync calls on behalf of one store. Calls end with ctx: once
// it is cancelled, pending timers and retries stop and nothing commits.
type Pipeline struct {
	ctx     context.Context
	store   string
	target  Target
	log     rxlog.Logger
	clock   clock.Clock
	tracer  oteltrace.Tracer
	bus     events.Bus
	metrics *metrics.StoreMetrics
	retrier *retry.Helper
	group   singleflight.Group

	mu        sync.Mutex
	seq       uint64
	debounced map[string]uint64
	throttled map[string]*throttleWindow
}

// New creates a pipeline bound to the lifetime of ctx.
func New(ctx context.Context, cfg Config) *Pipeline {
	if cfg.Log == nil {
		panic("pipeline.New requires a non-nil logger")
	}
	if cfg.Target == nil {
		panic("pipeline.New requires a non-nil target")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer(tracing.TracerName)
	}
	if cfg.Bus == nil {
		cfg.Bus = internalevents.NewNoOpEventBus()
	}
	log := cfg.Log.With("component", "SyncPipeline", "store", cfg.Store)
	return &Pipeline{
		ctx:       ctx,
		store:     cfg.Store,
		target:    cfg.Target,
		log:       log,
		clock:     cfg.Clock,
		tracer:    cfg.Tracer,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
		retrier:   retry.NewHelper(log, cfg.Clock),
		debounced: make(map[string]uint64),
		throttled: make(map[string]*throttleWindow),
	}
}

// call is the per-invocation state threaded through the stages.
type call struct {
	spanName string
	key      string
	window   string
	settings rxv1.FetchSettings
	handler  rxv1.Handler
	cached   func() interface{}
	settle   func(value interface{}, outcome string)
	outcome  string
}

// FetchWithoutAuto runs the pipeline and hands back the result without
// committing it. A string keyOrValue names the cache key to look up; any
// other non-nil value is treated as the cached value itself.
func (p *Pipeline) FetchWithoutAuto(ctx context.Context, keyOrValue interface{}, handler rxv1.Handler, settings *rxv1.FetchSettings) *Future {
	c := &call{spanName: tracing.SpanFetch, handler: handler, settings: resolve(settings)}
	if key, ok := keyOrValue.(string); ok {
		c.key = key
		c.cached = func() interface{} { return p.target.GetStateByKey(key) }
	} else {
		c.key = c.settings.Key
		c.cached = func() interface{} { return keyOrValue }
	}
	c.window = "fetch/" + c.key
	return p.run(ctx, c)
}

// FetchAuto runs the pipeline and commits a truthy result under key without
// recording history. With CacheTime set, a truthy value already under key
// short-circuits the handler, and a fresh value is removed after CacheTime.
func (p *Pipeline) FetchAuto(ctx context.Context, key string, handler rxv1.Handler, settings *rxv1.FetchSettings) *Future {
	c := &call{spanName: tracing.SpanFetch, key: key, window: "fetch/" + key, handler: handler, settings: resolve(settings)}
	ttl := c.settings.CacheTime
	if ttl > 0 {
		c.cached = func() interface{} { return p.target.GetStateByKey(key) }
	}
	c.settle = func(value interface{}, outcome string) {
		if outcome == metrics.OutcomeCached {
			return
		}
		if util.IsFalsy(value) {
			p.log.Debugf("Skipping commit of empty result for '%s'", key)
			return
		}
		if ttl > 0 {
			p.target.DispatchUntrackedWithTimerClean(key, value, ttl)
			return
		}
		p.target.DispatchUntracked(key, value)
	}
	return p.run(ctx, c)
}

// Save runs the pipeline without a cache stage and hands the result to
// callback. The store is never touched unless callback does so itself. A
// nil callback logs the completion.
func (p *Pipeline) Save(ctx context.Context, handler rxv1.Handler, settings *rxv1.FetchSettings, callback func(interface{})) *Future {
	c := &call{spanName: tracing.SpanSave, handler: handler, settings: resolve(settings)}
	c.key = c.settings.Key
	c.window = "save/" + c.key
	if callback == nil {
		callback = func(interface{}) { p.log.Infof("save ok") }
	}
	c.settle = func(value interface{}, _ string) { callback(value) }
	return p.run(ctx, c)
}

func resolve(settings *rxv1.FetchSettings) rxv1.FetchSettings {
	if settings == nil {
		return rxv1.FetchSettings{}
	}
	s := *settings
	if s.RetryCount < 0 {
		s.RetryCount = 0
	}
	return s
}

func (p *Pipeline) build(c *call) Op {
	var stages []Stage
	if c.settings.DebounceTime > 0 {
		stages = append(stages, p.debounce(c.window, c.settings.DebounceTime))
	}
	if c.settings.ThrottleTime > 0 {
		stages = append(stages, p.throttle(c.window, c.settings.ThrottleTime))
	}
	if c.cached != nil {
		stages = append(stages, p.cache(c))
	}
	stages = append(stages, p.absorb(c), p.retryStage(c), unwrapStage)
	return Chain(stages...)(p.invoke(c))
}

func (p *Pipeline) invoke(c *call) Op {
	handler := c.handler
	if handler == nil {
		return func(context.Context) (interface{}, error) { return nil, errNoHandler }
	}
	if c.settings.Coalesce && c.key != "" {
		return func(ctx context.Context) (interface{}, error) {
			v, err, shared := p.group.Do(c.window, func() (interface{}, error) {
				return handler(ctx)
			})
			if shared {
				p.log.Debugf("Shared in-flight handler result for '%s'", c.key)
			}
			return v, err
		}
	}
	return func(ctx context.Context) (interface{}, error) {
		return handler(ctx)
	}
}

func (p *Pipeline) run(ctx context.Context, c *call) *Future {
	if p.ctx.Err() != nil {
		return Resolved(nil, rxerrors.ErrStoreDisposed)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	op := p.build(c)
	callCtx, cancel := context.WithCancel(rxv1.ContextWithSeed(ctx, c.settings.InitData))
	stop := context.AfterFunc(p.ctx, cancel)

	f := newFuture()
	go func() {
		defer cancel()
		defer stop()

		v, err := op(callCtx)
		switch {
		case p.ctx.Err() != nil:
			v, err = nil, rxerrors.ErrStoreDisposed
		case err != nil:
			if rxerrors.IsDropped(err) {
				p.metrics.Fetch(metrics.OutcomeDropped)
			}
			v = nil
		default:
			p.metrics.Fetch(c.outcome)
			if c.settle != nil {
				c.settle(v, c.outcome)
			}
		}
		f.resolve(v, err)
	}()
	return f
}

func (p *Pipeline) emit(t events.EventType, key string, payload map[string]interface{}) {
	p.bus.Emit(events.Event{
		Type:      t,
		Timestamp: p.clock.Now(),
		Store:     p.store,
		Key:       key,
		Payload:   payload,
	})
}

package pipeline

import (
	"context"
	"errors"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/gxo-labs/rxstore/internal/metrics"
	"github.com/gxo-labs/rxstore/internal/retry"
	"github.com/gxo-labs/rxstore/internal/tracing"
	"github.com/gxo-labs/rxstore/internal/util"
	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/events"
)

// Op is one asynchronous step producing a value.
type Op func(ctx context.Context) (interface{}, error)

// Stage wraps an Op with extra behavior.
type Stage func(next Op) Op

// Chain folds stages so that the first stage runs first.
func Chain(stages ...Stage) Stage {
	return func(next Op) Op {
		for i := len(stages) - 1; i >= 0; i-- {
			next = stages[i](next)
		}
		return next
	}
}

// Unwrap extracts the payload of a handler result: a truthy "data" field of a
// map, or a truthy Data() accessor. Anything else is returned unchanged.
func Unwrap(result interface{}) interface{} {
	switch r := result.(type) {
	case map[string]interface{}:
		if data, ok := r["data"]; ok && util.IsTruthy(data) {
			return data
		}
	case interface{ Data() interface{} }:
		if data := r.Data(); util.IsTruthy(data) {
			return data
		}
	}
	return result
}

func unwrapStage(next Op) Op {
	return func(ctx context.Context) (interface{}, error) {
		v, err := next(ctx)
		if err != nil {
			return nil, err
		}
		return Unwrap(v), nil
	}
}

// debounce lets only the last call of a burst through: each call waits d
// and proceeds only if no later call arrived on the same window meanwhile.
func (p *Pipeline) debounce(window string, d time.Duration) Stage {
	return func(next Op) Op {
		return func(ctx context.Context) (interface{}, error) {
			p.mu.Lock()
			p.seq++
			ticket := p.seq
			p.debounced[window] = ticket
			p.mu.Unlock()

			select {
			case <-p.clock.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			p.mu.Lock()
			latest := p.debounced[window] == ticket
			if latest {
				delete(p.debounced, window)
			}
			p.mu.Unlock()

			if !latest {
				p.log.Debugf("Debounced call on window '%s' superseded", window)
				return nil, rxerrors.ErrDropped
			}
			return next(ctx)
		}
	}
}

type throttleWindow struct {
	every   time.Duration
	limiter *rate.Limiter
}

// throttle lets the first call of a window through and drops the rest until
// d has passed on the pipeline clock.
func (p *Pipeline) throttle(window string, d time.Duration) Stage {
	return func(next Op) Op {
		return func(ctx context.Context) (interface{}, error) {
			p.mu.Lock()
			w, ok := p.throttled[window]
			if !ok || w.every != d {
				w = &throttleWindow{every: d, limiter: rate.NewLimiter(rate.Every(d), 1)}
				p.throttled[window] = w
			}
			allowed := w.limiter.AllowN(p.clock.Now(), 1)
			p.mu.Unlock()

			if !allowed {
				p.log.Debugf("Throttled call on window '%s' dropped", window)
				return nil, rxerrors.ErrDropped
			}
			return next(ctx)
		}
	}
}

// cache short-circuits the handler when the call's cache lookup is truthy.
func (p *Pipeline) cache(c *call) Stage {
	return func(next Op) Op {
		return func(ctx context.Context) (interface{}, error) {
			if v := c.cached(); util.IsTruthy(v) {
				c.outcome = metrics.OutcomeCached
				p.log.Debugf("Cache hit for '%s', skipping handler", c.key)
				return v, nil
			}
			return next(ctx)
		}
	}
}

// absorb turns an exhausted failure into a nil result. The failure is
// logged, recorded on the call span, and emitted as a FetchFailed event.
func (p *Pipeline) absorb(c *call) Stage {
	return func(next Op) Op {
		return func(ctx context.Context) (interface{}, error) {
			ctx, span := tracing.StartSpan(ctx, p.tracer, c.spanName, p.store, c.key)
			defer span.End()

			v, err := next(ctx)
			if err == nil {
				c.outcome = metrics.OutcomeSuccess
				span.SetAttributes(tracing.AttrOutcome.String(metrics.OutcomeSuccess))
				p.emit(events.FetchSucceeded, c.key, nil)
				return v, nil
			}
			if ctx.Err() != nil {
				span.SetAttributes(tracing.AttrOutcome.String("cancelled"))
				return nil, ctx.Err()
			}

			c.outcome = metrics.OutcomeFailed
			tracing.RecordErrorWithContext(span, err)
			span.SetAttributes(tracing.AttrOutcome.String(metrics.OutcomeFailed))
			p.log.Errorf("Sync pipeline call failed, resolving to nil: %v", err)

			payload := map[string]interface{}{"error": err.Error()}
			var fe *rxerrors.FetchError
			if errors.As(err, &fe) {
				payload["attempts"] = fe.Attempts
			}
			p.emit(events.FetchFailed, c.key, payload)
			return nil, nil
		}
	}
}

// retryStage re-runs next with linear backoff on the pipeline clock.
func (p *Pipeline) retryStage(c *call) Stage {
	return func(next Op) Op {
		return func(ctx context.Context) (interface{}, error) {
			var out interface{}
			cfg := retry.Config{
				Retries:      c.settings.RetryCount,
				InitialDelay: c.settings.InitialDelayTime,
				Key:          c.key,
			}
			attempts, err := p.retrier.Do(ctx, cfg, func(ctx context.Context) error {
				v, err := next(ctx)
				if err != nil {
					return err
				}
				out = v
				return nil
			})
			oteltrace.SpanFromContext(ctx).SetAttributes(tracing.AttrAttempts.Int(attempts))
			return out, err
		}
	}
}

package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"

	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
	rxlog "github.com/gxo-labs/rxstore/pkg/rxstore/v1/log"
)

// Operation is one attempt of a retried call.
type Operation func(ctx context.Context) error

// Config controls a retried call. Retries is the number of extra attempts
// after the first; the wait before retry n is InitialDelay*n.
type Config struct {
	Retries      int
	InitialDelay time.Duration
	Key          string
}

// Helper runs operations with linear backoff, sleeping on an injected clock.
type Helper struct {
	log   rxlog.Logger
	clock clock.Clock
}

// NewHelper creates a Helper. A nil clock means the wall clock.
func NewHelper(log rxlog.Logger, clk clock.Clock) *Helper {
	if log == nil {
		panic("retry.NewHelper requires a non-nil logger")
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Helper{log: log, clock: clk}
}

// Delay returns the wait before retry number n (1-based).
func Delay(initial time.Duration, n int) time.Duration {
	if initial <= 0 || n <= 0 {
		return 0
	}
	return initial * time.Duration(n)
}

// Do calls op until it succeeds, the retries are spent, or ctx ends. It
// returns the number of attempts made. When every attempt fails the error is
// a FetchError wrapping the last failure.
func (h *Helper) Do(ctx context.Context, cfg Config, op Operation) (int, error) {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	total := cfg.Retries + 1

	logPrefix := ""
	if cfg.Key != "" {
		logPrefix = fmt.Sprintf("key=%s ", cfg.Key)
	}

	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		select {
		case <-ctx.Done():
			h.log.Debugf("%sRetry attempt %d/%d cancelled before start: %v", logPrefix, attempt, total, ctx.Err())
			if lastErr == nil {
				return attempt - 1, ctx.Err()
			}
			return attempt - 1, rxerrors.NewFetchError(cfg.Key, attempt-1, fmt.Errorf("%w (context: %v)", lastErr, ctx.Err()))
		default:
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				h.log.Infof("%sOperation succeeded on attempt %d/%d", logPrefix, attempt, total)
			}
			return attempt, nil
		}
		lastErr = err

		if attempt == total {
			break
		}

		wait := Delay(cfg.InitialDelay, attempt)
		h.log.Warnf("%sOperation failed on attempt %d/%d (retrying in %v): %v",
			logPrefix, attempt, total, wait, err)

		if wait <= 0 {
			continue
		}
		select {
		case <-h.clock.After(wait):
		case <-ctx.Done():
			h.log.Debugf("%sRetry delay after attempt %d/%d cancelled: %v", logPrefix, attempt, total, ctx.Err())
			return attempt, rxerrors.NewFetchError(cfg.Key, attempt, fmt.Errorf("%w (context: %v)", lastErr, ctx.Err()))
		}
	}

	return total, rxerrors.NewFetchError(cfg.Key, total, lastErr)
}

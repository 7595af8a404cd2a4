package pipeline

import (
	"context"
	"sync"

	rxv1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
)

// Future is the eventual outcome of one pipeline call.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value interface{}
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns an already settled Future.
func Resolved(value interface{}, err error) *Future {
	f := newFuture()
	f.resolve(value, err)
	return f
}

func (f *Future) resolve(value interface{}, err error) {
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
	})
}

// Done is closed once the call has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the call settles or ctx ends.
func (f *Future) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ rxv1.Result = (*Future)(nil)

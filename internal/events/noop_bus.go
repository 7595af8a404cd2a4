package events

import "github.com/gxo-labs/rxstore/pkg/rxstore/v1/events"

// NoOpEventBus is the default events.Bus of a store configured without one.
type NoOpEventBus struct{}

// NewNoOpEventBus creates a new NoOpEventBus.
func NewNoOpEventBus() events.Bus {
	return &NoOpEventBus{}
}

// Emit discards event.
func (n *NoOpEventBus) Emit(event events.Event) {}

var _ events.Bus = (*NoOpEventBus)(nil)

package channel

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subject is a multicast signal source. Every value passed to Emit is
// delivered synchronously, in subscription order, to the observers active at
// that moment. There is no buffering and no replay.
type Subject[T any] struct {
	mu        sync.Mutex
	observers []*Subscription[T]
	disposed  bool
}

// Subscription is the handle returned by Subject.Subscribe.
type Subscription[T any] struct {
	id      string
	fn      func(T)
	active  atomic.Bool
	subject *Subject[T]
}

// NewSubject creates an empty subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

// Subscribe registers fn for every subsequent emission. Subscribing to a
// disposed subject returns an inactive subscription.
func (s *Subject[T]) Subscribe(fn func(T)) *Subscription[T] {
	sub := &Subscription[T]{id: uuid.NewString(), fn: fn, subject: s}
	if fn == nil {
		return sub
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return sub
	}
	sub.active.Store(true)
	s.observers = append(s.observers, sub)
	return sub
}

// Emit delivers value to every active observer. Observers may subscribe or
// unsubscribe from inside their callback; changes apply from the next
// emission, except that an unsubscribed observer is skipped immediately.
func (s *Subject[T]) Emit(value T) {
	s.mu.Lock()
	if s.disposed || len(s.observers) == 0 {
		s.mu.Unlock()
		return
	}
	observers := make([]*Subscription[T], len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, sub := range observers {
		if sub.active.Load() {
			sub.fn(value)
		}
	}
}

// Len returns the number of active observers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Dispose ends every subscription. Later emissions are dropped.
func (s *Subject[T]) Dispose() {
	s.mu.Lock()
	observers := s.observers
	s.observers = nil
	s.disposed = true
	s.mu.Unlock()

	for _, sub := range observers {
		sub.active.Store(false)
	}
}

// Disposed reports whether Dispose has been called.
func (s *Subject[T]) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *Subject[T]) remove(target *Subscription[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.observers {
		if sub == target {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// ID returns the subscription's unique identifier.
func (sub *Subscription[T]) ID() string {
	return sub.id
}

// Active reports whether the subscription still receives emissions.
func (sub *Subscription[T]) Active() bool {
	return sub.active.Load()
}

// Unsubscribe stops delivery. It is idempotent.
func (sub *Subscription[T]) Unsubscribe() {
	if !sub.active.CompareAndSwap(true, false) {
		return
	}
	sub.subject.remove(sub)
}

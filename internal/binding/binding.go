// Package binding exposes a single store key as a typed field.
package binding

import (
	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
)

// Field reads and writes one key of a store as a value of type T.
type Field[T any] struct {
	target rxstate.Dispatcher
	key    string
}

// Bind returns a Field for key on target.
func Bind[T any](target rxstate.Dispatcher, key string) Field[T] {
	if target == nil {
		panic("binding.Bind requires a non-nil target")
	}
	return Field[T]{target: target, key: key}
}

// Key returns the bound key.
func (f Field[T]) Key() string {
	return f.key
}

// Get returns the current value. ok is false when the key is absent or holds
// a value of another type.
func (f Field[T]) Get() (value T, ok bool) {
	value, ok = f.target.GetStateByKey(f.key).(T)
	return value, ok
}

// Set dispatches value under the bound key. Falsy values are ignored the
// same way Dispatch ignores them.
func (f Field[T]) Set(value T) {
	f.target.Dispatch(f.key, value)
}

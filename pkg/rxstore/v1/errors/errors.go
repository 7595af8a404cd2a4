package errors

import (
	"errors"
	"fmt"
)

// --- rxstore error types ---

// ErrStoreDisposed is returned by operations that require a live store after
// Dispose has been called.
var ErrStoreDisposed = errors.New("store has been disposed")

// ErrDropped resolves a pipeline call that lost its debounce or throttle
// window to another call sharing the same key.
var ErrDropped = errors.New("pipeline call dropped by debounce or throttle window")

// ConfigError represents an error encountered while loading settings or
// applying store options.
type ConfigError struct {
	Message string
	Cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}
func (e *ConfigError) Unwrap() error { return e.Cause }

// ValidationError indicates that a settings document failed schema or
// logical validation.
type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// FetchError describes a remote handler that kept failing after every retry
// was spent. The sync pipeline logs it and resolves to nil instead of
// returning it, so callers normally only see it in logs and spans.
type FetchError struct {
	Key      string // Destination or cache key, empty for save calls
	Attempts int
	Cause    error
}

func NewFetchError(key string, attempts int, cause error) *FetchError {
	return &FetchError{Key: key, Attempts: attempts, Cause: cause}
}
func (e *FetchError) Error() string {
	keyCtx := ""
	if e.Key != "" {
		keyCtx = fmt.Sprintf(" for key '%s'", e.Key)
	}
	return fmt.Sprintf("fetch failed%s after %d attempt(s): %v", keyCtx, e.Attempts, e.Cause)
}
func (e *FetchError) Unwrap() error { return e.Cause }

// IsDropped checks if an error reports a debounced or throttled pipeline call.
func IsDropped(err error) bool {
	return errors.Is(err, ErrDropped)
}

// IsDisposed checks if an error reports use of a disposed store.
func IsDisposed(err error) bool {
	return errors.Is(err, ErrStoreDisposed)
}

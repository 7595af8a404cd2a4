package events

import "time"

// EventType represents the type of a store lifecycle event.
type EventType string

// Standard store event types
const (
	StateCommitted  EventType = "StateCommitted"  // A mutation replaced the live tree
	HistoryReplayed EventType = "HistoryReplayed" // PrevState/NextState replayed a ledger entry
	CacheExpired    EventType = "CacheExpired"    // A timer-cleaned key was removed
	FetchSucceeded  EventType = "FetchSucceeded"  // A sync pipeline handler resolved a value
	FetchFailed     EventType = "FetchFailed"     // A sync pipeline handler exhausted its retries
	StoreDisposed   EventType = "StoreDisposed"
)

// Event represents a significant occurrence within a store.
type Event struct {
	// Type categorizes the event.
	Type EventType `json:"type"`
	// Timestamp marks when the event occurred, read from the store clock.
	Timestamp time.Time `json:"timestamp"`
	// Store is the name of the emitting store.
	Store string `json:"store,omitempty"`
	// Key is the state key involved, if any.
	Key string `json:"key,omitempty"`
	// Payload contains event-specific data. State values are never copied in.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus defines the interface for publishing store lifecycle events.
// Emit must not block the committing goroutine.
type Bus interface {
	Emit(event Event)
}

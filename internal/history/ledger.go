// Package history implements the bounded undo/redo ledger of a store.
//
// The ledger is an ordered log of tracked mutations. A cursor walks it
// backwards (Prev) and forwards (Next); any new entry puts the cursor back at
// the head. The ledger is not safe for concurrent use: the store serializes
// access under its own lock.
package history

import (
	internalstate "github.com/gxo-labs/rxstore/internal/state"
	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
)

// Cursor sentinels. Any other cursor value is an index into the ledger.
const (
	CursorHead        = -1
	CursorBeforeStart = -2
)

// Ledger is the size-bounded history of one store.
type Ledger struct {
	entries []rxstate.HistoryEntry
	// serials[i] is the value of appended right after entries[i] was added.
	serials  []uint64
	capacity int
	cursor   int
	appended uint64
}

// NewLedger creates a ledger holding at most capacity entries. A capacity of
// zero or less means unbounded.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{capacity: capacity, cursor: CursorHead}
}

// Append records a tracked mutation, dropping the oldest entry when the
// ledger is full, and resets the cursor to the head.
func (l *Ledger) Append(entry rxstate.HistoryEntry) {
	l.appended++
	l.entries = append(l.entries, entry)
	l.serials = append(l.serials, l.appended)
	if l.capacity > 0 && len(l.entries) > l.capacity {
		drop := len(l.entries) - l.capacity
		n := copy(l.entries, l.entries[drop:])
		clear(l.entries[n:])
		l.entries = l.entries[:n]
		l.serials = append(l.serials[:0], l.serials[drop:]...)
	}
	l.cursor = CursorHead
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Appended returns the number of entries ever appended, including evicted
// and truncated ones.
func (l *Ledger) Appended() uint64 {
	return l.appended
}

// Since returns how many of the current entries were appended after
// Appended() returned mark. Evicted and truncated entries are not counted.
func (l *Ledger) Since(mark uint64) int {
	n := 0
	for i := len(l.serials) - 1; i >= 0 && l.serials[i] > mark; i-- {
		n++
	}
	return n
}

// Capacity returns the configured bound, zero when unbounded.
func (l *Ledger) Capacity() int {
	return l.capacity
}

// Cursor returns the current cursor position.
func (l *Ledger) Cursor() int {
	return l.cursor
}

// Entries returns a copy of the entries, oldest first.
func (l *Ledger) Entries() []rxstate.HistoryEntry {
	out := make([]rxstate.HistoryEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns the newest entry.
func (l *Ledger) Last() (rxstate.HistoryEntry, bool) {
	if len(l.entries) == 0 {
		return rxstate.HistoryEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Truncate drops every entry past the first n and resets the cursor.
func (l *Ledger) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(l.entries) {
		clear(l.entries[n:])
		l.entries = l.entries[:n]
		l.serials = l.serials[:n]
	}
	l.cursor = CursorHead
}

// Prev moves the cursor one step back and returns the tree to replay. Moving
// back from the oldest entry lands before the start and replays an empty
// tree rather than that entry's BeginState. ok is false when there is
// nothing to undo.
func (l *Ledger) Prev() (tree rxstate.Tree, action rxstate.Action, ok bool) {
	if len(l.entries) == 0 || l.cursor == CursorBeforeStart {
		return nil, "", false
	}
	if l.cursor == CursorHead {
		l.cursor = len(l.entries) - 1
	}
	if l.cursor == 0 {
		l.cursor = CursorBeforeStart
		return internalstate.Empty(), rxstate.Initialize, true
	}
	entry := l.entries[l.cursor]
	l.cursor--
	return entry.BeginState, entry.Action, true
}

// Next moves the cursor one step forward and returns the tree to replay.
// Stepping past the newest entry parks the cursor at the head and reports
// ok=false.
func (l *Ledger) Next() (tree rxstate.Tree, action rxstate.Action, ok bool) {
	if len(l.entries) == 0 || l.cursor == CursorHead {
		return nil, "", false
	}
	if l.cursor == CursorBeforeStart {
		l.cursor = 0
	} else {
		l.cursor++
	}
	if l.cursor >= len(l.entries) {
		l.cursor = CursorHead
		return nil, "", false
	}
	entry := l.entries[l.cursor]
	return entry.EndState, entry.Action, true
}

package store

import (
	"time"

	internalstate "github.com/gxo-labs/rxstore/internal/state"
	"github.com/gxo-labs/rxstore/internal/util"
	rxv1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/events"
	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
)

// mutation describes one commit. apply runs under the store lock and
// returns the next live tree; ok=false leaves the store untouched. after, if
// set, runs under the same lock once the tree is committed.
type mutation struct {
	apply  func(current rxstate.Tree) (next rxstate.Tree, action rxstate.Action, ok bool)
	after  func()
	track  bool
	notify bool
	event  events.EventType
	key    string
}

// commit applies m. It returns the committed tree and whether anything was
// committed.
func (s *Store) commit(m mutation) (rxstate.Tree, bool) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, false
	}
	current := s.tree
	next, action, ok := m.apply(current)
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	s.tree = next
	if m.track {
		s.ledger.Append(rxstate.HistoryEntry{BeginState: current, EndState: next, Action: action})
		s.metrics.HistoryLen(s.ledger.Len())
	}
	if m.after != nil {
		m.after()
	}
	if m.notify {
		if s.suspend == 0 {
			s.pending = append(s.pending, next)
		} else {
			s.suppressed = true
		}
	}
	s.mu.Unlock()

	s.metrics.Commit(action, m.track)
	if m.event == "" {
		m.event = events.StateCommitted
	}
	s.emit(m.event, m.key, map[string]interface{}{"action": string(action), "tracked": m.track})
	s.drain()
	return next, true
}

// drain delivers queued trees in commit order. Only one goroutine drains at a
// time; a commit made while another goroutine drains, including one made by a
// subscriber, is delivered by that goroutine after the current notification.
func (s *Store) drain() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	finished := false
	defer func() {
		// A panicking subscriber leaves mu unlocked; hand the queue to the
		// next commit.
		if !finished {
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
		}
	}()
	for len(s.pending) > 0 {
		tree := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.subject.Emit(tree)
		s.metrics.Notified()

		s.mu.Lock()
	}
	s.delivering = false
	finished = true
	s.mu.Unlock()
}

func merge(partial rxstate.Tree, action rxstate.Action) func(rxstate.Tree) (rxstate.Tree, rxstate.Action, bool) {
	return func(current rxstate.Tree) (rxstate.Tree, rxstate.Action, bool) {
		return internalstate.Merge(current, partial), action, true
	}
}

// setKey merges {key: value}. A zero action is resolved to Add when key is
// absent and Update otherwise.
func setKey(key string, value interface{}, action rxstate.Action) func(rxstate.Tree) (rxstate.Tree, rxstate.Action, bool) {
	return func(current rxstate.Tree) (rxstate.Tree, rxstate.Action, bool) {
		if action == "" {
			action = rxstate.Update
			if _, exists := internalstate.Lookup(current, key); !exists {
				action = rxstate.Add
			}
		}
		return internalstate.Merge(current, rxstate.Tree{key: value}), action, true
	}
}

// SetState shallow-merges partial into the live tree.
func (s *Store) SetState(partial rxstate.Tree, action rxstate.Action, opts ...rxv1.SetOption) {
	o := rxv1.ResolveSetOptions(opts...)
	s.commit(mutation{apply: merge(partial, action), track: !o.SkipHistory, notify: !o.SkipNotify})
}

// SetStateFunc merges the partial fn computes from the live tree. fn runs
// under the store lock and must not call back into the store.
func (s *Store) SetStateFunc(fn func(current rxstate.Tree) rxstate.Tree, action rxstate.Action, opts ...rxv1.SetOption) {
	if fn == nil {
		return
	}
	o := rxv1.ResolveSetOptions(opts...)
	s.commit(mutation{
		apply: func(current rxstate.Tree) (rxstate.Tree, rxstate.Action, bool) {
			return internalstate.Merge(current, fn(current)), action, true
		},
		track:  !o.SkipHistory,
		notify: !o.SkipNotify,
	})
}

// Dispatch merges {key: value} as a tracked, notifying mutation. Falsy
// values are ignored.
func (s *Store) Dispatch(key string, value interface{}) {
	if util.IsFalsy(value) {
		return
	}
	s.commit(mutation{apply: setKey(key, value, ""), track: true, notify: true, key: key})
}

// DispatchUntracked merges {key: value}, notifying but leaving history
// alone. Falsy values are ignored.
func (s *Store) DispatchUntracked(key string, value interface{}) {
	if util.IsFalsy(value) {
		return
	}
	s.commit(mutation{apply: setKey(key, value, ""), notify: true, key: key})
}

// DispatchWithoutNotify records {key: value} in history without notifying.
// An empty key or falsy value is ignored.
func (s *Store) DispatchWithoutNotify(key string, value interface{}, action ...rxstate.Action) {
	if key == "" || util.IsFalsy(value) {
		return
	}
	var a rxstate.Action
	if len(action) > 0 {
		a = action[0]
	}
	s.commit(mutation{apply: setKey(key, value, a), track: true, key: key})
}

// DispatchWithTimerClean dispatches {key: value} and removes key again after
// clean. Dispatching the key again with a cleanup replaces the pending one.
func (s *Store) DispatchWithTimerClean(key string, value interface{}, clean time.Duration) {
	if util.IsFalsy(value) {
		return
	}
	s.commit(mutation{apply: setKey(key, value, ""), after: s.cleanupAfter(key, clean), track: true, notify: true, key: key})
}

// DispatchUntrackedWithTimerClean is DispatchWithTimerClean without the
// history entry. The sync pipeline commits cached results through it.
func (s *Store) DispatchUntrackedWithTimerClean(key string, value interface{}, clean time.Duration) {
	if util.IsFalsy(value) {
		return
	}
	s.commit(mutation{apply: setKey(key, value, ""), after: s.cleanupAfter(key, clean), notify: true, key: key})
}

// Seed sets key as a silent, untracked Initialize commit.
func (s *Store) Seed(key string, value interface{}) {
	if key == "" {
		return
	}
	s.commit(mutation{apply: setKey(key, value, rxstate.Initialize), key: key})
}

// cleanupAfter returns the hook that arms the cleanup of key inside the
// commit that set it, so the latest commit always owns the pending timer.
func (s *Store) cleanupAfter(key string, clean time.Duration) func() {
	if clean <= 0 {
		return nil
	}
	return func() { s.scheduleCleanupLocked(key, clean) }
}

// scheduleCleanupLocked must be called with mu held.
func (s *Store) scheduleCleanupLocked(key string, clean time.Duration) {
	if old, ok := s.cleanups[key]; ok {
		old.timer.Stop()
	}
	s.cleanSeq++
	seq := s.cleanSeq
	c := &cleanup{expiry: s.clock.Now().Add(clean), seq: seq}
	c.timer = s.clock.AfterFunc(clean, func() { s.expire(key, seq) })
	s.cleanups[key] = c
}

// expire removes key with a notifying, untracked Remove commit, unless the
// cleanup was replaced or the store disposed in the meantime.
func (s *Store) expire(key string, seq uint64) {
	s.mu.Lock()
	c, ok := s.cleanups[key]
	if !ok || c.seq != seq || s.disposed {
		s.mu.Unlock()
		return
	}
	delete(s.cleanups, key)
	s.mu.Unlock()

	_, removed := s.commit(mutation{
		apply: func(current rxstate.Tree) (rxstate.Tree, rxstate.Action, bool) {
			next, ok := internalstate.Without(current, key)
			return next, rxstate.Remove, ok
		},
		notify: true,
		event:  events.CacheExpired,
		key:    key,
	})
	if removed {
		s.log.Debugf("Removed expired key '%s'", key)
	}
}

// PrevState replays the tree before the entry under the cursor and moves
// the cursor back. Rewinding past the oldest entry replays an empty tree.
func (s *Store) PrevState() {
	s.replay(func() (rxstate.Tree, rxstate.Action, bool) { return s.ledger.Prev() }, "prev")
}

// NextState replays the tree after the next entry and moves the cursor
// forward. It does nothing at the head.
func (s *Store) NextState() {
	s.replay(func() (rxstate.Tree, rxstate.Action, bool) { return s.ledger.Next() }, "next")
}

func (s *Store) replay(step func() (rxstate.Tree, rxstate.Action, bool), direction string) {
	_, ok := s.commit(mutation{
		apply: func(rxstate.Tree) (rxstate.Tree, rxstate.Action, bool) {
			tree, action, ok := step()
			if !ok {
				return nil, "", false
			}
			return internalstate.Replace(tree), action, true
		},
		notify: true,
		event:  events.HistoryReplayed,
	})
	if ok {
		s.log.Debugf("Replayed history (%s)", direction)
	}
}

// RunInAction runs fn with notifications suspended. Tracked entries that fn
// produced are collapsed into one entry spanning the whole scope, and a
// single notification carrying the live tree follows. Nothing is rolled
// back: the error fn returns is passed through, and a panic is re-raised,
// after the suspension is lifted.
//
// A scope covers the whole store, not the calling goroutine: commits made
// from other goroutines while it is open are silenced too, and their tracked
// entries fold into the scope's collapsed entry.
func (s *Store) RunInAction(fn func() error) (err error) {
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	before := s.tree
	mark := s.ledger.Appended()
	s.suspend++
	s.mu.Unlock()

	defer func() {
		r := recover()
		s.closeAction(before, mark)
		if r != nil {
			panic(r)
		}
	}()
	return fn()
}

func (s *Store) closeAction(before rxstate.Tree, mark uint64) {
	s.mu.Lock()
	s.suspend--
	if s.disposed {
		s.mu.Unlock()
		return
	}

	produced := s.ledger.Since(mark)
	if produced > 0 {
		last, _ := s.ledger.Last()
		s.ledger.Truncate(s.ledger.Len() - produced)
		s.ledger.Append(rxstate.HistoryEntry{BeginState: before, EndState: last.EndState, Action: last.Action})
		s.metrics.HistoryLen(s.ledger.Len())
	}

	if s.suspend == 0 && (produced > 0 || s.suppressed) {
		s.pending = append(s.pending, s.tree)
		s.suppressed = false
	}
	s.mu.Unlock()

	s.drain()
}

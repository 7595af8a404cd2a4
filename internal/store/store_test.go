package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/rxstore/internal/logger"
	"github.com/gxo-labs/rxstore/internal/metrics"
	"github.com/gxo-labs/rxstore/internal/store"
	rxv1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
)

type notifications struct {
	mu    sync.Mutex
	trees []rxstate.Tree
}

func (n *notifications) observe(tree rxstate.Tree) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trees = append(n.trees, tree)
}

func (n *notifications) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.trees)
}

func (n *notifications) Last() rxstate.Tree {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.trees) == 0 {
		return nil
	}
	return n.trees[len(n.trees)-1]
}

func newStore(t *testing.T, opts ...rxv1.StoreOption) (*store.Store, *testclock.Clock, *notifications) {
	t.Helper()
	clk := testclock.NewClock(time.Unix(0, 0))
	base := []rxv1.StoreOption{
		rxv1.WithName("test"),
		rxv1.WithLogger(logger.NewDiscardLogger()),
		rxv1.WithClock(clk),
	}
	s, err := store.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Dispose)

	seen := &notifications{}
	s.Subscribe(seen.observe)
	return s, clk, seen
}

func await(t *testing.T, r rxv1.Result) (interface{}, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := r.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "pipeline call never settled")
	return v, err
}

func TestDispatch_ShallowMerge(t *testing.T) {
	s, _, seen := newStore(t)

	s.Dispatch("a", 1)
	s.Dispatch("b", "two")
	s.Dispatch("a", 3)

	assert.Equal(t, 3, s.GetStateByKey("a"))
	assert.Equal(t, "two", s.GetStateByKey("b"))
	assert.Equal(t, rxstate.Tree{"a": 3, "b": "two"}, s.GetState(false))
	assert.Equal(t, 3, seen.Count())
	assert.Equal(t, rxstate.Tree{"a": 3, "b": "two"}, seen.Last())
}

func TestDispatch_FalsyValuesIgnored(t *testing.T) {
	s, _, seen := newStore(t, rxv1.WithInitialState(rxstate.Tree{"x": 1}))

	for _, v := range []interface{}{nil, 0, "", false, 0.0} {
		s.Dispatch("x", v)
	}
	assert.Equal(t, 1, s.GetStateByKey("x"))
	assert.Zero(t, seen.Count())
	assert.Empty(t, s.History())

	s.Dispatch("list", []int{})
	assert.Equal(t, []int{}, s.GetStateByKey("list"), "an empty slice is a value")
}

func TestDispatch_ActionSelection(t *testing.T) {
	s, _, _ := newStore(t)
	s.Dispatch("k", 1)
	s.Dispatch("k", 2)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, rxstate.Add, history[0].Action)
	assert.Equal(t, rxstate.Update, history[1].Action)
	assert.Equal(t, rxstate.Tree{}, history[0].BeginState)
	assert.Equal(t, rxstate.Tree{"k": 1}, history[1].BeginState)
	assert.Equal(t, rxstate.Tree{"k": 2}, history[1].EndState)
}

func TestGetStateByKey_Absent(t *testing.T) {
	s, _, _ := newStore(t)
	assert.Nil(t, s.GetStateByKey("missing"))
}

func TestSetState_Options(t *testing.T) {
	tests := []struct {
		name        string
		opts        []rxv1.SetOption
		wantHistory int
		wantNotify  int
	}{
		{"defaults", nil, 1, 1},
		{"without history", []rxv1.SetOption{rxv1.WithoutHistory()}, 0, 1},
		{"without notify", []rxv1.SetOption{rxv1.WithoutNotify()}, 1, 0},
		{"silent and untracked", []rxv1.SetOption{rxv1.WithoutHistory(), rxv1.WithoutNotify()}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, seen := newStore(t, rxv1.WithInitialState(rxstate.Tree{"keep": true}))
			s.SetState(rxstate.Tree{"n": 1}, rxstate.Update, tt.opts...)

			assert.Equal(t, rxstate.Tree{"keep": true, "n": 1}, s.GetState(false))
			assert.Len(t, s.History(), tt.wantHistory)
			assert.Equal(t, tt.wantNotify, seen.Count())
		})
	}
}

func TestSetStateFunc(t *testing.T) {
	s, _, _ := newStore(t, rxv1.WithInitialState(rxstate.Tree{"count": 1}))
	inc := func(current rxstate.Tree) rxstate.Tree {
		return rxstate.Tree{"count": current["count"].(int) + 1}
	}
	s.SetStateFunc(inc, rxstate.Update)
	s.SetStateFunc(inc, rxstate.Update)
	assert.Equal(t, 3, s.GetStateByKey("count"))
	assert.Len(t, s.History(), 2)
}

func TestGetState_CloneDeepIsIndependent(t *testing.T) {
	s, _, _ := newStore(t)
	s.Dispatch("user", map[string]interface{}{"name": "ann", "tags": []interface{}{"a"}})

	cpy := s.GetState(true)
	cpy["user"].(map[string]interface{})["name"] = "bob"
	cpy["user"].(map[string]interface{})["tags"].([]interface{})[0] = "z"

	live := s.GetState(false)["user"].(map[string]interface{})
	assert.Equal(t, "ann", live["name"])
	assert.Equal(t, "a", live["tags"].([]interface{})[0])
}

func TestCommittedTreesAreNotEditedInPlace(t *testing.T) {
	s, _, _ := newStore(t)
	s.Dispatch("a", 1)
	before := s.GetState(false)
	s.Dispatch("b", 2)
	assert.Equal(t, rxstate.Tree{"a": 1}, before)
}

func TestPrevState_WalksBackToInitialTree(t *testing.T) {
	s, _, seen := newStore(t)
	s.Dispatch("a", 1)
	s.Dispatch("b", 2)
	s.Dispatch("a", 3)
	require.Equal(t, 3, seen.Count())

	s.PrevState()
	assert.Equal(t, rxstate.Tree{"a": 1, "b": 2}, s.GetState(false))
	s.PrevState()
	assert.Equal(t, rxstate.Tree{"a": 1}, s.GetState(false))
	s.PrevState()
	assert.Equal(t, rxstate.Tree{}, s.GetState(false))
	assert.Equal(t, 6, seen.Count(), "each replay notifies")

	s.PrevState()
	assert.Equal(t, rxstate.Tree{}, s.GetState(false))
	assert.Equal(t, 6, seen.Count(), "undo before start is a no-op")
	assert.Len(t, s.History(), 3, "replays never add history")
}

func TestPrevState_EmptyLedgerIsNoop(t *testing.T) {
	s, _, seen := newStore(t, rxv1.WithInitialState(rxstate.Tree{"a": 1}))
	s.PrevState()
	s.NextState()
	assert.Equal(t, rxstate.Tree{"a": 1}, s.GetState(false))
	assert.Zero(t, seen.Count())
}

func TestPrevNext_RoundTrip(t *testing.T) {
	s, _, _ := newStore(t)
	s.Dispatch("a", 1)
	s.Dispatch("b", 2)
	s.Dispatch("c", 3)

	for i := 0; i < 3; i++ {
		want := s.GetState(false)
		s.PrevState()
		s.NextState()
		assert.Equal(t, want, s.GetState(false))
		s.PrevState()
	}

	s.NextState()
	s.NextState()
	s.NextState()
	assert.Equal(t, rxstate.Tree{"a": 1, "b": 2, "c": 3}, s.GetState(false))
	s.NextState()
	assert.Equal(t, rxstate.Tree{"a": 1, "b": 2, "c": 3}, s.GetState(false), "redo at head is a no-op")
}

func TestTrackedMutationResetsCursor(t *testing.T) {
	s, _, _ := newStore(t)
	s.Dispatch("a", 1)
	s.Dispatch("a", 2)
	s.PrevState()
	s.PrevState()

	s.Dispatch("b", 9)
	assert.Equal(t, rxstate.Tree{"b": 9}, s.GetState(false))

	s.NextState()
	assert.Equal(t, rxstate.Tree{"b": 9}, s.GetState(false), "redo after a new mutation is a no-op")

	s.PrevState()
	assert.Equal(t, rxstate.Tree{}, s.GetState(false))
}

func TestHistoryCapacity(t *testing.T) {
	s, _, _ := newStore(t, rxv1.WithHistoryCapacity(2))
	s.Dispatch("a", 1)
	s.Dispatch("a", 2)
	s.Dispatch("a", 3)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, rxstate.Tree{"a": 1}, history[0].BeginState)
}

func TestDispatchWithoutNotify(t *testing.T) {
	s, _, seen := newStore(t)

	s.DispatchWithoutNotify("a", 1)
	s.DispatchWithoutNotify("b", 2, rxstate.Undefined)
	s.DispatchWithoutNotify("", 3)
	s.DispatchWithoutNotify("c", "")

	assert.Equal(t, rxstate.Tree{"a": 1, "b": 2}, s.GetState(false))
	assert.Zero(t, seen.Count())
	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, rxstate.Add, history[0].Action)
	assert.Equal(t, rxstate.Undefined, history[1].Action)
}

func TestDispatchUntracked(t *testing.T) {
	s, _, seen := newStore(t)
	s.DispatchUntracked("a", 1)
	s.DispatchUntracked("a", nil)

	assert.Equal(t, 1, s.GetStateByKey("a"))
	assert.Equal(t, 1, seen.Count())
	assert.Empty(t, s.History())
}

func TestSeed(t *testing.T) {
	s, _, seen := newStore(t)
	s.Seed("loading", false)
	s.Seed("", 1)

	assert.Equal(t, rxstate.Tree{"loading": false}, s.GetState(false))
	assert.Zero(t, seen.Count())
	assert.Empty(t, s.History())
}

func TestDispatchWithTimerClean(t *testing.T) {
	s, clk, seen := newStore(t)

	s.DispatchWithTimerClean("x", 5, time.Second)
	assert.Equal(t, 5, s.GetStateByKey("x"))
	assert.Equal(t, 1, seen.Count())
	expiry, ok := s.Expiry("x")
	require.True(t, ok)
	assert.Equal(t, time.Unix(1, 0), expiry)

	require.NoError(t, clk.WaitAdvance(1500*time.Millisecond, time.Second, 1))

	require.Eventually(t, func() bool { return s.GetStateByKey("x") == nil }, time.Second, 5*time.Millisecond)
	_, present := s.GetState(false)["x"]
	assert.False(t, present)
	assert.Equal(t, 2, seen.Count(), "the cleanup fires exactly one notification")
	assert.Len(t, s.History(), 1, "the cleanup is untracked")
	_, ok = s.Expiry("x")
	assert.False(t, ok)
}

func TestDispatchWithTimerClean_RedispatchReplacesTimer(t *testing.T) {
	s, clk, _ := newStore(t)

	s.DispatchWithTimerClean("x", "old", time.Second)
	require.NoError(t, clk.WaitAdvance(500*time.Millisecond, time.Second, 1))
	s.DispatchWithTimerClean("x", "new", time.Second)

	clk.Advance(600 * time.Millisecond)
	assert.Equal(t, "new", s.GetStateByKey("x"), "the replaced timer must not remove the newer value")

	clk.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return s.GetStateByKey("x") == nil }, time.Second, 5*time.Millisecond)
}

func TestRunInAction_CollapsesToOneEntryAndOneNotification(t *testing.T) {
	s, _, seen := newStore(t, rxv1.WithInitialState(rxstate.Tree{"keep": 1}))
	s.Dispatch("pre", true)
	require.Equal(t, 1, seen.Count())

	err := s.RunInAction(func() error {
		s.Dispatch("a", 1)
		s.Dispatch("b", 2)
		s.SetState(rxstate.Tree{"a": 10}, rxstate.Update)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, seen.Count())
	want := rxstate.Tree{"keep": 1, "pre": true, "a": 10, "b": 2}
	assert.Equal(t, want, seen.Last())

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, rxstate.Tree{"keep": 1, "pre": true}, history[1].BeginState)
	assert.Equal(t, want, history[1].EndState)
	assert.Equal(t, rxstate.Update, history[1].Action)

	s.PrevState()
	assert.Equal(t, rxstate.Tree{"keep": 1, "pre": true}, s.GetState(false), "one undo reverts the whole scope")
}

func TestRunInAction_NoMutationsNoNotification(t *testing.T) {
	s, _, seen := newStore(t)
	require.NoError(t, s.RunInAction(func() error { return nil }))
	assert.Zero(t, seen.Count())
	assert.Empty(t, s.History())
}

func TestRunInAction_UntrackedOnlyStillNotifiesOnce(t *testing.T) {
	s, _, seen := newStore(t)
	require.NoError(t, s.RunInAction(func() error {
		s.DispatchUntracked("a", 1)
		s.DispatchUntracked("b", 2)
		return nil
	}))
	assert.Equal(t, 1, seen.Count())
	assert.Empty(t, s.History())
}

func TestRunInAction_ErrorPropagatesWithoutRollback(t *testing.T) {
	s, _, seen := newStore(t)
	boom := errors.New("boom")

	err := s.RunInAction(func() error {
		s.Dispatch("a", 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.GetStateByKey("a"))
	assert.Equal(t, 1, seen.Count())

	s.Dispatch("b", 2)
	assert.Equal(t, 2, seen.Count(), "notifications resume after a failed scope")
}

func TestRunInAction_PanicReraisedAfterCleanup(t *testing.T) {
	s, _, seen := newStore(t)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = s.RunInAction(func() error {
			s.Dispatch("a", 1)
			panic("kaboom")
		})
	})
	assert.Equal(t, 1, seen.Count())

	s.Dispatch("b", 2)
	assert.Equal(t, 2, seen.Count())
}

func TestRunInAction_Nested(t *testing.T) {
	s, _, seen := newStore(t)
	s.Dispatch("pre", 1)
	err := s.RunInAction(func() error {
		s.Dispatch("a", 1)
		if err := s.RunInAction(func() error {
			s.Dispatch("b", 2)
			s.Dispatch("c", 3)
			return nil
		}); err != nil {
			return err
		}
		assert.Equal(t, 1, seen.Count(), "the inner scope must not notify while the outer one is open")
		s.Dispatch("d", 4)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seen.Count())

	history := s.History()
	require.Len(t, history, 2, "entries from before the scope survive the collapse")
	assert.Equal(t, rxstate.Tree{"pre": 1}, history[1].BeginState)
	assert.Equal(t, rxstate.Tree{"pre": 1, "a": 1, "b": 2, "c": 3, "d": 4}, history[1].EndState)
}

func TestSubscriberMayDispatch(t *testing.T) {
	s, _, _ := newStore(t)
	s.Subscribe(func(tree rxstate.Tree) {
		if _, ok := tree["ping"]; ok {
			if _, done := tree["pong"]; !done {
				s.Dispatch("pong", true)
			}
		}
	})
	s.Dispatch("ping", true)
	assert.Equal(t, true, s.GetStateByKey("pong"))
}

func TestUnsubscribe(t *testing.T) {
	s, _, _ := newStore(t)
	var calls atomic.Int32
	sub := s.Subscribe(func(rxstate.Tree) { calls.Add(1) })
	assert.NotEmpty(t, sub.ID())

	s.Dispatch("a", 1)
	sub.Unsubscribe()
	s.Dispatch("a", 2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchDataAuto_RetriesThenCommitsOnce(t *testing.T) {
	s, clk, seen := newStore(t)
	var calls atomic.Int32
	handler := func(context.Context) (interface{}, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("flaky")
		}
		return map[string]interface{}{"data": []string{"ann"}}, nil
	}

	f := s.FetchDataAuto(context.Background(), "users", handler,
		&rxv1.FetchSettings{RetryCount: 3, InitialDelayTime: 100 * time.Millisecond})
	require.NoError(t, clk.WaitAdvance(100*time.Millisecond, time.Second, 1))
	require.NoError(t, clk.WaitAdvance(200*time.Millisecond, time.Second, 1))

	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann"}, v)
	assert.Equal(t, []string{"ann"}, s.GetStateByKey("users"))
	assert.Equal(t, 1, seen.Count())
	assert.Empty(t, s.History(), "pipeline commits are untracked")
}

func TestFetchDataAuto_AlwaysFailingKeepsState(t *testing.T) {
	s, _, seen := newStore(t, rxv1.WithInitialState(rxstate.Tree{"x": 1}))
	failing := func(context.Context) (interface{}, error) { return nil, errors.New("down") }

	v, err := await(t, s.FetchDataAuto(context.Background(), "x", failing, &rxv1.FetchSettings{RetryCount: 2}))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, s.GetStateByKey("x"))
	assert.Zero(t, seen.Count())
}

func TestFetchDataAuto_CacheTimeExpires(t *testing.T) {
	s, clk, _ := newStore(t)
	var calls atomic.Int32
	handler := func(context.Context) (interface{}, error) {
		calls.Add(1)
		return "fresh", nil
	}
	settings := &rxv1.FetchSettings{CacheTime: time.Minute}

	_, err := await(t, s.FetchDataAuto(context.Background(), "k", handler, settings))
	require.NoError(t, err)
	assert.Equal(t, "fresh", s.GetStateByKey("k"))
	_, ok := s.Expiry("k")
	assert.True(t, ok)

	_, err = await(t, s.FetchDataAuto(context.Background(), "k", handler, settings))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return s.GetStateByKey("k") == nil }, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.History())
}

func TestFetchDataWithoutAuto_UsesStoreAsCache(t *testing.T) {
	s, _, _ := newStore(t, rxv1.WithInitialState(rxstate.Tree{"k": "cached"}))
	var calls atomic.Int32
	handler := func(context.Context) (interface{}, error) {
		calls.Add(1)
		return "fresh", nil
	}

	v, err := await(t, s.FetchDataWithoutAuto(context.Background(), "k", handler, nil))
	require.NoError(t, err)
	assert.Equal(t, "cached", v)

	v, err = await(t, s.FetchDataWithoutAuto(context.Background(), "other", handler, nil))
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Nil(t, s.GetStateByKey("other"), "the manual variant never commits")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSaveAPIData_DoesNotTouchState(t *testing.T) {
	s, _, seen := newStore(t)
	got := make(chan interface{}, 1)
	_, err := await(t, s.SaveAPIData(context.Background(), func(context.Context) (interface{}, error) {
		return "saved", nil
	}, nil, func(v interface{}) { got <- v }))
	require.NoError(t, err)
	assert.Equal(t, "saved", <-got)
	assert.Empty(t, s.GetState(false))
	assert.Zero(t, seen.Count())
}

func TestDispose(t *testing.T) {
	s, clk, seen := newStore(t)
	s.DispatchWithTimerClean("x", 1, time.Second)
	pending := s.FetchDataAuto(context.Background(), "y", func(context.Context) (interface{}, error) {
		return "late", nil
	}, &rxv1.FetchSettings{DebounceTime: time.Second})
	require.NoError(t, clk.WaitAdvance(0, time.Second, 2))

	s.Dispose()
	s.Dispose()
	assert.True(t, s.Disposed())

	_, err := await(t, pending)
	assert.ErrorIs(t, err, rxerrors.ErrStoreDisposed)

	s.Dispatch("z", 1)
	s.PrevState()
	clk.Advance(time.Minute)

	assert.Equal(t, rxstate.Tree{"x": 1}, s.GetState(false))
	assert.Equal(t, 1, seen.Count())

	_, err = await(t, s.FetchDataAuto(context.Background(), "y", nil, nil))
	assert.True(t, rxerrors.IsDisposed(err))
}

func TestNew_OptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opt  rxv1.StoreOption
	}{
		{"empty name", rxv1.WithName("")},
		{"negative capacity", rxv1.WithHistoryCapacity(-1)},
		{"nil clock", rxv1.WithClock(nil)},
		{"nil logger", rxv1.WithLogger(nil)},
		{"nil bus", rxv1.WithEventBus(nil)},
		{"nil metrics", rxv1.WithMetricsRegistryProvider(nil)},
		{"nil tracer", rxv1.WithTracerProvider(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.New(tt.opt)
			var cfgErr *rxerrors.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestMetrics_SharedRegistry(t *testing.T) {
	provider := metrics.NewPrometheusRegistryProvider()
	a, _, _ := newStore(t, rxv1.WithName("a"), rxv1.WithMetricsRegistryProvider(provider))
	b, _, _ := newStore(t, rxv1.WithName("b"), rxv1.WithMetricsRegistryProvider(provider))

	a.Dispatch("k", 1)
	a.Dispatch("k", 2)
	b.DispatchUntracked("k", 1)

	count, err := testutil.GatherAndCount(provider.Registry(), "rxstore_commits_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "a/ADD/true, a/UPDATE/true and b/ADD/false")

	notified, err := testutil.GatherAndCount(provider.Registry(), "rxstore_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, notified)
}

func TestNotifications_FollowCommitOrderAcrossGoroutines(t *testing.T) {
	for round := 0; round < 50; round++ {
		s, _, _ := newStore(t)

		var inFlight, maxInFlight atomic.Int32
		var last atomic.Value
		s.Subscribe(func(tree rxstate.Tree) {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			last.Store(tree["x"])
			inFlight.Add(-1)
		})

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					s.Dispatch("x", g*100+i+1)
				}
			}(g)
		}
		wg.Wait()

		require.Equal(t, s.GetStateByKey("x"), last.Load(), "round %d: the last notification must carry the live tree", round)
		require.Equal(t, int32(1), maxInFlight.Load(), "round %d: an observer must never run concurrently with itself", round)
	}
}

func TestNotifications_ReentrantDispatchIsDeliveredInOrder(t *testing.T) {
	s, _, seen := newStore(t)
	s.Subscribe(func(tree rxstate.Tree) {
		if _, ok := tree["pong"]; !ok {
			s.Dispatch("pong", true)
		}
	})
	s.Dispatch("ping", true)

	require.Equal(t, 2, seen.Count())
	assert.Equal(t, rxstate.Tree{"ping": true, "pong": true}, seen.Last())
}

func TestRunInAction_ScopeCoversOtherGoroutines(t *testing.T) {
	s, _, seen := newStore(t)
	err := s.RunInAction(func() error {
		s.Dispatch("mine", 1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.Dispatch("theirs", 2)
		}()
		<-done
		assert.Zero(t, seen.Count(), "commits from other goroutines are silenced while the scope is open")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, seen.Count())
	history := s.History()
	require.Len(t, history, 1, "tracked entries from other goroutines fold into the scope")
	assert.Equal(t, rxstate.Tree{"mine": 1, "theirs": 2}, history[0].EndState)
}

func TestDispatchWithTimerClean_LatestCommitOwnsExpiry(t *testing.T) {
	s, clk, _ := newStore(t)

	var wg sync.WaitGroup
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(clean time.Duration) {
			defer wg.Done()
			s.DispatchWithTimerClean("token", clean, clean)
		}(time.Duration(i) * time.Second)
	}
	wg.Wait()

	expiry, ok := s.Expiry("token")
	require.True(t, ok)
	committed := s.GetStateByKey("token").(time.Duration)
	assert.Equal(t, clk.Now().Add(committed), expiry)
}

func TestMetrics_DisposeKeepsSameNamedStoreSeries(t *testing.T) {
	provider := metrics.NewPrometheusRegistryProvider()
	a, _, _ := newStore(t, rxv1.WithMetricsRegistryProvider(provider))
	b, _, _ := newStore(t, rxv1.WithMetricsRegistryProvider(provider))

	a.Dispatch("k", 1)
	b.Dispatch("k", 1)
	a.Dispose()

	count, err := testutil.GatherAndCount(provider.Registry(), "rxstore_commits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "b shares the name and is still live")

	b.Dispose()
	count, err = testutil.GatherAndCount(provider.Registry(), "rxstore_commits_total")
	require.NoError(t, err)
	assert.Zero(t, count)
}

package metrics

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
)

const namespace = "rxstore"

// Fetch outcomes recorded on rxstore_fetch_total.
const (
	OutcomeSuccess = "success"
	OutcomeCached  = "cached"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Collectors holds the metric vectors shared by every store on one registry.
type Collectors struct {
	commits        *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	historyEntries *prometheus.GaugeVec
	fetches        *prometheus.CounterVec
}

// NewCollectors registers the store collectors on reg. Registering twice on
// the same registry reuses the vectors already there, so several stores can
// share one registry.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{}
	var err error
	if c.commits, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_total",
		Help:      "Number of state commits, by store, action and whether history was recorded.",
	}, []string{"store", "action", "tracked"})); err != nil {
		return nil, err
	}
	if c.notifications, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Number of change notifications delivered to subscribers.",
	}, []string{"store"})); err != nil {
		return nil, err
	}
	if c.historyEntries, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "history_entries",
		Help:      "Current number of entries in the store history ledger.",
	}, []string{"store"})); err != nil {
		return nil, err
	}
	if c.fetches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Number of settled sync pipeline calls, by outcome.",
	}, []string{"store", "outcome"})); err != nil {
		return nil, err
	}
	return c, nil
}

// NewEventCounter registers rxstore_events_total{type} on reg.
func NewEventCounter(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Number of store lifecycle events, by type.",
	}, []string{"type"}))
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// owners counts the live recorders per store name on each registry, keyed by
// the shared commits vector. Series are deleted when the last one is
// forgotten, so stores sharing a registry and a name keep their series.
var owners = struct {
	mu    sync.Mutex
	names map[*prometheus.CounterVec]map[string]int
}{names: make(map[*prometheus.CounterVec]map[string]int)}

// ForStore returns the recorder for one store.
func (c *Collectors) ForStore(name string) *StoreMetrics {
	if c == nil {
		return nil
	}
	owners.mu.Lock()
	defer owners.mu.Unlock()
	refs, ok := owners.names[c.commits]
	if !ok {
		refs = make(map[string]int)
		owners.names[c.commits] = refs
	}
	refs[name]++
	return &StoreMetrics{c: c, store: name}
}

// release drops one reference to name and reports whether it was the last.
func (c *Collectors) release(name string) bool {
	owners.mu.Lock()
	defer owners.mu.Unlock()
	refs := owners.names[c.commits]
	if refs[name] > 1 {
		refs[name]--
		return false
	}
	delete(refs, name)
	if len(refs) == 0 {
		delete(owners.names, c.commits)
	}
	return true
}

// StoreMetrics records the metrics of a single store. A nil *StoreMetrics
// records nothing.
type StoreMetrics struct {
	c      *Collectors
	store  string
	forget sync.Once
}

func (m *StoreMetrics) Commit(action rxstate.Action, tracked bool) {
	if m == nil {
		return
	}
	m.c.commits.WithLabelValues(m.store, string(action), strconv.FormatBool(tracked)).Inc()
}

func (m *StoreMetrics) Notified() {
	if m == nil {
		return
	}
	m.c.notifications.WithLabelValues(m.store).Inc()
}

func (m *StoreMetrics) HistoryLen(n int) {
	if m == nil {
		return
	}
	m.c.historyEntries.WithLabelValues(m.store).Set(float64(n))
}

func (m *StoreMetrics) Fetch(outcome string) {
	if m == nil {
		return
	}
	m.c.fetches.WithLabelValues(m.store, outcome).Inc()
}

// Forget releases the recorder, called when its store is disposed. The
// store's series are dropped once no other recorder on the registry uses the
// same name. Calling it again does nothing.
func (m *StoreMetrics) Forget() {
	if m == nil {
		return
	}
	m.forget.Do(func() {
		if !m.c.release(m.store) {
			return
		}
		labels := prometheus.Labels{"store": m.store}
		m.c.commits.DeletePartialMatch(labels)
		m.c.notifications.DeletePartialMatch(labels)
		m.c.historyEntries.DeletePartialMatch(labels)
		m.c.fetches.DeletePartialMatch(labels)
	})
}

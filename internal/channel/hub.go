package channel

import (
	"sync"

	rxlog "github.com/gxo-labs/rxstore/pkg/rxstore/v1/log"
)

// Hub is a set of independent subjects keyed by a logical name, for
// cross-cutting notifications that are not store state. A subject is created
// lazily on its first Emit or Listen. The hub is an explicit context object:
// create one with NewHub and hand it to whatever needs it.
type Hub struct {
	mu       sync.Mutex
	subjects map[string]*Subject[interface{}]
	log      rxlog.Logger
}

// NewHub creates an empty hub. A non-nil logger is required.
func NewHub(log rxlog.Logger) *Hub {
	if log == nil {
		panic("channel.NewHub requires a non-nil logger")
	}
	return &Hub{
		subjects: make(map[string]*Subject[interface{}]),
		log:      log.With("component", "Hub"),
	}
}

func (h *Hub) subject(name string) *Subject[interface{}] {
	h.mu.Lock()
	defer h.mu.Unlock()
	subj, ok := h.subjects[name]
	if !ok {
		subj = NewSubject[interface{}]()
		h.subjects[name] = subj
		h.log.Debugf("Created channel '%s'", name)
	}
	return subj
}

// Emit delivers data to every listener of name.
func (h *Hub) Emit(name string, data interface{}) {
	h.subject(name).Emit(data)
}

// Listen subscribes handler to name.
func (h *Hub) Listen(name string, handler func(interface{})) *Subscription[interface{}] {
	return h.subject(name).Subscribe(handler)
}

// RemoveListen tears down the channel called name and all its listeners.
func (h *Hub) RemoveListen(name string) {
	h.mu.Lock()
	subj, ok := h.subjects[name]
	delete(h.subjects, name)
	h.mu.Unlock()

	if ok {
		subj.Dispose()
		h.log.Debugf("Removed channel '%s'", name)
	}
}

// Names returns the names of the live channels, in no particular order.
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.subjects))
	for name := range h.subjects {
		names = append(names, name)
	}
	return names
}

// DisposeAll tears down every channel. The hub stays usable; new channels are
// created on demand afterwards.
func (h *Hub) DisposeAll() {
	h.mu.Lock()
	subjects := h.subjects
	h.subjects = make(map[string]*Subject[interface{}])
	h.mu.Unlock()

	for _, subj := range subjects {
		subj.Dispose()
	}
	h.log.Debugf("Disposed %d channel(s)", len(subjects))
}

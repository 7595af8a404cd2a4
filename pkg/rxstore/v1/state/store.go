package state

// Tree is the entire observable state of one store: a mapping from string
// keys to arbitrary values. A Tree handed out by a store is never mutated
// afterwards; callers MUST treat it and any nested maps or slices as
// read-only, or request a deep copy with GetState(true).
type Tree = map[string]interface{}

// Action describes why a mutation occurred. It is recorded with every
// history entry.
type Action string

const (
	Initialize Action = "INITIALIZE_STATE"
	Add        Action = "ADD_STATE"
	Remove     Action = "REMOVE_STATE"
	Update     Action = "UPDATE_STATE"
	Undefined  Action = "UNDEFINED_STATE"
)

// HistoryEntry records one tracked mutation. BeginState is the tree
// immediately before the mutation, EndState the tree immediately after.
type HistoryEntry struct {
	BeginState Tree
	EndState   Tree
	Action     Action
}

// StateReader is the read-only view of a store. It is what field bindings
// and the sync pipeline's cache lookup need.
type StateReader interface {
	// GetState returns the current tree, or a structurally independent deep
	// copy of it when cloneDeep is true.
	GetState(cloneDeep bool) Tree

	// GetStateByKey returns the value under key, or nil when absent.
	// Absent and explicitly-nil keys are indistinguishable here.
	GetStateByKey(key string) interface{}
}

// Dispatcher is the key-level mutation surface of a store.
type Dispatcher interface {
	StateReader

	// Dispatch merges {key: value} as a tracked, notifying mutation.
	// Falsy values are ignored.
	Dispatch(key string, value interface{})
}

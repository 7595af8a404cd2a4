// Package state holds the copy-on-write operations the store uses to build
// each new tree. None of them mutate their inputs.
package state

import (
	"maps"

	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
)

// Empty returns a new, empty tree.
func Empty() rxstate.Tree {
	return make(rxstate.Tree)
}

// Merge returns a new tree holding every key of base, overwritten by the
// keys of partial. Values are shared, not copied.
func Merge(base, partial rxstate.Tree) rxstate.Tree {
	merged := make(rxstate.Tree, len(base)+len(partial))
	maps.Copy(merged, base)
	maps.Copy(merged, partial)
	return merged
}

// Replace returns a shallow copy of next, used when a whole tree is replayed
// as the live tree.
func Replace(next rxstate.Tree) rxstate.Tree {
	if next == nil {
		return Empty()
	}
	return maps.Clone(next)
}

// Without returns a new tree lacking key. The second result reports whether
// key was present.
func Without(base rxstate.Tree, key string) (rxstate.Tree, bool) {
	if _, ok := base[key]; !ok {
		return base, false
	}
	out := maps.Clone(base)
	delete(out, key)
	return out, true
}

// Lookup returns the value under key and whether it was present.
func Lookup(tree rxstate.Tree, key string) (interface{}, bool) {
	if tree == nil {
		return nil, false
	}
	v, ok := tree[key]
	return v, ok
}

// Package invalidate computes which cached keys depend on a changed
// resource. Dependency is key-prefix match: a cached key depends on an
// invalidation target iff the target is a segment-wise prefix of it.
package invalidate

import (
	"querycache/internal/key"
	"querycache/internal/store"
)

type Graph struct {
	store *store.Store
}

func NewGraph(s *store.Store) *Graph {
	return &Graph{store: s}
}

// Closure enumerates the store's current key set and returns every cached
// key that extends any target (a key extends itself). Keys cached after the
// call are not covered.
func (g *Graph) Closure(targets ...key.Key) []key.Key {
	if g == nil || g.store == nil || len(targets) == 0 {
		return nil
	}
	matches := g.store.EntriesMatching(func(k key.Key, _ store.Entry) bool {
		for _, target := range targets {
			if k.HasPrefix(target) {
				return true
			}
		}
		return false
	})
	keys := make([]key.Key, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m.Key)
	}
	return keys
}

// Invalidate marks the closure of targets stale and returns the affected
// keys. Invalidating the same targets twice in a row yields the same stale
// set; marking an already stale entry stale is a no-op.
func (g *Graph) Invalidate(targets ...key.Key) []key.Key {
	if g == nil {
		return nil
	}
	keys := g.Closure(targets...)
	for _, k := range keys {
		g.store.MarkStale(k)
	}
	return keys
}

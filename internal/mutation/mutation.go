// Package mutation executes remote writes with an optimistic local
// reflection and deterministic rollback, then cascades invalidation of
// dependent reads on success.
package mutation

import (
	"context"

	"github.com/apex/log"

	"querycache/internal/invalidate"
	"querycache/internal/key"
	"querycache/internal/obs"
	"querycache/internal/remote"
	"querycache/internal/store"
)

// Patch produces the predicted entry for a target key. It receives a clone
// of the current entry, so mutating Data in place is safe.
type Patch func(k key.Key, current store.Entry) store.Entry

// snapshot is one target's pre-mutation state. Entries are clones: rollback
// must restore them regardless of what happened to the store in between.
type snapshot struct {
	key     key.Key
	entry   store.Entry
	existed bool
}

type Coordinator struct {
	store   *store.Store
	graph   *invalidate.Graph
	metrics *obs.Metrics
}

func New(s *store.Store, graph *invalidate.Graph, metrics *obs.Metrics) *Coordinator {
	return &Coordinator{store: s, graph: graph, metrics: metrics}
}

// Mutate snapshots every target, applies patch optimistically, then invokes
// write. Success discards the snapshots and marks the prefix closure of
// invalidateKeys stale; failure restores every snapshot verbatim and
// returns the classified error to the caller.
//
// Overlapping mutations on the same key do not serialize: the second call
// snapshots whatever the store holds at its invocation, which may include
// the first call's unconfirmed optimistic state. Callers needing stricter
// ordering must queue writes per key themselves.
func (c *Coordinator) Mutate(ctx context.Context, targets []key.Key, patch Patch, write remote.Writer, invalidateKeys []key.Key) (any, error) {
	if c == nil || write == nil {
		return nil, nil
	}

	record := make([]snapshot, 0, len(targets))
	for _, k := range targets {
		current, existed := c.store.Get(k)
		record = append(record, snapshot{key: k, entry: current.Clone(), existed: existed})
		if patch != nil {
			predicted := patch(k, current.Clone())
			c.store.Set(k, predicted)
		}
	}

	result, err := write(ctx)
	if err != nil {
		err = remote.Classify(err)
		for _, snap := range record {
			if snap.existed {
				c.store.Set(snap.key, snap.entry)
			} else {
				c.store.Delete(snap.key)
			}
		}
		c.metrics.RecordMutation(obs.MutationRollback)
		log.Debugf("mutation rolled back targets=%d error=%v", len(record), err)
		return nil, err
	}

	// The write is confirmed; reconciliation with server truth happens via
	// the next EnsureFresh on every dependent key. Trouble past this point
	// is not rolled back.
	stale := c.graph.Invalidate(invalidateKeys...)
	c.metrics.RecordInvalidations(len(stale))
	c.metrics.RecordMutation(obs.MutationSuccess)
	log.Debugf("mutation confirmed targets=%d invalidated=%d", len(record), len(stale))
	return result, nil
}

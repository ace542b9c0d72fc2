// Package querycache is a client-side data synchronization cache: it
// deduplicates and schedules reads against a remote API, tracks per-key
// staleness with background revalidation, and runs writes optimistically
// with rollback on failure and prefix-cascading invalidation on success.
//
// The cache is purely in-memory; nothing survives a process restart except
// through the explicit Snapshot/Hydrate boundary.
package querycache

import (
	"context"
	"sync"
	"time"

	"querycache/internal/executor"
	"querycache/internal/invalidate"
	"querycache/internal/key"
	"querycache/internal/mutation"
	"querycache/internal/obs"
	"querycache/internal/remote"
	"querycache/internal/store"
	"querycache/internal/subscribe"
)

// Key identifies a cacheable read.
type Key = key.Key

// NewKey builds a key from string segments.
func NewKey(segments ...string) Key {
	return key.New(segments...)
}

// KeyOf builds a key from scalar parts.
func KeyOf(parts ...any) Key {
	return key.Of(parts...)
}

// Entry is the cached state for one key.
type Entry = store.Entry

type Status = store.Status

const (
	StatusEmpty   = store.StatusEmpty
	StatusLoading = store.StatusLoading
	StatusSuccess = store.StatusSuccess
	StatusError   = store.StatusError
)

// Fetcher loads the value for one key; Writer performs a remote write.
type (
	Fetcher = remote.Fetcher
	Writer  = remote.Writer
)

// NetworkError and RemoteError are the surfaced halves of the error
// taxonomy; superseded fetches are discarded internally.
type (
	NetworkError = remote.NetworkError
	RemoteError  = remote.RemoteError
)

// FetchOptions controls staleness and polling for a read intent.
type FetchOptions = executor.Options

// Patch predicts a mutation's local effect on one entry.
type Patch = mutation.Patch

// Options configures a Client. The zero value is usable.
type Options struct {
	// Metrics receives cache activity. Nil means no metrics are recorded;
	// obs.NewMetrics wires a private prometheus registry.
	Metrics *obs.Metrics

	// EvictionGrace is how long an entry without subscribers survives
	// before eviction. Defaults to executor.DefaultEvictionGrace.
	EvictionGrace time.Duration
}

// Client owns the cache. It is an explicit context object: create one per
// process (or per test), pass it to every consumer, Close it when done.
type Client struct {
	store       *store.Store
	bus         *subscribe.Bus
	executor    *executor.Executor
	coordinator *mutation.Coordinator
	graph       *invalidate.Graph
	metrics     *obs.Metrics
}

func New(opts Options) *Client {
	bus := subscribe.NewBus()
	st := store.New(bus.Notify)
	graph := invalidate.NewGraph(st)
	exec := executor.New(st, opts.Metrics, bus.Count, opts.EvictionGrace)
	bus.OnTransition(exec.FirstSubscriber, exec.LastUnsubscribe)
	return &Client{
		store:       st,
		bus:         bus,
		executor:    exec,
		coordinator: mutation.New(st, graph, opts.Metrics),
		graph:       graph,
		metrics:     opts.Metrics,
	}
}

// Get returns the current entry without any side effect.
func (c *Client) Get(k Key) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	return c.store.Get(k)
}

// EnsureFresh returns a fresh entry for k, coalescing concurrent callers
// onto a single fetch. See executor.Executor.EnsureFresh.
func (c *Client) EnsureFresh(ctx context.Context, k Key, fetch Fetcher, opts FetchOptions) (Entry, error) {
	if c == nil {
		return Entry{}, nil
	}
	return c.executor.EnsureFresh(ctx, k, fetch, opts)
}

// Mutate applies patch to every target optimistically, runs write, and on
// failure restores the pre-mutation snapshots exactly. On success the
// prefix closure of invalidateKeys is marked stale so the next read
// reconciles with server truth.
func (c *Client) Mutate(ctx context.Context, targets []Key, patch Patch, write Writer, invalidateKeys []Key) (any, error) {
	if c == nil {
		return nil, nil
	}
	return c.coordinator.Mutate(ctx, targets, patch, write, invalidateKeys)
}

// Invalidate marks every cached key extending any of keys stale and
// returns the affected set. Idempotent.
func (c *Client) Invalidate(keys ...Key) []Key {
	if c == nil {
		return nil
	}
	stale := c.graph.Invalidate(keys...)
	c.metrics.RecordInvalidations(len(stale))
	return stale
}

// Subscription is a disposable handle for one subscriber.
type Subscription struct {
	inner   *subscribe.Subscription
	metrics *obs.Metrics
	once    sync.Once
}

// Cancel unsubscribes. The key's entry becomes eligible for eviction once
// its subscriber count reaches zero; an in-flight fetch still completes
// and its result is still cached.
func (s *Subscription) Cancel() {
	if s == nil || s.inner == nil {
		return
	}
	s.once.Do(func() {
		s.inner.Cancel()
		s.metrics.SubscriberRemoved()
	})
}

// Subscribe registers onChange for k. The callback runs synchronously in
// the goroutine that changed the entry, so it must not block.
func (c *Client) Subscribe(k Key, onChange func(Entry)) *Subscription {
	if c == nil || onChange == nil {
		return nil
	}
	inner := c.bus.Subscribe(k, onChange)
	c.metrics.SubscriberAdded()
	return &Subscription{inner: inner, metrics: c.metrics}
}

// Subscribers returns the count for k.
func (c *Client) Subscribers(k Key) int {
	if c == nil {
		return 0
	}
	return c.bus.Count(k)
}

// Len returns the number of cached entries.
func (c *Client) Len() int {
	if c == nil {
		return 0
	}
	return c.store.Len()
}

// Reset drops all entries, subscriptions, armed polls and pending
// evictions without notification. Test lifecycle hook; the client stays
// usable afterwards.
func (c *Client) Reset() {
	if c == nil {
		return
	}
	// Bus first: a poll tick racing the reset must observe zero subscribers
	// so it cannot re-arm itself.
	c.bus.Reset()
	c.executor.Reset()
	c.store.Reset()
}

// Close stops background polling and pending evictions. In-flight fetches
// run to completion.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.executor.Close()
}

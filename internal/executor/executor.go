// Package executor orchestrates reads: it guarantees at most one in-flight
// fetch per key, applies the staleness policy, and re-issues reads on a
// timer while a key has subscribers.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"querycache/internal/key"
	"querycache/internal/obs"
	"querycache/internal/remote"
	"querycache/internal/store"
)

const DefaultEvictionGrace = 5 * time.Minute

// Options controls one read intent.
type Options struct {
	// StaleAfter is how long a successful fetch stays fresh. Zero means the
	// entry is stale immediately and every EnsureFresh revalidates.
	StaleAfter time.Duration

	// RefetchInterval, when positive, re-issues the read at this cadence for
	// as long as the key has at least one subscriber.
	RefetchInterval time.Duration
}

// flight is one authoritative in-flight fetch. Concurrent callers for the
// same key attach to it instead of issuing a second network call.
type flight struct {
	id    string
	done  chan struct{}
	entry store.Entry
	err   error
}

type pollSpec struct {
	key   key.Key
	fetch remote.Fetcher
	opts  Options
}

type Executor struct {
	store   *store.Store
	metrics *obs.Metrics

	mu        sync.Mutex
	flights   map[string]*flight
	polls     map[string]pollSpec
	active    map[string]chan struct{}
	evictions map[string]*time.Timer
	subCount  func(key.Key) int
	grace     time.Duration
	closed    bool
}

func New(s *store.Store, metrics *obs.Metrics, subCount func(key.Key) int, grace time.Duration) *Executor {
	if grace <= 0 {
		grace = DefaultEvictionGrace
	}
	return &Executor{
		store:     s,
		metrics:   metrics,
		flights:   make(map[string]*flight),
		polls:     make(map[string]pollSpec),
		active:    make(map[string]chan struct{}),
		evictions: make(map[string]*time.Timer),
		subCount:  subCount,
		grace:     grace,
	}
}

// EnsureFresh returns a fresh entry for k, fetching at most once no matter
// how many callers ask concurrently. A fresh cached entry is returned
// without network action; an in-flight fetch absorbs the caller; otherwise
// a new fetch runs in the calling goroutine while the entry shows
// StatusLoading with its stale data intact.
func (e *Executor) EnsureFresh(ctx context.Context, k key.Key, fetch remote.Fetcher, opts Options) (store.Entry, error) {
	if e == nil || fetch == nil {
		return store.Entry{}, nil
	}
	encoded := k.String()
	e.registerPoll(k, fetch, opts)

	e.mu.Lock()
	if existing, ok := e.flights[encoded]; ok {
		e.mu.Unlock()
		e.metrics.RecordCoalescedWait()
		return e.wait(ctx, k, existing)
	}
	entry, cached := e.store.Get(k)
	if cached && entry.Status == store.StatusSuccess && !entry.FetchedAt.IsZero() && time.Since(entry.FetchedAt) < opts.StaleAfter {
		e.mu.Unlock()
		e.metrics.RecordLookup(obs.LookupHit)
		return entry, nil
	}
	current := &flight{id: uuid.NewString(), done: make(chan struct{})}
	e.flights[encoded] = current
	e.mu.Unlock()

	if cached && entry.Status == store.StatusSuccess {
		e.metrics.RecordLookup(obs.LookupStale)
	} else {
		e.metrics.RecordLookup(obs.LookupMiss)
	}
	log.Debugf("fetch start key=%s request=%s", encoded, current.id)

	// Loading preserves last-known-good data so consumers can render stale
	// content while the revalidation runs.
	e.store.Update(k, func(cur store.Entry) (store.Entry, bool) {
		cur.Status = store.StatusLoading
		cur.Err = nil
		cur.StaleAfter = opts.StaleAfter
		cur.InFlightRequestID = current.id
		return cur, true
	})

	data, fetchErr := fetch(ctx)
	fetchErr = remote.Classify(fetchErr)

	var settled store.Entry
	applied := e.store.Update(k, func(cur store.Entry) (store.Entry, bool) {
		if cur.InFlightRequestID != current.id {
			settled = cur
			return cur, false
		}
		cur.InFlightRequestID = ""
		if fetchErr != nil {
			// Failed revalidation keeps the previous data and timestamp.
			cur.Status = store.StatusError
			cur.Err = fetchErr
		} else {
			cur.Status = store.StatusSuccess
			cur.Data = data
			cur.Err = nil
			cur.FetchedAt = time.Now()
			cur.StaleAfter = opts.StaleAfter
		}
		settled = cur
		return cur, true
	})

	e.mu.Lock()
	if e.flights[encoded] == current {
		delete(e.flights, encoded)
	}
	e.mu.Unlock()

	switch {
	case !applied:
		// A newer request took over the key while this fetch was out. The
		// stale result is discarded; waiters see whatever is current.
		e.metrics.RecordFetch(obs.FetchSuperseded)
		log.Debugf("fetch superseded key=%s request=%s", encoded, current.id)
		current.entry = settled
	case fetchErr != nil:
		e.metrics.RecordFetch(obs.FetchError)
		log.Debugf("fetch error key=%s request=%s error=%v", encoded, current.id, fetchErr)
		current.entry = settled
		current.err = fetchErr
	default:
		e.metrics.RecordFetch(obs.FetchSuccess)
		log.Debugf("fetch done key=%s request=%s", encoded, current.id)
		current.entry = settled
	}
	close(current.done)
	return current.entry, current.err
}

func (e *Executor) wait(ctx context.Context, k key.Key, f *flight) (store.Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.entry, f.err
	case <-ctx.Done():
		entry, _ := e.store.Get(k)
		return entry, ctx.Err()
	}
}

// InFlight reports whether a fetch for k is outstanding.
func (e *Executor) InFlight(k key.Key) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	_, ok := e.flights[k.String()]
	e.mu.Unlock()
	return ok
}

// Reset disarms every armed poll and pending eviction and forgets the
// registered poll specs. Unlike Close, the executor stays usable; polling
// re-arms when a fresh read intent meets a subscribed key.
func (e *Executor) Reset() {
	if e == nil {
		return
	}
	e.mu.Lock()
	for encoded, stop := range e.active {
		close(stop)
		delete(e.active, encoded)
	}
	for encoded, timer := range e.evictions {
		timer.Stop()
		delete(e.evictions, encoded)
	}
	e.polls = make(map[string]pollSpec)
	e.mu.Unlock()
}

// Close stops every armed poll and pending eviction. In-flight fetches run
// to completion.
func (e *Executor) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.closed = true
	for encoded, stop := range e.active {
		close(stop)
		delete(e.active, encoded)
	}
	for encoded, timer := range e.evictions {
		timer.Stop()
		delete(e.evictions, encoded)
	}
	e.mu.Unlock()
}

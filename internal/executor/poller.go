package executor

import (
	"context"
	"time"

	"github.com/apex/log"

	"querycache/internal/key"
)

// registerPoll remembers the latest read intent for k so subscriber
// transitions can arm and disarm the recurring refetch. If the key already
// has subscribers the poll is armed immediately.
func (e *Executor) registerPoll(k key.Key, fetch func(context.Context) (any, error), opts Options) {
	if opts.RefetchInterval <= 0 {
		return
	}
	encoded := k.String()
	e.mu.Lock()
	previous, registered := e.polls[encoded]
	e.polls[encoded] = pollSpec{key: k, fetch: fetch, opts: opts}
	if stop, armed := e.active[encoded]; armed {
		// A ticker running at the old cadence would ignore the new intent.
		if registered && previous.opts.RefetchInterval != opts.RefetchInterval {
			close(stop)
			delete(e.active, encoded)
			if !e.closed {
				e.armLocked(encoded)
			}
		}
		e.mu.Unlock()
		return
	}
	subscribed := e.subCount != nil && e.subCount(k) > 0
	if subscribed && !e.closed {
		e.armLocked(encoded)
	}
	e.mu.Unlock()
}

// FirstSubscriber is wired to the bus's 0→1 transition: it cancels any
// pending eviction and arms the registered poll.
func (e *Executor) FirstSubscriber(k key.Key) {
	if e == nil {
		return
	}
	encoded := k.String()
	e.mu.Lock()
	if timer, ok := e.evictions[encoded]; ok {
		timer.Stop()
		delete(e.evictions, encoded)
	}
	if _, registered := e.polls[encoded]; registered && e.active[encoded] == nil && !e.closed {
		e.armLocked(encoded)
	}
	e.mu.Unlock()
}

// LastUnsubscribe is wired to the bus's 1→0 transition: it disarms polling
// and schedules eviction after the grace period. An in-flight fetch is
// never aborted and blocks the eviction when the grace expires.
func (e *Executor) LastUnsubscribe(k key.Key) {
	if e == nil {
		return
	}
	encoded := k.String()
	e.mu.Lock()
	if stop, ok := e.active[encoded]; ok {
		close(stop)
		delete(e.active, encoded)
	}
	if e.closed {
		e.mu.Unlock()
		return
	}
	if timer, ok := e.evictions[encoded]; ok {
		timer.Stop()
	}
	e.evictions[encoded] = time.AfterFunc(e.grace, func() {
		e.evict(k)
	})
	e.mu.Unlock()
}

func (e *Executor) evict(k key.Key) {
	encoded := k.String()
	e.mu.Lock()
	delete(e.evictions, encoded)
	subscribed := e.subCount != nil && e.subCount(k) > 0
	if _, inFlight := e.flights[encoded]; inFlight {
		// The grace expired mid-fetch. The fetch is never aborted; the
		// eviction re-arms so the key cannot linger once it settles.
		if !subscribed && !e.closed {
			e.evictions[encoded] = time.AfterFunc(e.grace, func() {
				e.evict(k)
			})
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	if subscribed {
		return
	}
	log.Debugf("evict key=%s", encoded)
	e.store.Delete(k)
}

// armLocked starts the poll goroutine for encoded. Caller holds e.mu.
func (e *Executor) armLocked(encoded string) {
	spec := e.polls[encoded]
	stop := make(chan struct{})
	e.active[encoded] = stop
	log.Debugf("poll armed key=%s interval=%s", encoded, spec.opts.RefetchInterval)
	go func() {
		ticker := time.NewTicker(spec.opts.RefetchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// Errors land on the entry and reach subscribers there.
				_, _ = e.EnsureFresh(context.Background(), spec.key, spec.fetch, spec.opts)
			}
		}
	}()
}

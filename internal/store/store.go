// Package store holds the in-memory cache entries. It is the single source
// of truth for cached data and its lifecycle state; everything else mutates
// it only through the executor and mutation contracts.
package store

import (
	"sync"
	"time"

	"querycache/internal/key"
)

// Notifier receives the new entry state after a store mutation commits.
// Called synchronously in the mutating goroutine, outside the store lock.
type Notifier func(k key.Key, entry Entry)

type record struct {
	key   key.Key
	entry Entry
}

// Match is one key/entry pair from EntriesMatching.
type Match struct {
	Key   key.Key
	Entry Entry
}

type Store struct {
	mu      sync.Mutex
	entries map[string]record
	notify  Notifier
}

func New(notify Notifier) *Store {
	return &Store{
		entries: make(map[string]record),
		notify:  notify,
	}
}

// Get returns the current entry for k. No side effects.
func (s *Store) Get(k key.Key) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	s.mu.Lock()
	rec, ok := s.entries[k.String()]
	s.mu.Unlock()
	if !ok {
		return Entry{}, false
	}
	return rec.entry, true
}

// Set replaces the entry for k. The last Set to complete wins. Subscribers
// of exactly k are notified.
func (s *Store) Set(k key.Key, entry Entry) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.entries[k.String()] = record{key: k, entry: entry}
	s.mu.Unlock()
	if s.notify != nil {
		s.notify(k, entry)
	}
}

// Update applies fn to the current entry for k (zero Entry if absent) under
// the store lock and stores the result. fn returning false leaves the store
// untouched and skips notification; this is how superseded fetch results
// are discarded atomically.
func (s *Store) Update(k key.Key, fn func(Entry) (Entry, bool)) bool {
	if s == nil {
		return false
	}
	encoded := k.String()
	s.mu.Lock()
	rec, ok := s.entries[encoded]
	if !ok {
		rec = record{key: k, entry: Entry{Status: StatusEmpty}}
	}
	next, apply := fn(rec.entry)
	if apply {
		s.entries[encoded] = record{key: k, entry: next}
	}
	s.mu.Unlock()
	if apply && s.notify != nil {
		s.notify(k, next)
	}
	return apply
}

// Delete removes the entry and notifies subscribers with an empty entry.
func (s *Store) Delete(k key.Key) {
	if s == nil {
		return
	}
	encoded := k.String()
	s.mu.Lock()
	_, existed := s.entries[encoded]
	delete(s.entries, encoded)
	s.mu.Unlock()
	if existed && s.notify != nil {
		s.notify(k, Entry{Status: StatusEmpty})
	}
}

// MarkStale zeroes FetchedAt so the next freshness check fails and the next
// EnsureFresh issues a real fetch. Idempotent; reports whether k was cached.
func (s *Store) MarkStale(k key.Key) bool {
	if s == nil {
		return false
	}
	encoded := k.String()
	s.mu.Lock()
	rec, ok := s.entries[encoded]
	if ok {
		rec.entry.FetchedAt = time.Time{}
		s.entries[encoded] = rec
	}
	s.mu.Unlock()
	return ok
}

// EntriesMatching snapshots the key set at call time and returns the pairs
// accepted by predicate. Later mutations are not observed by the result.
func (s *Store) EntriesMatching(predicate func(key.Key, Entry) bool) []Match {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	matches := make([]Match, 0, len(s.entries))
	for _, rec := range s.entries {
		if predicate == nil || predicate(rec.key, rec.entry) {
			matches = append(matches, Match{Key: rec.key, Entry: rec.entry})
		}
	}
	s.mu.Unlock()
	return matches
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	return n
}

// Reset drops every entry without notification. Test lifecycle hook.
func (s *Store) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.entries = make(map[string]record)
	s.mu.Unlock()
}

// Export clones every entry for the hydration boundary. In-flight request
// ids are stripped: an outstanding fetch never survives serialization.
func (s *Store) Export() []Match {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	matches := make([]Match, 0, len(s.entries))
	for _, rec := range s.entries {
		entry := rec.entry.Clone()
		entry.InFlightRequestID = ""
		if entry.Status == StatusLoading {
			if entry.FetchedAt.IsZero() {
				entry.Status = StatusEmpty
			} else {
				entry.Status = StatusSuccess
			}
		}
		matches = append(matches, Match{Key: rec.key, Entry: entry})
	}
	s.mu.Unlock()
	return matches
}

// Import seeds entries without notification. Existing entries with the same
// key are replaced.
func (s *Store) Import(matches []Match) {
	if s == nil {
		return
	}
	s.mu.Lock()
	for _, m := range matches {
		entry := m.Entry
		entry.InFlightRequestID = ""
		s.entries[m.Key.String()] = record{key: m.Key, entry: entry}
	}
	s.mu.Unlock()
}

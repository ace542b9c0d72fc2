package querycache

import (
	"encoding/json"
	"fmt"
	"time"

	"querycache/internal/remote"
	"querycache/internal/store"
)

// snapshotEntry is the wire form of one cache entry. In-flight request ids
// are never serialized; errors are flattened to their message.
type snapshotEntry struct {
	Key          []string     `json:"key"`
	Status       store.Status `json:"status"`
	Data         any          `json:"data,omitempty"`
	Error        string       `json:"error,omitempty"`
	FetchedAt    time.Time    `json:"fetched_at"`
	StaleAfterMS int64        `json:"stale_after_ms,omitempty"`
}

type snapshotDoc struct {
	Entries []snapshotEntry `json:"entries"`
}

// Snapshot serializes every entry for transfer to a new process instance.
// Loading entries are exported as their last settled state.
func (c *Client) Snapshot() ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	matches := c.store.Export()
	doc := snapshotDoc{Entries: make([]snapshotEntry, 0, len(matches))}
	for _, m := range matches {
		wire := snapshotEntry{
			Key:          m.Key,
			Status:       m.Entry.Status,
			Data:         m.Entry.Data,
			FetchedAt:    m.Entry.FetchedAt,
			StaleAfterMS: m.Entry.StaleAfter.Milliseconds(),
		}
		if m.Entry.Err != nil {
			wire.Error = m.Entry.Err.Error()
		}
		doc.Entries = append(doc.Entries, wire)
	}
	return json.Marshal(doc)
}

// Hydrate seeds the cache from a serialized snapshot, replacing entries
// whose keys collide. Hydrated data decodes to generic JSON shapes; typed
// access resumes after the first real fetch.
func (c *Client) Hydrate(data []byte) error {
	if c == nil || len(data) == 0 {
		return nil
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	matches := make([]store.Match, 0, len(doc.Entries))
	for _, wire := range doc.Entries {
		entry := store.Entry{
			Data:       wire.Data,
			Status:     wire.Status,
			FetchedAt:  wire.FetchedAt,
			StaleAfter: time.Duration(wire.StaleAfterMS) * time.Millisecond,
		}
		if wire.Error != "" {
			entry.Err = &remote.RemoteError{Message: wire.Error}
		}
		matches = append(matches, store.Match{Key: NewKey(wire.Key...), Entry: entry})
	}
	c.store.Import(matches)
	return nil
}

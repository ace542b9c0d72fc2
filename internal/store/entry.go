package store

import (
	"time"
)

type Status string

const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is the cached state for one query key. StatusSuccess implies Data
// is present and FetchedAt is set. InFlightRequestID identifies the single
// outstanding fetch, if any, and never survives serialization.
type Entry struct {
	Data              any
	Status            Status
	Err               error
	FetchedAt         time.Time
	StaleAfter        time.Duration
	InFlightRequestID string
}

// Fresh reports whether the entry can be served without revalidation.
func (e Entry) Fresh(now time.Time) bool {
	if e.Status != StatusSuccess || e.FetchedAt.IsZero() {
		return false
	}
	if e.StaleAfter <= 0 {
		return false
	}
	return now.Sub(e.FetchedAt) < e.StaleAfter
}

// InFlight reports whether a fetch currently targets the entry.
func (e Entry) InFlight() bool {
	return e.InFlightRequestID != ""
}

// Clone returns a copy whose Data shares no mutable state with the
// receiver. Mutation rollback depends on this: records hold clones, never
// references into the store.
func (e Entry) Clone() Entry {
	clone := e
	clone.Data = cloneValue(e.Data)
	return clone
}

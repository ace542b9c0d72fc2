// Package remote is the boundary to the remote API collaborators. The cache
// never mandates a transport; it only classifies what comes back.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Fetcher loads the current value for one query key.
type Fetcher func(ctx context.Context) (any, error)

// Writer performs a remote write and returns the server's result.
type Writer func(ctx context.Context) (any, error)

// ErrSuperseded marks a fetch result that resolved after a newer request
// took over the key. It is discarded internally and never stored on an
// entry or surfaced to subscribers.
var ErrSuperseded = errors.New("request superseded")

// NetworkError wraps a transport or connectivity failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteError is a non-success response from the remote API.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote error: %s", e.Message)
}

// Classify folds an arbitrary collaborator error into the cache's taxonomy.
// Errors already in the taxonomy pass through unchanged; net errors and
// context failures become NetworkError; anything else is treated as a
// RemoteError with the error text as message.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return err
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return err
	}
	if errors.Is(err, ErrSuperseded) {
		return err
	}
	var opErr net.Error
	if errors.As(err, &opErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &NetworkError{Err: err}
	}
	return &RemoteError{Message: err.Error()}
}

package querycache

import (
	"context"
)

// Data extracts an entry's payload as T. The second return is false when
// the entry holds no data or data of another type.
func Data[T any](e Entry) (T, bool) {
	v, ok := e.Data.(T)
	return v, ok
}

// Resource binds a key prefix to a payload type at the call site, so the
// shape of each key's data is declared where the key is declared instead
// of inferred ambiently.
type Resource[T any] struct {
	prefix Key
}

func NewResource[T any](segments ...string) Resource[T] {
	return Resource[T]{prefix: NewKey(segments...)}
}

// Prefix returns the resource's root key, the natural invalidation target
// for every variant beneath it.
func (r Resource[T]) Prefix() Key {
	return r.prefix
}

// Key extends the resource prefix with identifying segments.
func (r Resource[T]) Key(segments ...string) Key {
	return r.prefix.Append(segments...)
}

// Get returns the typed payload cached under the given key.
func (r Resource[T]) Get(c *Client, k Key) (T, bool) {
	var zero T
	entry, ok := c.Get(k)
	if !ok {
		return zero, false
	}
	v, ok := entry.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// EnsureFresh runs a typed read intent through the client's executor.
func (r Resource[T]) EnsureFresh(ctx context.Context, c *Client, k Key, fetch func(context.Context) (T, error), opts FetchOptions) (T, Entry, error) {
	var zero T
	entry, err := c.EnsureFresh(ctx, k, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts)
	if err != nil {
		return zero, entry, err
	}
	v, _ := entry.Data.(T)
	return v, entry, nil
}

// Package subscribe tracks interested observers per query key and delivers
// entry changes to them synchronously. Unsubscription is an explicit handle,
// never garbage-collection based.
package subscribe

import (
	"sync"

	"querycache/internal/key"
	"querycache/internal/store"
)

// Callback receives the entry snapshot after every change to its key.
type Callback func(entry store.Entry)

// Transition fires when a key's subscriber count crosses zero. The executor
// arms polling on first-subscriber and disarms it on last-unsubscribe.
type Transition func(k key.Key)

type Subscription struct {
	bus  *Bus
	key  key.Key
	id   uint64
	once sync.Once
}

func (s *Subscription) Key() key.Key {
	if s == nil {
		return nil
	}
	return s.key
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s.key, s.id)
	})
}

type Bus struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[string]map[uint64]Callback
	onFirst Transition
	onLast  Transition
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]Callback)}
}

// OnTransition installs the 0→1 and 1→0 hooks. Must be called before any
// Subscribe.
func (b *Bus) OnTransition(first, last Transition) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.onFirst = first
	b.onLast = last
	b.mu.Unlock()
}

func (b *Bus) Subscribe(k key.Key, fn Callback) *Subscription {
	if b == nil || fn == nil {
		return nil
	}
	encoded := k.String()
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	callbacks, ok := b.subs[encoded]
	if !ok {
		callbacks = make(map[uint64]Callback)
		b.subs[encoded] = callbacks
	}
	callbacks[id] = fn
	first := len(callbacks) == 1
	onFirst := b.onFirst
	b.mu.Unlock()

	if first && onFirst != nil {
		onFirst(k)
	}
	return &Subscription{bus: b, key: k, id: id}
}

func (b *Bus) remove(k key.Key, id uint64) {
	encoded := k.String()
	b.mu.Lock()
	callbacks, ok := b.subs[encoded]
	if ok {
		delete(callbacks, id)
		if len(callbacks) == 0 {
			delete(b.subs, encoded)
		}
	}
	last := ok && len(callbacks) == 0
	onLast := b.onLast
	b.mu.Unlock()

	if last && onLast != nil {
		onLast(k)
	}
}

// Notify delivers entry to every subscriber of exactly k, in the calling
// goroutine. Zero subscribers means no delivery; the result of a fetch that
// outlived its audience is still cached, just not announced.
func (b *Bus) Notify(k key.Key, entry store.Entry) {
	if b == nil {
		return
	}
	encoded := k.String()
	b.mu.Lock()
	callbacks := make([]Callback, 0, len(b.subs[encoded]))
	for _, fn := range b.subs[encoded] {
		callbacks = append(callbacks, fn)
	}
	b.mu.Unlock()
	for _, fn := range callbacks {
		fn(entry)
	}
}

// Count returns the subscriber count for k.
func (b *Bus) Count(k key.Key) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	n := len(b.subs[k.String()])
	b.mu.Unlock()
	return n
}

// Reset drops every subscription without firing transitions.
func (b *Bus) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.subs = make(map[string]map[uint64]Callback)
	b.mu.Unlock()
}

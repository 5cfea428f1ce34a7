// Package dedupe tracks client idempotency keys for judgment submissions.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMaxSize bounds the number of keys remembered by default.
const DefaultMaxSize = 10000

// Tracker remembers which submission keys were already accepted and the
// record id each produced.
type Tracker interface {
	// Claim records key with value unless key is already known. It returns
	// the stored value and true when key was seen before.
	Claim(ctx context.Context, key, value string) (string, bool)

	// Release forgets key so a failed submission can be retried.
	Release(ctx context.Context, key string)

	Size() int
}

type entry struct {
	key   string
	value string
}

// memoryTracker keeps keys in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 disables eviction.
type memoryTracker struct {
	mu      sync.Mutex
	byKey   map[string]*list.Element
	order   *list.List
	maxSize int
}

// Option applies a configuration option to the tracker.
type Option func(*memoryTracker)

// WithMaxSize sets how many keys are kept. Zero or negative keeps all of them.
func WithMaxSize(maxSize int) Option {
	return func(t *memoryTracker) {
		t.maxSize = maxSize
	}
}

// NewTracker creates an in-memory tracker.
func NewTracker(opts ...Option) Tracker {
	t := &memoryTracker{
		byKey:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *memoryTracker) Claim(_ context.Context, key, value string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.byKey[key]; ok {
		return el.Value.(*entry).value, true
	}
	if t.maxSize > 0 && t.order.Len() >= t.maxSize {
		oldest := t.order.Front()
		t.order.Remove(oldest)
		delete(t.byKey, oldest.Value.(*entry).key)
	}
	t.byKey[key] = t.order.PushBack(&entry{key: key, value: value})
	return value, false
}

func (t *memoryTracker) Release(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.byKey[key]; ok {
		t.order.Remove(el)
		delete(t.byKey, key)
	}
}

func (t *memoryTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

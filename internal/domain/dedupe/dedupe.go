// Package dedupe tracks keys that already have work in flight.
//
// The service uses it to coalesce score recomputes: a user with a pending
// recompute job is not enqueued again until a worker picks the job up.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50_000

// Deduper records keys so that repeated submissions collapse into one.
type Deduper interface {
	// SeenAndRecord atomically checks if key was recorded and records it if not.
	// Returns true if key was already present.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so that the next submission is accepted again.
	Unrecord(ctx context.Context, key string)

	// Size returns the number of recorded keys.
	Size() int64
}

// inMemoryDeduper keeps keys in insertion order. When bounded and full, the
// oldest key is evicted: an evicted key only costs a redundant recompute.
type inMemoryDeduper struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List
	maxSize int // <= 0 means unbounded
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		keys:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.keys[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.keys) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.keys, oldest.Value.(string))
			d.order.Remove(oldest)
		}
	}
	d.keys[key] = d.order.PushBack(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.keys[key]; ok {
		d.order.Remove(el)
		delete(d.keys, key)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.keys))
}

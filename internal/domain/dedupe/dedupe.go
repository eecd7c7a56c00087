// Package dedupe tracks uploaded batches so identical re-submissions map to
// the batch already accepted.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 10_000

// Key fingerprints a submission. Equal bytes, threshold and model hash give
// equal keys.
func Key(data []byte, threshold float64, modelHash string) string {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(threshold, 'g', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(modelHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Deduper maps submission keys to batch IDs.
type Deduper interface {
	// Claim registers id under key unless key is already known. It returns
	// the owning batch ID and whether it was already present.
	Claim(ctx context.Context, key, id string) (string, bool)

	// Release forgets key so the submission can be retried. Used when an
	// accepted batch could not be enqueued.
	Release(ctx context.Context, key string)

	// Replace moves key from oldID to newID. It claims key for newID when
	// key is unknown. If another batch owns key it returns that owner and
	// false.
	Replace(ctx context.Context, key, oldID, newID string) (string, bool)

	Size() int64
}

// node is an entry in the insertion-ordered list.
type node struct {
	key        string
	id         string
	prev, next *node
}

func (n *node) reset() {
	*n = node{}
}

// inMemoryDeduper keeps at most maxSize keys, evicting the oldest first.
// maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu         sync.Mutex
	seen       map[string]*node
	head, tail *node // head is newest
	maxSize    int
	size       atomic.Int64
	nodePool   sync.Pool
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*node),
		nodePool: sync.Pool{
			New: func() interface{} { return &node{} },
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, key, id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.seen[key]; ok {
		return n.id, true
	}
	d.insert(key, id)
	return id, false
}

func (d *inMemoryDeduper) Replace(_ context.Context, key, oldID, newID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.seen[key]; ok {
		if n.id != oldID {
			return n.id, false
		}
		d.remove(n)
	}
	d.insert(key, newID)
	return newID, true
}

// insert adds key as the newest entry. Must be called with d.mu held.
func (d *inMemoryDeduper) insert(key, id string) {
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.remove(d.tail)
	}

	n := d.nodePool.Get().(*node)
	n.key, n.id = key, id
	n.next = d.head
	if d.head != nil {
		d.head.prev = n
	}
	d.head = n
	if d.tail == nil {
		d.tail = n
	}
	d.seen[key] = n
	d.size.Add(1)
}

func (d *inMemoryDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.seen[key]; ok {
		d.remove(n)
	}
}

// remove unlinks n. Must be called with d.mu held.
func (d *inMemoryDeduper) remove(n *node) {
	if n == nil {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	delete(d.seen, n.key)
	n.reset()
	d.nodePool.Put(n)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

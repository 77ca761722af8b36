package space

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TagIndex holds the tuples of one tag, keyed by id, together with the signal
// blocked readers and takers wait on.
type TagIndex struct {
	tag string

	mu     sync.RWMutex
	tuples map[uint64]*entry
	signal chan struct{}

	// waiters is incremented under the store lock so pruning never drops a
	// bucket someone is about to wait on.
	waiters atomic.Int64
}

func newTagIndex(tag string) *TagIndex {
	return &TagIndex{
		tag:    tag,
		tuples: make(map[uint64]*entry),
		signal: make(chan struct{}),
	}
}

// Tag returns the tag this bucket holds.
func (b *TagIndex) Tag() string { return b.tag }

// Len returns the number of tuples in the bucket, expired or not.
func (b *TagIndex) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tuples)
}

// Waiting reports whether any caller is blocked on the bucket.
func (b *TagIndex) Waiting() bool {
	return b.waiters.Load() > 0
}

// Changed returns a channel that is closed on the next insertion. Capture it
// before scanning so an insert racing with the scan is never missed.
func (b *TagIndex) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.signal
}

// insert adds e and wakes every waiter on the bucket.
func (b *TagIndex) insert(e *entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.tuples[e.id]; exists {
		return fmt.Errorf("%w: %d in tag %q", ErrDuplicateID, e.id, b.tag)
	}
	b.tuples[e.id] = e

	close(b.signal)
	b.signal = make(chan struct{})
	return nil
}

func (b *TagIndex) remove(id uint64) *entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.tuples[id]
	if !ok {
		return nil
	}
	delete(b.tuples, id)
	return e
}

func (b *TagIndex) find(id uint64) *entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tuples[id]
}

// entries returns the current contents. Iteration order is unspecified.
func (b *TagIndex) entries() []*entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*entry, 0, len(b.tuples))
	for _, e := range b.tuples {
		out = append(out, e)
	}
	return out
}

package space

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultPruneEvery is the number of removals between sweeps for empty buckets.
const DefaultPruneEvery = 5000

// TupleStore is the registry of tag buckets and the owner of the id sequence.
//
// The store lock guards the tag to bucket map only. Bucket contents have their
// own lock, so churn inside one tag does not contend with other tags. Inserts and
// removals hold the store read lock for the duration of the bucket operation,
// which keeps them atomic with respect to pruning. Ids are unique across all
// tags, tracked in a separate id to tag index.
type TupleStore struct {
	mu      sync.RWMutex
	buckets map[string]*TagIndex

	idMu   sync.Mutex
	owners map[uint64]string

	seq        atomic.Uint64
	removals   atomic.Uint64
	pruneEvery uint64
}

// NewTupleStore creates an empty store. pruneEvery <= 0 selects DefaultPruneEvery.
func NewTupleStore(pruneEvery int) *TupleStore {
	if pruneEvery <= 0 {
		pruneEvery = DefaultPruneEvery
	}
	return &TupleStore{
		buckets:    make(map[string]*TagIndex),
		owners:     make(map[uint64]string),
		pruneEvery: uint64(pruneEvery),
	}
}

// NextID allocates the next tuple id. Ids start at 1 and are never reused.
func (s *TupleStore) NextID() uint64 {
	return s.seq.Add(1)
}

// reserve advances the sequence past an explicitly supplied id.
func (s *TupleStore) reserve(id uint64) {
	for {
		cur := s.seq.Load()
		if cur >= id || s.seq.CompareAndSwap(cur, id) {
			return
		}
	}
}

// Bucket returns the bucket for tag, or nil if none exists.
func (s *TupleStore) Bucket(tag string) *TagIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buckets[tag]
}

// EnsureBucket returns the bucket for tag, creating it if needed.
func (s *TupleStore) EnsureBucket(tag string) *TagIndex {
	if b := s.Bucket(tag); b != nil {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(tag)
}

func (s *TupleStore) ensureLocked(tag string) *TagIndex {
	b, ok := s.buckets[tag]
	if !ok {
		b = newTagIndex(tag)
		s.buckets[tag] = b
	}
	return b
}

// acquireWaiter returns the bucket for tag with its waiter count raised. The
// bucket survives pruning until releaseWaiter is called.
func (s *TupleStore) acquireWaiter(tag string) *TagIndex {
	s.mu.RLock()
	if b, ok := s.buckets[tag]; ok {
		b.waiters.Add(1)
		s.mu.RUnlock()
		return b
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.ensureLocked(tag)
	b.waiters.Add(1)
	return b
}

func (s *TupleStore) releaseWaiter(b *TagIndex) {
	b.waiters.Add(-1)
}

// insert stores e in its tag bucket, creating the bucket if absent. An id held
// by a stored tuple of any tag is rejected with ErrDuplicateID.
func (s *TupleStore) insert(e *entry) error {
	if e.tag == "" {
		return fmt.Errorf("%w: tag is required", ErrInvalidTuple)
	}

	s.idMu.Lock()
	if tag, taken := s.owners[e.id]; taken {
		s.idMu.Unlock()
		return fmt.Errorf("%w: %d in tag %q", ErrDuplicateID, e.id, tag)
	}
	s.owners[e.id] = e.tag
	s.idMu.Unlock()

	if err := s.insertBucket(e); err != nil {
		s.releaseID(e.id, e.tag)
		return err
	}
	return nil
}

func (s *TupleStore) insertBucket(e *entry) error {
	s.mu.RLock()
	b, ok := s.buckets[e.tag]
	if ok {
		err := b.insert(e)
		s.mu.RUnlock()
		return err
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(e.tag).insert(e)
}

// removeByID removes and returns the entry, or nil if it is already gone.
func (s *TupleStore) removeByID(tag string, id uint64) *entry {
	s.mu.RLock()
	b, ok := s.buckets[tag]
	var e *entry
	if ok {
		e = b.remove(id)
	}
	s.mu.RUnlock()

	if e != nil {
		s.releaseID(id, tag)
	}

	if e != nil && s.removals.Add(1)%s.pruneEvery == 0 {
		s.Prune()
	}
	return e
}

func (s *TupleStore) releaseID(id uint64, tag string) {
	s.idMu.Lock()
	if s.owners[id] == tag {
		delete(s.owners, id)
	}
	s.idMu.Unlock()
}

// TagOf returns the tag of the stored tuple with id.
func (s *TupleStore) TagOf(id uint64) (string, bool) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	tag, ok := s.owners[id]
	return tag, ok
}

func (s *TupleStore) findByID(tag string, id uint64) *entry {
	b := s.Bucket(tag)
	if b == nil {
		return nil
	}
	return b.find(id)
}

// FindByID returns a copy of the tuple, or nil if absent. Expiry is not checked.
func (s *TupleStore) FindByID(tag string, id uint64) *Tuple {
	e := s.findByID(tag, id)
	if e == nil {
		return nil
	}
	return e.snapshot()
}

// AllTags returns the tags that currently have a bucket, sorted.
func (s *TupleStore) AllTags() []string {
	s.mu.RLock()
	tags := make([]string, 0, len(s.buckets))
	for tag := range s.buckets {
		tags = append(tags, tag)
	}
	s.mu.RUnlock()

	sort.Strings(tags)
	return tags
}

// Size returns the number of stored tuples across all buckets.
func (s *TupleStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, b := range s.buckets {
		n += b.Len()
	}
	return n
}

// AllIDs returns the ids of every stored tuple, ascending.
func (s *TupleStore) AllIDs() []uint64 {
	var ids []uint64
	for _, b := range s.snapshotBuckets() {
		for _, e := range b.entries() {
			ids = append(ids, e.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Prune deletes buckets that are empty and have no waiter. It returns the
// number of buckets removed.
func (s *TupleStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for tag, b := range s.buckets {
		if b.waiters.Load() == 0 && b.Len() == 0 {
			delete(s.buckets, tag)
			removed++
		}
	}
	return removed
}

func (s *TupleStore) snapshotBuckets() []*TagIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*TagIndex, 0, len(s.buckets))
	for _, b := range s.buckets {
		out = append(out, b)
	}
	return out
}

package space

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTupleStoreInsertAndRemove(t *testing.T) {
	s := NewTupleStore(0)

	e := storedEntry(t, s.NextID(), "order", map[string]any{"sku": "X1"})
	require.NoError(t, s.insert(e))

	assert.Equal(t, 1, s.Size())
	assert.Equal(t, []string{"order"}, s.AllTags())
	assert.Equal(t, []uint64{e.id}, s.AllIDs())
	assert.Equal(t, "X1", s.FindByID("order", e.id).Properties["sku"])

	assert.Same(t, e, s.removeByID("order", e.id))
	assert.Nil(t, s.removeByID("order", e.id))
	assert.Nil(t, s.FindByID("order", e.id))
	assert.Equal(t, 0, s.Size())
}

func TestTupleStoreRejectsInvalid(t *testing.T) {
	s := NewTupleStore(0)

	t.Run("missing tag", func(t *testing.T) {
		err := s.insert(&entry{id: 1})
		assert.ErrorIs(t, err, ErrInvalidTuple)
	})

	t.Run("duplicate id", func(t *testing.T) {
		require.NoError(t, s.insert(storedEntry(t, 5, "a", nil)))
		err := s.insert(storedEntry(t, 5, "a", nil))
		assert.ErrorIs(t, err, ErrDuplicateID)
		assert.True(t, IsDuplicateID(err))
	})

	t.Run("duplicate id across tags", func(t *testing.T) {
		require.NoError(t, s.insert(storedEntry(t, 7, "a", nil)))
		err := s.insert(storedEntry(t, 7, "b", nil))
		assert.ErrorIs(t, err, ErrDuplicateID)
		assert.Nil(t, s.FindByID("b", 7))

		tag, ok := s.TagOf(7)
		assert.True(t, ok)
		assert.Equal(t, "a", tag)

		require.NotNil(t, s.removeByID("a", 7))
		_, ok = s.TagOf(7)
		assert.False(t, ok)
		require.NoError(t, s.insert(storedEntry(t, 7, "b", nil)))
	})
}

func TestTupleStoreBuckets(t *testing.T) {
	s := NewTupleStore(0)

	assert.Nil(t, s.Bucket("x"))
	b := s.EnsureBucket("x")
	assert.Same(t, b, s.EnsureBucket("x"))
	assert.Same(t, b, s.Bucket("x"))
}

func TestTupleStoreReserve(t *testing.T) {
	s := NewTupleStore(0)
	s.reserve(100)
	assert.Equal(t, uint64(101), s.NextID())

	s.reserve(50)
	assert.Equal(t, uint64(102), s.NextID())
}

func TestTupleStorePrune(t *testing.T) {
	t.Run("drops empty buckets", func(t *testing.T) {
		s := NewTupleStore(0)
		s.EnsureBucket("empty")
		require.NoError(t, s.insert(storedEntry(t, s.NextID(), "full", nil)))

		assert.Equal(t, 1, s.Prune())
		assert.Equal(t, []string{"full"}, s.AllTags())
	})

	t.Run("keeps buckets with waiters", func(t *testing.T) {
		s := NewTupleStore(0)
		b := s.acquireWaiter("waited")
		assert.True(t, b.Waiting())

		assert.Equal(t, 0, s.Prune())
		assert.Same(t, b, s.Bucket("waited"))

		s.releaseWaiter(b)
		assert.False(t, b.Waiting())
		assert.Equal(t, 1, s.Prune())
	})

	t.Run("runs on the removal cadence", func(t *testing.T) {
		s := NewTupleStore(2)
		for i := 0; i < 2; i++ {
			e := storedEntry(t, s.NextID(), "tag", nil)
			require.NoError(t, s.insert(e))
			s.removeByID("tag", e.id)
		}
		assert.Nil(t, s.Bucket("tag"))
	})
}

func TestTagIndexSignalsOnInsert(t *testing.T) {
	s := NewTupleStore(0)
	b := s.EnsureBucket("t")
	changed := b.Changed()

	select {
	case <-changed:
		t.Fatal("signal closed before insert")
	default:
	}

	require.NoError(t, s.insert(storedEntry(t, s.NextID(), "t", nil)))

	select {
	case <-changed:
	default:
		t.Fatal("insert did not broadcast")
	}
	assert.NotEqual(t, changed, b.Changed())
}

func TestTupleStoreUniqueIDs(t *testing.T) {
	s := NewTupleStore(0)

	const goroutines, perG = 8, 200
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				assert.NoError(t, s.insert(newEntry(s.NextID(), "t", Forever, Properties{})))
			}
		}()
	}
	wg.Wait()

	ids := s.AllIDs()
	require.Len(t, ids, goroutines*perG)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}

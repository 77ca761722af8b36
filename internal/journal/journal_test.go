package journal

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/tuplespace/pkg/space"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func event(kind space.EventKind, id uint64, tag string) space.Event {
	return space.Event{
		Kind:       kind,
		Tag:        tag,
		TupleID:    id,
		LiveUntil:  space.Forever,
		Properties: space.Properties{space.FieldID: int64(id), space.FieldTag: tag, "n": int64(id)},
		Origin:     "o",
		At:         1000 + int64(id),
	}
}

func TestPublishAndList(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Publish(ctx, event(space.EventAvailable, 1, "a")))
	require.NoError(t, j.Publish(ctx, event(space.EventAvailable, 2, "b")))
	require.NoError(t, j.Publish(ctx, event(space.EventTaken, 1, "a")))

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	t.Run("all entries in order", func(t *testing.T) {
		entries, err := j.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, space.EventAvailable, entries[0].Event.Kind)
		assert.Equal(t, space.EventTaken, entries[2].Event.Kind)
		assert.Equal(t, int64(1), entries[0].Event.Properties["n"])
		assert.Equal(t, space.Forever, entries[0].Event.LiveUntil)
		assert.False(t, entries[0].RecordedAt.IsZero())
	})

	t.Run("since and limit", func(t *testing.T) {
		entries, err := j.List(ctx, Filter{SinceSeq: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, uint64(2), entries[0].Event.TupleID)
	})

	t.Run("by tuple", func(t *testing.T) {
		entries, err := j.List(ctx, Filter{TupleID: 1})
		require.NoError(t, err)
		require.Len(t, entries, 2)
	})

	t.Run("by event time", func(t *testing.T) {
		entries, err := j.List(ctx, Filter{FromMs: 1002, UntilMs: 1003})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, uint64(2), entries[0].Event.TupleID)
	})

	t.Run("by tag", func(t *testing.T) {
		entries, err := j.List(ctx, Filter{Tag: "b"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
}

func TestPublishRejectsInvalidKind(t *testing.T) {
	j := setupJournal(t)
	assert.Error(t, j.Publish(context.Background(), event("bogus", 1, "a")))
}

func TestJournalAsSpaceSink(t *testing.T) {
	j := setupJournal(t)
	s := space.New(space.WithSinks(j), space.WithLogger(nil))

	l, err := s.Write("job", time.Minute, map[string]any{"step": "lint"})
	require.NoError(t, err)
	require.True(t, l.Cancel())
	require.NoError(t, s.Close(5*time.Second))

	entries, err := j.List(context.Background(), Filter{TupleID: l.ID()})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "lint", entries[0].Event.Properties["step"])
}

func TestRetryOp(t *testing.T) {
	cfg := retryConfig{maxRetries: 2, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond}

	t.Run("retries transient errors", func(t *testing.T) {
		var calls atomic.Int32
		err := retryOp(cfg, func() error {
			if calls.Add(1) < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up on permanent errors", func(t *testing.T) {
		var calls atomic.Int32
		err := retryOp(cfg, func() error {
			calls.Add(1)
			return errors.New("no such table")
		})
		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

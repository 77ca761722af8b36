package space

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedEntry(t *testing.T, id uint64, tag string, props map[string]any) *entry {
	t.Helper()
	fields, err := normalizeProperties(props)
	require.NoError(t, err)
	return newEntry(id, tag, Forever, fields)
}

func TestMatchesSubset(t *testing.T) {
	fields := Properties{FieldTag: "t", "a": int64(1), "b": "x"}

	assert.True(t, Matches(fields, MustTemplate("t", map[string]any{"a": 1}), false))
	assert.True(t, Matches(fields, MustTemplate("t", nil), false))
	assert.False(t, Matches(Properties{FieldTag: "t", "a": int64(1)}, MustTemplate("t", map[string]any{"a": 1, "b": 2}), false))
	assert.False(t, Matches(fields, MustTemplate("t", map[string]any{"a": 2}), false))
	assert.False(t, Matches(fields, MustTemplate("other", nil), false))
	assert.False(t, Matches(fields, nil, false))
}

func TestMatchesIgnoresID(t *testing.T) {
	fields := Properties{FieldTag: "t", FieldID: int64(1), "a": int64(1)}
	tmpl := MustTemplate("t", map[string]any{FieldID: 99, "a": 1})
	assert.True(t, Matches(fields, tmpl, false))
}

func TestMatchesAgentVisibility(t *testing.T) {
	fields := Properties{FieldTag: "t", FieldAgent: []string{"bot1"}}
	tmpl := MustTemplate("t", map[string]any{FieldAgent: "bot1"})

	assert.False(t, Matches(fields, tmpl, false), "seen agent must not match on read")
	assert.True(t, Matches(fields, tmpl, true), "take ignores agent stamps")
	assert.True(t, Matches(fields, tmpl.WithAgent("bot2"), false))
}

func TestEntryMatchStampsAgent(t *testing.T) {
	e := storedEntry(t, 1, "msg", map[string]any{"body": "hi"})
	tmpl := MustTemplate("msg", map[string]any{FieldAgent: "bot1"})

	got, ok := e.match(tmpl, false)
	require.True(t, ok)
	assert.Equal(t, []string{"bot1"}, got.SeenBy())

	_, ok = e.match(tmpl, false)
	assert.False(t, ok, "second read by the same agent")

	_, ok = e.match(tmpl.WithAgent("bot2"), false)
	assert.True(t, ok)
	assert.Equal(t, []string{"bot1", "bot2"}, e.snapshot().SeenBy())

	_, ok = e.match(tmpl, true)
	assert.True(t, ok, "take is not filtered by stamps")
}

func TestEntryMatchConcurrentAgentReads(t *testing.T) {
	e := storedEntry(t, 1, "msg", nil)
	tmpl := MustTemplate("msg", map[string]any{FieldAgent: "bot1"})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		hits int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := e.match(tmpl, false); ok {
				mu.Lock()
				hits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, hits)
}

func TestNewTemplate(t *testing.T) {
	t.Run("requires tag", func(t *testing.T) {
		_, err := NewTemplate(" ", nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("extracts agent", func(t *testing.T) {
		tmpl, err := NewTemplate("t", map[string]any{FieldAgent: "bot", "k": "v"})
		require.NoError(t, err)
		assert.Equal(t, "bot", tmpl.Agent())
		assert.Equal(t, Properties{"k": "v"}, tmpl.Fields())
	})

	t.Run("rejects non-string agent", func(t *testing.T) {
		_, err := NewTemplate("t", map[string]any{FieldAgent: []string{"a"}})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("fields copy is detached", func(t *testing.T) {
		tmpl := MustTemplate("t", map[string]any{"k": "v"})
		f := tmpl.Fields()
		f["k"] = "changed"
		assert.Equal(t, "v", tmpl.Fields()["k"])
	})
}

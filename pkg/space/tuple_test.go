package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProperties(t *testing.T) {
	t.Run("canonicalizes numbers and agent names", func(t *testing.T) {
		props, err := normalizeProperties(map[string]any{
			"count":     int32(3),
			"ratio":     float32(0.5),
			"flag":      true,
			"name":      "x",
			"labels":    []any{"a", "b"},
			FieldAgent:  "bot1",
			FieldID:     int64(9),
			FieldTag:    "ignored",
			"ignoreNil": nil,
		})
		require.NoError(t, err)

		assert.Equal(t, int64(3), props["count"])
		assert.Equal(t, float64(0.5), props["ratio"])
		assert.Equal(t, true, props["flag"])
		assert.Equal(t, "x", props["name"])
		assert.Equal(t, []string{"a", "b"}, props["labels"])
		assert.Equal(t, []string{"bot1"}, props[FieldAgent])
		assert.NotContains(t, props, FieldID)
		assert.NotContains(t, props, FieldTag)
		assert.NotContains(t, props, "ignoreNil")
	})

	t.Run("rejects unsupported values", func(t *testing.T) {
		_, err := normalizeProperties(map[string]any{"bad": struct{}{}})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rejects mixed lists", func(t *testing.T) {
		_, err := normalizeProperties(map[string]any{"bad": []any{"a", 1}})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rejects empty property names", func(t *testing.T) {
		_, err := normalizeProperties(map[string]any{"": "x"})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestExtractID(t *testing.T) {
	id, ok, err := extractID(map[string]any{FieldID: 42})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)

	_, ok, err = extractID(map[string]any{"x": 1})
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = extractID(map[string]any{FieldID: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = extractID(map[string]any{FieldID: "seven"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEntrySnapshot(t *testing.T) {
	fields, err := normalizeProperties(map[string]any{"sku": "X1", FieldPriority: 5, FieldAgent: "early"})
	require.NoError(t, err)

	e := newEntry(7, "order", Forever, fields)
	snap := e.snapshot()

	assert.Equal(t, uint64(7), snap.ID)
	assert.Equal(t, "order", snap.Tag)
	assert.Equal(t, int64(5), snap.Priority)
	assert.Equal(t, int64(7), snap.Properties[FieldID])
	assert.Equal(t, "order", snap.Properties[FieldTag])
	assert.Equal(t, []string{"early"}, snap.SeenBy())

	// mutating the copy leaves the stored tuple alone
	snap.Properties["sku"] = "changed"
	assert.Equal(t, "X1", e.snapshot().Properties["sku"])
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(int64(1), int64(1)))
	assert.False(t, valuesEqual(int64(1), float64(1)))
	assert.True(t, valuesEqual([]string{"a"}, []string{"a"}))
	assert.False(t, valuesEqual([]string{"a"}, "a"))
	assert.False(t, valuesEqual("a", []string{"a"}))
}

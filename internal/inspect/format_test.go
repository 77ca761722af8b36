package inspect

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/tuplespace/internal/journal"
	"github.com/dyluth/tuplespace/pkg/space"
)

var now = time.UnixMilli(1_700_000_000_000)

func sampleTuple(id uint64, liveUntil int64) *space.Tuple {
	return &space.Tuple{
		ID:        id,
		Tag:       "job",
		LiveUntil: liveUntil,
		Priority:  3,
		Properties: space.Properties{
			space.FieldID:       int64(id),
			space.FieldTag:      "job",
			space.FieldAgent:    []string{"w1", "w2"},
			space.FieldPriority: int64(3),
			"kind":              "build",
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("jsonl")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSONL, f)

	_, err = ParseOutputFormat("xml")
	assert.EqualError(t, err, "unknown output format: xml")
}

func TestFormatProperties(t *testing.T) {
	tests := []struct {
		name     string
		props    space.Properties
		expected string
	}{
		{"empty", nil, "-"},
		{"only reserved", space.Properties{space.FieldID: int64(1), space.FieldTag: "x"}, "-"},
		{"sorted", space.Properties{"b": int64(2), "a": "x"}, "a=x b=2"},
		{"list", space.Properties{"labels": []string{"p", "q"}}, "labels=[p q]"},
		{"truncated", space.Properties{"k": strings.Repeat("v", 50)}, "k=" + strings.Repeat("v", 35) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatProperties(tt.props))
		})
	}
}

func TestFormatRemaining(t *testing.T) {
	nowMs := now.UnixMilli()
	tests := []struct {
		name      string
		liveUntil int64
		expected  string
	}{
		{"forever", space.Forever, "forever"},
		{"expired at boundary", nowMs, "expired"},
		{"expired", nowMs - 10, "expired"},
		{"milliseconds", nowMs + 250, "250ms"},
		{"seconds", nowMs + 42_000, "42s"},
		{"minutes", nowMs + 3*60_000 + 5, "3m"},
		{"hours", nowMs + 5*3_600_000, "5h"},
		{"days", nowMs + 49*3_600_000, "2d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatRemaining(tt.liveUntil, nowMs))
		})
	}
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "-", FormatAge(0, now))
	assert.Equal(t, "5s ago", FormatAge(now.Add(-5*time.Second).UnixMilli(), now))
	assert.Equal(t, "0ms ago", FormatAge(now.Add(time.Second).UnixMilli(), now))
}

func TestFormatTuples(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		var buf bytes.Buffer
		n := FormatTuples(&buf, nil, "prod", now)
		assert.Equal(t, 0, n)
		assert.Equal(t, "No tuples found for instance 'prod'\n", buf.String())
	})

	t.Run("rows", func(t *testing.T) {
		var buf bytes.Buffer
		tuples := []*space.Tuple{
			sampleTuple(1, space.Forever),
			sampleTuple(2, now.Add(90*time.Second).UnixMilli()),
		}
		n := FormatTuples(&buf, tuples, "prod", now)
		assert.Equal(t, 2, n)

		out := buf.String()
		assert.Contains(t, out, "Tuples for instance 'prod'")
		assert.Contains(t, out, "forever")
		assert.Contains(t, out, "1m")
		assert.Contains(t, out, "kind=build priority=3")
		assert.NotContains(t, out, "agentName")
		assert.Contains(t, out, "2 tuples found")
	})
}

func TestFormatTuplesJSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatTuplesJSONL(&buf, []*space.Tuple{sampleTuple(9, space.Forever)}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var view TupleView
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &view))
	assert.Equal(t, uint64(9), view.ID)
	assert.Equal(t, "job", view.Tag)
	assert.Equal(t, []string{"w1", "w2"}, view.SeenBy)
	assert.Equal(t, "build", view.Properties["kind"])
	assert.NotContains(t, view.Properties, space.FieldID)
	assert.NotContains(t, view.Properties, space.FieldAgent)
}

func TestFormatEntries(t *testing.T) {
	entries := []journal.Entry{
		{Seq: 1, Event: space.Event{
			Kind: space.EventAvailable, Tag: "job", TupleID: 4,
			Origin: "0123456789abcdef", At: now.Add(-2 * time.Minute).UnixMilli(),
			Properties: space.Properties{"kind": "build"},
		}},
		{Seq: 2, Event: space.Event{Kind: space.EventTaken, Tag: "job", TupleID: 4}},
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Equal(t, 2, FormatEntries(&buf, entries, now))

		out := buf.String()
		assert.Contains(t, out, "2m ago")
		assert.Contains(t, out, "01234567 ")
		assert.NotContains(t, out, "0123456789abcdef")
		assert.Contains(t, out, string(space.EventTaken))
		assert.Contains(t, out, "2 entries found")
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Equal(t, 0, FormatEntries(&buf, nil, now))
		assert.Equal(t, "No journal entries found\n", buf.String())
	})

	t.Run("jsonl", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, FormatEntriesJSONL(&buf, entries))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], `"seq":1`)
		assert.Contains(t, lines[1], `"kind":"`+string(space.EventTaken)+`"`)
	})
}

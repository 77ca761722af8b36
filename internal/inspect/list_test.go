package inspect

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/tuplespace/internal/testutil"
	"github.com/dyluth/tuplespace/pkg/space"
)

func publishAvailable(t *testing.T, sink space.EventSink, id uint64, tag string, liveUntil int64) {
	t.Helper()
	err := sink.Publish(context.Background(), space.Event{
		Kind:       space.EventAvailable,
		Tag:        tag,
		TupleID:    id,
		LiveUntil:  liveUntil,
		Properties: space.Properties{space.FieldID: int64(id), space.FieldTag: tag, "n": int64(id)},
		At:         time.Now().UnixMilli(),
	})
	require.NoError(t, err)
}

func TestListTuples(t *testing.T) {
	client, _ := testutil.NewBridge(t, "list-test", true)
	ctx := context.Background()

	publishAvailable(t, client, 3, "job", space.Forever)
	publishAvailable(t, client, 1, "job", time.Now().Add(time.Hour).UnixMilli())
	publishAvailable(t, client, 2, "result", space.Forever)

	t.Run("all tags sorted by id", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ListTuples(ctx, client, "", OutputFormatJSONL, &buf))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], `"id":1`)
		assert.Contains(t, lines[1], `"id":2`)
		assert.Contains(t, lines[2], `"id":3`)
	})

	t.Run("one tag as table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ListTuples(ctx, client, "job", OutputFormatDefault, &buf))

		out := buf.String()
		assert.Contains(t, out, "Tuples for instance 'list-test'")
		assert.Contains(t, out, "2 tuples found")
		assert.NotContains(t, out, "result")
	})

	t.Run("unknown tag", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ListTuples(ctx, client, "nothing", OutputFormatDefault, &buf))
		assert.Contains(t, buf.String(), "No tuples found")
	})

	t.Run("invalid format", func(t *testing.T) {
		err := ListTuples(ctx, client, "job", OutputFormat("xml"), &bytes.Buffer{})
		assert.EqualError(t, err, "unknown output format: xml")
	})
}

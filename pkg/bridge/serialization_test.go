package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/tuplespace/pkg/space"
)

func TestDecodeEvent(t *testing.T) {
	t.Run("restores integer and list properties", func(t *testing.T) {
		ev, err := DecodeEvent([]byte(`{"kind":"taken","tag":"job","tuple_id":4,"live_until":10,` +
			`"properties":{"n":3,"f":1.5,"agentName":["a"]},"origin":"o","at":5}`))
		require.NoError(t, err)

		assert.Equal(t, space.EventTaken, ev.Kind)
		assert.Equal(t, uint64(4), ev.TupleID)
		assert.Equal(t, int64(3), ev.Properties["n"])
		assert.Equal(t, 1.5, ev.Properties["f"])
		assert.Equal(t, []string{"a"}, ev.Properties[space.FieldAgent])
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"kind":"nope","tag":"job"}`))
		assert.Error(t, err)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestHashToTupleErrors(t *testing.T) {
	_, err := HashToTuple(map[string]string{"id": "x"})
	assert.Error(t, err)

	_, err = HashToTuple(map[string]string{"id": "1", "live_until": "soon"})
	assert.Error(t, err)
}

func TestSchemaKeys(t *testing.T) {
	assert.Equal(t, "tuplespace:prod:tuple:42", TupleKey("prod", 42))
	assert.Equal(t, "tuplespace:prod:tag:order", TagIndexKey("prod", "order"))
	assert.Equal(t, "tuplespace:prod:tags", TagsKey("prod"))
	assert.Equal(t, "tuplespace:prod:events", EventsChannel("prod"))
	assert.Equal(t, "tuplespace:prod:tag:order:events", TagEventsChannel("prod", "order"))
}

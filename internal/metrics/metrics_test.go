package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/tuplespace/pkg/space"
)

type fakeSource struct {
	stats space.Stats
	size  int
}

func (f fakeSource) Stats() space.Stats { return f.stats }
func (f fakeSource) Size() int          { return f.size }

func TestSpaceCollector(t *testing.T) {
	src := fakeSource{
		stats: space.Stats{Reads: 4, Takes: 2, Writes: 9, MissedTakes: 1, BlockingReads: 3, Listeners: 1},
		size:  7,
	}
	c := NewSpaceCollector(src, "test")

	expected := `
# HELP tuplespace_operations_total Successful operations by kind
# TYPE tuplespace_operations_total counter
tuplespace_operations_total{instance="test",op="read"} 4
tuplespace_operations_total{instance="test",op="take"} 2
tuplespace_operations_total{instance="test",op="write"} 9
# HELP tuplespace_tuples Tuples currently stored
# TYPE tuplespace_tuples gauge
tuplespace_tuples{instance="test"} 7
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"tuplespace_operations_total", "tuplespace_tuples")
	require.NoError(t, err)

	assert.Equal(t, 11, testutil.CollectAndCount(c))
}

func TestHandlerServesSpaceMetrics(t *testing.T) {
	reg := NewRegistry()
	s := space.New(space.WithLogger(nil))
	defer s.Close(time.Second)
	reg.MustRegister(NewSpaceCollector(s, "handler"))

	_, err := s.Write("x", space.LeaseForever, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tuplespace_operations_total{instance="handler",op="write"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

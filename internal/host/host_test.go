package host

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/tuplespace/internal/config"
	"github.com/dyluth/tuplespace/internal/journal"
	"github.com/dyluth/tuplespace/internal/testutil"
	"github.com/dyluth/tuplespace/pkg/space"
)

func quiet() Option {
	return WithLogger(func(string, ...any) {})
}

func startHost(t *testing.T, cfg *config.Config) *Host {
	t.Helper()
	h, err := Start(context.Background(), cfg, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestStart_Minimal(t *testing.T) {
	h := startHost(t, &config.Config{Version: "1.0"})

	assert.Nil(t, h.Bridge())
	assert.Nil(t, h.Journal())
	assert.Empty(t, h.HTTPAddr())
	assert.Equal(t, config.DefaultInstance, h.Config().Instance)

	_, err := h.Space().Write("job", time.Minute, map[string]any{"n": 1})
	require.NoError(t, err)

	snap := h.Snapshot()
	assert.Equal(t, 1, snap.Size)
	assert.Equal(t, []string{"job"}, snap.Tags)
	assert.Equal(t, int64(1), snap.Space.Writes)
}

func TestStart_InvalidConfig(t *testing.T) {
	_, err := Start(context.Background(), &config.Config{Version: "2.0"}, quiet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestStart_RedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	url := "redis://" + mr.Addr()
	mr.Close()

	_, err = Start(context.Background(), &config.Config{
		Version: "1.0",
		Redis:   &config.RedisConfig{URL: url},
	}, quiet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis not accessible")
}

func TestStart_WiresSinks(t *testing.T) {
	_, redisURL := testutil.StartMiniRedis(t)
	dbPath := filepath.Join(t.TempDir(), "events.db")

	h := startHost(t, &config.Config{
		Version:  "1.0",
		Instance: "wired",
		Redis:    &config.RedisConfig{URL: redisURL},
		Journal:  &config.JournalConfig{Path: dbPath},
	})
	require.NotNil(t, h.Bridge())
	require.NotNil(t, h.Journal())

	lease, err := h.Space().Write("job", space.LeaseForever, map[string]any{"n": 7})
	require.NoError(t, err)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		_, err := h.Bridge().GetTuple(ctx, lease.ID())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		entries, err := h.Journal().List(ctx, journal.Filter{TupleID: lease.ID()})
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHost_HarvesterRuns(t *testing.T) {
	interval := config.Duration(10 * time.Millisecond)
	h := startHost(t, &config.Config{
		Version: "1.0",
		Space:   config.SpaceConfig{HarvestInterval: &interval},
	})

	_, err := h.Space().Write("short", 20*time.Millisecond, map[string]any{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.Space().Size() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), h.Space().Stats().Expired)
}

func TestHost_CloseIsIdempotent(t *testing.T) {
	h, err := Start(context.Background(), &config.Config{Version: "1.0"}, quiet())
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err = h.Space().Write("job", time.Minute, nil)
	assert.ErrorIs(t, err, space.ErrClosed)
}

func TestHealthServer_Endpoints(t *testing.T) {
	mr := miniredis.RunT(t)
	h := startHost(t, &config.Config{
		Version:  "1.0",
		Instance: "web",
		Redis:    &config.RedisConfig{URL: "redis://" + mr.Addr()},
	})
	_, err := h.Space().Write("job", time.Minute, map[string]any{})
	require.NoError(t, err)

	srv := httptest.NewServer(NewHealthServer("", h).Handler())
	defer srv.Close()

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "connected", body.Redis)
		assert.Equal(t, 1, body.Size)
	})

	t.Run("healthz rejects POST", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/healthz", "text/plain", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("stats", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()

		var snap Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		assert.Equal(t, "web", snap.Instance)
		assert.Equal(t, int64(1), snap.Space.Writes)
		assert.Equal(t, []string{"job"}, snap.Tags)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		body := string(raw)
		assert.True(t, strings.Contains(body, `tuplespace_tuples{instance="web"} 1`), body)
		assert.Contains(t, body, "tuplespace_events_submitted_total")
	})

	t.Run("healthz reports redis outage", func(t *testing.T) {
		mr.Close()
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "disconnected", body.Redis)
	})
}

func TestHealthServer_ListensOnConfiguredAddr(t *testing.T) {
	h := startHost(t, &config.Config{
		Version: "1.0",
		HTTP:    &config.HTTPConfig{Addr: "127.0.0.1:0"},
	})
	addr := h.HTTPAddr()
	require.NotEmpty(t, addr)
	require.NotEqual(t, "127.0.0.1:0", addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// Package testutil holds shared helpers for tests that need Redis.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/tuplespace/pkg/bridge"
)

// StartMiniRedis starts an in-memory Redis that is closed when the test ends.
// It returns the server and a redis:// URL for it.
func StartMiniRedis(t *testing.T) (*miniredis.Miniredis, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, "redis://" + mr.Addr()
}

// NewBridge connects a bridge client for instanceName to a fresh miniredis.
func NewBridge(t *testing.T, instanceName string, mirror bool) (*bridge.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, url := StartMiniRedis(t)

	client, err := bridge.NewClientFromURL(url, instanceName, mirror)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

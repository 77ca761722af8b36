package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/tuplespace/internal/config"
	"github.com/dyluth/tuplespace/internal/printer"
	"github.com/dyluth/tuplespace/internal/scaffold"
	"github.com/dyluth/tuplespace/pkg/bridge"
)

// loadConfig reads --config, falling back to ./tuplespace.yml and then to
// defaults.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(scaffold.ConfigFile); err == nil {
			path = scaffold.ConfigFile
		}
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Create a starter configuration:\n  tuplespace init"},
		)
	}
	return cfg, nil
}

// connectBridge opens and pings the Redis bridge named by cfg, or by
// redisURL when set.
func connectBridge(ctx context.Context, cfg *config.Config, redisURL string) (*bridge.Client, error) {
	if redisURL == "" && cfg.Redis != nil {
		redisURL = cfg.Redis.URL
	}
	if redisURL == "" {
		return nil, printer.Error(
			"Redis is not configured",
			"This command reads events and tuples from the Redis bridge.",
			[]string{
				"Add a redis section to tuplespace.yml:\n  redis:\n    url: redis://localhost:6379",
				"Pass --redis redis://localhost:6379 or set REDIS_URL",
			},
		)
	}

	client, err := bridge.NewClientFromURL(redisURL, cfg.Instance, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis bridge: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			map[string]string{"Instance": cfg.Instance, "Error": err.Error()},
			[]string{"Check that Redis is running and reachable"},
		)
	}
	return client, nil
}

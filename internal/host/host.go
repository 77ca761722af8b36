// Package host assembles a configured tuple space with its event pool, sinks,
// harvester and HTTP endpoints, and manages their lifecycle.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dyluth/tuplespace/internal/config"
	"github.com/dyluth/tuplespace/internal/journal"
	"github.com/dyluth/tuplespace/internal/metrics"
	"github.com/dyluth/tuplespace/internal/pool"
	"github.com/dyluth/tuplespace/pkg/bridge"
	"github.com/dyluth/tuplespace/pkg/space"
)

// shutdownTimeout bounds how long Close waits for queued events.
const shutdownTimeout = 5 * time.Second

// Host owns a running space and everything wired around it.
type Host struct {
	cfg *config.Config

	space     *space.Space
	pool      *pool.Pool
	bridge    *bridge.Client
	journal   *journal.Journal
	registry  *prometheus.Registry
	harvester *space.Harvester
	health    *HealthServer

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Option adjusts a Host before it starts.
type Option func(*options)

type options struct {
	clock  space.Clock
	logger func(format string, args ...any)
}

// WithClock replaces the skew-adjusted system clock, mainly for tests.
func WithClock(c space.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger redirects the space's log output.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(o *options) { o.logger = logf }
}

// Start builds and starts a space from cfg. The returned Host must be closed.
func Start(ctx context.Context, cfg *config.Config, opts ...Option) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{
		clock:  space.SkewedClock{Base: space.SystemClock{}, Offset: time.Duration(cfg.Space.ClockSkew)},
		logger: log.Printf,
	}
	for _, opt := range opts {
		opt(&o)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &Host{
		cfg:      cfg,
		registry: metrics.NewRegistry(),
		cancel:   cancel,
	}

	var sinks []space.EventSink
	if cfg.Redis != nil {
		client, err := bridge.NewClientFromURL(cfg.Redis.URL, cfg.Instance, *cfg.Redis.Mirror)
		if err != nil {
			h.abort()
			return nil, fmt.Errorf("failed to create Redis bridge: %w", err)
		}
		h.bridge = client

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		if err := client.Ping(pingCtx); err != nil {
			h.abort()
			return nil, fmt.Errorf("redis not accessible: %w", err)
		}
		sinks = append(sinks, client)
	}

	if cfg.Journal != nil {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			h.abort()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		h.journal = j
		sinks = append(sinks, j)
	}

	h.pool = pool.New(cfg.Events.Workers, cfg.Events.QueueSize,
		pool.WithRegisterer(h.registry, "tuplespace_events"))
	if err := h.pool.Start(runCtx); err != nil {
		h.abort()
		return nil, fmt.Errorf("failed to start event pool: %w", err)
	}

	h.space = space.New(
		space.WithClock(o.clock),
		space.WithTaskPool(h.pool),
		space.WithSinks(sinks...),
		space.WithPruneEvery(cfg.Space.PruneEvery),
		space.WithLogger(o.logger),
	)
	h.registry.MustRegister(metrics.NewSpaceCollector(h.space, cfg.Instance))

	if every := cfg.HarvestEvery(); every > 0 {
		h.harvester = space.NewHarvester(h.space, every)
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.harvester.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger("[Host] Harvester stopped: %v", err)
			}
		}()
	}

	if cfg.HTTP != nil {
		h.health = NewHealthServer(cfg.HTTP.Addr, h)
		if err := h.health.Start(); err != nil {
			h.abort()
			return nil, fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	h.logEvent("host_started", map[string]interface{}{
		"redis":   cfg.Redis != nil,
		"journal": cfg.Journal != nil,
		"http":    cfg.HTTP != nil,
		"harvest": cfg.HarvestEvery().String(),
	})
	return h, nil
}

// Space returns the hosted space.
func (h *Host) Space() *space.Space { return h.space }

// Bridge returns the Redis bridge, or nil when Redis is not configured.
func (h *Host) Bridge() *bridge.Client { return h.bridge }

// Journal returns the event journal, or nil when it is not configured.
func (h *Host) Journal() *journal.Journal { return h.journal }

// Registry returns the Prometheus registry holding space and pool metrics.
func (h *Host) Registry() *prometheus.Registry { return h.registry }

// HTTPAddr returns the address the HTTP server listens on, or "" when disabled.
func (h *Host) HTTPAddr() string {
	if h.health == nil {
		return ""
	}
	return h.health.Addr()
}

// Config returns the configuration the host was started with.
func (h *Host) Config() *config.Config { return h.cfg }

// Snapshot is the payload of the /stats endpoint.
type Snapshot struct {
	Instance string      `json:"instance"`
	Origin   string      `json:"origin"`
	Size     int         `json:"size"`
	Tags     []string    `json:"tags"`
	Space    space.Stats `json:"space"`
	Events   pool.Stats  `json:"events"`
}

// Snapshot returns current statistics.
func (h *Host) Snapshot() Snapshot {
	return Snapshot{
		Instance: h.cfg.Instance,
		Origin:   h.space.Origin(),
		Size:     h.space.Size(),
		Tags:     h.space.Store().AllTags(),
		Space:    h.space.Stats(),
		Events:   h.pool.Stats(),
	}
}

// Ping checks the external dependencies the host relies on.
func (h *Host) Ping(ctx context.Context) error {
	if h.bridge == nil {
		return nil
	}
	return h.bridge.Ping(ctx)
}

// Close stops the HTTP server, the harvester and the space, drains queued events
// and closes the sinks. Safe to call more than once.
func (h *Host) Close() error {
	var errs []error
	h.once.Do(func() {
		if h.health != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := h.health.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
			cancel()
		}

		if h.space != nil {
			if err := h.space.Close(shutdownTimeout); err != nil {
				errs = append(errs, err)
			}
		}
		if h.pool != nil {
			if err := h.pool.Stop(shutdownTimeout); err != nil {
				errs = append(errs, fmt.Errorf("event pool: %w", err))
			}
		}

		h.cancel()
		h.wg.Wait()

		if h.journal != nil {
			if err := h.journal.Close(); err != nil {
				errs = append(errs, fmt.Errorf("journal: %w", err))
			}
		}
		if h.bridge != nil {
			if err := h.bridge.Close(); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

// abort releases whatever Start managed to open before failing.
func (h *Host) abort() {
	_ = h.Close()
}

// logEvent emits a structured JSON log line.
func (h *Host) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "host"
	data["event_type"] = eventType
	data["instance"] = h.cfg.Instance

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Host] Failed to marshal log event: %v", err)
		return
	}
	log.Println(string(jsonData))
}

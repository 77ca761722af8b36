package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/tuplespace/internal/pool"
	"github.com/dyluth/tuplespace/internal/timespec"
	"github.com/dyluth/tuplespace/pkg/space"
)

// DefaultInstance is the instance name used when none is configured.
const DefaultInstance = "default"

var instanceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Config represents the top-level tuplespace.yml configuration
type Config struct {
	Version  string         `yaml:"version"`
	Instance string         `yaml:"instance,omitempty"`
	Space    SpaceConfig    `yaml:"space,omitempty"`
	Events   EventsConfig   `yaml:"events,omitempty"`
	Redis    *RedisConfig   `yaml:"redis,omitempty"`
	Journal  *JournalConfig `yaml:"journal,omitempty"`
	HTTP     *HTTPConfig    `yaml:"http,omitempty"`
}

// SpaceConfig tunes the store and its background sweep
type SpaceConfig struct {
	HarvestInterval *Duration `yaml:"harvest_interval,omitempty"` // 0 disables the harvester, default 30s
	PruneEvery      int       `yaml:"prune_every,omitempty"`      // removals between empty bucket sweeps, default 5000
	DefaultLease    string    `yaml:"default_lease,omitempty"`    // lease for writes that omit one, default "forever"
	ClockSkew       Duration  `yaml:"clock_skew,omitempty"`       // offset applied to the system clock
}

// EventsConfig sizes the event delivery pool
type EventsConfig struct {
	Workers   int `yaml:"workers,omitempty"`
	QueueSize int `yaml:"queue_size,omitempty"`
}

// RedisConfig enables the Redis event bridge
type RedisConfig struct {
	URL    string `yaml:"url"`
	Mirror *bool  `yaml:"mirror,omitempty"` // default true
}

// JournalConfig enables the SQLite event journal
type JournalConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig enables the health, metrics and stats endpoints
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Duration is a time.Duration that unmarshals from Go duration strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{Version: "1.0"}
	// Defaults cannot fail validation.
	_ = c.Validate()
	return c
}

// Validate performs strict validation on the configuration and applies defaults
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		c.Instance = DefaultInstance
	}
	if !instanceNamePattern.MatchString(c.Instance) {
		return fmt.Errorf("invalid instance name '%s': use letters, digits, '-' and '_'", c.Instance)
	}

	if err := c.Space.validate(); err != nil {
		return err
	}

	if c.Events.Workers == 0 {
		c.Events.Workers = pool.DefaultWorkers
	}
	if c.Events.Workers < 1 {
		return fmt.Errorf("events.workers must be >= 1, got %d", c.Events.Workers)
	}
	if c.Events.QueueSize == 0 {
		c.Events.QueueSize = pool.DefaultQueueSize
	}
	if c.Events.QueueSize < 1 {
		return fmt.Errorf("events.queue_size must be >= 1, got %d", c.Events.QueueSize)
	}

	if c.Redis != nil {
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when the redis section is present")
		}
		if c.Redis.Mirror == nil {
			mirror := true
			c.Redis.Mirror = &mirror
		}
	}

	if c.Journal != nil && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal section is present")
	}

	if c.HTTP != nil && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when the http section is present")
	}

	return nil
}

func (s *SpaceConfig) validate() error {
	if s.HarvestInterval == nil {
		d := Duration(space.DefaultHarvestInterval)
		s.HarvestInterval = &d
	}
	if *s.HarvestInterval < 0 {
		return fmt.Errorf("space.harvest_interval must be >= 0, got %s", time.Duration(*s.HarvestInterval))
	}

	if s.PruneEvery == 0 {
		s.PruneEvery = space.DefaultPruneEvery
	}
	if s.PruneEvery < 1 {
		return fmt.Errorf("space.prune_every must be >= 1, got %d", s.PruneEvery)
	}

	if s.DefaultLease == "" {
		s.DefaultLease = timespec.Forever
	}
	if _, err := timespec.ParseLease(s.DefaultLease); err != nil {
		return fmt.Errorf("space.default_lease: %w", err)
	}

	return nil
}

// DefaultLeaseDuration returns the parsed space.default_lease. Only valid after
// Validate.
func (c *Config) DefaultLeaseDuration() time.Duration {
	d, err := timespec.ParseLease(c.Space.DefaultLease)
	if err != nil {
		return space.LeaseForever
	}
	return d
}

// HarvestEvery returns the harvester period, 0 when disabled.
func (c *Config) HarvestEvery() time.Duration {
	if c.Space.HarvestInterval == nil {
		return space.DefaultHarvestInterval
	}
	return time.Duration(*c.Space.HarvestInterval)
}

// ApplyEnv overrides values from the environment: TUPLESPACE_INSTANCE and
// REDIS_URL. Call Validate afterwards.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TUPLESPACE_INSTANCE"); v != "" {
		c.Instance = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = v
	}
}

// Load reads and validates tuplespace.yml from the specified path. Environment
// overrides are applied before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path, or returns the environment-adjusted defaults when
// path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	c := &Config{Version: "1.0"}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

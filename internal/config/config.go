// Package config loads and validates the configuration record the core
// is constructed from.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// LockStrategy picks the guard used for the HttpServer's live chunked-task
// set, chosen at config time rather than hardcoded.
type LockStrategy string

const (
	LockStrategyMutex LockStrategy = "mutex"
	LockStrategySpin  LockStrategy = "spin"
)

// QueueConfig describes one named dispatcher queue.
type QueueConfig struct {
	Name     string `toml:"name"`
	Capacity int    `toml:"capacity"`
	Threads  int    `toml:"threads"`
}

// ListenEndpoint is one address the http server listens on.
type ListenEndpoint struct {
	Address string `toml:"address"`
	Port    int    `toml:"port"`
	TLS     bool   `toml:"tls"`
}

// Config is the full configuration record.
type Config struct {
	KeepAliveTimeout        time.Duration `toml:"keep_alive_timeout"`
	DispatcherQueues        []QueueConfig `toml:"dispatcher_queues"`
	MaxChunkedTasks         int           `toml:"max_chunked_tasks"`
	AsyncJobTTL             time.Duration `toml:"async_job_ttl"`
	AsyncJobCapacity        int           `toml:"async_job_capacity"`
	DirectExecutionAllowed  bool          `toml:"direct_execution_allowed"`

	ListenEndpoints []ListenEndpoint `toml:"listen_endpoints"`
	LockStrategy    LockStrategy     `toml:"lock_strategy"`
	NumLoops        int              `toml:"num_loops"`
}

// Default returns a Config with conservative, production-plausible
// defaults. Callers load a file on top of this with Load.
func Default() Config {
	return Config{
		KeepAliveTimeout: 60 * time.Second,
		DispatcherQueues: []QueueConfig{
			{Name: "standard", Capacity: 1024, Threads: 8},
			{Name: "maintenance", Capacity: 64, Threads: 1},
		},
		MaxChunkedTasks:        256,
		AsyncJobTTL:            10 * time.Minute,
		AsyncJobCapacity:       4096,
		DirectExecutionAllowed: false,
		ListenEndpoints: []ListenEndpoint{
			{Address: "0.0.0.0", Port: 8529, TLS: false},
		},
		LockStrategy: LockStrategyMutex,
		NumLoops:     4,
	}
}

// Load reads a TOML file at path on top of Default and validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations that would leave a component unusable.
func (c Config) Validate() error {
	if c.NumLoops <= 0 {
		return fmt.Errorf("config: num_loops must be positive, got %d", c.NumLoops)
	}
	if len(c.DispatcherQueues) == 0 {
		return fmt.Errorf("config: at least one dispatcher queue is required")
	}
	seen := make(map[string]bool, len(c.DispatcherQueues))
	for _, q := range c.DispatcherQueues {
		if q.Name == "" {
			return fmt.Errorf("config: dispatcher queue with empty name")
		}
		if seen[q.Name] {
			return fmt.Errorf("config: duplicate dispatcher queue name %q", q.Name)
		}
		seen[q.Name] = true
		if q.Capacity <= 0 {
			return fmt.Errorf("config: dispatcher queue %q capacity must be positive", q.Name)
		}
		if q.Threads <= 0 {
			return fmt.Errorf("config: dispatcher queue %q threads must be positive", q.Name)
		}
	}
	if len(c.ListenEndpoints) == 0 {
		return fmt.Errorf("config: at least one listen endpoint is required")
	}
	if c.LockStrategy != LockStrategyMutex && c.LockStrategy != LockStrategySpin {
		return fmt.Errorf("config: unknown lock_strategy %q", c.LockStrategy)
	}
	if c.AsyncJobCapacity <= 0 {
		return fmt.Errorf("config: async_job_capacity must be positive")
	}
	return nil
}

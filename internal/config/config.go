package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Backend selects the log store and channel implementation.
type Backend string

const (
	// BackendPebble stores the log in an embedded Pebble database and serves
	// outgoing channels from in-process queues.
	BackendPebble Backend = "pebble"
	// BackendRedis stores the log in Redis and serves outgoing channels from
	// Redis lists, matching multi-process deployments.
	BackendRedis Backend = "redis"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Backend Backend `json:"backend" yaml:"backend" env:"BACKEND"`

	// RedisURL is the connection string used when Backend is "redis",
	// e.g. "redis://localhost:6379/0".
	RedisURL string `json:"redisUrl" yaml:"redisUrl" env:"REDIS_URL"`

	// ChunkSize bounds how many log ids a worker scans per iteration.
	ChunkSize int `json:"chunkSize" yaml:"chunkSize" env:"CHUNK_SIZE"`
	// MaxBacklog is the retention window: the trimmer keeps at most this many
	// of the newest log entries.
	MaxBacklog int `json:"maxBacklog" yaml:"maxBacklog" env:"MAX_BACKLOG"`
	// MaxOutgoingBacklog caps a subscriber's outgoing channel; matches beyond
	// it are dropped and counted.
	MaxOutgoingBacklog int `json:"maxOutgoingBacklog" yaml:"maxOutgoingBacklog" env:"MAX_OUTGOING_BACKLOG"`

	NoMessagesWait   time.Duration `json:"noMessagesWait" yaml:"noMessagesWait" env:"NO_MESSAGES_WAIT"`
	KeepaliveTimeout time.Duration `json:"keepaliveTimeout" yaml:"keepaliveTimeout" env:"KEEPALIVE_TIMEOUT"`
	// PopTimeout bounds each blocking pop the transport performs against an
	// outgoing channel; a timeout is the stream-end signal.
	PopTimeout   time.Duration `json:"popTimeout" yaml:"popTimeout" env:"POP_TIMEOUT"`
	TrimInterval time.Duration `json:"trimInterval" yaml:"trimInterval" env:"TRIM_INTERVAL"`

	// Replicator idle-poll backoff bounds.
	ReplicatorMinPoll time.Duration `json:"replicatorMinPoll" yaml:"replicatorMinPoll" env:"REPLICATOR_MIN_POLL"`
	ReplicatorMaxPoll time.Duration `json:"replicatorMaxPoll" yaml:"replicatorMaxPoll" env:"REPLICATOR_MAX_POLL"`
}

// Default returns built-in defaults. The timing and sizing constants are part
// of the observable contract and should only be shrunk in tests.
func Default() Config {
	return Config{
		Backend:            BackendPebble,
		RedisURL:           "redis://localhost:6379/0",
		ChunkSize:          100,
		MaxBacklog:         150000,
		MaxOutgoingBacklog: 500,
		NoMessagesWait:     100 * time.Millisecond,
		KeepaliveTimeout:   30 * time.Second,
		PopTimeout:         60 * time.Second,
		TrimInterval:       time.Second,
		ReplicatorMinPoll:  time.Millisecond,
		ReplicatorMaxPoll:  100 * time.Millisecond,
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// FromEnv overlays HOSE_* environment variables onto cfg.
func FromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "HOSE_"}); err != nil {
		return fmt.Errorf("config: env overlay: %w", err)
	}
	return cfg.Validate()
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendPebble, BackendRedis:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: chunkSize must be positive, got %d", c.ChunkSize)
	}
	if c.MaxBacklog <= 0 {
		return fmt.Errorf("config: maxBacklog must be positive, got %d", c.MaxBacklog)
	}
	if c.MaxOutgoingBacklog <= 0 {
		return fmt.Errorf("config: maxOutgoingBacklog must be positive, got %d", c.MaxOutgoingBacklog)
	}
	return nil
}

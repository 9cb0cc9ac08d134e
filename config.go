package ticktock

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "1h" as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
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

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config defines database and query-engine configuration.
type Config struct {
	// Tsdb holds core shard settings.
	Tsdb TsdbConfig `yaml:"tsdb"`

	// Query configures the query executor.
	Query QueryConfig `yaml:"query"`

	// HTTP configures the HTTP API server.
	HTTP HTTPConfig `yaml:"http"`

	// Storage configures shard-page persistence.
	Storage StorageConfig `yaml:"storage"`

	// Stream configures the websocket live feed.
	Stream StreamConfig `yaml:"stream"`

	// Encryption configures at-rest encryption of shard pages.
	// Nil or disabled means pages are stored in the clear.
	Encryption *EncryptionConfig `yaml:"encryption"`
}

// TsdbConfig groups core shard settings.
type TsdbConfig struct {
	// Resolution is the active timestamp resolution: "s" or "ms".
	// Default: "ms".
	Resolution string `yaml:"timestamp.resolution"`

	// ShardDuration is the time span covered by each shard.
	// Default: 24 hours.
	ShardDuration Duration `yaml:"shard.duration"`

	// MetaPath is the sqlite file backing the metric/tag catalog.
	// Empty disables the catalog (and the suggest API).
	MetaPath string `yaml:"meta.path"`
}

// QueryConfig groups query executor settings.
type QueryConfig struct {
	// ExecutorThreadCount is the worker pool size. Default: 8.
	ExecutorThreadCount int `yaml:"executor.thread_count"`

	// ExecutorQueueSize bounds the task queue. Default: 1024.
	ExecutorQueueSize int `yaml:"executor.queue_size"`

	// ExecutorParallel dispatches query tasks across the pool.
	// Default: true.
	ExecutorParallel *bool `yaml:"executor.parallel"`
}

// HTTPConfig groups HTTP server settings.
type HTTPConfig struct {
	// Port is the listen port. Default: 6182.
	Port int `yaml:"port"`

	// ResponseBufferSize caps the serialized query response in bytes;
	// larger responses return 413. Default: 8MB.
	ResponseBufferSize int `yaml:"response_buffer_size"`
}

// StorageConfig groups shard persistence settings.
type StorageConfig struct {
	// Backend selects the page store: "memory", "file" or "s3".
	// Default: "file" when Dir is set, else "memory".
	Backend string `yaml:"backend"`

	// Dir is the data directory for the file backend.
	Dir string `yaml:"dir"`

	// S3 configures the s3 backend.
	S3 *S3BackendConfig `yaml:"s3"`

	// FlushInterval is how often dirty shards are persisted.
	// Default: 1 minute.
	FlushInterval Duration `yaml:"flush_interval"`
}

// DefaultConfig returns a configuration with sensible defaults, storing
// data under dir. An empty dir keeps everything in memory.
func DefaultConfig(dir string) Config {
	parallel := true
	cfg := Config{
		Tsdb: TsdbConfig{
			Resolution:    "ms",
			ShardDuration: Duration(24 * time.Hour),
		},
		Query: QueryConfig{
			ExecutorThreadCount: 8,
			ExecutorQueueSize:   1024,
			ExecutorParallel:    &parallel,
		},
		HTTP: HTTPConfig{
			Port:               6182,
			ResponseBufferSize: 8 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Dir:           dir,
			FlushInterval: Duration(time.Minute),
		},
		Stream: DefaultStreamConfig(),
	}
	if dir != "" {
		cfg.Storage.Backend = "file"
		cfg.Tsdb.MetaPath = dir + "/meta.db"
	} else {
		cfg.Storage.Backend = "memory"
	}
	return cfg
}

// LoadConfig reads a YAML configuration file, layering it over the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig("")
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// withDefaults fills unset fields with their defaults.
func (c Config) withDefaults() Config {
	if c.Tsdb.Resolution == "" {
		c.Tsdb.Resolution = "ms"
	}
	if c.Tsdb.ShardDuration <= 0 {
		c.Tsdb.ShardDuration = Duration(24 * time.Hour)
	}
	if c.Query.ExecutorThreadCount <= 0 {
		c.Query.ExecutorThreadCount = 8
	}
	if c.Query.ExecutorQueueSize <= 0 {
		c.Query.ExecutorQueueSize = 1024
	}
	if c.Query.ExecutorParallel == nil {
		parallel := true
		c.Query.ExecutorParallel = &parallel
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 6182
	}
	if c.HTTP.ResponseBufferSize <= 0 {
		c.HTTP.ResponseBufferSize = 8 * 1024 * 1024
	}
	if c.Storage.Backend == "" {
		if c.Storage.Dir != "" {
			c.Storage.Backend = "file"
		} else {
			c.Storage.Backend = "memory"
		}
	}
	if c.Storage.FlushInterval <= 0 {
		c.Storage.FlushInterval = Duration(time.Minute)
	}
	if c.Stream.BufferSize <= 0 {
		c.Stream = DefaultStreamConfig()
	}
	return c
}

// MsResolution reports whether the active resolution is milliseconds.
func (c Config) MsResolution() bool {
	return strings.HasPrefix(c.Tsdb.Resolution, "m")
}

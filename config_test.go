package ticktock

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("")
	if cfg.Storage.Backend != "memory" {
		t.Errorf("backend = %q, want memory", cfg.Storage.Backend)
	}
	if !cfg.MsResolution() {
		t.Error("default resolution should be ms")
	}
	if cfg.Query.ExecutorThreadCount != 8 || cfg.Query.ExecutorQueueSize != 1024 {
		t.Errorf("executor defaults = %+v", cfg.Query)
	}
	if cfg.Query.ExecutorParallel == nil || !*cfg.Query.ExecutorParallel {
		t.Error("parallel should default to true")
	}

	cfg = DefaultConfig("/tmp/tt")
	if cfg.Storage.Backend != "file" {
		t.Errorf("backend = %q, want file", cfg.Storage.Backend)
	}
	if cfg.Tsdb.MetaPath == "" {
		t.Error("meta path should default under the data dir")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticktock.yml")
	raw := `
tsdb:
  timestamp.resolution: s
  shard.duration: 1h
query:
  executor.thread_count: 2
  executor.queue_size: 16
  executor.parallel: false
http:
  port: 9999
  response_buffer_size: 1024
storage:
  backend: memory
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MsResolution() {
		t.Error("resolution should be seconds")
	}
	if cfg.Tsdb.ShardDuration.Std() != time.Hour {
		t.Errorf("shard duration = %v", cfg.Tsdb.ShardDuration)
	}
	if cfg.Query.ExecutorThreadCount != 2 || cfg.Query.ExecutorQueueSize != 16 {
		t.Errorf("executor = %+v", cfg.Query)
	}
	if cfg.Query.ExecutorParallel == nil || *cfg.Query.ExecutorParallel {
		t.Error("parallel should be false")
	}
	if cfg.HTTP.Port != 9999 || cfg.HTTP.ResponseBufferSize != 1024 {
		t.Errorf("http = %+v", cfg.HTTP)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/does/not/exist.yml"); err == nil {
		t.Error("missing file should fail")
	}
}

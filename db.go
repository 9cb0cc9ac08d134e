package ticktock

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DB is the single-process time-series database: a registry of
// time-partitioned shards plus the metadata catalog, live stream hub and
// page store they share.
type DB struct {
	cfg      Config
	msRes    bool
	shardDur Timestamp

	mu     sync.RWMutex
	shards []*Tsdb
	closed bool

	backend StorageBackend
	enc     *Encryptor
	meta    *MetaStore
	hub     *StreamHub
	stats   *Stats

	stopFlush chan struct{}
	flushDone chan struct{}
}

// Open opens (or creates) a database with the given configuration,
// loading any shard pages the backend already holds.
func Open(cfg Config) (*DB, error) {
	cfg = cfg.withDefaults()

	backend, err := newStorageBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncryptor(cfg.Encryption)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	db := &DB{
		cfg:       cfg,
		msRes:     cfg.MsResolution(),
		backend:   backend,
		enc:       enc,
		hub:       NewStreamHub(cfg.Stream, stats),
		stats:     stats,
		stopFlush: make(chan struct{}),
		flushDone: make(chan struct{}),
	}

	if db.msRes {
		db.shardDur = cfg.Tsdb.ShardDuration.Std().Milliseconds()
	} else {
		db.shardDur = int64(cfg.Tsdb.ShardDuration.Std().Seconds())
	}
	if db.shardDur <= 0 {
		db.shardDur = 1
	}

	if err := db.loadShards(context.Background()); err != nil {
		return nil, err
	}

	if cfg.Tsdb.MetaPath != "" {
		db.meta, err = OpenMetaStore(cfg.Tsdb.MetaPath)
		if err != nil {
			return nil, err
		}
	}

	go db.flushLoop()
	slog.Info("database open",
		"resolution", cfg.Tsdb.Resolution,
		"backend", cfg.Storage.Backend,
		"shards", len(db.shards))
	return db, nil
}

// Config returns the database configuration.
func (db *DB) Config() Config { return db.cfg }

// MsResolution reports whether the active resolution is milliseconds.
func (db *DB) MsResolution() bool { return db.msRes }

// Now returns the current time in the active resolution.
func (db *DB) Now() Timestamp { return Now(db.msRes) }

// Stats returns the database counters.
func (db *DB) Stats() *Stats { return db.stats }

// Hub returns the live-stream hub.
func (db *DB) Hub() *StreamHub { return db.hub }

// Meta returns the metadata catalog, or nil when disabled.
func (db *DB) Meta() *MetaStore { return db.meta }

func (db *DB) loadShards(ctx context.Context) error {
	keys, err := db.backend.List(ctx, "shard-")
	if err != nil {
		return newQueryError(ErrInternalStorage, "failed to list shard pages", err)
	}
	for _, key := range keys {
		shard, err := loadShard(ctx, db.backend, db.enc, key)
		if err != nil {
			slog.Error("failed to load shard, skipping", "key", key, "err", err)
			continue
		}
		db.shards = append(db.shards, shard)
	}
	sort.Slice(db.shards, func(i, j int) bool {
		return db.shards[i].timeRange.From < db.shards[j].timeRange.From
	})
	return nil
}

// Put writes one data point into the shard covering its timestamp.
func (db *DB) Put(metric string, tags TagList, dp DataPoint) error {
	if metric == "" {
		return newQueryError(ErrBadRequest, "metric name is required", nil)
	}
	for _, t := range tags {
		if t.Key == "" || t.Value == "" {
			return newQueryError(ErrBadRequest, "tag keys and values must be non-empty", nil)
		}
		if t.Key == metricTagName {
			return newQueryError(ErrBadRequest, "tag key 'metric' is reserved", nil)
		}
		if strings.ContainsAny(t.Value, " \t\n") {
			return newQueryError(ErrBadRequest, "tag values must not contain whitespace", nil)
		}
	}

	dp.Timestamp = ValidateResolution(dp.Timestamp, db.msRes)

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}
	shard := db.shardForLocked(dp.Timestamp)
	db.mu.Unlock()

	isNew := shard.put(metric, tags, dp)
	db.stats.pointsWritten.Add(1)

	if isNew {
		db.stats.seriesCreated.Add(1)
		if db.meta != nil {
			if err := db.meta.RecordSeries(metric, tags); err != nil {
				slog.Warn("failed to record series metadata", "metric", metric, "err", err)
			}
		}
	}
	db.hub.Publish(metric, tags, dp)
	return nil
}

// Flush persists every dirty shard through the backend.
func (db *DB) Flush(ctx context.Context) error {
	db.mu.RLock()
	shards := append([]*Tsdb(nil), db.shards...)
	db.mu.RUnlock()

	for _, shard := range shards {
		if err := shard.flush(ctx, db.backend, db.enc); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) flushLoop() {
	defer close(db.flushDone)
	ticker := time.NewTicker(db.cfg.Storage.FlushInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := db.Flush(context.Background()); err != nil {
				slog.Error("periodic flush failed", "err", err)
			}
		case <-db.stopFlush:
			return
		}
	}
}

// Close flushes and closes the database. Further writes fail with
// ErrClosed.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}
	db.closed = true
	db.mu.Unlock()

	close(db.stopFlush)
	<-db.flushDone

	var firstErr error
	if err := db.Flush(context.Background()); err != nil {
		firstErr = err
	}
	db.hub.Close()
	if db.meta != nil {
		if err := db.meta.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	slog.Info("database closed")
	return firstErr
}

// String describes the database for logs.
func (db *DB) String() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fmt.Sprintf("ticktock(shards=%d,resolution=%s)", len(db.shards), db.cfg.Tsdb.Resolution)
}

package ticktock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/golang/snappy"
)

// Tsdb is one time-partitioned shard. Reads are permitted concurrently;
// the shard stays resident while its refcount is held.
type Tsdb struct {
	timeRange TimeRange

	mu     sync.RWMutex
	series map[string]*TimeSeries
	order  []string // insertion order, for deterministic iteration
	dirty  bool

	refs atomic.Int64
}

func newTsdb(r TimeRange) *Tsdb {
	return &Tsdb{
		timeRange: r,
		series:    make(map[string]*TimeSeries),
	}
}

// Range returns the shard's time window.
func (t *Tsdb) Range() TimeRange { return t.timeRange }

// EnsureReadable pins the shard for reading, incrementing its refcount.
func (t *Tsdb) EnsureReadable() { t.refs.Add(1) }

// DecCount releases one read pin.
func (t *Tsdb) DecCount() { t.refs.Add(-1) }

// refCount returns the current pin count.
func (t *Tsdb) refCount() int64 { return t.refs.Load() }

// QueryForTS returns the shard's series matching metric and query tags.
func (t *Tsdb) QueryForTS(metric string, queryTags TagList) []*TimeSeries {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*TimeSeries
	for _, key := range t.order {
		ts := t.series[key]
		if ts.metric != metric {
			continue
		}
		if matchTags(ts.tags, queryTags) {
			out = append(out, ts)
		}
	}
	return out
}

// put appends a point to the series identified by (metric, tags),
// creating it on first sight. Returns whether the series is new.
func (t *Tsdb) put(metric string, tags TagList, dp DataPoint) bool {
	key := seriesKey(metric, tags)

	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.series[key]
	if !ok {
		ts = &TimeSeries{key: key, metric: metric, tags: tags.Sorted()}
		t.series[key] = ts
		t.order = append(t.order, key)
	}
	ts.add(dp)
	t.dirty = true
	return !ok
}

// shardSnapshot is the persisted form of a shard.
type shardSnapshot struct {
	From   Timestamp        `json:"from"`
	To     Timestamp        `json:"to"`
	Series []seriesSnapshot `json:"series"`
}

type seriesSnapshot struct {
	Metric string          `json:"metric"`
	Tags   TagList         `json:"tags,omitempty"`
	Points DataPointVector `json:"points"`
}

// backendKey is the storage key of the shard's page.
func (t *Tsdb) backendKey() string {
	return fmt.Sprintf("shard-%d-%d.tt", t.timeRange.From, t.timeRange.To)
}

// flush persists the shard through the backend: JSON, snappy-compressed,
// optionally encrypted.
func (t *Tsdb) flush(ctx context.Context, backend StorageBackend, enc *Encryptor) error {
	t.mu.RLock()
	if !t.dirty {
		t.mu.RUnlock()
		return nil
	}
	snap := shardSnapshot{From: t.timeRange.From, To: t.timeRange.To}
	for _, key := range t.order {
		ts := t.series[key]
		snap.Series = append(snap.Series, seriesSnapshot{
			Metric: ts.metric,
			Tags:   ts.tags,
			Points: ts.points,
		})
	}
	t.mu.RUnlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	page := snappy.Encode(nil, raw)
	if enc != nil {
		page, err = enc.Encrypt(page)
		if err != nil {
			return err
		}
	}
	if err := backend.Write(ctx, t.backendKey(), page); err != nil {
		return newQueryError(ErrInternalStorage, "failed to persist shard "+t.backendKey(), err)
	}

	t.mu.Lock()
	t.dirty = false
	t.mu.Unlock()
	return nil
}

// loadShard reads a persisted shard page back into memory.
func loadShard(ctx context.Context, backend StorageBackend, enc *Encryptor, key string) (*Tsdb, error) {
	page, err := backend.Read(ctx, key)
	if err != nil {
		return nil, newQueryError(ErrInternalStorage, "failed to read shard "+key, err)
	}
	if enc != nil {
		page, err = enc.Decrypt(page)
		if err != nil {
			return nil, newQueryError(ErrInternalStorage, "failed to decrypt shard "+key, err)
		}
	}
	raw, err := snappy.Decode(nil, page)
	if err != nil {
		return nil, newQueryError(ErrInternalStorage, "failed to decompress shard "+key, err)
	}
	var snap shardSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, newQueryError(ErrInternalStorage, "failed to decode shard "+key, err)
	}

	t := newTsdb(TimeRange{From: snap.From, To: snap.To})
	for _, ss := range snap.Series {
		k := seriesKey(ss.Metric, ss.Tags)
		ts := &TimeSeries{key: k, metric: ss.Metric, tags: ss.Tags, points: ss.Points}
		ts.points.sortByTime()
		t.series[k] = ts
		t.order = append(t.order, k)
	}
	return t, nil
}

// tsdbGuard collects the shards pinned for one query and releases them
// all exactly once on teardown, success or failure.
type tsdbGuard struct {
	held []*Tsdb
}

func (g *tsdbGuard) hold(t *Tsdb) {
	g.held = append(g.held, t)
}

// Release decrements every held shard once. Safe to call repeatedly.
func (g *tsdbGuard) Release() {
	for _, t := range g.held {
		t.DecCount()
	}
	g.held = nil
}

// shardForLocked returns the shard covering ts, creating it if needed.
// Caller must hold db.mu.
func (db *DB) shardForLocked(ts Timestamp) *Tsdb {
	i := sort.Search(len(db.shards), func(i int) bool {
		return db.shards[i].timeRange.To > ts
	})
	if i < len(db.shards) && db.shards[i].timeRange.In(ts) {
		return db.shards[i]
	}

	from := ts - ts%db.shardDur
	shard := newTsdb(TimeRange{From: from, To: from + db.shardDur})
	db.shards = append(db.shards, shard)
	sort.Slice(db.shards, func(i, j int) bool {
		return db.shards[i].timeRange.From < db.shards[j].timeRange.From
	})
	slog.Debug("created shard", "range", shard.timeRange.String())
	return shard
}

// TsdbsIntersecting returns all shards whose window intersects r, in
// ascending time order.
func (db *DB) TsdbsIntersecting(r TimeRange) []*Tsdb {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []*Tsdb
	for _, s := range db.shards {
		if s.timeRange.Intersects(r) {
			out = append(out, s)
		}
	}
	return out
}

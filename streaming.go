package ticktock

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamConfig configures the websocket live feed.
type StreamConfig struct {
	// Enabled turns on the /api/stream endpoint.
	Enabled bool `yaml:"enabled"`
	// BufferSize is the per-subscription channel depth; points beyond it
	// are dropped rather than blocking the write path.
	BufferSize int `yaml:"buffer_size"`
	// WriteTimeout bounds each websocket write.
	WriteTimeout Duration `yaml:"write_timeout"`
}

// DefaultStreamConfig returns the default streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled:      true,
		BufferSize:   1000,
		WriteTimeout: Duration(10 * time.Second),
	}
}

// streamPoint is the wire form of a live point.
type streamPoint struct {
	Metric    string            `json:"metric"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp Timestamp         `json:"timestamp"`
	Value     float64           `json:"value"`
}

// streamSubscribe is the client's initial message.
type streamSubscribe struct {
	Metric string            `json:"metric"`
	Tags   map[string]string `json:"tags"`
}

// subscription is one live listener with its tag filter.
type subscription struct {
	metric string
	tags   TagList // query semantics: wildcards allowed
	ch     chan streamPoint
}

// StreamHub fans newly written points out to websocket subscribers.
type StreamHub struct {
	cfg   StreamConfig
	stats *Stats

	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
}

// NewStreamHub creates the hub.
func NewStreamHub(cfg StreamConfig, stats *Stats) *StreamHub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	return &StreamHub{cfg: cfg, stats: stats, subs: make(map[*subscription]struct{})}
}

// Publish delivers a point to every matching subscriber without ever
// blocking the write path: slow subscribers lose points.
func (h *StreamHub) Publish(metric string, tags TagList, dp DataPoint) {
	if !h.cfg.Enabled {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed || len(h.subs) == 0 {
		return
	}

	var msg *streamPoint
	for sub := range h.subs {
		if sub.metric != metric || !matchTags(tags, sub.tags) {
			continue
		}
		if msg == nil {
			msg = &streamPoint{
				Metric:    metric,
				Tags:      tags.Map(),
				Timestamp: dp.Timestamp,
				Value:     dp.Value,
			}
		}
		select {
		case sub.ch <- *msg:
		default:
			if h.stats != nil {
				h.stats.streamDropped.Add(1)
			}
		}
	}
}

func (h *StreamHub) subscribe(req streamSubscribe) *subscription {
	sub := &subscription{
		metric: req.Metric,
		tags:   TagListFromMap(req.Tags),
		ch:     make(chan streamPoint, h.cfg.BufferSize),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *StreamHub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Close drops every subscriber.
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HandleWebSocket upgrades the connection, reads the subscribe message
// and forwards matching points until the client goes away.
func (h *StreamHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	stats := h.stats
	if !h.cfg.Enabled {
		http.Error(w, "streaming disabled", http.StatusNotFound)
		return
	}
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	var req streamSubscribe
	if err := conn.ReadJSON(&req); err != nil || req.Metric == "" {
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"error":"first message must subscribe to a metric"}`))
		return
	}

	sub := h.subscribe(req)
	defer h.unsubscribe(sub)
	if stats != nil {
		stats.streamClients.Add(1)
		defer stats.streamClients.Add(-1)
	}

	// Reader goroutine: detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case pt, ok := <-sub.ch:
			if !ok {
				return
			}
			msg, err := json.Marshal(pt)
			if err != nil {
				continue
			}
			if h.cfg.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout.Std()))
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

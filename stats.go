package ticktock

import (
	"bytes"
	"fmt"
	"sync/atomic"
)

// Stats holds the process counters exposed on /api/stats.
type Stats struct {
	pointsWritten  atomic.Int64
	seriesCreated  atomic.Int64
	queriesServed  atomic.Int64
	queriesFailed  atomic.Int64
	responseBytes  atomic.Int64
	streamClients  atomic.Int64
	streamDropped  atomic.Int64
	promWriteBatch atomic.Int64
}

// PointsWritten returns the number of points ingested.
func (s *Stats) PointsWritten() int64 { return s.pointsWritten.Load() }

// QueriesServed returns the number of query requests answered.
func (s *Stats) QueriesServed() int64 { return s.queriesServed.Load() }

// Render writes the counters as OpenTSDB-style telnet lines, one metric
// per line with the given timestamp.
func (s *Stats) Render(now Timestamp) []byte {
	var b bytes.Buffer
	write := func(name string, v int64) {
		fmt.Fprintf(&b, "ticktock.%s %d %d\n", name, now, v)
	}
	write("points.written", s.pointsWritten.Load())
	write("series.created", s.seriesCreated.Load())
	write("query.count", s.queriesServed.Load())
	write("query.failed", s.queriesFailed.Load())
	write("response.bytes", s.responseBytes.Load())
	write("stream.clients", s.streamClients.Load())
	write("stream.dropped", s.streamDropped.Load())
	write("prom.write.batches", s.promWriteBatch.Load())
	return b.Bytes()
}

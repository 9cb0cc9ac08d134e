package ticktock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// Version is the server version reported by /api/version.
const Version = "0.1.0"

// maxBodySize caps request bodies (10MB).
const maxBodySize = 10 * 1024 * 1024

// HTTPServer serves the OpenTSDB-compatible API for one database. It
// owns the query executor handle used for parallel dispatch.
type HTTPServer struct {
	db       *DB
	executor *QueryExecutor
	cfg      HTTPConfig
	parallel bool
	srv      *http.Server
}

// NewHTTPServer builds the server and its query executor from the
// database configuration.
func NewHTTPServer(db *DB, cfg HTTPConfig) *HTTPServer {
	qc := db.Config().Query
	s := &HTTPServer{
		db:       db,
		executor: NewQueryExecutor(qc.ExecutorThreadCount, qc.ExecutorQueueSize),
		cfg:      cfg,
		parallel: qc.ExecutorParallel == nil || *qc.ExecutorParallel,
	}
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the route mux, usable directly in tests.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/config/filters", s.handleConfigFilters)
	mux.HandleFunc("/api/put", s.handlePut)
	mux.HandleFunc("/api/suggest", s.handleSuggest)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/v1/prom/write", s.handlePromWrite)
	mux.HandleFunc("/api/stream", s.handleStream)
	return mux
}

// ListenAndServe runs the server until Shutdown.
func (s *HTTPServer) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown drains the query executor and stops the listener.
func (s *HTTPServer) Shutdown(deadline time.Duration) error {
	s.executor.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// execute runs one parsed query through the configured execution mode.
func (s *HTTPServer) execute(q *Query) ([]*QueryResults, error) {
	if s.parallel {
		return q.ExecuteParallel(s.db, s.executor)
	}
	return q.Execute(s.db)
}

// handleQuery serves GET and POST /api/query.
func (s *HTTPServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	now := s.db.Now()
	msRes := s.db.MsResolution()

	var queries []*Query
	var err error

	switch r.Method {
	case http.MethodGet:
		var values url.Values
		values, err = ParseQueryParams(r.URL.RawQuery)
		if err == nil {
			var q *Query
			q, err = ParseGetQuery(values, now, msRes)
			if q != nil {
				queries = []*Query{q}
			}
		}
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		var body []byte
		body, err = io.ReadAll(r.Body)
		if err == nil {
			queries, err = ParsePostQueries(body, now, msRes)
		} else {
			err = newQueryError(ErrBadRequest, "failed to read request body", err)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		s.db.stats.queriesFailed.Add(1)
		writeError(w, err.Error(), httpStatusFor(err))
		return
	}

	// Results from every sub-query ship in submission order.
	var results []*QueryResults
	defer func() {
		for _, res := range results {
			putQueryResults(res)
		}
	}()
	for _, q := range queries {
		res, err := s.execute(q)
		if err != nil {
			s.db.stats.queriesFailed.Add(1)
			writeError(w, err.Error(), httpStatusFor(err))
			return
		}
		results = append(results, res...)
	}

	body, err := PrepareResponse(results, s.cfg.ResponseBufferSize)
	if err != nil {
		s.db.stats.queriesFailed.Add(1)
		// 413 ships with an empty body.
		w.WriteHeader(httpStatusFor(err))
		return
	}

	s.db.stats.queriesServed.Add(1)
	s.db.stats.responseBytes.Add(int64(len(body)))
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// handleConfigFilters reports the supported tag filters. Only exact and
// trailing-* matching exist, neither pluggable, so the set is empty.
func (s *HTTPServer) handleConfigFilters(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("{}"))
}

// putRequest is one element of the /api/put body.
type putRequest struct {
	Metric    string            `json:"metric"`
	Timestamp Timestamp         `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags"`
}

// handlePut ingests a single point or an array of points.
func (s *HTTPServer) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var points []putRequest
	if len(body) > 0 && body[0] == '[' {
		err = json.Unmarshal(body, &points)
	} else {
		var single putRequest
		if err = json.Unmarshal(body, &single); err == nil {
			points = []putRequest{single}
		}
	}
	if err != nil {
		writeError(w, "failed to parse request body", http.StatusBadRequest)
		return
	}

	for _, p := range points {
		dp := DataPoint{Timestamp: p.Timestamp, Value: p.Value}
		if err := s.db.Put(p.Metric, TagListFromMap(p.Tags), dp); err != nil {
			writeError(w, err.Error(), httpStatusFor(err))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSuggest serves the OpenTSDB metadata endpoint from the catalog.
func (s *HTTPServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	meta := s.db.Meta()
	if meta == nil {
		writeJSON(w, []string{})
		return
	}
	kind := r.URL.Query().Get("type")
	prefix := r.URL.Query().Get("q")
	max := 25
	if v := r.URL.Query().Get("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			max = n
		}
	}
	names, err := meta.Suggest(kind, prefix, max)
	if err != nil {
		writeError(w, err.Error(), httpStatusFor(err))
		return
	}
	writeJSON(w, names)
}

// handleStats renders the process counters as telnet-style lines.
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(s.db.Stats().Render(s.db.Now()))
}

func (s *HTTPServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": Version, "repo": "github.com/Schwaggot/ticktock"})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handlePromWrite ingests a snappy-compressed Prometheus remote-write
// request, mapping __name__ to the metric and labels to tags.
func (s *HTTPServer) handlePromWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	decoded, err := snappy.Decode(nil, body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req prompb.WriteRequest
	if err := req.Unmarshal(decoded); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	msRes := s.db.MsResolution()
	for i := range req.Timeseries {
		ts := &req.Timeseries[i]
		metric := ""
		var tags TagList
		for _, label := range ts.Labels {
			if label.Name == "__name__" {
				metric = label.Value
			} else {
				tags = append(tags, Tag{Key: label.Name, Value: label.Value})
			}
		}
		for _, sample := range ts.Samples {
			stamp := sample.Timestamp // remote write is always milliseconds
			if !msRes {
				stamp /= 1000
			}
			dp := DataPoint{Timestamp: stamp, Value: sample.Value}
			if err := s.db.Put(metric, tags, dp); err != nil {
				writeError(w, err.Error(), httpStatusFor(err))
				return
			}
		}
	}
	s.db.stats.promWriteBatch.Add(1)
	w.WriteHeader(http.StatusAccepted)
}

// handleStream upgrades to a websocket and feeds live points.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	s.db.Hub().HandleWebSocket(w, r)
}

// writeJSON encodes data as JSON onto the response.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "err", err)
	}
}

// writeError writes a plain-text error response with logging.
func writeError(w http.ResponseWriter, message string, status int) {
	slog.Warn("HTTP error", "status", status, "message", message)
	http.Error(w, message, status)
}

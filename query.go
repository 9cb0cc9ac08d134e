package ticktock

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Query is the parsed intent of one OpenTSDB sub-query.
type Query struct {
	Metric     string
	Tags       TagList
	TimeRange  TimeRange
	AggFunc    AggFunc
	Downsample string // empty means raw points
	Rate       *RateOptions
	MS         bool // millisecond output resolution

	aggName string
	msRes   bool // active storage resolution
}

// String renders the query back into the GET "m" expression.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString(q.aggName)
	if q.Rate != nil {
		b.WriteString(":rate{")
		fmt.Fprintf(&b, "%t,%d,%d,%t",
			q.Rate.Counter, q.Rate.CounterMax, q.Rate.ResetValue, q.Rate.DropResets)
		b.WriteByte('}')
	}
	if q.Downsample != "" {
		b.WriteByte(':')
		b.WriteString(q.Downsample)
	}
	b.WriteByte(':')
	b.WriteString(q.Metric)
	if len(q.Tags) > 0 {
		b.WriteByte('{')
		for i, t := range q.Tags {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(t.Key)
			b.WriteByte('=')
			b.WriteString(t.Value)
		}
		b.WriteByte('}')
	}
	return b.String()
}

// starKeys returns the query tag keys whose values request wildcard
// grouping.
func (q *Query) starKeys() []string {
	var keys []string
	for _, t := range q.Tags {
		if isStarValue(t.Value) {
			keys = append(keys, t.Key)
		}
	}
	return keys
}

// injectDefaultDownsample applies the OpenTSDB rule that second-resolution
// responses imply second buckets: without msResolution and without an
// explicit downsample, plan a 1s bucket with the query's aggregator.
func (q *Query) injectDefaultDownsample() {
	if !q.MS && q.Downsample == "" {
		name := q.aggName
		if name == "" {
			name = "none"
		}
		q.Downsample = "1s-" + name
	}
}

// ParseQueryParams decodes a raw URL query string, mapping decode
// failures to ErrURLDecode.
func ParseQueryParams(rawQuery string) (url.Values, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, newQueryError(ErrURLDecode, "failed to URL decode query", err)
	}
	return values, nil
}

// ParseGetQuery parses the GET /api/query wire shape: the m parameter's
// colon-separated tokens plus start, end and msResolution.
func ParseGetQuery(values url.Values, now Timestamp, msResolution bool) (*Query, error) {
	startStr := values.Get("start")
	if startStr == "" {
		return nil, newQueryError(ErrBadRequest, "must specify start time when querying", nil)
	}
	start, err := parseTimestampString(startStr, now, msResolution)
	if err != nil {
		return nil, err
	}
	end := now
	if endStr := values.Get("end"); endStr != "" {
		end, err = parseTimestampString(endStr, now, msResolution)
		if err != nil {
			return nil, err
		}
	}
	start = ValidateResolution(start, msResolution)
	end = ValidateResolution(end, msResolution)
	r, err := NewTimeRange(start, end)
	if err != nil {
		return nil, err
	}

	ms := values.Get("msResolution") == "true"

	m := values.Get("m")
	if m == "" {
		return nil, newQueryError(ErrBadRequest, "must specify m parameter when querying", nil)
	}

	q, err := parseMetricExpr(m, msResolution)
	if err != nil {
		return nil, err
	}
	q.TimeRange = r
	q.MS = ms
	q.injectDefaultDownsample()
	return q, nil
}

// parseMetricExpr parses the colon-separated m expression:
// agg:[rate[{opts}]:][downsample:]metric[{tags}]. The rate token is also
// accepted between downsample and metric.
func parseMetricExpr(m string, msResolution bool) (*Query, error) {
	tokens := strings.Split(m, ":")
	if len(tokens) < 2 {
		return nil, newQueryError(ErrBadRequest, "failed to parse query: "+m, nil)
	}

	q := &Query{msRes: msResolution}
	idx := 0

	q.aggName = tokens[idx]
	fn, err := ParseAggFunc(q.aggName)
	if err != nil {
		return nil, err
	}
	q.AggFunc = fn
	idx++

	if isRateToken(tokens[idx]) {
		q.Rate, err = parseRateToken(tokens[idx])
		if err != nil {
			return nil, err
		}
		idx++
	}
	if idx < len(tokens) && isDownsampleSpec(tokens[idx], msResolution) {
		q.Downsample = tokens[idx]
		idx++
	}
	if q.Rate == nil && idx < len(tokens) && isRateToken(tokens[idx]) {
		q.Rate, err = parseRateToken(tokens[idx])
		if err != nil {
			return nil, err
		}
		idx++
	}
	if idx >= len(tokens) {
		return nil, newQueryError(ErrBadRequest, "failed to parse query: "+m, nil)
	}

	metric := tokens[idx]
	if brace := strings.IndexByte(metric, '{'); brace >= 0 {
		q.Tags, err = parseInlineTags(metric[brace:])
		if err != nil {
			return nil, err
		}
		metric = metric[:brace]
	}
	if metric == "" {
		return nil, newQueryError(ErrBadRequest, "must specify metric name when querying", nil)
	}
	q.Metric = metric

	return q, nil
}

// isRateToken reports whether a token requests rate conversion.
func isRateToken(tok string) bool {
	return tok == "rate" || (strings.HasPrefix(tok, "rate{") && strings.HasSuffix(tok, "}"))
}

// parseRateToken parses "rate" or "rate{counter[,counterMax[,resetValue
// [,dropResets]]]}". Options are positional; missing ones keep defaults.
func parseRateToken(tok string) (*RateOptions, error) {
	opts := DefaultRateOptions()
	if tok == "rate" {
		return &opts, nil
	}

	body := strings.TrimSuffix(strings.TrimPrefix(tok, "rate{"), "}")
	parts := strings.Split(body, ",")

	if len(parts) > 0 && parts[0] != "" {
		opts.Counter = parts[0][0] == 't' || parts[0][0] == 'T'
	}
	if len(parts) > 1 && parts[1] != "" {
		max, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, newQueryError(ErrBadRequest, "invalid counterMax in "+tok, err)
		}
		opts.CounterMax = max
	}
	if len(parts) > 2 && parts[2] != "" {
		reset, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return nil, newQueryError(ErrBadRequest, "invalid resetValue in "+tok, err)
		}
		opts.ResetValue = reset
	}
	if len(parts) > 3 && parts[3] != "" {
		opts.DropResets = parts[3][0] == 't' || parts[3][0] == 'T'
	}
	return &opts, nil
}

// postQueryRequest is the POST /api/query body.
type postQueryRequest struct {
	Start        any            `json:"start"`
	End          any            `json:"end"`
	MsResolution bool           `json:"msResolution"`
	Queries      []postSubQuery `json:"queries"`
}

type postSubQuery struct {
	Metric      string            `json:"metric"`
	Aggregator  string            `json:"aggregator"`
	Downsample  string            `json:"downsample"`
	Rate        bool              `json:"rate"`
	RateOptions *postRateOptions  `json:"rateOptions"`
	Tags        map[string]string `json:"tags"`
}

type postRateOptions struct {
	Counter    bool    `json:"counter"`
	DropResets bool    `json:"dropResets"`
	CounterMax *uint64 `json:"counterMax"`
	ResetValue uint64  `json:"resetValue"`
}

// ParsePostQueries parses the POST /api/query body into one Query per
// element of queries[], all sharing the body's time range.
func ParsePostQueries(body []byte, now Timestamp, msResolution bool) ([]*Query, error) {
	var req postQueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, newQueryError(ErrBadRequest, "failed to parse request body", err)
	}
	if req.Start == nil {
		return nil, newQueryError(ErrBadRequest, "must specify start time when querying", nil)
	}
	start, err := parseTimestampValue(req.Start, now, msResolution)
	if err != nil {
		return nil, err
	}
	end := now
	if req.End != nil {
		end, err = parseTimestampValue(req.End, now, msResolution)
		if err != nil {
			return nil, err
		}
	}
	start = ValidateResolution(start, msResolution)
	end = ValidateResolution(end, msResolution)
	r, err := NewTimeRange(start, end)
	if err != nil {
		return nil, err
	}
	if req.Queries == nil {
		return nil, newQueryError(ErrBadRequest, "must specify queries parameter", nil)
	}

	queries := make([]*Query, 0, len(req.Queries))
	for _, sq := range req.Queries {
		q, err := buildPostQuery(sq, r, req.MsResolution, msResolution)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func buildPostQuery(sq postSubQuery, r TimeRange, ms, msResolution bool) (*Query, error) {
	if sq.Metric == "" {
		return nil, newQueryError(ErrBadRequest, "must specify metric name when querying", nil)
	}
	fn, err := ParseAggFunc(sq.Aggregator)
	if err != nil {
		return nil, err
	}
	if sq.Downsample != "" && !isDownsampleSpec(sq.Downsample, msResolution) {
		return nil, newQueryError(ErrInvalidDownsample, "invalid downsample: "+sq.Downsample, nil)
	}

	q := &Query{
		Metric:     sq.Metric,
		Tags:       TagListFromMap(sq.Tags),
		TimeRange:  r,
		AggFunc:    fn,
		Downsample: sq.Downsample,
		MS:         ms,
		aggName:    sq.Aggregator,
		msRes:      msResolution,
	}
	if sq.Rate {
		opts := DefaultRateOptions()
		if ro := sq.RateOptions; ro != nil {
			opts.Counter = ro.Counter
			opts.DropResets = ro.DropResets
			opts.ResetValue = ro.ResetValue
			if ro.CounterMax != nil {
				opts.CounterMax = *ro.CounterMax
			} else {
				opts.CounterMax = math.MaxUint64
			}
		}
		q.Rate = &opts
	}
	q.injectDefaultDownsample()
	return q, nil
}

package ticktock

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// QueryResults is one element of the OpenTSDB response envelope: the
// aggregation of the tasks grouped under one tag combination.
type QueryResults struct {
	Metric        string
	Tags          TagList
	AggregateTags []string
	Dps           DataPointVector

	tasks    []*QueryTask
	nullFill bool
}

// Empty reports whether the result carries no points.
func (r *QueryResults) Empty() bool {
	return len(r.Dps) == 0
}

// recycle resets the result for pool reuse.
func (r *QueryResults) recycle() {
	r.Metric = ""
	r.Tags = nil
	r.AggregateTags = nil
	r.Dps = nil
	r.tasks = nil
	r.nullFill = false
}

// addQueryTask merges a task into the result's tag metadata. Keys the
// result does not know yet are taken from the task's series; stored
// wildcard values are replaced by the series value; keys whose values
// disagree across members are demoted to aggregate tags.
func (r *QueryResults) addQueryTask(qt *QueryTask) {
	for _, tag := range qt.Tags() {
		stored, ok := r.Tags.Get(tag.Key)
		switch {
		case !ok:
			known := false
			for _, k := range r.AggregateTags {
				if k == tag.Key {
					known = true
					break
				}
			}
			if !known {
				r.Tags = append(r.Tags, Tag{Key: tag.Key, Value: tag.Value})
			}
		case isStarValue(stored):
			r.Tags = r.Tags.Set(tag.Key, tag.Value)
		case stored != tag.Value:
			r.Tags = r.Tags.Remove(tag.Key)
			r.AggregateTags = append(r.AggregateTags, tag.Key)
		}
	}
	r.tasks = append(r.tasks, qt)
}

// matchesTask reports whether a task may join this result: for every
// queried key the result still tracks, the task's series must carry a
// satisfying value.
func (r *QueryResults) matchesTask(qt *QueryTask, q *Query) bool {
	seriesTags := qt.Tags()
	for _, tag := range r.Tags {
		if !q.Tags.Has(tag.Key) {
			continue
		}
		sv, ok := seriesTags.Get(tag.Key)
		if !ok || !matchTagValue(tag.Value, sv) {
			return false
		}
	}
	return true
}

// newQueryResults seeds a result from the query's own tags.
func newQueryResults(q *Query) *QueryResults {
	r := getQueryResults()
	r.Metric = q.Metric
	r.Tags = q.Tags.Clone()
	return r
}

// assembleResults groups the performed tasks into QueryResults and runs
// the aggregator across each group.
func (q *Query) assembleResults(tasks []*QueryTask) []*QueryResults {
	var results []*QueryResults

	if q.AggFunc == AggNone {
		// No aggregation: each task is its own result.
		for _, qt := range tasks {
			r := getQueryResults()
			r.Metric = q.Metric
			r.Tags = qt.ClonedTags()
			r.Dps = qt.dps
			qt.dps = nil
			results = append(results, r)
		}
	} else {
		results = q.groupTasks(tasks)
		for _, r := range results {
			inputs := make([]DataPointVector, 0, len(r.tasks))
			for _, qt := range r.tasks {
				inputs = append(inputs, qt.dps)
			}
			r.Dps = Aggregate(q.AggFunc, inputs)
			r.tasks = nil
		}
	}

	if q.Downsample != "" {
		if spec, err := parseDownsample(q.Downsample, q.msRes); err == nil && spec.fill == FillNull {
			for _, r := range results {
				r.nullFill = true
			}
		}
	}
	return results
}

// groupTasks splits tasks into results honoring wildcard semantics.
// Without star keys every task collapses into a single result; with star
// keys a task joins the first result whose pinned-down tag values its
// series satisfies, or seeds a new one.
func (q *Query) groupTasks(tasks []*QueryTask) []*QueryResults {
	if len(q.starKeys()) == 0 {
		r := newQueryResults(q)
		for _, qt := range tasks {
			r.addQueryTask(qt)
		}
		return []*QueryResults{r}
	}

	var results []*QueryResults
	for _, qt := range tasks {
		var match *QueryResults
		for _, r := range results {
			if r.matchesTask(qt, q) {
				match = r
				break
			}
		}
		if match == nil {
			match = newQueryResults(q)
			results = append(results, match)
		}
		match.addQueryTask(qt)
	}
	return results
}

// formatValue renders a point value the way OpenTSDB does: NaN for
// not-a-number (or null under the null fill policy) and a decimal point
// on round numbers.
func formatValue(v float64, nullFill bool) string {
	if math.IsNaN(v) {
		if nullFill {
			return "null"
		}
		return "NaN"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// writeJSON appends the result object to the buffer.
func (r *QueryResults) writeJSON(b *bytes.Buffer) {
	b.WriteString(`{"metric":`)
	b.WriteString(strconv.Quote(r.Metric))
	b.WriteString(`,"tags":{`)
	for i, t := range r.Tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(t.Key))
		b.WriteByte(':')
		b.WriteString(strconv.Quote(t.Value))
	}
	b.WriteString(`},"aggregateTags":[`)
	for i, k := range r.AggregateTags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
	}
	b.WriteString(`],"dps":{`)
	for i, dp := range r.Dps {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strconv.FormatInt(dp.Timestamp, 10))
		b.WriteString(`":`)
		b.WriteString(formatValue(dp.Value, r.nullFill))
	}
	b.WriteString("}}")
}

// PrepareResponse serializes the results into the OpenTSDB array
// envelope, omitting empty results. It fails with ErrOversizeResponse
// when the body would exceed maxBytes (0 disables the check).
func PrepareResponse(results []*QueryResults, maxBytes int) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	first := true
	for _, r := range results {
		if r.Empty() {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		r.writeJSON(&b)
		if maxBytes > 0 && b.Len() > maxBytes {
			return nil, newQueryError(ErrOversizeResponse,
				"serialized response exceeds output buffer", nil)
		}
	}
	b.WriteByte(']')
	if maxBytes > 0 && b.Len() > maxBytes {
		return nil, newQueryError(ErrOversizeResponse,
			"serialized response exceeds output buffer", nil)
	}
	return b.Bytes(), nil
}

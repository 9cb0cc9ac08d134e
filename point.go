package ticktock

import "sort"

// DataPoint is a single (timestamp, value) observation.
type DataPoint struct {
	Timestamp Timestamp
	Value     float64
}

// DataPointVector is a sequence of data points ordered by timestamp.
type DataPointVector []DataPoint

// sortByTime orders the vector by ascending timestamp.
func (v DataPointVector) sortByTime() {
	sort.Slice(v, func(i, j int) bool { return v[i].Timestamp < v[j].Timestamp })
}

// TimeSeries holds the points of one unique (metric, tags) series within a
// single shard. Points are kept sorted by timestamp.
type TimeSeries struct {
	key    string
	metric string
	tags   TagList
	points DataPointVector
}

// Key returns the stable series identity shared across shards.
func (ts *TimeSeries) Key() string { return ts.key }

// Metric returns the series' metric name.
func (ts *TimeSeries) Metric() string { return ts.metric }

// Tags returns the series' canonical tag list. Callers must not mutate it.
func (ts *TimeSeries) Tags() TagList { return ts.tags }

// ClonedTags returns a private copy of the series' tags.
func (ts *TimeSeries) ClonedTags() TagList { return ts.tags.Clone() }

// add inserts a point keeping the vector sorted. Points usually arrive in
// order, so the tail is checked first; otherwise the position is found by
// binary search.
func (ts *TimeSeries) add(dp DataPoint) {
	n := len(ts.points)
	if n == 0 || ts.points[n-1].Timestamp <= dp.Timestamp {
		ts.points = append(ts.points, dp)
		return
	}
	i := sort.Search(n, func(i int) bool { return ts.points[i].Timestamp > dp.Timestamp })
	ts.points = append(ts.points, DataPoint{})
	copy(ts.points[i+1:], ts.points[i:])
	ts.points[i] = dp
}

// Query appends the series' points inside r to dps, routing through the
// downsampler when one is given. Output is ascending by timestamp.
func (ts *TimeSeries) Query(r TimeRange, ds *Downsampler, dps *DataPointVector) {
	n := len(ts.points)
	start := sort.Search(n, func(i int) bool { return ts.points[i].Timestamp >= r.From })
	for i := start; i < n; i++ {
		dp := ts.points[i]
		if dp.Timestamp >= r.To {
			break
		}
		if ds != nil {
			ds.AddDataPoint(dp, dps)
		} else {
			*dps = append(*dps, dp)
		}
	}
}

package ticktock

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// FillPolicy controls what a downsampler emits for empty buckets.
type FillPolicy int

const (
	// FillNone omits empty buckets entirely.
	FillNone FillPolicy = iota
	// FillZero emits 0.0 for empty buckets.
	FillZero
	// FillNaN emits NaN for empty buckets.
	FillNaN
	// FillNull emits NaN for empty buckets and serializes them as JSON
	// null so aggregators stay aligned.
	FillNull
)

// Reducer selects the per-bucket reduction of a downsampler.
type Reducer int

const (
	ReduceNone Reducer = iota
	ReduceAvg
	ReduceSum
	ReduceMin
	ReduceMax
	ReduceCount
	ReduceDev
	ReduceFirst
	ReduceLast
	ReducePercentile
)

// downsampleSpec is the parsed form of "<interval><unit>-<reducer>[-<fill>]".
type downsampleSpec struct {
	interval Timestamp // in the active resolution
	reducer  Reducer
	quantile float64 // for ReducePercentile
	fill     FillPolicy
}

// isDownsampleSpec reports whether s matches the downsample grammar.
func isDownsampleSpec(s string, msResolution bool) bool {
	_, err := parseDownsample(s, msResolution)
	return err == nil
}

// parseDownsample parses a downsample expression. Units are ms, s, mi
// (minutes), h, d and w; reducers are avg, sum, min, max, count, dev,
// first, last, p<N> and none. The optional third token is the fill
// policy: none, zero, nan or null.
func parseDownsample(s string, msResolution bool) (downsampleSpec, error) {
	var spec downsampleSpec
	parts := strings.Split(s, "-")
	if len(parts) < 2 || len(parts) > 3 {
		return spec, newQueryError(ErrInvalidDownsample, "invalid downsample: "+s, nil)
	}

	iv := parts[0]
	i := 0
	for i < len(iv) && iv[i] >= '0' && iv[i] <= '9' {
		i++
	}
	if i == 0 {
		return spec, newQueryError(ErrInvalidDownsample, "invalid downsample interval: "+s, nil)
	}
	n, err := strconv.ParseInt(iv[:i], 10, 64)
	if err != nil || n <= 0 {
		return spec, newQueryError(ErrInvalidDownsample, "invalid downsample interval: "+s, err)
	}

	var factor int64
	switch iv[i:] {
	case "ms":
		factor = 0 // handled below
	case "s":
		factor = 1
	case "m", "mi":
		factor = 60
	case "h":
		factor = 3600
	case "d":
		factor = 86400
	case "w":
		factor = 604800
	default:
		return spec, newQueryError(ErrInvalidDownsample, "unknown downsample unit: "+s, nil)
	}
	if factor == 0 {
		// millisecond interval
		if msResolution {
			spec.interval = n
		} else {
			spec.interval = n / 1000
			if spec.interval == 0 {
				spec.interval = 1
			}
		}
	} else {
		spec.interval = n * factor
		if msResolution {
			spec.interval *= 1000
		}
	}

	red := parts[1]
	switch red {
	case "avg":
		spec.reducer = ReduceAvg
	case "sum":
		spec.reducer = ReduceSum
	case "min":
		spec.reducer = ReduceMin
	case "max":
		spec.reducer = ReduceMax
	case "count":
		spec.reducer = ReduceCount
	case "dev":
		spec.reducer = ReduceDev
	case "first":
		spec.reducer = ReduceFirst
	case "last":
		spec.reducer = ReduceLast
	case "none":
		spec.reducer = ReduceNone
	default:
		if len(red) > 1 && red[0] == 'p' {
			q, err := strconv.ParseFloat(red[1:], 64)
			if err != nil || q <= 0 || q > 100 {
				return spec, newQueryError(ErrInvalidDownsample, "invalid percentile reducer: "+s, err)
			}
			spec.reducer = ReducePercentile
			spec.quantile = q
		} else {
			return spec, newQueryError(ErrInvalidDownsample, "unknown downsample reducer: "+s, nil)
		}
	}

	if len(parts) == 3 {
		switch parts[2] {
		case "none":
			spec.fill = FillNone
		case "zero":
			spec.fill = FillZero
		case "nan":
			spec.fill = FillNaN
		case "null":
			spec.fill = FillNull
		default:
			return spec, newQueryError(ErrInvalidDownsample, "unknown fill policy: "+s, nil)
		}
	}

	return spec, nil
}

// Downsampler buckets an ascending point stream into fixed intervals,
// reducing each bucket and optionally filling empty slots. Buckets are
// aligned to the epoch. One instance serves exactly one QueryTask.
type Downsampler struct {
	spec      downsampleSpec
	start     Timestamp // raw query start, before bucket alignment
	timeRange TimeRange
	fillValue float64
	msOut     bool // emit millisecond timestamps

	lastBucket Timestamp
	hasBucket  bool
	values     []float64
}

// NewDownsampler builds a downsampler for one task. It returns (nil, nil)
// for the "none" reducer, which requests raw passthrough.
func NewDownsampler(expr string, r TimeRange, msResolution, msOut bool) (*Downsampler, error) {
	spec, err := parseDownsample(expr, msResolution)
	if err != nil {
		return nil, err
	}
	if spec.reducer == ReduceNone {
		return nil, nil
	}
	d := &Downsampler{
		spec:      spec,
		start:     r.From,
		timeRange: r,
		msOut:     msOut,
	}
	switch spec.fill {
	case FillNaN, FillNull:
		d.fillValue = math.NaN()
	default:
		d.fillValue = 0.0
	}
	return d, nil
}

// FillsNull reports whether the downsampler emits JSON-null gap markers.
func (d *Downsampler) FillsNull() bool {
	return d != nil && d.spec.fill == FillNull
}

// Interval returns the bucket width in the active resolution.
func (d *Downsampler) Interval() Timestamp { return d.spec.interval }

// stepDown aligns ts to its bucket start.
func (d *Downsampler) stepDown(ts Timestamp) Timestamp {
	return ts - ts%d.spec.interval
}

// resolution converts an internal timestamp to the output resolution.
func (d *Downsampler) resolution(ts Timestamp) Timestamp {
	if d.msOut {
		return ToMs(ts)
	}
	return ToSec(ts)
}

// firstBucket returns the first bucket that may be emitted: the aligned
// bucket at or after the raw query start.
func (d *Downsampler) firstBucket() Timestamp {
	b := d.stepDown(d.timeRange.From)
	if b < d.start {
		b += d.spec.interval
	}
	return b
}

// AddDataPoint feeds one point into the current bucket, emitting closed
// buckets (and any fill) into dps. Input must arrive in bucket order;
// out-of-order points within a bucket are accepted.
func (d *Downsampler) AddDataPoint(dp DataPoint, dps *DataPointVector) {
	bucket := d.stepDown(dp.Timestamp)
	if bucket < d.start {
		return
	}

	if d.hasBucket && bucket == d.lastBucket {
		d.values = append(d.values, dp.Value)
		return
	}

	d.closeBucket(dps)
	d.fillTo(bucket, dps)
	d.values = append(d.values, dp.Value)
	d.lastBucket = bucket
	d.hasBucket = true
}

// closeBucket reduces and emits the open bucket, if any.
func (d *Downsampler) closeBucket(dps *DataPointVector) {
	if len(d.values) == 0 {
		return
	}
	*dps = append(*dps, DataPoint{
		Timestamp: d.resolution(d.lastBucket),
		Value:     d.reduce(),
	})
	d.values = d.values[:0]
}

// fillTo emits synthetic points for every empty bucket before 'to'.
func (d *Downsampler) fillTo(to Timestamp, dps *DataPointVector) {
	if d.spec.fill == FillNone {
		return
	}
	start := d.firstBucket()
	if d.hasBucket {
		start = d.lastBucket + d.spec.interval
	}
	for ts := start; ts < to; ts += d.spec.interval {
		*dps = append(*dps, DataPoint{Timestamp: d.resolution(ts), Value: d.fillValue})
	}
}

// FillIfNeeded closes the final bucket and, for filling policies, emits a
// synthetic point for every remaining empty bucket inside the query range.
func (d *Downsampler) FillIfNeeded(dps *DataPointVector) {
	d.closeBucket(dps)

	if d.spec.fill == FillNone {
		return
	}
	next := d.firstBucket()
	if d.hasBucket {
		next = d.lastBucket + d.spec.interval
	}
	for ts := next; ts < d.timeRange.To; ts += d.spec.interval {
		*dps = append(*dps, DataPoint{Timestamp: d.resolution(ts), Value: d.fillValue})
	}
}

// reduce collapses the open bucket's values.
func (d *Downsampler) reduce() float64 {
	vals := d.values
	switch d.spec.reducer {
	case ReduceAvg:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	case ReduceSum:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum
	case ReduceMin:
		min := vals[0]
		for _, v := range vals[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case ReduceMax:
		max := vals[0]
		for _, v := range vals[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case ReduceCount:
		return float64(len(vals))
	case ReduceDev:
		return stddev(vals)
	case ReduceFirst:
		return vals[0]
	case ReduceLast:
		return vals[len(vals)-1]
	case ReducePercentile:
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		return percentile(sorted, d.spec.quantile)
	default:
		return vals[0]
	}
}

// stddev is the population standard deviation.
func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0.0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	sum := 0.0
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)))
}

// percentile computes the q-th percentile of sorted values using nearest
// rank with linear interpolation.
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

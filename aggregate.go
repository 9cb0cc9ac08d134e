package ticktock

import (
	"sort"
)

// AggFunc enumerates the cross-series aggregators.
type AggFunc int

const (
	AggNone AggFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
	AggCount
	AggDev
	AggFirst
	AggLast
	AggP50
	AggP90
	AggP95
	AggP99
)

// aggFuncNames maps wire names to aggregator kinds.
var aggFuncNames = map[string]AggFunc{
	"none":  AggNone,
	"sum":   AggSum,
	"avg":   AggAvg,
	"min":   AggMin,
	"max":   AggMax,
	"count": AggCount,
	"dev":   AggDev,
	"first": AggFirst,
	"last":  AggLast,
	"p50":   AggP50,
	"p90":   AggP90,
	"p95":   AggP95,
	"p99":   AggP99,
}

// ParseAggFunc resolves a wire name. An empty name means none.
func ParseAggFunc(name string) (AggFunc, error) {
	if name == "" {
		return AggNone, nil
	}
	fn, ok := aggFuncNames[name]
	if !ok {
		return AggNone, newQueryError(ErrInvalidAggregator, "unknown aggregator: "+name, nil)
	}
	return fn, nil
}

// Name returns the wire name of the aggregator.
func (fn AggFunc) Name() string {
	for name, f := range aggFuncNames {
		if f == fn {
			return name
		}
	}
	return "unknown"
}

// quantileFor returns the percentile for the pXX aggregators.
func (fn AggFunc) quantileFor() (float64, bool) {
	switch fn {
	case AggP50:
		return 50, true
	case AggP90:
		return 90, true
	case AggP95:
		return 95, true
	case AggP99:
		return 99, true
	}
	return 0, false
}

// Aggregate combines N point vectors point-wise: at every timestamp
// present in any input, all values present at that timestamp are reduced
// into one. Timestamps no input carries are absent from the output.
// Inputs must be sorted; the output is sorted. For AggNone the caller is
// expected to pass vectors through unchanged instead.
func Aggregate(fn AggFunc, inputs []DataPointVector) DataPointVector {
	switch len(inputs) {
	case 0:
		return nil
	case 1:
		return inputs[0]
	}

	byTime := make(map[Timestamp][]float64)
	for _, in := range inputs {
		for _, dp := range in {
			byTime[dp.Timestamp] = append(byTime[dp.Timestamp], dp.Value)
		}
	}

	stamps := make([]Timestamp, 0, len(byTime))
	for ts := range byTime {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	out := make(DataPointVector, 0, len(stamps))
	for _, ts := range stamps {
		out = append(out, DataPoint{Timestamp: ts, Value: reduceValues(fn, byTime[ts])})
	}
	return out
}

// reduceValues collapses the values sharing one timestamp.
func reduceValues(fn AggFunc, vals []float64) float64 {
	switch fn {
	case AggSum:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum
	case AggAvg:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	case AggMin:
		min := vals[0]
		for _, v := range vals[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case AggMax:
		max := vals[0]
		for _, v := range vals[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case AggCount:
		return float64(len(vals))
	case AggDev:
		return stddev(vals)
	case AggFirst:
		return vals[0]
	case AggLast:
		return vals[len(vals)-1]
	default:
		if q, ok := fn.quantileFor(); ok {
			sorted := append([]float64(nil), vals...)
			sort.Float64s(sorted)
			return percentile(sorted, q)
		}
		return vals[0]
	}
}

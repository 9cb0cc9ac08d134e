package ticktock

import (
	"errors"
	"math"
	"testing"
)

func mustDownsampler(t *testing.T, expr string, r TimeRange, msRes, msOut bool) *Downsampler {
	t.Helper()
	ds, err := NewDownsampler(expr, r, msRes, msOut)
	if err != nil {
		t.Fatalf("NewDownsampler(%q) err = %v", expr, err)
	}
	return ds
}

func runDownsampler(ds *Downsampler, points DataPointVector) DataPointVector {
	var out DataPointVector
	for _, dp := range points {
		ds.AddDataPoint(dp, &out)
	}
	ds.FillIfNeeded(&out)
	return out
}

func TestParseDownsample(t *testing.T) {
	tests := []struct {
		expr     string
		msRes    bool
		interval Timestamp
		reducer  Reducer
		fill     FillPolicy
		wantErr  bool
	}{
		{expr: "10s-avg", interval: 10, reducer: ReduceAvg},
		{expr: "10s-avg-zero", interval: 10, reducer: ReduceAvg, fill: FillZero},
		{expr: "1h-sum", interval: 3600, reducer: ReduceSum},
		{expr: "5mi-max", interval: 300, reducer: ReduceMax},
		{expr: "1d-count", interval: 86400, reducer: ReduceCount},
		{expr: "1w-min", interval: 604800, reducer: ReduceMin},
		{expr: "500ms-last", msRes: true, interval: 500, reducer: ReduceLast},
		{expr: "10s-avg", msRes: true, interval: 10000, reducer: ReduceAvg},
		{expr: "1s-p95", interval: 1, reducer: ReducePercentile},
		{expr: "1s-dev-null", interval: 1, reducer: ReduceDev, fill: FillNull},
		{expr: "1s-none", interval: 1, reducer: ReduceNone},
		{expr: "avg", wantErr: true},
		{expr: "10s", wantErr: true},
		{expr: "10q-avg", wantErr: true},
		{expr: "s-avg", wantErr: true},
		{expr: "0s-avg", wantErr: true},
		{expr: "10s-bogus", wantErr: true},
		{expr: "10s-avg-bogus", wantErr: true},
		{expr: "10s-avg-zero-extra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			spec, err := parseDownsample(tt.expr, tt.msRes)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDownsample) {
					t.Fatalf("parseDownsample(%q) err = %v, want ErrInvalidDownsample", tt.expr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDownsample(%q) err = %v", tt.expr, err)
			}
			if spec.interval != tt.interval || spec.reducer != tt.reducer || spec.fill != tt.fill {
				t.Errorf("parseDownsample(%q) = %+v, want interval=%d reducer=%d fill=%d",
					tt.expr, spec, tt.interval, tt.reducer, tt.fill)
			}
		})
	}
}

func TestDownsamplerAvgSingleBucket(t *testing.T) {
	r := TimeRange{From: 0, To: 3600}
	ds := mustDownsampler(t, "1h-avg", r, false, false)

	out := runDownsampler(ds, DataPointVector{{0, 1}, {1800, 3}})

	want := DataPointVector{{0, 2}}
	if len(out) != 1 || out[0] != want[0] {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestDownsamplerFillZero(t *testing.T) {
	r := TimeRange{From: 0, To: 30}
	ds := mustDownsampler(t, "10s-sum-zero", r, false, false)

	out := runDownsampler(ds, DataPointVector{{0, 5}})

	want := DataPointVector{{0, 5}, {10, 0}, {20, 0}}
	if len(out) != len(want) {
		t.Fatalf("got %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("point %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestDownsamplerFillZeroCount(t *testing.T) {
	// With fill=zero, the output size is ceil((to-from)/interval)
	// regardless of the input.
	tests := []struct {
		name   string
		r      TimeRange
		points DataPointVector
		want   int
	}{
		{"empty input", TimeRange{0, 30}, nil, 3},
		{"aligned range", TimeRange{0, 100}, DataPointVector{{50, 1}}, 10},
		{"ragged range", TimeRange{0, 25}, nil, 3},
		{"unaligned from", TimeRange{5, 25}, nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := mustDownsampler(t, "10s-sum-zero", tt.r, false, false)
			out := runDownsampler(ds, tt.points)
			if len(out) != tt.want {
				t.Errorf("got %d points (%v), want %d", len(out), out, tt.want)
			}
		})
	}
}

func TestDownsamplerStrictlyIncreasingMultiples(t *testing.T) {
	r := TimeRange{From: 0, To: 100}
	ds := mustDownsampler(t, "10s-max", r, false, false)

	out := runDownsampler(ds, DataPointVector{
		{1, 1}, {3, 7}, {12, 2}, {15, 9}, {47, 4}, {90, 8},
	})

	for i, dp := range out {
		if dp.Timestamp%10 != 0 {
			t.Errorf("timestamp %d not a multiple of the interval", dp.Timestamp)
		}
		if i > 0 && out[i-1].Timestamp >= dp.Timestamp {
			t.Errorf("timestamps not strictly increasing: %v", out)
		}
	}
	want := DataPointVector{{0, 7}, {10, 9}, {40, 4}, {90, 8}}
	if len(out) != len(want) {
		t.Fatalf("got %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("point %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestDownsamplerFillNaN(t *testing.T) {
	r := TimeRange{From: 0, To: 30}
	ds := mustDownsampler(t, "10s-sum-nan", r, false, false)

	out := runDownsampler(ds, DataPointVector{{25, 4}})

	if len(out) != 3 {
		t.Fatalf("got %v, want 3 points", out)
	}
	if !math.IsNaN(out[0].Value) || !math.IsNaN(out[1].Value) {
		t.Errorf("leading gaps should be NaN: %v", out)
	}
	if out[2].Value != 4 {
		t.Errorf("got %v, want value 4 at 20", out[2])
	}
}

func TestDownsamplerOutsideRange(t *testing.T) {
	r := TimeRange{From: 100, To: 200}
	ds := mustDownsampler(t, "10s-sum", r, false, false)

	// Everything below the query start is dropped.
	out := runDownsampler(ds, DataPointVector{{10, 1}, {50, 2}})
	if len(out) != 0 {
		t.Errorf("got %v, want empty", out)
	}
}

func TestDownsamplerReducers(t *testing.T) {
	// All points in one 10s bucket; arrival order 3, 1, 2.
	points := DataPointVector{{1, 3}, {2, 1}, {3, 2}}
	r := TimeRange{From: 0, To: 10}

	tests := []struct {
		expr string
		want float64
	}{
		{"10s-avg", 2},
		{"10s-sum", 6},
		{"10s-min", 1},
		{"10s-max", 3},
		{"10s-count", 3},
		{"10s-first", 3},
		{"10s-last", 2},
		{"10s-p50", 2},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ds := mustDownsampler(t, tt.expr, r, false, false)
			out := runDownsampler(ds, points)
			if len(out) != 1 {
				t.Fatalf("got %v, want one point", out)
			}
			if out[0].Value != tt.want {
				t.Errorf("got %v, want %v", out[0].Value, tt.want)
			}
		})
	}
}

func TestDownsamplerNoneIsNil(t *testing.T) {
	ds, err := NewDownsampler("1s-none", TimeRange{0, 10}, false, false)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if ds != nil {
		t.Error("none reducer should yield a nil downsampler (raw passthrough)")
	}
}

func TestDownsamplerMsOutput(t *testing.T) {
	r := TimeRange{From: 0, To: 60}
	ds := mustDownsampler(t, "10s-sum", r, false, true)

	out := runDownsampler(ds, DataPointVector{{15, 1}})
	if len(out) != 1 || out[0].Timestamp != 10000 {
		t.Errorf("got %v, want timestamp 10000 (ms)", out)
	}
}

func TestStddev(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		want float64
	}{
		{"single value", []float64{5}, 0},
		{"identical values", []float64{2, 2, 2}, 0},
		{"spread", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stddev(tt.vals); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("stddev(%v) = %v, want %v", tt.vals, got, tt.want)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	tests := []struct {
		q    float64
		want float64
	}{
		{50, 3},
		{100, 5},
		{25, 2},
	}

	for _, tt := range tests {
		if got := percentile(sorted, tt.q); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
}

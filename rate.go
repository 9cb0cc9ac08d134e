package ticktock

import "math"

// RateOptions configures rate conversion, mirroring OpenTSDB rateOptions.
type RateOptions struct {
	// Counter treats the series as a monotonic counter that may wrap.
	Counter bool
	// DropResets omits points where the counter wrapped instead of
	// reconstructing the delta.
	DropResets bool
	// CounterMax is the value at which the counter wraps.
	CounterMax uint64
	// ResetValue suppresses spurious wrap deltas: a reconstructed rate
	// above it is emitted as 0. Zero disables the check.
	ResetValue uint64
}

// DefaultRateOptions returns the OpenTSDB defaults.
func DefaultRateOptions() RateOptions {
	return RateOptions{CounterMax: math.MaxUint64}
}

// RateCalculator transforms an absolute-value series into per-second
// rates. The denominator is in seconds regardless of the active
// resolution.
type RateCalculator struct {
	opts  RateOptions
	msRes bool
}

// NewRateCalculator builds a calculator for the active resolution.
func NewRateCalculator(opts RateOptions, msResolution bool) *RateCalculator {
	return &RateCalculator{opts: opts, msRes: msResolution}
}

// Calculate converts dps in place. Input must be ascending by timestamp.
// Output length is input length minus one, minus any dropped resets.
func (rc *RateCalculator) Calculate(dps DataPointVector) DataPointVector {
	if len(dps) == 0 {
		return dps
	}

	t0 := dps[0].Timestamp
	v0 := dps[0].Value
	j := 0

	for i := 1; i < len(dps); i++ {
		t1 := dps[i].Timestamp
		v1 := dps[i].Value

		tsDeltaSecs := float64(t1 - t0)
		if rc.msRes {
			tsDeltaSecs /= 1000.0
		}
		valDelta := v1 - v0

		if rc.opts.Counter && valDelta < 0 {
			if rc.opts.DropResets {
				t0, v0 = t1, v1
				continue
			}
			valDelta = float64(rc.opts.CounterMax) - v0 + v1
			rate := valDelta / tsDeltaSecs
			if rc.opts.ResetValue != 0 && rate > float64(rc.opts.ResetValue) {
				rate = 0.0
			}
			dps[j] = DataPoint{Timestamp: t1, Value: rate}
		} else {
			dps[j] = DataPoint{Timestamp: t1, Value: valDelta / tsDeltaSecs}
		}

		j++
		t0, v0 = t1, v1
	}

	return dps[:j]
}

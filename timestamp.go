package ticktock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a signed count of seconds or milliseconds since the Unix
// epoch. A value at or above MaxSecSinceEpoch is interpreted as
// milliseconds, below it as seconds.
type Timestamp = int64

// MaxSecSinceEpoch is the boundary between second and millisecond
// timestamps. Second timestamps stay below it for the next few centuries;
// every millisecond timestamp since 1970 lands above it.
const MaxSecSinceEpoch Timestamp = 10_000_000_000

// IsMs reports whether ts is a millisecond timestamp.
func IsMs(ts Timestamp) bool {
	return ts >= MaxSecSinceEpoch
}

// IsSec reports whether ts is a second timestamp.
func IsSec(ts Timestamp) bool {
	return ts < MaxSecSinceEpoch
}

// ToMs converts ts to milliseconds. Millisecond inputs pass through.
func ToMs(ts Timestamp) Timestamp {
	if ts < MaxSecSinceEpoch {
		ts *= 1000
	}
	return ts
}

// ToSec converts ts to seconds. Second inputs pass through.
func ToSec(ts Timestamp) Timestamp {
	if ts >= MaxSecSinceEpoch {
		ts /= 1000
	}
	return ts
}

// ValidateResolution coerces ts to the active resolution.
func ValidateResolution(ts Timestamp, msResolution bool) Timestamp {
	if msResolution && IsSec(ts) {
		return ToMs(ts)
	}
	if !msResolution && IsMs(ts) {
		return ToSec(ts)
	}
	return ts
}

// NowMs returns wall-clock milliseconds since the epoch.
func NowMs() Timestamp {
	return time.Now().UnixMilli()
}

// NowSec returns wall-clock seconds since the epoch.
func NowSec() Timestamp {
	return time.Now().Unix()
}

// Now returns the current time in the active resolution.
func Now(msResolution bool) Timestamp {
	if msResolution {
		return NowMs()
	}
	return NowSec()
}

// TimeRange is a half-open interval [From, To) in the active resolution.
type TimeRange struct {
	From Timestamp
	To   Timestamp
}

// NewTimeRange builds a range, failing with ErrInvalidRange when from > to.
func NewTimeRange(from, to Timestamp) (TimeRange, error) {
	if from > to {
		return TimeRange{}, newQueryError(ErrInvalidRange,
			fmt.Sprintf("invalid time range: from %d > to %d", from, to), nil)
	}
	return TimeRange{From: from, To: to}, nil
}

// In reports whether ts falls inside the range.
func (r TimeRange) In(ts Timestamp) bool {
	return r.From <= ts && ts < r.To
}

// Empty reports whether the range contains no timestamps.
func (r TimeRange) Empty() bool {
	return r.From >= r.To
}

// Intersects reports whether the two ranges share any timestamp.
func (r TimeRange) Intersects(other TimeRange) bool {
	if r.Empty() || other.Empty() {
		return false
	}
	return r.From < other.To && other.From < r.To
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.From, r.To)
}

// parseTimestampValue parses an absolute or relative timestamp from user
// input. Relative values use the OpenTSDB "<n><unit>-ago" form.
func parseTimestampValue(v any, now Timestamp, msResolution bool) (Timestamp, error) {
	switch t := v.(type) {
	case float64:
		return Timestamp(t), nil
	case int64:
		return t, nil
	case int:
		return Timestamp(t), nil
	case string:
		return parseTimestampString(t, now, msResolution)
	default:
		return 0, newQueryError(ErrBadRequest, fmt.Sprintf("cannot parse timestamp %v", v), nil)
	}
}

func parseTimestampString(s string, now Timestamp, msResolution bool) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, newQueryError(ErrBadRequest, "empty timestamp", nil)
	}
	if rel, ok := strings.CutSuffix(s, "-ago"); ok {
		d, err := parseRelativeOffset(rel)
		if err != nil {
			return 0, err
		}
		if msResolution {
			return now - d.Milliseconds(), nil
		}
		return now - int64(d.Seconds()), nil
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, newQueryError(ErrBadRequest, fmt.Sprintf("cannot parse timestamp %q", s), err)
	}
	return ts, nil
}

// parseRelativeOffset parses an offset like "5m", "1h" or "30s".
func parseRelativeOffset(s string) (time.Duration, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return 0, newQueryError(ErrBadRequest, fmt.Sprintf("cannot parse relative time %q", s), nil)
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, newQueryError(ErrBadRequest, fmt.Sprintf("cannot parse relative time %q", s), err)
	}
	var unit time.Duration
	switch s[i:] {
	case "ms":
		unit = time.Millisecond
	case "s":
		unit = time.Second
	case "m", "mi", "min":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	case "n":
		unit = 30 * 24 * time.Hour
	case "y":
		unit = 365 * 24 * time.Hour
	default:
		return 0, newQueryError(ErrBadRequest, fmt.Sprintf("unknown time unit in %q", s), nil)
	}
	return time.Duration(n) * unit, nil
}

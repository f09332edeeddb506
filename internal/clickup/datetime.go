package clickup

import (
	"strconv"
	"strings"
	"time"

	"github.com/basecamp/konnector/internal/output"
)

// dateOnlyHour is the local wall-clock hour Clickup uses for dates without a time.
const dateOnlyHour = 4

// Datetime is a Clickup timestamp. Clickup has no date-only representation
// on the wire: a date without a time is sent as 04:00:00.000 local time.
type Datetime struct {
	instant      time.Time
	timeIncluded bool
}

// NewDatetime builds a Datetime from t. When timeIncluded is false the
// calendar date of t, read in t's own location, is pinned to 04:00 in loc.
func NewDatetime(t time.Time, timeIncluded bool, loc *time.Location) Datetime {
	if timeIncluded {
		return Datetime{instant: t.UTC().Truncate(time.Millisecond), timeIncluded: true}
	}
	y, m, d := t.Date()
	return DateOnly(y, m, d, loc)
}

// DateOnly builds a date-only Datetime for the given calendar day in loc.
func DateOnly(year int, month time.Month, day int, loc *time.Location) Datetime {
	local := time.Date(year, month, day, dateOnlyHour, 0, 0, 0, location(loc))
	return Datetime{instant: local.UTC()}
}

// FromTimestamp reads a Clickup epoch timestamp. Values with fewer than 12
// digits are seconds, anything longer is milliseconds. A timestamp that lands
// on exactly 04:00:00.000 in loc is taken to be date-only.
func FromTimestamp(ts int64, loc *time.Location) Datetime {
	var t time.Time
	if len(strconv.FormatInt(abs(ts), 10)) < 12 {
		t = time.Unix(ts, 0)
	} else {
		t = time.UnixMilli(ts)
	}
	local := t.In(location(loc))
	dateOnly := local.Hour() == dateOnlyHour && local.Minute() == 0 &&
		local.Second() == 0 && local.Nanosecond() == 0
	return Datetime{instant: t.UTC(), timeIncluded: !dateOnly}
}

// ParseTimestamp reads the string form Clickup uses in task payloads.
func ParseTimestamp(s string, loc *time.Location) (Datetime, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return Datetime{}, output.ErrValidation("invalid clickup timestamp %q", s)
	}
	return FromTimestamp(ts, loc), nil
}

// UTC returns the instant in UTC.
func (d Datetime) UTC() time.Time {
	return d.instant
}

// TimeIncluded reports whether the value carries a meaningful time of day.
func (d Datetime) TimeIncluded() bool {
	return d.timeIncluded
}

// Timestamp returns milliseconds since the epoch, as Clickup expects.
func (d Datetime) Timestamp() int64 {
	return d.instant.UnixMilli()
}

// Equal reports whether both values describe the same instant and precision.
func (d Datetime) Equal(other Datetime) bool {
	return d.instant.Equal(other.instant) && d.timeIncluded == other.timeIncluded
}

func (d Datetime) String() string {
	return d.instant.Format(time.RFC3339)
}

func equalDatetime(a, b *Datetime) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

package todoist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/basecamp/konnector/internal/output"
)

// Wire layouts.
const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02T15:04:05.000000Z"
	floatingLayout = "2006-01-02T15:04:05"
)

var offsetZone = regexp.MustCompile(`^(?:UTC|GMT)?\s*([+-])(\d{1,2}):?(\d{2})$`)

// Datetime is a Todoist due date: a calendar date, optionally with a time.
type Datetime struct {
	year  int
	month time.Month
	day   int

	instant      time.Time
	timeIncluded bool
	loc          *time.Location
}

// DateOnly builds a due date without a time of day.
func DateOnly(year int, month time.Month, day int, loc *time.Location) Datetime {
	if loc == nil {
		loc = time.UTC
	}
	// Normalize out-of-range days the same way time.Date does.
	y, m, d := time.Date(year, month, day, 0, 0, 0, 0, loc).Date()
	return Datetime{year: y, month: m, day: d, loc: loc}
}

// FromTime builds a Datetime from t. When timeIncluded is false only the
// calendar date of t in t's own location is kept.
func FromTime(t time.Time, timeIncluded bool) Datetime {
	if !timeIncluded {
		y, m, d := t.Date()
		return DateOnly(y, m, d, t.Location())
	}
	y, m, d := t.Date()
	return Datetime{
		year:         y,
		month:        m,
		day:          d,
		instant:      t.UTC(),
		timeIncluded: true,
		loc:          t.Location(),
	}
}

// Parse reads the date, datetime and timezone fields of a Todoist due object.
// An empty datetime means the due date has no time.
func Parse(date, datetime, timezone string) (Datetime, error) {
	loc, err := ParseTimezone(timezone)
	if err != nil {
		return Datetime{}, err
	}

	if datetime == "" {
		// Floating due dates may carry their time in the date field.
		if strings.Contains(date, "T") {
			datetime = date
		} else {
			d, err := time.Parse(dateLayout, date)
			if err != nil {
				return Datetime{}, output.ErrValidation("invalid todoist due date %q", date)
			}
			return DateOnly(d.Year(), d.Month(), d.Day(), loc), nil
		}
	}

	t, err := parseInstant(datetime, loc)
	if err != nil {
		return Datetime{}, err
	}
	return FromTime(t.In(loc), true), nil
}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// Floating times have no offset and belong to the task's timezone.
	if t, err := time.ParseInLocation(floatingLayout, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, output.ErrValidation("invalid todoist due datetime %q", s)
}

// ParseTimezone accepts IANA names and fixed offsets such as "UTC+05:30".
// An empty string is UTC.
func ParseTimezone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "UTC" || name == "GMT" {
		return time.UTC, nil
	}
	if m := offsetZone.FindStringSubmatch(name); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes, _ := strconv.Atoi(m[3])
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(name, offset), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, output.ErrValidation("unknown timezone %q", name)
	}
	return loc, nil
}

// TimeIncluded reports whether the due date carries a time of day.
func (d Datetime) TimeIncluded() bool {
	return d.timeIncluded
}

// Date returns the calendar date.
func (d Datetime) Date() (int, time.Month, int) {
	return d.year, d.month, d.day
}

// Location returns the timezone the date is expressed in.
func (d Datetime) Location() *time.Location {
	if d.loc == nil {
		return time.UTC
	}
	return d.loc
}

// UTC returns the instant, or midnight of the date in its timezone when no
// time is included.
func (d Datetime) UTC() time.Time {
	if d.timeIncluded {
		return d.instant
	}
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, d.Location()).UTC()
}

// DateString formats the date as Todoist's due_date.
func (d Datetime) DateString() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, d.month, d.day)
}

// DatetimeString formats the instant as Todoist's due_datetime.
func (d Datetime) DatetimeString() string {
	return d.UTC().Format(datetimeLayout)
}

// Equal reports whether both values describe the same due date.
func (d Datetime) Equal(other Datetime) bool {
	if d.timeIncluded != other.timeIncluded {
		return false
	}
	if d.timeIncluded {
		return d.instant.Equal(other.instant)
	}
	return d.year == other.year && d.month == other.month && d.day == other.day
}

func (d Datetime) String() string {
	if d.timeIncluded {
		return d.instant.Format(time.RFC3339)
	}
	return d.DateString()
}

func equalDatetime(a, b *Datetime) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

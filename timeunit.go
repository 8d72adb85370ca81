package coverage

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Udunits approximations for calendar fields without a fixed length.
const (
	monthSeconds = 2629743.831225
	yearSeconds  = 3.15569259747e7
)

var periods = map[string]time.Duration{
	"millisecond":  time.Millisecond,
	"milliseconds": time.Millisecond,
	"msec":         time.Millisecond,
	"second":       time.Second,
	"seconds":      time.Second,
	"sec":          time.Second,
	"secs":         time.Second,
	"s":            time.Second,
	"minute":       time.Minute,
	"minutes":      time.Minute,
	"min":          time.Minute,
	"mins":         time.Minute,
	"hour":         time.Hour,
	"hours":        time.Hour,
	"hr":           time.Hour,
	"hrs":          time.Hour,
	"h":            time.Hour,
	"day":          24 * time.Hour,
	"days":         24 * time.Hour,
	"d":            24 * time.Hour,
	"month":        time.Duration(monthSeconds * float64(time.Second)),
	"months":       time.Duration(monthSeconds * float64(time.Second)),
	"year":         time.Duration(yearSeconds * float64(time.Second)),
	"years":        time.Duration(yearSeconds * float64(time.Second)),
}

var refLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// TimeUnit is a "<period> since <reference date>" unit. Values in the unit are
// (possibly fractional) periods elapsed since Ref.
type TimeUnit struct {
	Name   string
	Period time.Duration
	Ref    time.Time
}

// ParseTimeUnit parses strings like "hours since 2012-02-27T00:00:00Z".
func ParseTimeUnit(s string) (TimeUnit, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 || !strings.EqualFold(fields[1], "since") {
		return TimeUnit{}, fmt.Errorf("invalid time unit %q", s)
	}
	name := strings.ToLower(fields[0])
	period, ok := periods[name]
	if !ok {
		return TimeUnit{}, fmt.Errorf("unknown time period %q in %q", fields[0], s)
	}
	ref, err := ParseDate(strings.Join(fields[2:], " "))
	if err != nil {
		return TimeUnit{}, fmt.Errorf("invalid time unit %q: %w", s, err)
	}
	return TimeUnit{Name: name, Period: period, Ref: ref}, nil
}

// NewTimeUnit makes a unit from a period name and reference date.
func NewTimeUnit(period string, ref time.Time) (TimeUnit, error) {
	name := strings.ToLower(period)
	d, ok := periods[name]
	if !ok {
		return TimeUnit{}, fmt.Errorf("unknown time period %q", period)
	}
	return TimeUnit{Name: name, Period: d, Ref: ref.UTC()}, nil
}

// ParseDate parses an ISO-style date in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range refLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// MakeDate returns the date val periods after Ref.
func (u TimeUnit) MakeDate(val float64) time.Time {
	return addPeriods(u.Ref, val, u.Period)
}

// MakeDateFrom returns the date val periods after start.
func (u TimeUnit) MakeDateFrom(start time.Time, val float64) time.Time {
	return addPeriods(start, val, u.Period)
}

// Offset returns the value of t in this unit.
func (u TimeUnit) Offset(t time.Time) float64 {
	return u.OffsetBetween(u.Ref, t)
}

// OffsetBetween returns end - start in periods of this unit.
func (u TimeUnit) OffsetBetween(start, end time.Time) float64 {
	return float64(end.Sub(start)) / float64(u.Period)
}

// WithRef returns the same period relative to a different reference date.
func (u TimeUnit) WithRef(ref time.Time) TimeUnit {
	u.Ref = ref.UTC()
	return u
}

func (u TimeUnit) String() string {
	return fmt.Sprintf("%s since %s", u.Name, u.Ref.UTC().Format(time.RFC3339))
}

func addPeriods(start time.Time, val float64, period time.Duration) time.Time {
	// millisecond resolution avoids float noise in the nanosecond digits
	ms := math.Round(val * float64(period) / float64(time.Millisecond))
	return start.Add(time.Duration(ms) * time.Millisecond).UTC()
}

// Package epoch converts between wall-clock time and the integer epoch
// representations used on the wire (seconds, milliseconds, microseconds, or
// a day index), relative to a named IANA timezone.
package epoch

import (
	"fmt"
	"time"
)

// Unit identifies the granularity of an integer epoch value.
type Unit string

const (
	Seconds      Unit = "seconds"
	Milliseconds Unit = "milliseconds"
	Microseconds Unit = "microseconds"
	Days         Unit = "days"
)

// Config pairs an epoch unit with the timezone it is interpreted in.
// The Config carried on a connection session is set when the session is
// created; init does not renegotiate it from any table.
type Config struct {
	Unit     Unit
	Timezone string // IANA timezone name, e.g. "America/New_York"
}

// Location resolves the configured timezone, defaulting to UTC when empty.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("epoch: load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ToTime converts an integer epoch value to an absolute time in the
// configured location.
func ToTime(value int64, unit Unit, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch unit {
	case Seconds:
		return time.Unix(value, 0).In(loc), nil
	case Milliseconds:
		return time.UnixMilli(value).In(loc), nil
	case Microseconds:
		return time.UnixMicro(value).In(loc), nil
	case Days:
		// value is a day index since the Unix epoch, interpreted at
		// midnight in loc.
		epoch := time.Unix(0, 0).In(loc)
		return time.Date(epoch.Year(), epoch.Month(), epoch.Day(), 0, 0, 0, 0, loc).
			AddDate(0, 0, int(value)), nil
	default:
		return time.Time{}, fmt.Errorf("epoch: unknown unit %q", unit)
	}
}

// ToEpoch converts an absolute time to its integer representation in unit,
// within loc. This is the function the spec calls out for day-rollover
// detection: toEpoch(timestamp, days, timezone) yields the day index used
// to decide whether a metrics EOD report is due.
func ToEpoch(t time.Time, unit Unit, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	switch unit {
	case Seconds:
		return t.Unix(), nil
	case Milliseconds:
		return t.UnixMilli(), nil
	case Microseconds:
		return t.UnixMicro(), nil
	case Days:
		y, m, d := t.Date()
		epoch := time.Unix(0, 0).In(loc)
		// Count calendar days on a UTC calendar so DST-length days in loc
		// don't shift the index.
		midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		epochMidnight := time.Date(epoch.Year(), epoch.Month(), epoch.Day(), 0, 0, 0, 0, time.UTC)
		return int64(midnight.Sub(epochMidnight).Hours() / 24), nil
	default:
		return 0, fmt.Errorf("epoch: unknown unit %q", unit)
	}
}

// DayIndex is a convenience wrapper over ToEpoch for the day-rollover check
// ClientSession.processMarketData performs on every batch.
func DayIndex(t time.Time, loc *time.Location) int64 {
	idx, _ := ToEpoch(t, Days, loc)
	return idx
}

package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCoordinate is returned for latitudes outside [-90, 90] or
	// longitudes outside [-180, 180].
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidCalendarDate is returned when a date/hour/offset combination
	// does not exist on the calendar.
	ErrInvalidCalendarDate = errors.New("invalid calendar date")
)

// GeoLocation is an observer position on the globe, in signed degrees
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SouthernHemisphere reports whether the location lies south of the equator
func (g GeoLocation) SouthernHemisphere() bool {
	return g.Latitude < 0
}

// LocalInstant is a wall-clock hour on a calendar day at a fixed UTC offset
type LocalInstant struct {
	Year      int        `json:"year"`
	Month     time.Month `json:"month"`
	Day       int        `json:"day"`
	Hour      int        `json:"hour"`
	UTCOffset int        `json:"utc_offset"` // hours
}

// Time resolves the instant to an absolute timestamp. Unlike time.Date it
// refuses to normalize impossible dates such as April 31.
func (l LocalInstant) Time() (time.Time, error) {
	if l.Month < time.January || l.Month > time.December {
		return time.Time{}, fmt.Errorf("%w: month %d", ErrInvalidCalendarDate, l.Month)
	}
	if l.Hour < 0 || l.Hour > 23 {
		return time.Time{}, fmt.Errorf("%w: hour %d", ErrInvalidCalendarDate, l.Hour)
	}
	if l.UTCOffset < -12 || l.UTCOffset > 14 {
		return time.Time{}, fmt.Errorf("%w: utc offset %+d", ErrInvalidCalendarDate, l.UTCOffset)
	}
	if l.Day < 1 || l.Day > DaysIn(l.Year, l.Month) {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidCalendarDate, l.Year, int(l.Month), l.Day)
	}

	return time.Date(l.Year, l.Month, l.Day, l.Hour, 0, 0, 0, FixedZone(l.UTCOffset)), nil
}

// FixedZone returns a location for a whole-hour UTC offset, named like "UTC-3"
func FixedZone(utcOffset int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", utcOffset), utcOffset*3600)
}

// DaysIn returns the number of days in the given month
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SunPosition is one computed sun position. Values are never mutated after
// the generator produces them.
type SunPosition struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"` // degrees, negative below horizon
	Azimuth   float64   `json:"azimuth"`  // degrees clockwise from north, [0, 360)
}

// AboveHorizon reports whether the sun is visible (altitude >= 0)
func (p SunPosition) AboveHorizon() bool {
	return p.Altitude >= 0
}

// SunPositionSeries is an ordered run of positions in generation order
type SunPositionSeries []SunPosition

// AboveHorizon returns a copy holding only the entries with altitude >= 0,
// preserving order. The receiver is left untouched.
func (s SunPositionSeries) AboveHorizon() SunPositionSeries {
	out := make(SunPositionSeries, 0, len(s))
	for _, p := range s {
		if p.AboveHorizon() {
			out = append(out, p)
		}
	}
	return out
}

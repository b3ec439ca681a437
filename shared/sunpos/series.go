package sunpos

import (
	"fmt"
	"time"

	"heliodon/internal/models"
)

var (
	allMonths = []time.Month{
		time.January, time.February, time.March, time.April, time.May, time.June,
		time.July, time.August, time.September, time.October, time.November, time.December,
	}
	thirtyDayMonths = []time.Month{
		time.January, time.March, time.April, time.May, time.June, time.July,
		time.August, time.September, time.October, time.November, time.December,
	}
	thirtyOneDayMonths = []time.Month{
		time.January, time.March, time.May, time.July, time.August, time.October, time.December,
	}
)

// Generator builds sun position series on top of a Provider. Nothing is
// cached; every call goes back to the provider.
type Generator struct {
	provider Provider
}

func NewGenerator(provider Provider) *Generator {
	return &Generator{provider: provider}
}

// At returns the sun position at an arbitrary absolute time
func (g *Generator) At(loc models.GeoLocation, t time.Time) (models.SunPosition, error) {
	alt, az, err := g.provider.Position(loc, t)
	if err != nil {
		return models.SunPosition{}, err
	}
	return models.SunPosition{
		Timestamp: t,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Altitude:  alt,
		Azimuth:   az,
	}, nil
}

// PointPosition returns the sun position at a single local hour
func (g *Generator) PointPosition(loc models.GeoLocation, instant models.LocalInstant) (models.SunPosition, error) {
	t, err := instant.Time()
	if err != nil {
		return models.SunPosition{}, err
	}
	return g.At(loc, t)
}

// DayPositions returns 24 hourly positions, 00:00 to 23:00 local time
func (g *Generator) DayPositions(loc models.GeoLocation, year int, month time.Month, day, utcOffset int) (models.SunPositionSeries, error) {
	series := make(models.SunPositionSeries, 0, 24)
	for hour := 0; hour < 24; hour++ {
		p, err := g.PointPosition(loc, models.LocalInstant{
			Year:      year,
			Month:     month,
			Day:       day,
			Hour:      hour,
			UTCOffset: utcOffset,
		})
		if err != nil {
			return nil, err
		}
		series = append(series, p)
	}
	return series, nil
}

// YearMonthSlicePositions returns the position at the same day and hour of
// every month that has that day, in calendar order.
func (g *Generator) YearMonthSlicePositions(loc models.GeoLocation, year, day, hour, utcOffset int) (models.SunPositionSeries, error) {
	months, err := ValidMonths(day)
	if err != nil {
		return nil, err
	}

	series := make(models.SunPositionSeries, 0, len(months))
	for _, m := range months {
		p, err := g.PointPosition(loc, models.LocalInstant{
			Year:      year,
			Month:     m,
			Day:       day,
			Hour:      hour,
			UTCOffset: utcOffset,
		})
		if err != nil {
			return nil, err
		}
		series = append(series, p)
	}
	return series, nil
}

// ValidMonths lists the months that contain the given day of month.
// February is skipped for any day past the 28th, leap years included.
func ValidMonths(day int) ([]time.Month, error) {
	switch {
	case day < 1 || day > 31:
		return nil, fmt.Errorf("%w: day of month %d", models.ErrInvalidCalendarDate, day)
	case day == 31:
		return append([]time.Month(nil), thirtyOneDayMonths...), nil
	case day > 28:
		return append([]time.Month(nil), thirtyDayMonths...), nil
	default:
		return append([]time.Month(nil), allMonths...), nil
	}
}

package sunpos

import (
	"errors"
	"testing"
	"time"

	"heliodon/internal/models"
)

// recordingProvider returns the UTC hour as altitude and the month as
// azimuth so tests can see exactly which instants were requested.
type recordingProvider struct {
	calls []time.Time
	err   error
}

func (r *recordingProvider) Position(loc models.GeoLocation, t time.Time) (float64, float64, error) {
	if r.err != nil {
		return 0, 0, r.err
	}
	r.calls = append(r.calls, t)
	return float64(t.Hour()), float64(t.Month()), nil
}

func TestDayPositions(t *testing.T) {
	provider := &recordingProvider{}
	gen := NewGenerator(provider)
	loc := models.GeoLocation{Latitude: -23.55, Longitude: -46.63}

	series, err := gen.DayPositions(loc, 2023, time.June, 15, -3)
	if err != nil {
		t.Fatalf("DayPositions failed: %v", err)
	}

	if len(series) != 24 {
		t.Fatalf("Expected 24 entries, got %d", len(series))
	}
	if len(provider.calls) != 24 {
		t.Errorf("Expected 24 provider calls, got %d", len(provider.calls))
	}

	for i, p := range series {
		if p.Timestamp.Hour() != i {
			t.Errorf("Entry %d: expected local hour %d, got %d", i, i, p.Timestamp.Hour())
		}
		if p.Timestamp.Day() != 15 || p.Timestamp.Month() != time.June {
			t.Errorf("Entry %d: unexpected date %s", i, p.Timestamp)
		}
		if _, offset := p.Timestamp.Zone(); offset != -3*3600 {
			t.Errorf("Entry %d: expected offset -3h, got %ds", i, offset)
		}
		if p.Latitude != loc.Latitude || p.Longitude != loc.Longitude {
			t.Errorf("Entry %d: location not carried through: %+v", i, p)
		}
		if i > 0 && !p.Timestamp.After(series[i-1].Timestamp) {
			t.Errorf("Entry %d is not after entry %d", i, i-1)
		}
	}
}

func TestDayPositionsInvalidDate(t *testing.T) {
	gen := NewGenerator(&recordingProvider{})
	_, err := gen.DayPositions(models.GeoLocation{}, 2023, time.February, 30, 0)
	if !errors.Is(err, models.ErrInvalidCalendarDate) {
		t.Errorf("Expected ErrInvalidCalendarDate, got %v", err)
	}
}

func TestYearMonthSlicePositions(t *testing.T) {
	tests := []struct {
		name         string
		day          int
		expectMonths []time.Month
	}{
		{
			name:         "Day 31 keeps only long months",
			day:          31,
			expectMonths: []time.Month{1, 3, 5, 7, 8, 10, 12},
		},
		{
			name:         "Day 30 drops February",
			day:          30,
			expectMonths: []time.Month{1, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		},
		{
			name:         "Day 29 drops February even in a leap year",
			day:          29,
			expectMonths: []time.Month{1, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		},
		{
			name:         "Day 28 keeps every month",
			day:          28,
			expectMonths: []time.Month{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		},
		{
			name:         "Day 1 keeps every month",
			day:          1,
			expectMonths: []time.Month{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(&recordingProvider{})
			series, err := gen.YearMonthSlicePositions(models.GeoLocation{Latitude: 10}, 2024, tt.day, 9, 0)
			if err != nil {
				t.Fatalf("YearMonthSlicePositions failed: %v", err)
			}
			if len(series) != len(tt.expectMonths) {
				t.Fatalf("Expected %d entries, got %d", len(tt.expectMonths), len(series))
			}
			for i, p := range series {
				if p.Timestamp.Month() != tt.expectMonths[i] {
					t.Errorf("Entry %d: expected month %s, got %s", i, tt.expectMonths[i], p.Timestamp.Month())
				}
				if p.Timestamp.Day() != tt.day || p.Timestamp.Hour() != 9 {
					t.Errorf("Entry %d: unexpected timestamp %s", i, p.Timestamp)
				}
			}
		})
	}
}

func TestValidMonthsRejectsOutOfRange(t *testing.T) {
	for _, day := range []int{0, -1, 32} {
		if _, err := ValidMonths(day); !errors.Is(err, models.ErrInvalidCalendarDate) {
			t.Errorf("Day %d: expected ErrInvalidCalendarDate, got %v", day, err)
		}
	}
}

func TestValidMonthsReturnsCopy(t *testing.T) {
	months, _ := ValidMonths(31)
	months[0] = time.February

	again, _ := ValidMonths(31)
	if again[0] != time.January {
		t.Error("ValidMonths must not expose its internal tables")
	}
}

func TestPointPositionPropagatesProviderError(t *testing.T) {
	providerErr := errors.New("ephemeris unavailable")
	gen := NewGenerator(&recordingProvider{err: providerErr})

	_, err := gen.PointPosition(models.GeoLocation{}, models.LocalInstant{Year: 2023, Month: 3, Day: 20, Hour: 12})
	if !errors.Is(err, providerErr) {
		t.Errorf("Expected provider error to propagate unchanged, got %v", err)
	}

	if _, err := gen.DayPositions(models.GeoLocation{}, 2023, 3, 20, 0); !errors.Is(err, providerErr) {
		t.Errorf("Expected provider error from DayPositions, got %v", err)
	}
}

func TestGeneratorDoesNotCache(t *testing.T) {
	provider := &recordingProvider{}
	gen := NewGenerator(provider)
	instant := models.LocalInstant{Year: 2023, Month: 3, Day: 20, Hour: 12}

	for i := 0; i < 3; i++ {
		if _, err := gen.PointPosition(models.GeoLocation{}, instant); err != nil {
			t.Fatalf("PointPosition failed: %v", err)
		}
	}
	if len(provider.calls) != 3 {
		t.Errorf("Expected 3 provider calls, got %d", len(provider.calls))
	}
}

package sunpos

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/s2"
	"github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"

	"heliodon/internal/models"
)

// Provider computes the apparent position of the sun for an observer.
// Altitude is in degrees above the horizon, azimuth in degrees clockwise
// from north in [0, 360).
type Provider interface {
	Position(loc models.GeoLocation, t time.Time) (altitude, azimuth float64, err error)
}

// deltaT approximates TT - UT for the current decades
const deltaT = 69.2 // seconds

// MeeusProvider computes sun positions from the closed-form solar theory in
// Meeus' Astronomical Algorithms. No refraction correction is applied.
type MeeusProvider struct{}

func NewMeeusProvider() *MeeusProvider {
	return &MeeusProvider{}
}

// Position implements Provider
func (MeeusProvider) Position(loc models.GeoLocation, t time.Time) (float64, float64, error) {
	if err := ValidateLocation(loc); err != nil {
		return 0, 0, err
	}

	jd := julian.TimeToJD(t.UTC())
	jde := jd + deltaT/86400

	ra, dec := solar.ApparentEquatorial(jde)
	st := sidereal.Apparent(jd)

	// Meeus measures longitude positive westward and azimuth westward from south.
	az, alt := coord.EqToHz(ra, dec,
		unit.AngleFromDeg(loc.Latitude),
		unit.AngleFromDeg(-loc.Longitude),
		st)

	return alt.Deg(), NormalizeAzimuth(az.Deg() + 180), nil
}

// ValidateLocation rejects coordinates that are off the globe
func ValidateLocation(loc models.GeoLocation) error {
	if !s2.LatLngFromDegrees(loc.Latitude, loc.Longitude).IsValid() {
		return fmt.Errorf("%w: latitude %.4f, longitude %.4f", models.ErrInvalidCoordinate, loc.Latitude, loc.Longitude)
	}
	return nil
}

// NormalizeAzimuth folds any angle in degrees into [0, 360)
func NormalizeAzimuth(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

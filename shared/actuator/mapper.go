package actuator

import (
	"math"
	"time"

	"heliodon/internal/models"
)

// Calibration converts sun angles into stepper positions. Values are fixed
// when the process starts and passed explicitly to every mapping.
type Calibration struct {
	AltitudeStepsPerDegree float64 `json:"altitude_steps_per_degree"`
	AltitudeZeroOffset     float64 `json:"altitude_zero_offset"` // degrees
	AzimuthStepsPerDegree  float64 `json:"azimuth_steps_per_degree"`
	AzimuthZeroOffset      float64 `json:"azimuth_zero_offset"` // degrees
}

// DefaultCalibration matches the reference heliodon build: 2048 steps per
// half turn of the altitude arm, 7260 per half turn of the azimuth table,
// and an azimuth home position facing east.
func DefaultCalibration() Calibration {
	return Calibration{
		AltitudeStepsPerDegree: 2048.0 / 180.0,
		AltitudeZeroOffset:     0,
		AzimuthStepsPerDegree:  7260.0 / 180.0,
		AzimuthZeroOffset:      90,
	}
}

// ToCommand maps a sun position to stepper targets.
//
// South of the equator the sun sweeps through north, so azimuths past 180
// are taken as negative angles. This keeps the azimuth table turning in one
// direction over the day instead of unwinding through the home position.
func (c Calibration) ToCommand(loc models.GeoLocation, altitude, azimuth float64, hold time.Duration) models.ActuatorCommand {
	if loc.SouthernHemisphere() && azimuth > 180 {
		azimuth -= 360
	}

	return models.ActuatorCommand{
		AltitudeSteps: roundSteps((altitude - c.AltitudeZeroOffset) * c.AltitudeStepsPerDegree),
		AzimuthSteps:  roundSteps((azimuth - c.AzimuthZeroOffset) * c.AzimuthStepsPerDegree),
		HoldMs:        hold.Milliseconds(),
	}
}

// roundSteps rounds half to even, the rule the controller firmware was
// calibrated against.
func roundSteps(v float64) int64 {
	return int64(math.RoundToEven(v))
}

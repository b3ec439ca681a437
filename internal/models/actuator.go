package models

import (
	"errors"
	"fmt"
)

// ErrDeviceNotReady matches any DeviceNotReadyError via errors.Is
var ErrDeviceNotReady = errors.New("device not ready")

// ActuatorCommand is a calibrated move order for the heliodon steppers.
// It is computed on demand and never stored.
type ActuatorCommand struct {
	AltitudeSteps int64 `json:"altitude_steps"`
	AzimuthSteps  int64 `json:"azimuth_steps"`
	HoldMs        int64 `json:"hold_ms"` // pause after the final position is reached
}

// Frame encodes the command in the controller's line protocol
func (c ActuatorCommand) Frame() string {
	return fmt.Sprintf("movesun;%d;%d;%d\n", c.AltitudeSteps, c.AzimuthSteps, c.HoldMs)
}

// DeviceNotReadyError reports a non-zero controller status byte. The
// command that triggered it was dropped.
type DeviceNotReadyError struct {
	Status byte
}

func (e *DeviceNotReadyError) Error() string {
	return fmt.Sprintf("device not ready: status byte %d", e.Status)
}

func (e *DeviceNotReadyError) Is(target error) bool {
	return target == ErrDeviceNotReady
}

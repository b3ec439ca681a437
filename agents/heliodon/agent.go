package heliodon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"heliodon/internal/models"
	"heliodon/shared/actuator"
	"heliodon/shared/config"
	"heliodon/shared/metrics"
	"heliodon/shared/scheduler"
	"heliodon/shared/sunpath"
	"heliodon/shared/sunpos"
	"heliodon/shared/telemetry"
)

// ErrNoDevice is reported when a move is requested but no serial port is
// configured
var ErrNoDevice = errors.New("no actuator connected")

// Mover sends commands to the heliodon. *actuator.Transport implements it.
type Mover interface {
	Send(ctx context.Context, cmd models.ActuatorCommand) error
}

// Publisher forwards tracking telemetry. *telemetry.Publisher implements it.
type Publisher interface {
	Publish(msg telemetry.Message) error
}

// TrackingMetrics represents the outcome of one live tracking run
type TrackingMetrics struct {
	Altitude     float64 `json:"altitude"`
	Azimuth      float64 `json:"azimuth"`
	AboveHorizon bool    `json:"above_horizon"`
	Moved        bool    `json:"moved"`
	Published    bool    `json:"published"`
}

// GetSummary implements the scheduler.Metrics interface
func (m TrackingMetrics) GetSummary() string {
	if !m.AboveHorizon {
		return fmt.Sprintf("sun below horizon (altitude %.1f°), heliodon left in place", m.Altitude)
	} else if m.Moved {
		return fmt.Sprintf("heliodon moved to altitude %.1f°, azimuth %.1f°", m.Altitude, m.Azimuth)
	} else {
		return fmt.Sprintf("sun at altitude %.1f°, azimuth %.1f°, heliodon not moved", m.Altitude, m.Azimuth)
	}
}

// ShowResult is what a plot request produces: the point, its reference
// paths and, when a move was attempted, the command and any device error
type ShowResult struct {
	Position    models.SunPosition      `json:"position"`
	Overlays    []sunpath.Overlay       `json:"overlays"`
	Command     *models.ActuatorCommand `json:"command,omitempty"`
	DeviceError string                  `json:"device_error,omitempty"`
}

// HeliodonAgent implements the scheduler.Agent interface for live tracking
// and serves the interactive plot, move and zero operations
type HeliodonAgent struct {
	config      *config.Config
	generator   *sunpos.Generator
	selector    *sunpath.Selector
	calibration actuator.Calibration
	now         func() time.Time

	mover     Mover
	publisher Publisher

	// Owned connections, closed by Close
	transport *actuator.Transport
	mqtt      *telemetry.Publisher
}

func NewHeliodonAgent(cfg *config.Config) *HeliodonAgent {
	generator := sunpos.NewGenerator(sunpos.NewMeeusProvider())
	return &HeliodonAgent{
		config:      cfg,
		generator:   generator,
		selector:    sunpath.NewSelector(generator),
		calibration: cfg.ActuatorCalibration(),
		now:         time.Now,
	}
}

func (h *HeliodonAgent) Name() string {
	return "Heliodon Agent"
}

func (h *HeliodonAgent) Initialize() error {
	log.Printf("Initializing %s...", h.Name())

	if err := sunpos.ValidateLocation(h.config.Home()); err != nil {
		return fmt.Errorf("home location is invalid: %w", err)
	}

	if h.mover == nil && h.config.Serial.Port != "" {
		transport, err := actuator.Open(h.config.SerialSettings())
		if err != nil {
			return fmt.Errorf("failed to open actuator: %w", err)
		}
		h.transport = transport
		h.mover = transport
		log.Printf("Actuator connected on %s", h.config.Serial.Port)
	}

	if h.config.Tracking.Enabled && h.mover == nil {
		return fmt.Errorf("live tracking requires a connected actuator")
	}

	if h.publisher == nil && h.config.MQTT.Broker != "" {
		publisher, err := telemetry.NewPublisher(telemetry.ClientConfig{
			Broker:   h.config.MQTT.Broker,
			ClientID: h.config.MQTT.ClientID,
			Username: h.config.MQTT.Username,
			Password: h.config.MQTT.Password,
			Topic:    h.config.MQTT.Topic,
		})
		if err != nil {
			return fmt.Errorf("failed to connect telemetry: %w", err)
		}
		h.mqtt = publisher
		h.publisher = publisher
	}

	log.Printf("Configured for %s (%.4f, %.4f)",
		h.config.Location.Name,
		h.config.Location.Latitude,
		h.config.Location.Longitude)

	return nil
}

// RunOnce points the heliodon at the current sun position of the home site
func (h *HeliodonAgent) RunOnce(ctx context.Context, events *scheduler.AgentEvents) error {
	startTime := time.Now()
	home := h.config.Home()
	m := TrackingMetrics{}

	pos, err := h.generator.At(home, h.now())
	if err != nil {
		if events != nil && events.OnCriticalFailure != nil {
			events.OnCriticalFailure(fmt.Errorf("failed to compute sun position: %w", err), time.Since(startTime))
		}
		return fmt.Errorf("failed to compute sun position: %w", err)
	}
	metrics.PositionCounter.WithLabelValues("live").Inc()
	metrics.SunAltitudeGauge.Set(pos.Altitude)
	metrics.SunAzimuthGauge.Set(pos.Azimuth)

	m.Altitude = pos.Altitude
	m.Azimuth = pos.Azimuth
	m.AboveHorizon = pos.AboveHorizon()

	msg := telemetry.Message{Location: home, Position: pos}

	if m.AboveHorizon {
		cmd := h.calibration.ToCommand(home, pos.Altitude, pos.Azimuth, h.config.Tracking.Hold)
		if err := h.move(ctx, cmd); err != nil {
			// Device errors are advisory, the position is still reported
			if events != nil && events.OnPartialFailure != nil {
				events.OnPartialFailure(fmt.Errorf("failed to move heliodon: %w", err), time.Since(startTime))
			}
			msg.Error = err.Error()
		} else {
			m.Moved = true
			msg.Command = &cmd
		}
	} else {
		log.Printf("Sun is below the horizon (altitude %.2f°), not moving", pos.Altitude)
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(msg); err != nil {
			if events != nil && events.OnPartialFailure != nil {
				events.OnPartialFailure(fmt.Errorf("failed to publish telemetry: %w", err), time.Since(startTime))
			}
			log.Printf("Warning: Failed to publish telemetry: %v", err)
		} else {
			m.Published = true
		}
	}

	duration := time.Since(startTime)
	if events != nil && events.OnSuccess != nil {
		events.OnSuccess(m, duration)
	}

	log.Printf("Tracking run complete: altitude=%.2f, azimuth=%.2f, moved=%t", m.Altitude, m.Azimuth, m.Moved)

	return nil
}

// Show computes the sun position for a local instant together with the
// requested reference paths. With move set, the heliodon is pointed at
// the sun when it is above the horizon. A device failure is reported in
// the result and never fails the call.
func (h *HeliodonAgent) Show(ctx context.Context, req sunpath.Request, tags []sunpath.Tag, move bool) (*ShowResult, error) {
	pos, err := h.generator.PointPosition(req.Location, models.LocalInstant{
		Year:      req.Year,
		Month:     req.Month,
		Day:       req.Day,
		Hour:      req.Hour,
		UTCOffset: req.UTCOffset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute sun position: %w", err)
	}
	metrics.PositionCounter.WithLabelValues("point").Inc()

	overlays, err := h.selector.Resolve(req, tags...)
	if err != nil {
		return nil, err
	}

	result := &ShowResult{Position: pos, Overlays: overlays}
	if move && pos.AboveHorizon() {
		cmd := h.calibration.ToCommand(req.Location, pos.Altitude, pos.Azimuth, 0)
		if err := h.move(ctx, cmd); err != nil {
			result.DeviceError = err.Error()
		} else {
			result.Command = &cmd
		}
	}

	return result, nil
}

// Zero sends the heliodon back to its home pose: on the horizon, facing east
func (h *HeliodonAgent) Zero(ctx context.Context) *ShowResult {
	pos := ZeroPosition()
	result := &ShowResult{Position: pos}

	cmd := h.calibration.ToCommand(models.GeoLocation{}, pos.Altitude, pos.Azimuth, 0)
	if err := h.move(ctx, cmd); err != nil {
		result.DeviceError = err.Error()
	} else {
		result.Command = &cmd
	}
	return result
}

// ZeroPosition is the marker drawn before anything has been plotted
func ZeroPosition() models.SunPosition {
	return models.SunPosition{Altitude: 0, Azimuth: 90}
}

// Home returns the configured site
func (h *HeliodonAgent) Home() models.GeoLocation {
	return h.config.Home()
}

// Day returns the raw hourly series for the requested day, below-horizon
// hours included
func (h *HeliodonAgent) Day(req sunpath.Request) (models.SunPositionSeries, error) {
	series, err := h.generator.DayPositions(req.Location, req.Year, req.Month, req.Day, req.UTCOffset)
	if err != nil {
		return nil, err
	}
	metrics.PositionCounter.WithLabelValues("day").Add(float64(len(series)))
	return series, nil
}

// Year returns the position at the requested day and hour of every month
// that has that day
func (h *HeliodonAgent) Year(req sunpath.Request) (models.SunPositionSeries, error) {
	series, err := h.generator.YearMonthSlicePositions(req.Location, req.Year, req.Day, req.Hour, req.UTCOffset)
	if err != nil {
		return nil, err
	}
	metrics.PositionCounter.WithLabelValues("year").Add(float64(len(series)))
	return series, nil
}

// Paths resolves reference paths without computing a point
func (h *HeliodonAgent) Paths(req sunpath.Request, tags []sunpath.Tag) ([]sunpath.Overlay, error) {
	return h.selector.Resolve(req, tags...)
}

func (h *HeliodonAgent) move(ctx context.Context, cmd models.ActuatorCommand) error {
	if h.mover == nil {
		metrics.CommandCounter.WithLabelValues("error").Inc()
		return ErrNoDevice
	}

	err := h.mover.Send(ctx, cmd)
	switch {
	case err == nil:
		metrics.CommandCounter.WithLabelValues("sent").Inc()
	case errors.Is(err, models.ErrDeviceNotReady):
		metrics.CommandCounter.WithLabelValues("not_ready").Inc()
	default:
		metrics.CommandCounter.WithLabelValues("error").Inc()
	}
	return err
}

// Close releases the serial port and the broker connection
func (h *HeliodonAgent) Close() error {
	if h.mqtt != nil {
		h.mqtt.Close()
		h.mqtt = nil
	}
	if h.transport != nil {
		err := h.transport.Close()
		h.transport = nil
		return err
	}
	return nil
}

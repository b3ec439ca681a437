package heliodon

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"heliodon/internal/models"
	"heliodon/shared/config"
	"heliodon/shared/scheduler"
	"heliodon/shared/sunpath"
	"heliodon/shared/telemetry"
)

var (
	greenwichNoon     = time.Date(2023, time.June, 21, 12, 0, 0, 0, time.UTC)
	greenwichMidnight = time.Date(2023, time.June, 21, 0, 0, 0, 0, time.UTC)
)

type fakeMover struct {
	mu   sync.Mutex
	sent []models.ActuatorCommand
	err  error
}

func (f *fakeMover) Send(ctx context.Context, cmd models.ActuatorCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

type fakePublisher struct {
	messages []telemetry.Message
	err      error
}

func (f *fakePublisher) Publish(msg telemetry.Message) error {
	f.messages = append(f.messages, msg)
	return f.err
}

// recordedEvents collects the callbacks fired during a run
type recordedEvents struct {
	success  []scheduler.Metrics
	partial  []error
	critical []error
}

func (r *recordedEvents) events() *scheduler.AgentEvents {
	return &scheduler.AgentEvents{
		OnSuccess:         func(m scheduler.Metrics, d time.Duration) { r.success = append(r.success, m) },
		OnPartialFailure:  func(err error, d time.Duration) { r.partial = append(r.partial, err) },
		OnCriticalFailure: func(err error, d time.Duration) { r.critical = append(r.critical, err) },
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HELIODON_SERIAL_PORT", "")
	t.Setenv("HELIODON_HTTP_PORT", "")

	cfg, err := config.Parse([]byte(`
location:
  name: Greenwich
  latitude: 51.48
  longitude: 0
`))
	if err != nil {
		t.Fatalf("Failed to parse test config: %v", err)
	}
	return cfg
}

func newTestAgent(t *testing.T, now time.Time) (*HeliodonAgent, *fakeMover, *fakePublisher) {
	t.Helper()
	agent := NewHeliodonAgent(testConfig(t))
	mover := &fakeMover{}
	publisher := &fakePublisher{}
	agent.mover = mover
	agent.publisher = publisher
	agent.now = func() time.Time { return now }
	return agent, mover, publisher
}

func TestTrackingMetricsGetSummary(t *testing.T) {
	tests := []struct {
		name     string
		metrics  TrackingMetrics
		expected string
	}{
		{
			name:     "Sun below horizon",
			metrics:  TrackingMetrics{Altitude: -12.34},
			expected: "sun below horizon (altitude -12.3°), heliodon left in place",
		},
		{
			name:     "Heliodon moved",
			metrics:  TrackingMetrics{Altitude: 45, Azimuth: 180, AboveHorizon: true, Moved: true},
			expected: "heliodon moved to altitude 45.0°, azimuth 180.0°",
		},
		{
			name:     "Device not moved",
			metrics:  TrackingMetrics{Altitude: 10, Azimuth: 95.55, AboveHorizon: true},
			expected: "sun at altitude 10.0°, azimuth 95.5°, heliodon not moved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.metrics.GetSummary()
			if result != tt.expected {
				t.Errorf("Expected summary '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestNewHeliodonAgent(t *testing.T) {
	cfg := testConfig(t)
	agent := NewHeliodonAgent(cfg)

	if agent.config != cfg {
		t.Error("Agent config not set correctly")
	}
	if agent.Name() != "Heliodon Agent" {
		t.Errorf("Expected agent name 'Heliodon Agent', got '%s'", agent.Name())
	}
	if agent.calibration != cfg.ActuatorCalibration() {
		t.Errorf("Expected calibration from config, got %+v", agent.calibration)
	}
}

func TestHeliodonAgentInitialize(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(cfg *config.Config)
		withMover bool
		expectErr bool
	}{
		{
			name:      "No device, no tracking",
			modify:    func(cfg *config.Config) {},
			expectErr: false,
		},
		{
			name:      "Tracking with an injected device",
			modify:    func(cfg *config.Config) { cfg.Tracking.Enabled = true },
			withMover: true,
			expectErr: false,
		},
		{
			name:      "Tracking without a device",
			modify:    func(cfg *config.Config) { cfg.Tracking.Enabled = true },
			expectErr: true,
		},
		{
			name:      "Invalid home latitude",
			modify:    func(cfg *config.Config) { cfg.Location.Latitude = 95 },
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(cfg)
			agent := NewHeliodonAgent(cfg)
			if tt.withMover {
				agent.mover = &fakeMover{}
			}

			err := agent.Initialize()
			hasErr := err != nil

			if hasErr != tt.expectErr {
				t.Errorf("Expected error=%v, got error=%v (%v)", tt.expectErr, hasErr, err)
			}
		})
	}
}

func TestRunOnceMovesHeliodon(t *testing.T) {
	agent, mover, publisher := newTestAgent(t, greenwichNoon)
	rec := &recordedEvents{}

	if err := agent.RunOnce(context.Background(), rec.events()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(mover.sent) != 1 {
		t.Fatalf("Expected 1 command, got %d", len(mover.sent))
	}
	if len(rec.success) != 1 || len(rec.partial) != 0 || len(rec.critical) != 0 {
		t.Fatalf("Unexpected events: %+v", rec)
	}

	m := rec.success[0].(TrackingMetrics)
	if !m.AboveHorizon || !m.Moved || !m.Published {
		t.Errorf("Unexpected metrics %+v", m)
	}
	if m.Altitude < 61 || m.Altitude > 63 {
		t.Errorf("Expected solstice noon altitude near 62°, got %.2f", m.Altitude)
	}

	expected := agent.calibration.ToCommand(agent.Home(), m.Altitude, m.Azimuth, 2*time.Second)
	if mover.sent[0] != expected {
		t.Errorf("Expected command %+v, got %+v", expected, mover.sent[0])
	}
	if mover.sent[0].HoldMs != 2000 {
		t.Errorf("Expected tracking hold of 2000ms, got %d", mover.sent[0].HoldMs)
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("Expected 1 telemetry message, got %d", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.Command == nil || *msg.Command != expected || msg.Error != "" {
		t.Errorf("Unexpected telemetry %+v", msg)
	}
}

func TestRunOnceBelowHorizon(t *testing.T) {
	agent, mover, publisher := newTestAgent(t, greenwichMidnight)
	rec := &recordedEvents{}

	if err := agent.RunOnce(context.Background(), rec.events()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(mover.sent) != 0 {
		t.Errorf("No command expected at night, got %d", len(mover.sent))
	}
	m := rec.success[0].(TrackingMetrics)
	if m.AboveHorizon || m.Moved {
		t.Errorf("Unexpected metrics %+v", m)
	}
	if len(publisher.messages) != 1 || publisher.messages[0].Command != nil {
		t.Errorf("Expected position-only telemetry, got %+v", publisher.messages)
	}
}

func TestRunOnceDeviceNotReadyIsAdvisory(t *testing.T) {
	agent, mover, publisher := newTestAgent(t, greenwichNoon)
	mover.err = &models.DeviceNotReadyError{Status: 1}
	rec := &recordedEvents{}

	if err := agent.RunOnce(context.Background(), rec.events()); err != nil {
		t.Fatalf("Device errors must not fail the run: %v", err)
	}

	if len(rec.partial) != 1 || !errors.Is(rec.partial[0], models.ErrDeviceNotReady) {
		t.Errorf("Expected one device-not-ready partial failure, got %v", rec.partial)
	}
	if len(rec.success) != 1 {
		t.Fatalf("Expected the run to complete, got %d success events", len(rec.success))
	}
	if m := rec.success[0].(TrackingMetrics); m.Moved {
		t.Error("Moved must be false when the device refused the command")
	}
	if msg := publisher.messages[0]; msg.Error == "" || msg.Command != nil {
		t.Errorf("Expected device error in telemetry, got %+v", msg)
	}
}

func TestRunOncePublishFailure(t *testing.T) {
	agent, _, publisher := newTestAgent(t, greenwichNoon)
	publisher.err = errors.New("broker down")
	rec := &recordedEvents{}

	if err := agent.RunOnce(context.Background(), rec.events()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(rec.partial) != 1 || !strings.Contains(rec.partial[0].Error(), "broker down") {
		t.Errorf("Expected publish partial failure, got %v", rec.partial)
	}
	if m := rec.success[0].(TrackingMetrics); m.Published {
		t.Error("Published must be false after a broker error")
	}
}

func TestRunOnceInvalidHome(t *testing.T) {
	agent, _, _ := newTestAgent(t, greenwichNoon)
	agent.config.Location.Latitude = -91
	rec := &recordedEvents{}

	err := agent.RunOnce(context.Background(), rec.events())
	if !errors.Is(err, models.ErrInvalidCoordinate) {
		t.Errorf("Expected ErrInvalidCoordinate, got %v", err)
	}
	if len(rec.critical) != 1 || len(rec.success) != 0 {
		t.Errorf("Expected a single critical failure, got %+v", rec)
	}
}

func greenwichRequest(hour int) sunpath.Request {
	return sunpath.Request{
		Location: models.GeoLocation{Latitude: 51.48, Longitude: 0},
		Year:     2023,
		Month:    time.June,
		Day:      21,
		Hour:     hour,
	}
}

func TestShowPlotAndMove(t *testing.T) {
	agent, mover, _ := newTestAgent(t, greenwichNoon)

	result, err := agent.Show(context.Background(), greenwichRequest(12), []sunpath.Tag{sunpath.DayPath, sunpath.WinterSolstice}, true)
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	if len(result.Overlays) != 2 {
		t.Errorf("Expected 2 overlays, got %d", len(result.Overlays))
	}
	if result.Command == nil || len(mover.sent) != 1 {
		t.Fatalf("Expected a command to be sent, got %+v", result)
	}
	if result.Command.HoldMs != 0 {
		t.Errorf("Interactive moves use no hold, got %d", result.Command.HoldMs)
	}
	expected := agent.calibration.ToCommand(greenwichRequest(12).Location, result.Position.Altitude, result.Position.Azimuth, 0)
	if *result.Command != expected {
		t.Errorf("Expected %+v, got %+v", expected, *result.Command)
	}
}

func TestShowDoesNotMove(t *testing.T) {
	tests := []struct {
		name string
		hour int
		move bool
	}{
		{"Preview only", 12, false},
		{"Sun below horizon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent, mover, _ := newTestAgent(t, greenwichNoon)
			result, err := agent.Show(context.Background(), greenwichRequest(tt.hour), nil, tt.move)
			if err != nil {
				t.Fatalf("Show failed: %v", err)
			}
			if len(mover.sent) != 0 || result.Command != nil || result.DeviceError != "" {
				t.Errorf("Expected no move, got %+v", result)
			}
		})
	}
}

func TestShowDeviceErrors(t *testing.T) {
	tests := []struct {
		name   string
		mover  Mover
		expect error
	}{
		{"Device not ready", &fakeMover{err: &models.DeviceNotReadyError{Status: 2}}, models.ErrDeviceNotReady},
		{"No device", nil, ErrNoDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent, _, _ := newTestAgent(t, greenwichNoon)
			agent.mover = tt.mover

			result, err := agent.Show(context.Background(), greenwichRequest(12), []sunpath.Tag{sunpath.DayPath}, true)
			if err != nil {
				t.Fatalf("Device errors must not fail Show: %v", err)
			}
			if result.DeviceError == "" || result.Command != nil {
				t.Errorf("Expected device error in result, got %+v", result)
			}
			if !strings.Contains(result.DeviceError, tt.expect.Error()) {
				t.Errorf("Unexpected device error %q", result.DeviceError)
			}
			if len(result.Overlays) != 1 {
				t.Error("Overlays must still be computed")
			}
		})
	}
}

func TestShowInvalidInput(t *testing.T) {
	agent, _, _ := newTestAgent(t, greenwichNoon)

	req := greenwichRequest(12)
	req.Location.Latitude = 100
	if _, err := agent.Show(context.Background(), req, nil, true); !errors.Is(err, models.ErrInvalidCoordinate) {
		t.Errorf("Expected ErrInvalidCoordinate, got %v", err)
	}

	req = greenwichRequest(12)
	req.Month = time.February
	req.Day = 30
	if _, err := agent.Show(context.Background(), req, nil, true); !errors.Is(err, models.ErrInvalidCalendarDate) {
		t.Errorf("Expected ErrInvalidCalendarDate, got %v", err)
	}
}

func TestZero(t *testing.T) {
	agent, mover, _ := newTestAgent(t, greenwichNoon)

	result := agent.Zero(context.Background())
	if result.DeviceError != "" {
		t.Fatalf("Unexpected device error %q", result.DeviceError)
	}

	// Default calibration homes at altitude 0, azimuth 90
	expected := models.ActuatorCommand{}
	if len(mover.sent) != 1 || mover.sent[0] != expected {
		t.Errorf("Expected zero command %+v, got %+v", expected, mover.sent)
	}
	if result.Position.Altitude != 0 || result.Position.Azimuth != 90 {
		t.Errorf("Unexpected zero position %+v", result.Position)
	}
}

func TestDayAndYear(t *testing.T) {
	agent, _, _ := newTestAgent(t, greenwichNoon)
	req := greenwichRequest(12)
	req.Day = 31
	req.Month = time.July

	day, err := agent.Day(req)
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if len(day) != 24 {
		t.Errorf("Expected 24 hourly positions, got %d", len(day))
	}

	year, err := agent.Year(req)
	if err != nil {
		t.Fatalf("Year failed: %v", err)
	}
	if len(year) != 7 {
		t.Errorf("Expected 7 months with a 31st, got %d", len(year))
	}
}

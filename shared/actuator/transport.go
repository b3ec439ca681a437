package actuator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"

	"heliodon/internal/models"
)

const (
	statusReady byte = 0

	// Minimum size of an unterminated status burst
	statusBurstLen = 10
)

// Port is the subset of a serial port the transport needs. go.bug.st/serial
// ports satisfy it.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// SerialConfig describes how to reach the stepper controller
type SerialConfig struct {
	Port         string
	BaudRate     int
	ReadyTimeout time.Duration
}

// Transport frames ActuatorCommands onto the controller link. Only one
// command is in flight at a time; each waits for the controller to report
// a ready status first.
type Transport struct {
	mu           sync.Mutex
	port         Port
	readyTimeout time.Duration
	pollInterval time.Duration
}

// ListPorts returns the serial ports present on this machine
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}

// Open connects to the controller on a serial port
func Open(cfg SerialConfig) (*Transport, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = 9600
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	log.Printf("Serial port %s opened at %d baud", cfg.Port, baud)
	return NewTransport(port, cfg.ReadyTimeout), nil
}

func NewTransport(port Port, readyTimeout time.Duration) *Transport {
	if readyTimeout <= 0 {
		readyTimeout = 10 * time.Second
	}
	return &Transport{
		port:         port,
		readyTimeout: readyTimeout,
		pollInterval: 200 * time.Millisecond,
	}
}

// Send waits for the controller's status line and writes the command if the
// controller reports ready. A non-zero status drops the command and returns
// a *models.DeviceNotReadyError.
func (t *Transport) Send(ctx context.Context, cmd models.ActuatorCommand) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Discard stale status lines so the one we read is current
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to flush serial input: %w", err)
	}

	status, err := t.readStatus(ctx)
	if err != nil {
		return err
	}
	if status != statusReady {
		return &models.DeviceNotReadyError{Status: status}
	}

	frame := cmd.Frame()
	if _, err := io.WriteString(t.port, frame); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}

	log.Printf("Sent command: altitude=%d azimuth=%d hold=%dms", cmd.AltitudeSteps, cmd.AzimuthSteps, cmd.HoldMs)
	return nil
}

// readStatus returns the controller's status byte. The status is the last
// byte of the first non-blank line. Controllers that send an unterminated
// burst are also accepted: once at least statusBurstLen bytes have arrived
// and the port goes quiet, the last byte read is the status.
func (t *Transport) readStatus(ctx context.Context) (byte, error) {
	if err := t.port.SetReadTimeout(t.pollInterval); err != nil {
		return 0, fmt.Errorf("failed to set read timeout: %w", err)
	}

	deadline := time.Now().Add(t.readyTimeout)
	var line []byte
	buf := make([]byte, 64)

	for {
		status, rest, ok := takeStatusLine(line)
		if ok {
			return status, nil
		}
		line = rest

		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("timed out after %v waiting for controller status", t.readyTimeout)
		}

		n, err := t.port.Read(buf)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("failed to read controller status: %w", err)
		}
		if n > 0 {
			line = append(line, buf[:n]...)
			continue
		}

		if len(line) >= statusBurstLen {
			return line[len(line)-1], nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(t.pollInterval):
		}
	}
}

// takeStatusLine consumes complete lines from buf, skipping blank ones, and
// returns the last byte of the first non-blank line with the bytes left over
func takeStatusLine(buf []byte) (byte, []byte, bool) {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return 0, buf, false
		}
		status := bytes.TrimRight(buf[:i], "\r")
		buf = buf[i+1:]
		if len(status) > 0 {
			return status[len(status)-1], buf, true
		}
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port.Close()
}

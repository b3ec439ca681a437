package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"heliodon/internal/models"
	"heliodon/shared/actuator"
)

type Config struct {
	Location    LocationConfig    `yaml:"location"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Serial      SerialConfig      `yaml:"serial"`
	Server      ServerConfig      `yaml:"server"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Schedule    string            `yaml:"schedule"`
}

// LocationConfig is the heliodon's home site, used by live tracking and as
// the form default
type LocationConfig struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	UTCOffset int     `yaml:"utc_offset"`
}

// CalibrationConfig is given in steps per half turn so the values match
// what is printed on the mechanical drawings
type CalibrationConfig struct {
	AltitudeStepsPerHalfTurn float64 `yaml:"altitude_steps_per_half_turn"`
	AltitudeZeroOffset       float64 `yaml:"altitude_zero_offset"`
	AzimuthStepsPerHalfTurn  float64 `yaml:"azimuth_steps_per_half_turn"`
	AzimuthZeroOffset        float64 `yaml:"azimuth_zero_offset"`
}

type SerialConfig struct {
	Port         string        `yaml:"port" env:"HELIODON_SERIAL_PORT"`
	BaudRate     int           `yaml:"baud_rate"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"HELIODON_HTTP_PORT"`
}

type TrackingConfig struct {
	Enabled bool          `yaml:"enabled"`
	Hold    time.Duration `yaml:"hold"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username" env:"MQTT_USERNAME"`
	Password string `yaml:"password" env:"MQTT_PASSWORD"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return Parse(data)
}

// Parse builds a Config from YAML, applying environment overrides and
// defaults before validating it
func Parse(data []byte) (*Config, error) {
	// Calibration starts from the reference build so that a file setting
	// only some fields keeps the defaults for the rest, and an explicit 0
	// offset stays 0
	cfg := Config{Calibration: defaultCalibration()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if port := os.Getenv("HELIODON_SERIAL_PORT"); port != "" {
		cfg.Serial.Port = port
	}
	if port := os.Getenv("HELIODON_HTTP_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if cfg.MQTT.Username == "" {
		cfg.MQTT.Username = os.Getenv("MQTT_USERNAME")
	}
	if cfg.MQTT.Password == "" {
		cfg.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// defaultCalibration is the reference build: 2048 steps per half turn in
// altitude, 7260 in azimuth, homed facing east
func defaultCalibration() CalibrationConfig {
	return CalibrationConfig{
		AltitudeStepsPerHalfTurn: 2048,
		AltitudeZeroOffset:       0,
		AzimuthStepsPerHalfTurn:  7260,
		AzimuthZeroOffset:        90,
	}
}

func (c *Config) applyDefaults() {
	if c.Location.Name == "" {
		c.Location.Name = "Heliodon"
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = 9600
	}
	if c.Serial.ReadyTimeout == 0 {
		c.Serial.ReadyTimeout = 10 * time.Second
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Tracking.Hold == 0 {
		c.Tracking.Hold = 2 * time.Second
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "heliodon"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "heliodon/sun"
	}
	if c.Schedule == "" {
		c.Schedule = "0 */10 * * * *" // Every 10 minutes
	}
}

func (c *Config) validate() error {
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return fmt.Errorf("location latitude %.4f is out of range (-90..90)", c.Location.Latitude)
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return fmt.Errorf("location longitude %.4f is out of range (-180..180)", c.Location.Longitude)
	}
	if c.Location.UTCOffset < -12 || c.Location.UTCOffset > 14 {
		return fmt.Errorf("location utc_offset %d is out of range (-12..14)", c.Location.UTCOffset)
	}
	if c.Calibration.AltitudeStepsPerHalfTurn <= 0 || c.Calibration.AzimuthStepsPerHalfTurn <= 0 {
		return fmt.Errorf("calibration steps per half turn must be positive")
	}
	if c.Serial.BaudRate < 0 {
		return fmt.Errorf("serial baud_rate must be positive")
	}
	if c.Tracking.Enabled && c.Serial.Port == "" {
		return fmt.Errorf("tracking requires a serial port (set HELIODON_SERIAL_PORT or serial.port)")
	}
	return nil
}

// Home returns the configured site as a GeoLocation
func (c *Config) Home() models.GeoLocation {
	return models.GeoLocation{Latitude: c.Location.Latitude, Longitude: c.Location.Longitude}
}

// ActuatorCalibration converts the half-turn figures into per-degree factors
func (c *Config) ActuatorCalibration() actuator.Calibration {
	return actuator.Calibration{
		AltitudeStepsPerDegree: c.Calibration.AltitudeStepsPerHalfTurn / 180,
		AltitudeZeroOffset:     c.Calibration.AltitudeZeroOffset,
		AzimuthStepsPerDegree:  c.Calibration.AzimuthStepsPerHalfTurn / 180,
		AzimuthZeroOffset:      c.Calibration.AzimuthZeroOffset,
	}
}

// SerialSettings returns the transport settings for actuator.Open
func (c *Config) SerialSettings() actuator.SerialConfig {
	return actuator.SerialConfig{
		Port:         c.Serial.Port,
		BaudRate:     c.Serial.BaudRate,
		ReadyTimeout: c.Serial.ReadyTimeout,
	}
}

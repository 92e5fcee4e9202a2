package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/sensorlog/internal/framing"
)

// Config holds the agent configuration
type Config struct {
	LogLevel   string          `yaml:"log_level" default:"info"`
	DeviceName string          `yaml:"device_name" default:"sensorlog"`
	Lifecycle  LifecycleConfig `yaml:"lifecycle"`
	Transport  TransportConfig `yaml:"transport"`
	Recording  RecordingConfig `yaml:"recording"`
}

// LifecycleConfig controls the logging-lifecycle state machine timing.
// All durations are rounded down to whole ticks.
type LifecycleConfig struct {
	TickPeriod time.Duration `yaml:"tick_period" default:"5s"`
	// DisconnectGrace is how long electrode contact must stay lost before
	// an active recording is stopped automatically.
	DisconnectGrace time.Duration `yaml:"disconnect_grace" default:"9h"`
	// StartIndicationHold is how long the visual indication stays on after
	// a recording starts.
	StartIndicationHold time.Duration `yaml:"start_indication_hold" default:"3s"`
}

// TransportConfig controls the control-channel framing.
type TransportConfig struct {
	// NotifyBodyLimit is the maximum payload body per notification, after
	// the 6-byte data header. Stored records run up to twice the default
	// limit and are forwarded in at most two notifications, so values below
	// the default are rejected.
	NotifyBodyLimit int `yaml:"notify_body_limit" default:"150"`
	// SubscriptionSlots is the size of the live data subscription pool.
	SubscriptionSlots int `yaml:"subscription_slots" default:"4"`
	// OutboundQueue is the capacity of the notification queue between the
	// agent loop and the BLE notify pump.
	OutboundQueue int `yaml:"outbound_queue" default:"64"`
}

// RecordingConfig lists the measurement paths recorded while a session is
// active, plus the in-memory recording buffer size of the reference store.
type RecordingConfig struct {
	Paths     []string `yaml:"paths"`
	BufferCap int      `yaml:"buffer_cap" default:"262144"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Recording.Paths = []string{"/Meas/ECG/200", "/Meas/IMU6/26"}
	return cfg
}

// Load reads a YAML configuration file and applies defaults to any field the
// file leaves unset. An empty path returns DefaultConfig().
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Transport.NotifyBodyLimit < framing.DefaultBodyLimit {
		return nil, fmt.Errorf("notify_body_limit must be >= %d, got %d: a stored record of up to %d bytes must fit two notifications",
			framing.DefaultBodyLimit, cfg.Transport.NotifyBodyLimit, framing.MaxFramePayload)
	}
	if cfg.Lifecycle.TickPeriod <= 0 {
		return nil, fmt.Errorf("tick_period must be > 0, got %s", cfg.Lifecycle.TickPeriod)
	}
	if len(cfg.Recording.Paths) == 0 {
		cfg.Recording.Paths = []string{"/Meas/ECG/200", "/Meas/IMU6/26"}
	}
	return cfg, nil
}

// GraceTicks converts the disconnect grace period into a tick count.
func (c *LifecycleConfig) GraceTicks() int {
	if c.TickPeriod <= 0 {
		return 0
	}
	return int(c.DisconnectGrace / c.TickPeriod)
}

// IndicationHoldTicks converts the start indication hold into a tick count.
func (c *LifecycleConfig) IndicationHoldTicks() int {
	if c.TickPeriod <= 0 {
		return 0
	}
	return int(c.StartIndicationHold / c.TickPeriod)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

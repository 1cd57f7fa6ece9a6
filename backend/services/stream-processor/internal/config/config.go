package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	libconfig "fleetpulse/backend/libs/config"
	"fleetpulse/backend/libs/bus"
	"fleetpulse/backend/services/stream-processor/internal/alerts"
	"fleetpulse/backend/services/stream-processor/internal/stream"
)

const defaultHTTPPort = "8090"

// Config defines stream processor configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"PROCESSOR_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN          string `yaml:"dsn" env:"PROCESSOR_POSTGRES_DSN"`
		MaxOpenConns int    `yaml:"maxOpenConns" env:"PROCESSOR_POSTGRES_MAX_OPEN_CONNS"`
	} `yaml:"database"`
	Redis struct {
		URL      string `yaml:"url" env:"PROCESSOR_REDIS_URL"`
		Addr     string `yaml:"addr" env:"PROCESSOR_REDIS_ADDR"`
		Password string `yaml:"password" env:"PROCESSOR_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"PROCESSOR_REDIS_DB"`
	} `yaml:"redis"`
	Stream    Stream    `yaml:"stream"`
	Alerts    Alerts    `yaml:"alerts"`
	Notify    Notify    `yaml:"notify"`
	Retention Retention `yaml:"retention"`
}

// Stream configures the consumer group reader.
type Stream struct {
	Key           string        `yaml:"key" env:"PROCESSOR_STREAM_KEY"`
	Group         string        `yaml:"group" env:"PROCESSOR_CONSUMER_GROUP"`
	Consumer      string        `yaml:"consumer" env:"PROCESSOR_CONSUMER_NAME"`
	BatchSize     int           `yaml:"batchSize" env:"PROCESSOR_BATCH_SIZE"`
	Block         time.Duration `yaml:"block" env:"PROCESSOR_BLOCK"`
	ClaimMinIdle  time.Duration `yaml:"claimMinIdle" env:"PROCESSOR_CLAIM_MIN_IDLE"`
	ReadBackoff   time.Duration `yaml:"readBackoff" env:"PROCESSOR_READ_BACKOFF"`
	DeadLetterKey string        `yaml:"deadLetterKey" env:"PROCESSOR_DEAD_LETTER_KEY"`
}

// Alerts holds the rule thresholds.
type Alerts struct {
	LowBattery      float64 `yaml:"lowBattery" env:"PROCESSOR_ALERT_LOW_BATTERY"`
	Overspeed       float64 `yaml:"overspeed" env:"PROCESSOR_ALERT_OVERSPEED"`
	HighTemperature float64 `yaml:"highTemperature" env:"PROCESSOR_ALERT_HIGH_TEMPERATURE"`
}

// Notify selects the notification bus.
type Notify struct {
	Driver  string `yaml:"driver" env:"PROCESSOR_NOTIFY_DRIVER"`
	Channel string `yaml:"channel" env:"PROCESSOR_NOTIFY_CHANNEL"`
	NATSURL string `yaml:"natsUrl" env:"PROCESSOR_NATS_URL"`
	Subject string `yaml:"subject" env:"PROCESSOR_NATS_SUBJECT"`
}

// Retention is read for compatibility with the rest of the platform; the pipeline does not prune.
type Retention struct {
	Days int `yaml:"days" env:"PROCESSOR_RETENTION_DAYS"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = defaultHTTPPort
	cfg.Database.MaxOpenConns = 10
	cfg.Redis.Addr = "localhost:6379"
	cfg.Stream = Stream{
		Key:          stream.DefaultKey,
		Group:        "telemetry-processors",
		BatchSize:    10,
		Block:        5 * time.Second,
		ClaimMinIdle: 60 * time.Second,
		ReadBackoff:  5 * time.Second,
	}
	thresholds := alerts.DefaultThresholds()
	cfg.Alerts = Alerts{
		LowBattery:      thresholds.LowBattery,
		Overspeed:       thresholds.Overspeed,
		HighTemperature: thresholds.HighTemperature,
	}
	cfg.Notify = Notify{
		Driver:  bus.DriverRedis,
		Channel: bus.DefaultChannel,
		Subject: bus.DefaultSubject,
	}
	cfg.Retention.Days = 90
	return cfg
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Stream.Consumer) == "" {
		cfg.Stream.Consumer = "processor-" + uuid.NewString()
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database dsn required")
	}
	if strings.TrimSpace(c.Redis.Addr) == "" && strings.TrimSpace(c.Redis.URL) == "" {
		return errors.New("config: redis addr or url required")
	}
	if strings.TrimSpace(c.Stream.Group) == "" {
		return errors.New("config: consumer group required")
	}
	if c.Stream.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive, got %d", c.Stream.BatchSize)
	}
	switch c.Notify.Driver {
	case bus.DriverRedis, bus.DriverNATS:
	default:
		return fmt.Errorf("config: unknown notify driver %q", c.Notify.Driver)
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultHTTPPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// Thresholds returns the alert engine thresholds.
func (c *Config) Thresholds() alerts.Thresholds {
	return alerts.Thresholds{
		LowBattery:      c.Alerts.LowBattery,
		Overspeed:       c.Alerts.Overspeed,
		HighTemperature: c.Alerts.HighTemperature,
	}
}

// GroupConfig returns the stream reader settings.
func (c *Config) GroupConfig() stream.GroupConfig {
	return stream.GroupConfig{
		Key:           c.Stream.Key,
		Group:         c.Stream.Group,
		Consumer:      c.Stream.Consumer,
		BatchSize:     c.Stream.BatchSize,
		Block:         c.Stream.Block,
		ClaimMinIdle:  c.Stream.ClaimMinIdle,
		DeadLetterKey: c.Stream.DeadLetterKey,
	}
}

// ReadBackoff returns the pause after a failed read.
func (c *Config) ReadBackoff() time.Duration {
	if c.Stream.ReadBackoff <= 0 {
		return 5 * time.Second
	}
	return c.Stream.ReadBackoff
}

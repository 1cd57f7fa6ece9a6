package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fleetpulse/backend/libs/bus"
	libconfig "fleetpulse/backend/libs/config"
	"fleetpulse/backend/services/realtime-gateway/internal/ws"
)

const defaultHTTPPort = "8091"

// Config defines realtime gateway configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"GATEWAY_HTTP_PORT"`
	} `yaml:"http"`
	Redis struct {
		URL      string `yaml:"url" env:"GATEWAY_REDIS_URL"`
		Addr     string `yaml:"addr" env:"GATEWAY_REDIS_ADDR"`
		Password string `yaml:"password" env:"GATEWAY_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"GATEWAY_REDIS_DB"`
	} `yaml:"redis"`
	Notify struct {
		Driver  string `yaml:"driver" env:"GATEWAY_NOTIFY_DRIVER"`
		Channel string `yaml:"channel" env:"GATEWAY_NOTIFY_CHANNEL"`
		NATSURL string `yaml:"natsUrl" env:"GATEWAY_NATS_URL"`
		Subject string `yaml:"subject" env:"GATEWAY_NATS_SUBJECT"`
	} `yaml:"notify"`
	WebSocket struct {
		PingInterval   time.Duration `yaml:"pingInterval" env:"GATEWAY_WS_PING_INTERVAL"`
		PongWait       time.Duration `yaml:"pongWait" env:"GATEWAY_WS_PONG_WAIT"`
		WriteTimeout   time.Duration `yaml:"writeTimeout" env:"GATEWAY_WS_WRITE_TIMEOUT"`
		SendBuffer     int           `yaml:"sendBuffer" env:"GATEWAY_WS_SEND_BUFFER"`
		AllowedOrigins []string      `yaml:"allowedOrigins" env:"GATEWAY_WS_ALLOWED_ORIGINS"`
	} `yaml:"websocket"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = defaultHTTPPort
	cfg.Redis.Addr = "localhost:6379"
	cfg.Notify.Driver = bus.DriverRedis
	cfg.Notify.Channel = bus.DefaultChannel
	cfg.Notify.Subject = bus.DefaultSubject
	cfg.WebSocket.PingInterval = 25 * time.Second
	cfg.WebSocket.PongWait = 60 * time.Second
	cfg.WebSocket.WriteTimeout = 10 * time.Second
	cfg.WebSocket.SendBuffer = 64

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	switch cfg.Notify.Driver {
	case bus.DriverRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" && strings.TrimSpace(cfg.Redis.URL) == "" {
			return nil, errors.New("config: redis addr or url required")
		}
	case bus.DriverNATS:
	default:
		return nil, fmt.Errorf("config: unknown notify driver %q", cfg.Notify.Driver)
	}
	return cfg, nil
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

// ConnectionOptions returns per-client websocket settings.
func (c *Config) ConnectionOptions() ws.Options {
	return ws.Options{
		WriteTimeout: c.WebSocket.WriteTimeout,
		PingInterval: c.WebSocket.PingInterval,
		PongWait:     c.WebSocket.PongWait,
		SendBuffer:   c.WebSocket.SendBuffer,
	}
}

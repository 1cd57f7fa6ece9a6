package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetpulse/backend/libs/bus"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8091", cfg.HTTPAddress())
	assert.Equal(t, bus.DriverRedis, cfg.Notify.Driver)
	assert.Equal(t, "websocket:events", cfg.Notify.Channel)
	assert.Equal(t, 25*time.Second, cfg.ConnectionOptions().PingInterval)
	assert.Empty(t, cfg.WebSocket.AllowedOrigins)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GATEWAY_NOTIFY_DRIVER", "nats")
	t.Setenv("GATEWAY_NATS_URL", "nats://nats:4222")
	t.Setenv("GATEWAY_WS_PING_INTERVAL", "10s")
	t.Setenv("GATEWAY_WS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, bus.DriverNATS, cfg.Notify.Driver)
	assert.Equal(t, "nats://nats:4222", cfg.Notify.NATSURL)
	assert.Equal(t, 10*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.WebSocket.AllowedOrigins)
}

func TestLoad_UnknownDriver(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GATEWAY_NOTIFY_DRIVER", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}

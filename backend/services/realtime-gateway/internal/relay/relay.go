package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fleetpulse/backend/libs/bus"
	"fleetpulse/backend/services/realtime-gateway/internal/metrics"
	"fleetpulse/backend/services/realtime-gateway/internal/ws"
)

var ErrUnknownEvent = errors.New("relay: unknown event")

// Broadcaster delivers a message to every client in any of the rooms.
type Broadcaster interface {
	Broadcast(rooms []string, msg []byte) int
}

// Relay routes bus envelopes to websocket rooms.
type Relay struct {
	hub     Broadcaster
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(hub Broadcaster, m *metrics.Metrics, logger *zap.Logger) *Relay {
	return &Relay{hub: hub, metrics: m, logger: logger}
}

// Handle is a bus.Handler. Clients receive the envelope unchanged.
func (r *Relay) Handle(payload []byte) {
	env, err := bus.Decode(payload)
	if err != nil {
		r.metrics.Malformed()
		r.logger.Warn("discarding malformed bus message", zap.Error(err))
		return
	}

	rooms, err := Rooms(env)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			r.metrics.Unknown()
			r.logger.Warn("unknown event type", zap.String("event", env.Event))
			return
		}
		r.metrics.Malformed()
		r.logger.Warn("discarding bus message", zap.String("event", env.Event), zap.Error(err))
		return
	}

	delivered := r.hub.Broadcast(rooms, payload)
	r.metrics.Relayed(env.Event)
	r.logger.Debug("event relayed",
		zap.String("event", env.Event),
		zap.Strings("rooms", rooms),
		zap.Int("clients", delivered),
	)
}

// Rooms returns the rooms an envelope is delivered to.
func Rooms(env bus.Envelope) ([]string, error) {
	var target struct {
		VIN string `json:"vin"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &target); err != nil {
			return nil, fmt.Errorf("relay: decode %s data: %w", env.Event, err)
		}
	}

	var rooms []string
	if target.VIN != "" {
		rooms = append(rooms, ws.VehicleRoom(target.VIN))
	}

	switch env.Event {
	case bus.EventTelemetryUpdate, bus.EventVehicleOnline, bus.EventVehicleOffline, bus.EventVehicleStatus:
		return append(rooms, ws.RoomFleetAll), nil
	case bus.EventAlertNew:
		return append(rooms, ws.RoomAlerts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
	}
}

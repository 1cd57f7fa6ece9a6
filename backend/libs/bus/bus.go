package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultChannel is the pub/sub channel the websocket gateway listens on.
const DefaultChannel = "websocket:events"

// Event names carried in Envelope.Event.
const (
	EventTelemetryUpdate = "telemetry:update"
	EventAlertNew        = "alert:new"
	EventVehicleStatus   = "vehicle:status"
	EventVehicleOnline   = "vehicle:online"
	EventVehicleOffline  = "vehicle:offline"
)

// Notification bus drivers.
const (
	DriverRedis = "redis"
	DriverNATS  = "nats"
)

var ErrMalformedEnvelope = errors.New("bus: malformed envelope")

// Envelope is the notification wire format: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Publisher sends notifications. Delivery is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, event string, data interface{}) error
}

// Handler receives raw envelope payloads from a Subscriber.
type Handler func(payload []byte)

// Subscriber delivers bus payloads to a handler until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
}

// Encode builds the wire form of an envelope.
func Encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("bus: encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Decode parses a payload and requires an event name.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}
	return env, nil
}

package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options tune a client connection.
type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongWait     time.Duration
	SendBuffer   int
	ReadLimit    int64
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = o.PingInterval * 2
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 4096
	}
	return o
}

// Subscription targets.
const (
	TargetVehicle = "vehicle"
	TargetFleet   = "fleet"
	TargetAlerts  = "alerts"
)

// ControlMessage is what clients send to manage their rooms.
type ControlMessage struct {
	Type    string `json:"type"`
	Target  string `json:"target"`
	VIN     string `json:"vin,omitempty"`
	FleetID string `json:"fleetId,omitempty"`
}

var errUnknownTarget = errors.New("unknown target")

func (m ControlMessage) room() (string, map[string]interface{}, error) {
	switch m.Target {
	case TargetVehicle:
		if m.VIN == "" {
			return "", nil, errors.New("vin is required")
		}
		return VehicleRoom(m.VIN), map[string]interface{}{"vin": m.VIN}, nil
	case TargetFleet:
		fleet := m.FleetID
		if fleet == "" {
			fleet = "all"
		}
		return FleetRoom(m.FleetID), map[string]interface{}{"fleet": fleet}, nil
	case TargetAlerts:
		return RoomAlerts, map[string]interface{}{"alerts": true}, nil
	default:
		return "", nil, fmt.Errorf("%w %q", errUnknownTarget, m.Target)
	}
}

// Connection is one websocket client.
type Connection struct {
	id     string
	ws     *websocket.Conn
	hub    *Hub
	opts   Options
	logger *zap.Logger
	onDrop func()

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection builds connection wrapper. onDrop is called for every message dropped on a full buffer.
func NewConnection(id string, conn *websocket.Conn, hub *Hub, opts Options, logger *zap.Logger, onDrop func()) *Connection {
	opts = opts.withDefaults()
	return &Connection{
		id:     id,
		ws:     conn,
		hub:    hub,
		opts:   opts,
		logger: logger.With(zap.String("client_id", id)),
		onDrop: onDrop,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns identifier.
func (c *Connection) ID() string {
	return c.id
}

// Run launches the write pump and blocks in the read pump until the client goes away.
func (c *Connection) Run() {
	go c.writePump()
	c.readPump()
}

// Send enqueues a message. A slow client loses the message instead of blocking the caller.
func (c *Connection) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		if c.onDrop != nil {
			c.onDrop()
		}
		c.logger.Warn("dropping outgoing message, buffer full")
		return false
	}
}

// Close sends a normal close frame, disconnects the client and removes it from the hub.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(c.opts.WriteTimeout))
		_ = c.ws.Close()
		c.hub.Remove(c)
	})
}

func (c *Connection) readPump() {
	defer c.Close()
	c.ws.SetReadLimit(c.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("connection read closed", zap.Error(err))
			}
			return
		}
		c.handleControl(message)
	}
}

func (c *Connection) handleControl(raw []byte) {
	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply("error", map[string]interface{}{"message": "invalid message"})
		return
	}

	room, data, err := msg.room()
	if err != nil {
		c.reply("error", map[string]interface{}{"message": err.Error()})
		return
	}

	switch msg.Type {
	case "subscribe":
		c.hub.Join(c, room)
		c.logger.Debug("subscribed", zap.String("room", room))
		c.reply("subscribed", data)
	case "unsubscribe":
		c.hub.Leave(c, room)
		c.logger.Debug("unsubscribed", zap.String("room", room))
		c.reply("unsubscribed", data)
	default:
		c.reply("error", map[string]interface{}{"message": fmt.Sprintf("unknown type %q", msg.Type)})
	}
}

func (c *Connection) reply(event string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"event": event, "data": data})
	if err != nil {
		c.logger.Warn("encode reply failed", zap.Error(err))
		return
	}
	c.Send(payload)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}

package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type reply struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

func startServer(t *testing.T, allowed ...string) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	srv := NewServer(hub, Options{PingInterval: time.Second}, allowed, zap.NewNop(), nil)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(func() {
		hub.CloseAll()
		ts.Close()
	})
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) reply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var r reply
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func TestSubscribeAndBroadcast(t *testing.T) {
	hub, url := startServer(t)
	vehicleClient := dial(t, url)
	fleetClient := dial(t, url)

	require.NoError(t, vehicleClient.WriteJSON(ControlMessage{Type: "subscribe", Target: TargetVehicle, VIN: "1HGBH41JXMN109186"}))
	r := readReply(t, vehicleClient)
	assert.Equal(t, "subscribed", r.Event)
	assert.Equal(t, "1HGBH41JXMN109186", r.Data["vin"])

	require.NoError(t, fleetClient.WriteJSON(ControlMessage{Type: "subscribe", Target: TargetFleet}))
	r = readReply(t, fleetClient)
	assert.Equal(t, "subscribed", r.Event)
	assert.Equal(t, "all", r.Data["fleet"])

	msg := []byte(`{"event":"telemetry:update","data":{"vin":"1HGBH41JXMN109186"}}`)
	delivered := hub.Broadcast([]string{VehicleRoom("1HGBH41JXMN109186"), RoomFleetAll}, msg)
	assert.Equal(t, 2, delivered)

	for _, c := range []*websocket.Conn{vehicleClient, fleetClient} {
		r = readReply(t, c)
		assert.Equal(t, "telemetry:update", r.Event)
	}
}

func TestBroadcastDeliversOncePerClient(t *testing.T) {
	hub, url := startServer(t)
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(ControlMessage{Type: "subscribe", Target: TargetVehicle, VIN: "1HGBH41JXMN109186"}))
	readReply(t, c)
	require.NoError(t, c.WriteJSON(ControlMessage{Type: "subscribe", Target: TargetAlerts}))
	assert.Equal(t, true, readReply(t, c).Data["alerts"])

	n := hub.Broadcast([]string{VehicleRoom("1HGBH41JXMN109186"), RoomAlerts}, []byte(`{"event":"alert:new","data":{}}`))
	assert.Equal(t, 1, n)
}

func TestUnsubscribe(t *testing.T) {
	hub, url := startServer(t)
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(ControlMessage{Type: "subscribe", Target: TargetAlerts}))
	readReply(t, c)
	assert.Equal(t, 1, hub.RoomSize(RoomAlerts))

	require.NoError(t, c.WriteJSON(ControlMessage{Type: "unsubscribe", Target: TargetAlerts}))
	assert.Equal(t, "unsubscribed", readReply(t, c).Event)
	assert.Equal(t, 0, hub.RoomSize(RoomAlerts))
	assert.Zero(t, hub.Broadcast([]string{RoomAlerts}, []byte(`{}`)))
}

func TestInvalidControlMessages(t *testing.T) {
	_, url := startServer(t)
	c := dial(t, url)

	for _, raw := range []string{
		`not json`,
		`{"type":"subscribe","target":"vehicle"}`,
		`{"type":"subscribe","target":"garage"}`,
		`{"type":"shout","target":"alerts"}`,
	} {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(raw)))
		r := readReply(t, c)
		assert.Equal(t, "error", r.Event, raw)
		assert.NotEmpty(t, r.Data["message"], raw)
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	hub, url := startServer(t)
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(ControlMessage{Type: "subscribe", Target: TargetFleet, FleetID: "west"}))
	assert.Equal(t, "west", readReply(t, c).Data["fleet"])
	assert.Equal(t, 1, hub.RoomSize(FleetRoom("west")))

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.RoomSize(FleetRoom("west")))
}

func TestCloseAllSendsNormalClosure(t *testing.T) {
	hub, url := startServer(t)
	c := dial(t, url)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.CloseAll()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, hub.Clients())
}

func TestOriginCheck(t *testing.T) {
	_, url := startServer(t, "https://dashboard.example.com")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://dashboard.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestSlowClientDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	dropped := 0
	c := &Connection{
		hub:    hub,
		logger: zap.NewNop(),
		onDrop: func() { dropped++ },
		send:   make(chan []byte, 1),
		done:   make(chan struct{}),
	}
	hub.Add(c)
	hub.Join(c, RoomAlerts)

	assert.Equal(t, 1, hub.Broadcast([]string{RoomAlerts}, []byte("1")))
	assert.Equal(t, 0, hub.Broadcast([]string{RoomAlerts}, []byte("2")))
	assert.Equal(t, 1, dropped)
}

func TestControlMessageJSON(t *testing.T) {
	var msg ControlMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"subscribe","target":"fleet","fleetId":"west"}`), &msg))
	room, data, err := msg.room()
	require.NoError(t, err)
	assert.Equal(t, "fleet:west", room)
	assert.Equal(t, "west", data["fleet"])
}

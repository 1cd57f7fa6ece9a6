package bus

import (
	"context"
	"testing"
	"time"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestNATS(t *testing.T) *nats.Conn {
	srv := natstest.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	nc, err := ConnectNATS(srv.ClientURL(), "bus-test")
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSPublisher_Publish(t *testing.T) {
	nc := setupTestNATS(t)

	sub, err := nc.SubscribeSync(DefaultSubject)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	pub := NewNATSPublisher(nc, "")
	require.NoError(t, pub.Publish(context.Background(), EventAlertNew, map[string]string{"type": "low_battery"}))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"alert:new","data":{"type":"low_battery"}}`, string(msg.Data))
}

func TestNATSPublisher_ClosedConnection(t *testing.T) {
	nc := setupTestNATS(t)
	pub := NewNATSPublisher(nc, "events")
	nc.Close()

	start := time.Now()
	err := pub.Publish(context.Background(), EventTelemetryUpdate, struct{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "a failed publish returns without waiting")
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	nc := setupTestNATS(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewNATSPublisher(nc, "").Publish(ctx, EventTelemetryUpdate, struct{}{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNATSSubscriber_DeliversUntilCanceled(t *testing.T) {
	nc := setupTestNATS(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	done := make(chan error, 1)
	go func() {
		done <- NewNATSSubscriber(nc, "").Subscribe(ctx, func(p []byte) { got <- p })
	}()

	require.Eventually(t, func() bool { return nc.NumSubscriptions() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, NewNATSPublisher(nc, "").Publish(ctx, EventTelemetryUpdate, map[string]float64{"soc": 42}))

	select {
	case p := <-got:
		assert.JSONEq(t, `{"event":"telemetry:update","data":{"soc":42}}`, string(p))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
	assert.Eventually(t, func() bool { return nc.NumSubscriptions() == 0 }, time.Second, 10*time.Millisecond)
}

func TestNATSSubscriber_ClosedConnection(t *testing.T) {
	nc := setupTestNATS(t)
	nc.Close()

	err := NewNATSSubscriber(nc, "events").Subscribe(context.Background(), func([]byte) {})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestConnectNATS_Unreachable(t *testing.T) {
	_, err := ConnectNATS("nats://127.0.0.1:1", "bus-test")
	assert.Error(t, err)
}

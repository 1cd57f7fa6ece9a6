package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return s, rdb
}

func TestEncodeDecode(t *testing.T) {
	payload, err := Encode(EventAlertNew, map[string]string{"vin": "1HGBH41JXMN109186"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"alert:new","data":{"vin":"1HGBH41JXMN109186"}}`, string(payload))

	env, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, EventAlertNew, env.Event)
	assert.JSONEq(t, `{"vin":"1HGBH41JXMN109186"}`, string(env.Data))
}

func TestDecode_Malformed(t *testing.T) {
	for _, payload := range []string{``, `nope`, `{"data":{}}`, `[]`} {
		_, err := Decode([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, "payload %q", payload)
	}
}

func TestEncode_Unsupported(t *testing.T) {
	_, err := Encode(EventTelemetryUpdate, make(chan int))
	assert.Error(t, err)
}

func TestRedisPublisher_Publish(t *testing.T) {
	_, rdb := setupTestRedis(t)
	ctx := context.Background()

	ps := rdb.Subscribe(ctx, DefaultChannel)
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(rdb, "")
	require.NoError(t, pub.Publish(ctx, EventTelemetryUpdate, map[string]float64{"soc": 15}))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(recvCtx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"telemetry:update","data":{"soc":15}}`, msg.Payload)
}

func TestRedisPublisher_ServerDown(t *testing.T) {
	s, rdb := setupTestRedis(t)
	s.Close()

	err := NewRedisPublisher(rdb, "events").Publish(context.Background(), EventAlertNew, struct{}{})
	assert.Error(t, err)
}

func TestRedisSubscriber_DeliversUntilCanceled(t *testing.T) {
	s, rdb := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	done := make(chan error, 1)
	go func() {
		done <- NewRedisSubscriber(rdb, "events").Subscribe(ctx, func(p []byte) { got <- p })
	}()

	require.Eventually(t, func() bool {
		return s.PubSubNumSub("events")["events"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Publish("events", `{"event":"alert:new","data":{}}`)

	select {
	case p := <-got:
		assert.JSONEq(t, `{"event":"alert:new","data":{}}`, string(p))
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
}

package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes envelopes on a redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event string, data interface{}) error {
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("bus: publish %s: %w", event, err)
	}
	return nil
}

// RedisSubscriber reads a redis pub/sub channel.
type RedisSubscriber struct {
	client  *redis.Client
	channel string
}

func NewRedisSubscriber(client *redis.Client, channel string) *RedisSubscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSubscriber{client: client, channel: channel}
}

// Subscribe blocks until ctx is canceled. It returns an error only if the subscription
// could not be established.
func (s *RedisSubscriber) Subscribe(ctx context.Context, handler Handler) error {
	ps := s.client.Subscribe(ctx, s.channel)
	defer ps.Close()

	// first reply confirms the subscription
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("bus: subscribe %s: %w", s.channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler([]byte(msg.Payload))
		}
	}
}

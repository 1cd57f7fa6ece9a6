package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Producer appends samples to the telemetry stream the way the ingestion boundary does.
type Producer struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewProducer returns a producer. maxLen > 0 caps the stream approximately.
func NewProducer(client *redis.Client, key string, maxLen int64) *Producer {
	if key == "" {
		key = DefaultKey
	}
	return &Producer{client: client, key: key, maxLen: maxLen}
}

// Append encodes v as JSON and adds it to the stream, returning the server-assigned id.
func (p *Producer) Append(ctx context.Context, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("stream: encode sample: %w", err)
	}
	return p.AppendRaw(ctx, data)
}

// AppendRaw adds an already encoded payload.
func (p *Producer) AppendRaw(ctx context.Context, payload []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: p.key,
		Values: map[string]interface{}{PayloadField: string(payload)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("stream: append: %w", err)
	}
	return id, nil
}

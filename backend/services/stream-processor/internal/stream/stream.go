package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// PayloadField is the stream entry field carrying the JSON sample.
const PayloadField = "data"

// DefaultKey is the telemetry stream shared by ingestion and processing.
const DefaultKey = "telemetry:stream"

// Entry is one stream record handed to a consumer.
type Entry struct {
	ID      string
	Payload []byte
}

// GroupConfig identifies a consumer within a consumer group.
type GroupConfig struct {
	Key       string
	Group     string
	Consumer  string
	BatchSize int
	// Block bounds how long a read waits for new entries.
	Block time.Duration
	// ClaimMinIdle is how long an entry must sit unacknowledged before this consumer
	// takes it over for redelivery. Negative disables claiming.
	ClaimMinIdle time.Duration
	// DeadLetterKey receives undecodable entries when set.
	DeadLetterKey string
}

// RedisChannel reads a redis stream through a consumer group.
type RedisChannel struct {
	client *redis.Client
	cfg    GroupConfig
}

// NewRedisChannel returns a consumer-group reader.
func NewRedisChannel(client *redis.Client, cfg GroupConfig) *RedisChannel {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &RedisChannel{client: client, cfg: cfg}
}

// Consumer returns the consumer name used for reads.
func (c *RedisChannel) Consumer() string {
	return c.cfg.Consumer
}

// Group returns the consumer group name.
func (c *RedisChannel) Group() string {
	return c.cfg.Group
}

// EnsureGroup creates the consumer group (and stream) unless it already exists.
func (c *RedisChannel) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Key, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("stream: create group %s: %w", c.cfg.Group, err)
	}
	return nil
}

// ReadBatch returns up to BatchSize entries: stale pending entries first, then new ones.
// An empty slice with a nil error means the block timeout elapsed.
func (c *RedisChannel) ReadBatch(ctx context.Context) ([]Entry, error) {
	entries := make([]Entry, 0, c.cfg.BatchSize)

	if c.cfg.ClaimMinIdle >= 0 {
		claimed, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.Key,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.ClaimMinIdle,
			Start:    "0-0",
			Count:    int64(c.cfg.BatchSize),
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("stream: claim pending: %w", err)
		}
		entries = appendMessages(entries, claimed)
	}

	remaining := c.cfg.BatchSize - len(entries)
	if remaining <= 0 {
		return entries, nil
	}

	block := c.cfg.Block
	if len(entries) > 0 {
		// already have work; do not wait for more
		block = -1
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Key, ">"},
		Count:    int64(remaining),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entries, nil
		}
		return nil, fmt.Errorf("stream: read group: %w", err)
	}

	for _, s := range streams {
		entries = appendMessages(entries, s.Messages)
	}
	return entries, nil
}

// Ack acknowledges entries for the group.
func (c *RedisChannel) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.cfg.Key, c.cfg.Group, ids...).Err(); err != nil {
		return fmt.Errorf("stream: ack: %w", err)
	}
	return nil
}

// DeadLetter copies an unprocessable entry to the dead-letter stream. No-op when not configured.
func (c *RedisChannel) DeadLetter(ctx context.Context, entry Entry, reason error) error {
	if c.cfg.DeadLetterKey == "" {
		return nil
	}
	values := map[string]interface{}{
		PayloadField: string(entry.Payload),
		"source_id":  entry.ID,
		"group":      c.cfg.Group,
		"consumer":   c.cfg.Consumer,
	}
	if reason != nil {
		values["error"] = reason.Error()
	}
	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.DeadLetterKey, Values: values}).Err(); err != nil {
		return fmt.Errorf("stream: dead letter %s: %w", entry.ID, err)
	}
	return nil
}

// Pending reports how many entries are delivered but not yet acknowledged in the group.
func (c *RedisChannel) Pending(ctx context.Context) (int64, error) {
	res, err := c.client.XPending(ctx, c.cfg.Key, c.cfg.Group).Result()
	if err != nil {
		return 0, fmt.Errorf("stream: pending: %w", err)
	}
	return res.Count, nil
}

func appendMessages(entries []Entry, msgs []redis.XMessage) []Entry {
	for _, m := range msgs {
		entries = append(entries, Entry{ID: m.ID, Payload: payloadOf(m.Values)})
	}
	return entries
}

func payloadOf(values map[string]interface{}) []byte {
	switch v := values[PayloadField].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}

package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fleetpulse/backend/services/stream-processor/internal/metrics"
	"fleetpulse/backend/services/stream-processor/internal/models"
	"fleetpulse/backend/services/stream-processor/internal/service"
	"fleetpulse/backend/services/stream-processor/internal/stream"
)

// DefaultReadBackoff is the pause after a failed batch read.
const DefaultReadBackoff = 5 * time.Second

// Channel is the consumer-group view of the telemetry stream.
type Channel interface {
	EnsureGroup(ctx context.Context) error
	ReadBatch(ctx context.Context) ([]stream.Entry, error)
	Ack(ctx context.Context, ids ...string) error
	DeadLetter(ctx context.Context, entry stream.Entry, reason error) error
}

// SampleProcessor handles one decoded sample. An error leaves the entry unacknowledged.
type SampleProcessor interface {
	Process(ctx context.Context, raw models.RawSample) (service.Outcome, error)
}

// Consumer drives the read, process, acknowledge loop for one consumer identity.
type Consumer struct {
	channel     Channel
	processor   SampleProcessor
	metrics     *metrics.Metrics
	logger      *zap.Logger
	readBackoff time.Duration

	running   atomic.Bool
	processed atomic.Int64

	mu   sync.Mutex
	stop context.CancelFunc
}

// NewConsumer wires a consumer. readBackoff <= 0 uses DefaultReadBackoff.
func NewConsumer(channel Channel, processor SampleProcessor, m *metrics.Metrics, logger *zap.Logger, readBackoff time.Duration) *Consumer {
	if readBackoff <= 0 {
		readBackoff = DefaultReadBackoff
	}
	return &Consumer{
		channel:     channel,
		processor:   processor,
		metrics:     m,
		logger:      logger,
		readBackoff: readBackoff,
	}
}

// Start ensures the consumer group and runs the loop until ctx is done or Stop is called.
// Calling Start while the loop is running returns immediately. Only a group setup failure is
// returned as an error.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}
	defer c.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.stop = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.stop = nil
		c.mu.Unlock()
		cancel()
	}()

	if err := c.channel.EnsureGroup(runCtx); err != nil {
		return fmt.Errorf("processor: ensure consumer group: %w", err)
	}

	c.logger.Info("consumer started")
	defer func() {
		c.logger.Info("consumer stopped", zap.Int64("processed", c.processed.Load()))
	}()

	for runCtx.Err() == nil {
		entries, err := c.channel.ReadBatch(runCtx)
		if err != nil {
			if runCtx.Err() != nil {
				return nil
			}
			c.metrics.ReadError()
			c.logger.Error("read batch failed", zap.Error(err), zap.Duration("backoff", c.readBackoff))
			c.sleep(runCtx, c.readBackoff)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		c.metrics.Batch(len(entries))
		// the batch runs to completion once read, even when stopping
		batchCtx := context.WithoutCancel(runCtx)
		for _, entry := range entries {
			c.handle(batchCtx, entry)
		}
	}
	return nil
}

// Stop asks a running loop to exit after the current batch.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		c.stop()
	}
}

// Running reports whether the loop is active.
func (c *Consumer) Running() bool {
	return c.running.Load()
}

// ProcessedCount is the number of entries fully processed by this instance.
func (c *Consumer) ProcessedCount() int64 {
	return c.processed.Load()
}

func (c *Consumer) handle(ctx context.Context, entry stream.Entry) {
	start := time.Now()
	defer func() { c.metrics.Observe(time.Since(start)) }()

	raw, err := models.DecodeRawSample(entry.Payload)
	if err != nil {
		c.metrics.Poison()
		c.logger.Warn("dropping malformed entry", zap.String("entry_id", entry.ID), zap.Error(err))
		if dlErr := c.channel.DeadLetter(ctx, entry, err); dlErr != nil {
			c.logger.Error("dead letter failed", zap.String("entry_id", entry.ID), zap.Error(dlErr))
		}
		c.ack(ctx, entry.ID)
		return
	}

	outcome, err := c.processor.Process(ctx, raw)
	if err != nil {
		c.logger.Error("process entry failed, leaving for redelivery",
			zap.String("entry_id", entry.ID),
			zap.String("vin", raw.VIN),
			zap.Error(err),
		)
		return
	}

	if !c.ack(ctx, entry.ID) {
		return
	}
	c.processed.Add(1)
	c.metrics.Processed()
	c.logger.Debug("entry processed",
		zap.String("entry_id", entry.ID),
		zap.String("vin", raw.VIN),
		zap.String("status", string(outcome.Result.Status)),
		zap.Int("alerts", len(outcome.Result.Alerts)),
	)
}

func (c *Consumer) ack(ctx context.Context, id string) bool {
	if err := c.channel.Ack(ctx, id); err != nil {
		c.metrics.Failed("ack")
		c.logger.Error("ack failed", zap.String("entry_id", id), zap.Error(err))
		return false
	}
	c.metrics.Acked(1)
	return true
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

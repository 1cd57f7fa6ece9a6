package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fleetpulse/backend/libs/logging"
	libredis "fleetpulse/backend/libs/redis"
	"fleetpulse/backend/services/stream-processor/internal/simulator"
	"fleetpulse/backend/services/stream-processor/internal/stream"
)

func main() {
	var (
		redisAddr  = flag.String("redis", envOr("PROCESSOR_REDIS_ADDR", "localhost:6379"), "redis address")
		key        = flag.String("stream", stream.DefaultKey, "telemetry stream key")
		vehicles   = flag.Int("vehicles", 10, "number of simulated vehicles")
		interval   = flag.Duration("interval", time.Second, "time between ticks")
		iterations = flag.Int("iterations", 0, "ticks to send, 0 runs until interrupted")
		maxLen     = flag.Int64("max-len", 100000, "approximate stream length cap, 0 disables")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewLogger("simulate-telemetry")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	client, err := libredis.NewRedisClient(ctx, libredis.Options{Addr: *redisAddr})
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer client.Close()

	logger.Info("starting simulation",
		zap.Int("vehicles", *vehicles),
		zap.Duration("interval", *interval),
		zap.Int("iterations", *iterations),
	)

	sim := simulator.New(*vehicles, *seed)
	if err := sim.Run(ctx, stream.NewProducer(client, *key, *maxLen), *interval, *iterations, logger); err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

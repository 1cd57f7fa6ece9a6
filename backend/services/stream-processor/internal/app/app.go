package app

import (
	"context"
	"database/sql"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleetpulse/backend/libs/bus"
	libdb "fleetpulse/backend/libs/db"
	libredis "fleetpulse/backend/libs/redis"
	"fleetpulse/backend/services/stream-processor/internal/alerts"
	"fleetpulse/backend/services/stream-processor/internal/config"
	httpserver "fleetpulse/backend/services/stream-processor/internal/http"
	"fleetpulse/backend/services/stream-processor/internal/http/handlers"
	"fleetpulse/backend/services/stream-processor/internal/metrics"
	"fleetpulse/backend/services/stream-processor/internal/processor"
	"fleetpulse/backend/services/stream-processor/internal/repository"
	"fleetpulse/backend/services/stream-processor/internal/service"
	"fleetpulse/backend/services/stream-processor/internal/stream"
)

// App wires stream processor dependencies.
type App struct {
	server      *httpserver.Server
	consumer    *processor.Consumer
	db          *sql.DB
	redisClient *redis.Client
	natsConn    *nats.Conn
	logger      *zap.Logger
}

// New constructs the application graph. Any connection failure is returned and is fatal.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(ctx, cfg.Database.DSN, libdb.PoolOptions{MaxOpenConns: cfg.Database.MaxOpenConns})
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(ctx, libredis.Options{
		URL:      cfg.Redis.URL,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	a := &App{
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}

	publisher, err := a.newPublisher(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	m := metrics.New()
	engine := alerts.NewEngine(cfg.Thresholds())
	telemetryService := service.NewTelemetryService(
		repository.NewTelemetryRepository(sqlDB),
		repository.NewVehicleRepository(sqlDB),
		repository.NewAlertRepository(sqlDB),
		engine,
		publisher,
		m,
		logger,
	)

	groupCfg := cfg.GroupConfig()
	channel := stream.NewRedisChannel(redisClient, groupCfg)
	consumerLogger := logger.With(zap.String("group", groupCfg.Group), zap.String("consumer", groupCfg.Consumer))
	a.consumer = processor.NewConsumer(channel, telemetryService, m, consumerLogger, cfg.ReadBackoff())

	routes := httpserver.Routes{
		Health: handlers.NewHealthHandler(map[string]handlers.Check{
			"postgres": sqlDB.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
		Status:  handlers.NewStatusHandler(groupCfg.Group, groupCfg.Consumer, a.consumer),
		Metrics: m.Handler(),
	}
	a.server = httpserver.NewServer(cfg.HTTPAddress(), httpserver.NewRouter(routes), logger)

	logger.Info("stream processor configured",
		zap.String("stream", groupCfg.Key),
		zap.String("group", groupCfg.Group),
		zap.String("consumer", groupCfg.Consumer),
		zap.Int("batch_size", groupCfg.BatchSize),
		zap.String("notify_driver", cfg.Notify.Driver),
	)
	return a, nil
}

func (a *App) newPublisher(cfg *config.Config) (bus.Publisher, error) {
	if cfg.Notify.Driver == bus.DriverNATS {
		conn, err := bus.ConnectNATS(cfg.Notify.NATSURL, "stream-processor")
		if err != nil {
			return nil, err
		}
		a.natsConn = conn
		return bus.NewNATSPublisher(conn, cfg.Notify.Subject), nil
	}
	return bus.NewRedisPublisher(a.redisClient, cfg.Notify.Channel), nil
}

// Run starts the consumer loop and the HTTP server; either failing stops both.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		return a.consumer.Start(gctx)
	})
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.natsConn != nil {
		a.natsConn.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}

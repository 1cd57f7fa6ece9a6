package app

import (
	"context"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleetpulse/backend/libs/bus"
	libredis "fleetpulse/backend/libs/redis"
	"fleetpulse/backend/services/realtime-gateway/internal/config"
	httpserver "fleetpulse/backend/services/realtime-gateway/internal/http"
	"fleetpulse/backend/services/realtime-gateway/internal/http/handlers"
	"fleetpulse/backend/services/realtime-gateway/internal/metrics"
	"fleetpulse/backend/services/realtime-gateway/internal/relay"
	"fleetpulse/backend/services/realtime-gateway/internal/ws"
)

// App wires realtime gateway dependencies.
type App struct {
	server      *httpserver.Server
	handler     http.Handler
	hub         *ws.Hub
	relay       *relay.Relay
	subscriber  bus.Subscriber
	redisClient *redis.Client
	natsConn    *nats.Conn
	logger      *zap.Logger
}

// New connects to the notification bus and constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	switch cfg.Notify.Driver {
	case bus.DriverNATS:
		conn, err := bus.ConnectNATS(cfg.Notify.NATSURL, "realtime-gateway")
		if err != nil {
			return nil, err
		}
		a.natsConn = conn
		a.subscriber = bus.NewNATSSubscriber(conn, cfg.Notify.Subject)
	default:
		client, err := libredis.NewRedisClient(ctx, libredis.Options{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.redisClient = client
		a.subscriber = bus.NewRedisSubscriber(client, cfg.Notify.Channel)
	}

	a.build(cfg)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), a.handler, logger)
	return a, nil
}

func (a *App) build(cfg *config.Config) {
	a.hub = ws.NewHub()
	m := metrics.New(a.hub.Clients)
	a.relay = relay.New(a.hub, m, a.logger)

	wsServer := ws.NewServer(a.hub, cfg.ConnectionOptions(), cfg.WebSocket.AllowedOrigins, a.logger, m.Dropped)
	a.handler = httpserver.NewRouter(httpserver.Routes{
		WS:      wsServer.HandleWS,
		Health:  handlers.NewHealthHandler(a.hub.Clients),
		Metrics: m.Handler(),
	})
}

// Run relays bus events and serves clients until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		a.logger.Info("subscribed to notification bus")
		return a.subscriber.Subscribe(gctx, a.relay.Handle)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.hub.CloseAll()
		return nil
	})
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.natsConn != nil {
		a.natsConn.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}

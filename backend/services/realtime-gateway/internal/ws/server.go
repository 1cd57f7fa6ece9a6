package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP connections to websocket clients of the hub.
type Server struct {
	hub      *Hub
	opts     Options
	logger   *zap.Logger
	onDrop   func()
	upgrader websocket.Upgrader
}

// NewServer builds ws server. An empty allowedOrigins accepts any origin.
func NewServer(hub *Hub, opts Options, allowedOrigins []string, logger *zap.Logger, onDrop func()) *Server {
	return &Server{
		hub:    hub,
		opts:   opts,
		logger: logger,
		onDrop: onDrop,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWS is HTTP handler for /ws endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connection := NewConnection(uuid.NewString(), conn, s.hub, s.opts, s.logger, s.onDrop)
	s.hub.Add(connection)
	s.logger.Info("client connected", zap.String("client_id", connection.ID()), zap.String("remote", r.RemoteAddr))

	go func() {
		connection.Run()
		s.logger.Info("client disconnected", zap.String("client_id", connection.ID()))
	}()
}

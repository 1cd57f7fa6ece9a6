package httpserver

import "net/http"

// Routes defines HTTP endpoints.
type Routes struct {
	WS      http.HandlerFunc
	Health  http.Handler
	Metrics http.Handler
}

// NewRouter sets up HTTP routing.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.WS != nil {
		mux.HandleFunc("/ws", routes.WS)
	}
	if routes.Health != nil {
		mux.Handle("/health", routes.Health)
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", routes.Metrics)
	}
	return mux
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleet_gateway"

// Metrics covers relay throughput and client counts.
type Metrics struct {
	registry  *prometheus.Registry
	relayed   *prometheus.CounterVec
	malformed prometheus.Counter
	unknown   prometheus.Counter
	dropped   prometheus.Counter
}

// New registers gateway metrics. clients reports the current number of connected clients.
func New(clients func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.relayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_relayed_total",
		Help:      "Bus events relayed to clients, by event",
	}, []string{"event"})
	m.malformed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_malformed_total",
		Help:      "Bus payloads that were not valid envelopes",
	})
	m.unknown = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_unknown_total",
		Help:      "Envelopes with an event the gateway does not route",
	})
	m.dropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_dropped_total",
		Help:      "Messages dropped because a client buffer was full",
	})
	connected := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "clients_connected",
		Help:      "Currently connected websocket clients",
	}, func() float64 { return float64(clients()) })

	reg.MustRegister(m.relayed, m.malformed, m.unknown, m.dropped, connected,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Relayed(event string) { m.relayed.WithLabelValues(event).Inc() }
func (m *Metrics) Malformed()           { m.malformed.Inc() }
func (m *Metrics) Unknown()             { m.unknown.Inc() }
func (m *Metrics) Dropped()             { m.dropped.Inc() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

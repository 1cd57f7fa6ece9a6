package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleet_stream"

// Metrics holds the consumer loop counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	processed       prometheus.Counter
	failed          *prometheus.CounterVec
	poison          prometheus.Counter
	acked           prometheus.Counter
	readErrors      prometheus.Counter
	publishFailures *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	batchSize       prometheus.Histogram
	duration        prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.processed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_processed_total",
		Help:      "Entries fully processed and acknowledged",
	})
	m.failed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_failed_total",
		Help:      "Entries left unacknowledged for redelivery, by failed stage",
	}, []string{"stage"})
	m.poison = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_poison_total",
		Help:      "Undecodable entries acknowledged without processing",
	})
	m.acked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_acked_total",
		Help:      "Entries acknowledged on the stream",
	})
	m.readErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_errors_total",
		Help:      "Failed batch reads",
	})
	m.publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_failures_total",
		Help:      "Notification publishes that failed, by event",
	}, []string{"event"})
	m.alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_raised_total",
		Help:      "Alerts raised, by type and severity",
	}, []string{"type", "severity"})
	m.batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_size",
		Help:      "Entries returned per non-empty read",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
	})
	m.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "entry_duration_seconds",
		Help:      "Time spent processing one entry",
		Buckets:   prometheus.DefBuckets,
	})

	reg.MustRegister(
		m.processed, m.failed, m.poison, m.acked, m.readErrors,
		m.publishFailures, m.alerts, m.batchSize, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Processed()                    { m.processed.Inc() }
func (m *Metrics) Failed(stage string)           { m.failed.WithLabelValues(stage).Inc() }
func (m *Metrics) Poison()                       { m.poison.Inc() }
func (m *Metrics) Acked(n int)                   { m.acked.Add(float64(n)) }
func (m *Metrics) ReadError()                    { m.readErrors.Inc() }
func (m *Metrics) PublishFailed(event string)    { m.publishFailures.WithLabelValues(event).Inc() }
func (m *Metrics) Alert(kind, severity string)   { m.alerts.WithLabelValues(kind, severity).Inc() }
func (m *Metrics) Batch(n int)                   { m.batchSize.Observe(float64(n)) }
func (m *Metrics) Observe(elapsed time.Duration) { m.duration.Observe(elapsed.Seconds()) }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

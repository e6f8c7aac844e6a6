package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics records outcomes of the outbox relay loop.
type RelayMetrics struct {
	batchDuration *prometheus.HistogramVec
	published     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	dead          *prometheus.CounterVec
}

// NewRelayMetrics registers the relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of outbox relay batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"relay"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox records confirmed by the broker.",
	}, []string{"routing_key"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that errored.",
	}, []string{"routing_key"})
	dead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_total",
		Help: "Outbox records retired after exhausting attempts.",
	}, []string{"routing_key"})
	reg.MustRegister(batchDuration, published, failed, dead)
	return &RelayMetrics{
		batchDuration: batchDuration,
		published:     published,
		failed:        failed,
		dead:          dead,
	}
}

// ObserveBatch records how long one relay batch took.
func (m *RelayMetrics) ObserveBatch(relay string, duration time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.WithLabelValues(normalizeLabel(relay)).Observe(duration.Seconds())
}

// IncPublished increments the confirmed-publish counter for a routing key.
func (m *RelayMetrics) IncPublished(routingKey string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(routingKey)).Inc()
}

// IncFailed increments the failed-publish counter for a routing key.
func (m *RelayMetrics) IncFailed(routingKey string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(routingKey)).Inc()
}

// IncDead increments the dead-letter counter for a routing key.
func (m *RelayMetrics) IncDead(routingKey string) {
	if m == nil || m.dead == nil {
		return
	}
	m.dead.WithLabelValues(normalizeLabel(routingKey)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

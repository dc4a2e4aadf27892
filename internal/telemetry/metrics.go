package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "typerace"

// Metrics holds the Prometheus collectors of the server. A nil *Metrics is valid and records nothing.
type Metrics struct {
	events         *prometheus.CounterVec
	connectedUsers prometheus.Gauge
	connections    prometheus.Gauge
	dropped        *prometheus.CounterVec
	storeDuration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound session events by name and outcome.",
		}, []string{"event", "outcome"}),

		connectedUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_users",
			Help:      "Number of distinct usernames in the presence set.",
		}),

		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of open WebSocket connections.",
		}),

		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Outbound messages that could not be delivered to a connection.",
		}, []string{"event"}),

		storeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_duration_seconds",
			Help:      "Latency of result store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
	}
}

func (m *Metrics) ObserveEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) SetConnectedUsers(n int) {
	if m == nil {
		return
	}
	m.connectedUsers.Set(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) DeliveryDropped(event string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(event).Inc()
}

// ObserveStore records the duration of a store operation started at start.
func (m *Metrics) ObserveStore(op string, start time.Time, err error) {
	if m == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.storeDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one server. They live in their own
// registry so several servers can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	opsTotal       *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	connections    prometheus.Gauge
	subscriptions  prometheus.Gauge
	deliveredTotal prometheus.Counter
	slowConsumers  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natscodec_ops_total",
			Help: "Number of protocol operations decoded from clients",
		}, []string{"op"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "natscodec_errors_total",
			Help: "Number of -ERR replies sent to clients, by error",
		}, []string{"error"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "natscodec_connections",
			Help: "Number of open client connections",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "natscodec_subscriptions",
			Help: "Number of registered subscriptions",
		}),
		deliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "natscodec_delivered_total",
			Help: "Number of MSG frames queued for delivery",
		}),
		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "natscodec_slow_consumers_total",
			Help: "Number of connections closed because their write queue was full",
		}),
	}

	m.registry.MustRegister(
		m.opsTotal,
		m.errorsTotal,
		m.connections,
		m.subscriptions,
		m.deliveredTotal,
		m.slowConsumers,
	)

	return m
}

// Registry returns the registry to expose, e.g. through promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

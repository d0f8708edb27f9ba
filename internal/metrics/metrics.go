package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	Connections    prometheus.Gauge
	InboundEvents  *prometheus.CounterVec
	EmittedEvents  *prometheus.CounterVec
	StatusChanges  *prometheus.CounterVec
	Notifications  prometheus.Counter
	DroppedClients prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_inbound_events_total",
			Help: "Channel events received, by type",
		}, []string{"type"}),
		EmittedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_emitted_events_total",
			Help: "Events emitted to rooms, by event name",
		}, []string{"event"}),
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_message_status_changes_total",
			Help: "Messages moved to a status",
		}, []string{"status"}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_pushed_total",
			Help: "Notifications persisted and pushed",
		}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_dropped_slow_clients_total",
			Help: "Connections closed because their send queue was full",
		}),
	}
	m.reg.MustRegister(
		m.Connections, m.InboundEvents, m.EmittedEvents, m.StatusChanges, m.Notifications, m.DroppedClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// StatusChanged records n messages moving to status.
func (m *Metrics) StatusChanged(status string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.StatusChanges.WithLabelValues(status).Add(float64(n))
}

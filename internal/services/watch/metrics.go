package watch

import "github.com/prometheus/client_golang/prometheus"

// Collectors exposes session, connection and notification counters so the
// server can register them next to its HTTP metrics.
func Collectors(m *Manager, h *Hub) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "watch_sessions_active",
			Help: "Live watch sessions.",
		}, func() float64 {
			return float64(m.SessionCount())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "watch_connections_active",
			Help: "Device connections subscribed to the hub.",
		}, func() float64 {
			subs, _ := h.Stats()
			return float64(subs)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "watch_events_dropped_total",
			Help: "Events dropped because a connection outbox was full.",
		}, func() float64 {
			_, dropped := h.Stats()
			return float64(dropped)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "watch_notifications_dispatched_total",
			Help: "Transient notifications delivered to presenters.",
		}, func() float64 {
			dispatched, _ := m.DispatchTotals()
			return float64(dispatched)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "watch_notifications_deduped_total",
			Help: "Transient notifications suppressed by the dedup window.",
		}, func() float64 {
			_, deduped := m.DispatchTotals()
			return float64(deduped)
		}),
	}
}

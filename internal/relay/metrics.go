package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes relay activity to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	rooms     prometheus.Gauge
	members   prometheus.Gauge
	forwarded *prometheus.CounterVec
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roommesh",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roommesh",
			Subsystem: "relay",
			Name:      "members",
			Help:      "Members across all rooms.",
		}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roommesh",
			Subsystem: "relay",
			Name:      "forwarded_total",
			Help:      "Forwarded signal and message events by outcome.",
		}, []string{"kind", "result"}),
	}
	reg.MustRegister(m.rooms, m.members, m.forwarded)
	return m
}

func (m *Metrics) roomCreated() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) roomDeleted() {
	if m != nil {
		m.rooms.Dec()
	}
}

func (m *Metrics) memberAdded() {
	if m != nil {
		m.members.Inc()
	}
}

func (m *Metrics) memberRemoved() {
	if m != nil {
		m.members.Dec()
	}
}

func (m *Metrics) forward(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !ok {
		result = "target_missing"
	}
	m.forwarded.WithLabelValues(kind, result).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SecurityEventsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		SecurityEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_security_events_total",
			Help: "Total number of security events logged by type and severity",
		}, []string{"type", "severity"}),
	}
}

func (m *Metrics) ObserveEvent(eventType, severity string) {
	m.SecurityEventsTotal.WithLabelValues(eventType, severity).Inc()
}

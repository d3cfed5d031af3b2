package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "relay"

// Metrics holds the delivery collectors. A nil *Metrics records nothing.
type Metrics struct {
	sessionsActive prometheus.Gauge
	sessionsOpened prometheus.Counter
	sessionsClosed *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	fallbackErrors prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Number of registered live sessions.",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_opened_total",
			Help:      "Sessions registered.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_closed_total",
			Help:      "Sessions closed, by reason.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Deliver calls, by outcome.",
		}, []string{"outcome"}),
		fallbackErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fallback_errors_total",
			Help:      "Fallback notifier invocations that returned an error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sessionsActive, m.sessionsOpened, m.sessionsClosed, m.deliveries, m.fallbackErrors)
	}
	return m
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) sessionClosed(reason string) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(reason).Inc()
	m.sessionsActive.Dec()
}

func (m *Metrics) delivered(outcome Outcome) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) fallbackFailed() {
	if m == nil {
		return
	}
	m.fallbackErrors.Inc()
}

package proplink

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds a Server's Prometheus collectors. PropLink never binds
// its own HTTP listener; a caller who wants /metrics registers these
// with their own prometheus.Registerer,
// the way zrepl's daemon package exposes a RegisterMetrics method on its
// job types (daemon/prometheus.go).
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	notificationsTotal prometheus.Counter
	errorsTotal        *prometheus.CounterVec
}

// NewMetrics constructs a fresh, unregistered set of collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proplink",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "number of command requests handled, by command kind",
		}, []string{"command"}),
		notificationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proplink",
			Subsystem: "server",
			Name:      "notifications_total",
			Help:      "number of VariableUpdate notifications published",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proplink",
			Subsystem: "server",
			Name:      "errors_total",
			Help:      "number of error responses returned, by reason",
		}, []string{"reason"}),
	}
}

// RegisterMetrics registers every collector with reg. Call once, after
// construction and before Server.Start.
func (m *Metrics) RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requestsTotal, m.notificationsTotal, m.errorsTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeRequest(command string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(command).Inc()
}

func (m *Metrics) observeNotification() {
	if m == nil {
		return
	}
	m.notificationsTotal.Inc()
}

func (m *Metrics) observeError(reason string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(reason).Inc()
}

package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records gateway call outcomes.
type Metrics struct {
	Calls        *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	Connects     *prometheus.CounterVec
}

// NewMetrics registers the gateway metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certchain_gateway_calls_total",
			Help: "Gateway calls by kind (submit or evaluate), operation and outcome code",
		}, []string{"kind", "operation", "outcome"}),
		CallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certchain_gateway_call_duration_seconds",
			Help:    "Duration of gateway calls including endorsement and commit",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"kind", "operation"}),
		Connects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certchain_gateway_connects_total",
			Help: "Gateway connection attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) observeCall(kind, op, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(kind, op, outcome).Inc()
	m.CallDuration.WithLabelValues(kind, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeConnect(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Connects.WithLabelValues(result).Inc()
}

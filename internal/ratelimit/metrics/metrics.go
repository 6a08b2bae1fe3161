package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lifeline/internal/ratelimit/models"
)

type Metrics struct {
	Decisions      *prometheus.CounterVec
	SweptEntries   prometheus.Counter
	StoreErrors    prometheus.Counter
	CircuitOpen    prometheus.Gauge
	FallbackChecks prometheus.Counter
}

// New registers the limiter collectors on reg. A nil registerer builds
// unregistered collectors, which is what unit tests want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_ratelimit_decisions_total",
			Help: "Admission decisions by endpoint class and outcome",
		}, []string{"class", "outcome"}),
		SweptEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_ratelimit_swept_entries_total",
			Help: "Expired window entries evicted by the background sweep",
		}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_ratelimit_store_errors_total",
			Help: "Window store failures seen by the middleware",
		}),
		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lifeline_ratelimit_circuit_open",
			Help: "1 while the primary window store is bypassed for the in-memory fallback",
		}),
		FallbackChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_ratelimit_fallback_checks_total",
			Help: "Admission checks served by the in-memory fallback",
		}),
	}
}

func (m *Metrics) RecordDecision(class models.EndpointClass, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Decisions.WithLabelValues(string(class), outcome).Inc()
}

func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptEntries.Add(float64(n))
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}

func (m *Metrics) IncrementFallbackChecks() {
	if m == nil {
		return
	}
	m.FallbackChecks.Inc()
}

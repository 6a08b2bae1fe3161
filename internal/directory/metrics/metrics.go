package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lifeline/internal/directory/models"
)

// Metrics provides observability for the moderation pipeline.
type Metrics struct {
	Submissions         prometheus.Counter
	Transitions         *prometheus.CounterVec
	FailedChecks        *prometheus.CounterVec
	VerificationLatency prometheus.Histogram
}

// New registers the collectors on reg; a nil registerer leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_candidates_submitted_total",
			Help: "Candidate services submitted for moderation",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_moderation_transitions_total",
			Help: "Moderation transitions by outcome",
		}, []string{"outcome"}),
		FailedChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_verification_failed_checks_total",
			Help: "Failed verification checks by check name",
		}, []string{"check"}),
		VerificationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifeline_verification_duration_seconds",
			Help:    "Duration of candidate verification including the directory read",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementSubmitted() {
	if m == nil {
		return
	}
	m.Submissions.Inc()
}

// RecordTransition counts approved, approved_with_override, rejected and conflict outcomes.
func (m *Metrics) RecordTransition(outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(outcome).Inc()
}

// ObserveVerification records the verdict's failed checks and the call duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveVerification(v models.Verdict, start time.Time) {
	if m == nil {
		return
	}
	for _, c := range v.FailedChecks() {
		m.FailedChecks.WithLabelValues(string(c)).Inc()
	}
	m.VerificationLatency.Observe(time.Since(start).Seconds())
}

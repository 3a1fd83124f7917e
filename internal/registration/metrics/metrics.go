package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration module. All methods
// are nil-safe so wiring them is optional in tests.
type Metrics struct {
	// Transitions by committed target status.
	Transitions *prometheus.CounterVec

	// Capture submissions by outcome: verified, flagged_duplicate,
	// quality_check_failed, partial, unavailable.
	CaptureOutcome *prometheus.CounterVec

	// Identities issued.
	IdentitiesIssued prometheus.Counter

	// Identity number collisions retried internally.
	IdentityCollisions prometheus.Counter

	// Command latency by command name.
	CommandLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all registration metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idregistry_registration_transitions_total",
			Help: "Committed registration status transitions by target status",
		}, []string{"status"}),

		CaptureOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idregistry_capture_submissions_total",
			Help: "Biometric capture submissions by outcome",
		}, []string{"outcome"}),

		IdentitiesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idregistry_identities_issued_total",
			Help: "Total identities issued",
		}),

		IdentityCollisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idregistry_identity_number_collisions_total",
			Help: "Identity number collisions resolved by internal retry",
		}),

		CommandLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idregistry_command_duration_seconds",
			Help:    "Duration of state machine commands including external calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"command"}),
	}
}

// IncTransition records a committed transition into the given status.
func (m *Metrics) IncTransition(status string) {
	if m != nil {
		m.Transitions.WithLabelValues(status).Inc()
	}
}

// IncCaptureOutcome records a capture submission outcome.
func (m *Metrics) IncCaptureOutcome(outcome string) {
	if m != nil {
		m.CaptureOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncIdentityIssued records a successful issuance.
func (m *Metrics) IncIdentityIssued() {
	if m != nil {
		m.IdentitiesIssued.Inc()
	}
}

// IncIdentityCollision records an internally retried number collision.
func (m *Metrics) IncIdentityCollision() {
	if m != nil {
		m.IdentityCollisions.Inc()
	}
}

// ObserveCommand records the duration of one command.
func (m *Metrics) ObserveCommand(command string, d time.Duration) {
	if m != nil {
		m.CommandLatency.WithLabelValues(command).Observe(d.Seconds())
	}
}

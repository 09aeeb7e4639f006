package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for lending operations.
const (
	OutcomeOK         = "ok"
	OutcomeConflict   = "conflict"
	OutcomeNotFound   = "not_found"
	OutcomeBusy       = "busy"
	OutcomeNotAllowed = "not_allowed"
	OutcomeError      = "error"
)

// Metrics holds the instruments the lending coordinator reports into.
type Metrics struct {
	Borrows     *prometheus.CounterVec
	Returns     *prometheus.CounterVec
	LockWait    prometheus.Histogram
	ActiveLoans prometheus.Gauge
}

// New registers and returns the lending metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Borrows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "borrows_total",
			Help:      "Borrow attempts by outcome.",
		}, []string{"outcome"}),
		Returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "returns_total",
			Help:      "Return attempts by outcome.",
		}, []string{"outcome"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lending",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring a per-book lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ActiveLoans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lending",
			Name:      "active_loans",
			Help:      "Currently open loans.",
		}),
	}

	reg.MustRegister(m.Borrows, m.Returns, m.LockWait, m.ActiveLoans)
	return m
}

// Package metrics exposes Prometheus counters and histograms for sign-up and
// sign-in outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation label values.
const (
	OpSignUp = "signup"
	OpSignIn = "signin"
	OpMe     = "me"
)

// Outcome label values.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeConflict           = "conflict"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeIntegrity          = "integrity"
	OutcomeUnavailable        = "unavailable"
	OutcomeError              = "error"
)

// Recorder owns the auth metrics. A nil *Recorder is valid and records
// nothing, so tests and tools can build a service without a registry.
type Recorder struct {
	requests     *prometheus.CounterVec
	hashDuration prometheus.Histogram
}

// New creates a Recorder and registers its collectors with reg.
// Panics if registration fails (following prometheus convention).
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_requests_total",
				Help: "Total number of authentication operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		hashDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "auth_password_hash_seconds",
				Help: "Time spent hashing passwords, including the wait for a hashing slot",
				// bcrypt at cost 10 lands in the 40-100ms range on most hardware.
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
	}
	reg.MustRegister(r.requests, r.hashDuration)
	return r
}

// RecordOutcome increments auth_requests_total for one finished operation.
func (r *Recorder) RecordOutcome(operation, outcome string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(operation, outcome).Inc()
}

// ObserveHash records how long one password hash took.
func (r *Recorder) ObserveHash(d time.Duration) {
	if r == nil {
		return
	}
	r.hashDuration.Observe(d.Seconds())
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

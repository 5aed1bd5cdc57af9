// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"campusattend/internal/apperr"
)

const Namespace = "campusattend"

const (
	ActionCheckIn  = "checkin"
	ActionCheckOut = "checkout"
)

type Metrics struct {
	// Decisions counts check-in and check-out outcomes. Result is the
	// outcome name on success or the lower-cased error code on rejection.
	Decisions *prometheus.CounterVec
	// Distance observes the claimed distance from the location center for
	// every check-in that reached the admission gate.
	Distance prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	AuditEvents     *prometheus.CounterVec
	ChallengesSwept prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "checkin_decisions_total",
			Help:      "Check-in and check-out decisions by action and result",
		}, []string{"action", "result"}),
		Distance: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "checkin_distance_meters",
			Help:      "Distance between the claimed position and the location center",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status_code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AuditEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audit_events_total",
			Help:      "Audit events handled by the worker, by outcome",
		}, []string{"outcome"}),
		ChallengesSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "challenges_swept_total",
			Help:      "Expired challenges removed by the sweeper",
		}),
	}
}

// Decision records one decision. err wins over result when both are set.
func (m *Metrics) Decision(action, result string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		result = ResultOf(err)
	}
	m.Decisions.WithLabelValues(action, result).Inc()
}

// ResultOf is the metric label for a rejected decision.
func ResultOf(err error) string {
	return strings.ToLower(string(apperr.CodeOf(err)))
}

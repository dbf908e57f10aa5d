package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for Scans.
const (
	OutcomeOK        = "ok"
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "not_found"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

var (
	// Scans counts check-in actions by action name and outcome.
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkin",
		Name:      "scans_total",
		Help:      "Check-in actions handled, by action and outcome.",
	}, []string{"action", "outcome"})

	// VisitsConsumed counts visit events applied to live counters.
	VisitsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "checkin",
		Name:      "visits_consumed_total",
		Help:      "Visit events applied to live counters.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkin",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "checkin",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	authzDecisionsTotal    *prometheus.CounterVec
	authzSuspiciousTotal   prometheus.Counter
	authzAuditFailureTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		authzDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Messaging authorization decisions by action, outcome and reason.",
		}, []string{"action", "granted", "reason"})

		authzSuspiciousTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authz_suspicious_activity_total",
			Help: "Number of suspicious activity flags raised for repeated denials.",
		})

		authzAuditFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_audit_write_failures_total",
			Help: "Audit writes that failed and forced a closed decision.",
		}, []string{"action"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			authzDecisionsTotal,
			authzSuspiciousTotal,
			authzAuditFailureTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// AuthzDecisions exposes the counter for authorization decisions.
func AuthzDecisions() *prometheus.CounterVec {
	RegisterMetrics()
	return authzDecisionsTotal
}

// AuthzSuspicious exposes the counter for suspicious activity flags.
func AuthzSuspicious() prometheus.Counter {
	RegisterMetrics()
	return authzSuspiciousTotal
}

// AuthzAuditFailures exposes the counter for failed audit writes.
func AuthzAuditFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return authzAuditFailureTotal
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bakery_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bakery_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// System metrics
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bakery_build_info",
			Help: "Build information about the bakery API",
		},
		[]string{"version", "go_version"},
	)

	// Account metrics
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakery_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"}, // success, invalid_credentials, error
	)

	AccountsRegisteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakery_accounts_registered_total",
			Help: "Total number of account registrations",
		},
		[]string{"result"},
	)

	// Token metrics
	TokensIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bakery_tokens_issued_total",
			Help: "Total number of session tokens issued",
		},
	)

	TokenValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakery_token_validations_total",
			Help: "Total number of session token validations",
		},
		[]string{"result"}, // valid, expired, bad_signature, ...
	)

	// Policy metrics
	PolicyEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakery_policy_evaluations_total",
			Help: "Total number of access policy evaluations",
		},
		[]string{"policy", "result"},
	)

	PoliciesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bakery_policies_registered",
			Help: "Number of access policies in the registry",
		},
	)

	// Rate limiting metrics
	RateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakery_rate_limit_requests_total",
			Help: "Total number of requests checked against rate limits",
		},
		[]string{"limiter_type", "status"},
	)

	RateLimitActiveClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bakery_rate_limit_active_clients",
			Help: "Number of clients currently tracked by a rate limiter",
		},
		[]string{"limiter_type"},
	)

	// Audit metrics
	AuditEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakery_audit_events_recorded_total",
			Help: "Total number of audit events accepted by the recorder",
		},
		[]string{"operation"},
	)

	AuditEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakery_audit_events_dropped_total",
			Help: "Total number of audit events lost before reaching the sink",
		},
		[]string{"reason"}, // buffer_full, closed, write_error
	)

	AuditSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bakery_audit_search_duration_seconds",
			Help:    "Audit log search latencies in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	AuditSearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bakery_audit_search_results_count",
			Help:    "Number of events returned by an audit log search",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
	)

	AuditRecordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bakery_audit_records_skipped_total",
			Help: "Total number of stored audit records that matched no known document shape",
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by stage (login|otp|token) and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnnote_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"stage", "result"},
	)

	// OTPIssued counts one-time login codes issued.
	OTPIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "burnnote_otp_issued_total",
			Help: "Total number of one-time login codes issued",
		},
	)

	// TokensMinted counts bearer tokens minted after successful OTP verification.
	TokensMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "burnnote_tokens_minted_total",
			Help: "Total number of bearer tokens minted",
		},
	)

	// SecretsCreated counts sealed secrets by whether a passphrase was set.
	SecretsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnnote_secrets_created_total",
			Help: "Total number of secrets created",
		},
		[]string{"passphrase"},
	)

	// SecretViews counts view attempts by outcome
	// (viewed|not_found|consumed|expired|passphrase_required|passphrase_invalid|corrupt).
	SecretViews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnnote_secret_views_total",
			Help: "Total number of secret view attempts",
		},
		[]string{"outcome"},
	)

	// SecretsDestroyed counts secrets moved to the destroyed state by reason (owner|expired).
	SecretsDestroyed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnnote_secrets_destroyed_total",
			Help: "Total number of secrets destroyed",
		},
		[]string{"reason"},
	)

	// MaintenanceRuns records background job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnnote_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burnnote_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

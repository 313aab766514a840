package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MethodSetupsTotal counts started setups by method type.
	MethodSetupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfa_service_method_setups_total",
		Help: "The total number of MFA setup initiations by method type",
	}, []string{"type"})

	// MethodActivationsTotal counts completed setups by method type.
	MethodActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfa_service_method_activations_total",
		Help: "The total number of MFA methods activated by type",
	}, []string{"type"})

	// ChallengesCreatedTotal counts login challenges created by method type.
	ChallengesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfa_service_challenges_created_total",
		Help: "The total number of MFA challenges created by method type",
	}, []string{"type"})

	// VerificationsTotal counts verification outcomes by method type and status.
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfa_service_verifications_total",
		Help: "The total number of MFA verification attempts by type and status",
	}, []string{"type", "status"})

	// ChallengesExhaustedTotal counts challenges invalidated by attempt exhaustion.
	ChallengesExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mfa_service_challenges_exhausted_total",
		Help: "The total number of MFA challenges invalidated after exhausting attempts",
	})

	// SignCountRegressionsTotal counts rejected WebAuthn counter regressions.
	SignCountRegressionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mfa_service_sign_count_regressions_total",
		Help: "The total number of WebAuthn authentications rejected for counter regression",
	})

	// PushResponsesTotal counts push challenge responses by outcome.
	PushResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfa_service_push_responses_total",
		Help: "The total number of push challenge responses by outcome",
	}, []string{"outcome"})

	// RateLimitRejectionsTotal counts operations rejected by the rate limiter.
	RateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfa_service_rate_limit_rejections_total",
		Help: "The total number of operations rejected by the rate limiter",
	}, []string{"operation"})

	// CleanupDeletionsTotal counts rows removed by the cleanup worker.
	CleanupDeletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfa_service_cleanup_deletions_total",
		Help: "The total number of rows removed by periodic cleanup",
	}, []string{"entity"})
)

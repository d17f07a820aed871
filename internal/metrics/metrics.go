// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fleetshare"

var (
	LimitChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "limit_checks_total",
		Help:      "Plan limit checks by resource and outcome.",
	}, []string{"resource", "outcome"})

	TrialsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trials_expired_total",
		Help:      "Organizations moved back to FREE by the trial sweep.",
	})

	TrialNotices = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trial_notices_total",
		Help:      "Trial notices by category and delivery result.",
	}, []string{"notice", "result"})

	CheckoutSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_sessions_total",
		Help:      "Checkout sessions started by plan.",
	}, []string{"plan"})

	BillingProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_provider_errors_total",
		Help:      "Failed payment provider calls by operation.",
	}, []string{"operation"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Payment provider webhook events by type and result.",
	}, []string{"type", "result"})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bithrah_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bithrah_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Negotiation lifecycle
	SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bithrah_negotiation_sessions_opened_total",
			Help: "Total negotiation sessions opened",
		},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bithrah_negotiation_sessions_closed_total",
			Help: "Total sessions reaching a terminal status",
		},
		[]string{"outcome"}, // completed, expired, cancelled
	)

	DepositsHeld = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bithrah_negotiation_deposits_held_total",
			Help: "Total deposits confirmed and held",
		},
	)

	DepositsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bithrah_negotiation_deposits_released_total",
			Help: "Total deposits released back to investors",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bithrah_negotiation_messages_total",
			Help: "Total negotiation messages persisted",
		},
		[]string{"sender"}, // investor, owner
	)

	MessagesFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bithrah_negotiation_messages_flagged_total",
			Help: "Total messages flagged by the content moderator",
		},
		[]string{"reason"},
	)

	PolicyViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bithrah_negotiation_policy_violations_total",
			Help: "Agent proposals rejected by policy bounds",
		},
	)

	SettlementsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bithrah_negotiation_settlements_total",
			Help: "Settlement records issued",
		},
		[]string{"kind"}, // platform_commission, referral
	)

	// Counterparty agent
	AgentLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bithrah_negotiation_agent_latency_seconds",
			Help:    "Counterparty agent response latency",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
		},
	)

	AgentFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bithrah_negotiation_agent_failures_total",
			Help: "Counterparty agent errors and timeouts",
		},
	)

	// Rate limiting
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bithrah_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merlin_decisions_total",
			Help: "Total number of applications decided, by status",
		},
		[]string{"status"},
	)

	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "merlin_decision_duration_seconds",
			Help:    "Duration of application processing in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	RuleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merlin_rule_matches_total",
			Help: "Total number of screening rule matches, by rule and action",
		},
		[]string{"rule", "action"},
	)

	Explanations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merlin_explanations_total",
			Help: "Total number of explanation attempts, by outcome",
		},
		[]string{"outcome"},
	)

	ExternalScoring = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merlin_external_scoring_total",
			Help: "Total number of external scoring calls, by outcome",
		},
		[]string{"outcome"},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merlin_persistence_failures_total",
			Help: "Total number of application records that could not be stored",
		},
		[]string{"sink"},
	)

	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merlin_recommendation_queries_total",
			Help: "Total number of product similarity queries, by whether anything matched",
		},
		[]string{"matched"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merlin_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "merlin_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "route"},
	)
)

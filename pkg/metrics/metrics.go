package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Server Metrics

	// APIRequestsTotal counts HTTP requests by route and status
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIRequestDuration API request latency
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Workflow Metrics

	// WorkflowTransitionsTotal counts committed request transitions
	WorkflowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total number of purchase request state transitions",
		},
		[]string{"from", "to"},
	)

	// WorkflowConflictsTotal counts actions that lost a concurrent update
	WorkflowConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_conflicts_total",
			Help: "Total number of approval actions rejected by the version check",
		},
	)

	// WorkflowSubmissionsTotal counts submissions by how the chain was built
	WorkflowSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_submissions_total",
			Help: "Total number of submitted purchase requests",
		},
		[]string{"source"},
	)

	// WorkflowChainLength distribution of materialized chain lengths
	WorkflowChainLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workflow_chain_length",
			Help:    "Number of approval steps materialized per request",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	// NotificationsTotal counts notifications by outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notifications sent",
		},
		[]string{"event", "result"},
	)
)

// Chain sources for WorkflowSubmissionsTotal
const (
	SourceTemplate = "template"
	SourceFallback = "fallback"
)

// WorkflowOpenRequests is refreshed by the backlog reporter
var WorkflowOpenRequests = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "workflow_open_requests",
		Help: "Number of purchase requests in a non-terminal status",
	},
	[]string{"status"},
)

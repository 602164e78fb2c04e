package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Event sources
	SourceJira = "jira"
	SourceGit  = "git"

	// Skip reasons
	SkipUnresolvedDeveloper = "unresolved_developer"
	SkipBadTimestamp        = "bad_timestamp"
	SkipMalformedRecord     = "malformed_record"
	SkipMissingIdentity     = "missing_identity"

	// Refresh steps
	StepSyncSprints = "sync-sprints"
	StepSyncIssues  = "sync-issues"
	StepSyncCommits = "sync-commits"
	StepMaterialize = "materialize"
	StepVelocity    = "velocity"

	// Tables reported by the stats collector
	TableDevelopers   = "developers"
	TableSprints      = "sprints"
	TableIssues       = "issues"
	TableEvents       = "activity_events"
	TableDailySummary = "daily_activity_summary"
)

// Ingestion Metrics
var (
	EventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_events_ingested_total",
			Help: "Total number of new activity events written",
		},
		[]string{"source"},
	)

	RecordsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_records_skipped_total",
			Help: "Total number of source records skipped with reason",
		},
		[]string{"source", "reason"},
	)
)

// Pipeline Metrics
var (
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devpulse_step_duration_seconds",
			Help:    "Refresh step duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"step"},
	)

	StepFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_step_failures_total",
			Help: "Total number of failed refresh steps",
		},
		[]string{"step"},
	)

	LastRefreshTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devpulse_last_refresh_timestamp_seconds",
			Help: "Unix time of the last completed refresh",
		},
	)
)

// Jira API Metrics
var (
	JiraAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_jira_api_requests_total",
			Help: "Total number of Jira API requests",
		},
		[]string{"status_code"},
	)

	JiraAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devpulse_jira_api_request_duration_seconds",
			Help:    "Jira API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status_code"},
	)
)

// Database Metrics
var (
	TableRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "devpulse_table_rows",
			Help: "Row count per table after a refresh",
		},
		[]string{"table"},
	)
)

// ObserveJiraRequest records one Jira API request outcome
func ObserveJiraRequest(statusCode int, duration time.Duration) {
	code := strconv.Itoa(statusCode)
	JiraAPIRequestsTotal.WithLabelValues(code).Inc()
	JiraAPIRequestDuration.WithLabelValues(code).Observe(duration.Seconds())
}

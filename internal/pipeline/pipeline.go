package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"devpulse/internal/aggregate"
	"devpulse/internal/config"
	"devpulse/internal/database"
	"devpulse/internal/extract"
	"devpulse/internal/gitlog"
	"devpulse/internal/jira"
	"devpulse/internal/metrics"
)

// Step statuses
const (
	StepStatusOK      = "ok"
	StepStatusSkipped = "skipped"
	StepStatusFailed  = "failed"
)

// TrackerClient is the slice of the Jira client the pipeline drives
type TrackerClient interface {
	SearchIssues(ctx context.Context, jql string) ([]jira.Issue, error)
	BoardSprints(ctx context.Context, boardID int) ([]jira.Sprint, error)
}

// CommitSource is the slice of the git log reader the pipeline drives
type CommitSource interface {
	Commits(ctx context.Context) ([]gitlog.Commit, error)
}

// StepResult carries the outcome of one refresh step
type StepResult struct {
	Name      string
	Status    string
	Processed int
	Skipped   int
	NewEvents int
	Duration  time.Duration
	Err       error
}

// RunSummary is the outcome of one full refresh
type RunSummary struct {
	RunID  string
	Status string
	Steps  []StepResult
}

// FailedSteps counts the steps that ended in an error
func (s RunSummary) FailedSteps() int {
	n := 0
	for _, step := range s.Steps {
		if step.Status == StepStatusFailed {
			n++
		}
	}
	return n
}

// Pipeline wires the sources, the extractor and the aggregator into the
// ordered batch refresh
type Pipeline struct {
	cfg        *config.Config
	db         *database.DB
	tracker    TrackerClient
	commits    CommitSource
	extractor  *extract.Extractor
	aggregator *aggregate.Aggregator
	logger     *slog.Logger
}

func New(cfg *config.Config, db *database.DB, tracker TrackerClient, commits CommitSource, extractor *extract.Extractor, aggregator *aggregate.Aggregator, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		db:         db,
		tracker:    tracker,
		commits:    commits,
		extractor:  extractor,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Refresh runs the full batch: sprint and issue sync, commit sync, then
// the derived tables. A failing step is recorded on its StepResult and
// later steps still run, since they only read what previous steps already
// persisted. The error return is reserved for run bookkeeping failures.
func (p *Pipeline) Refresh(ctx context.Context) (RunSummary, error) {
	runID := uuid.NewString()
	if err := p.db.StartRun(runID); err != nil {
		return RunSummary{}, err
	}
	p.logger.Info("Starting refresh", "run_id", runID)

	summary := RunSummary{RunID: runID}
	summary.Steps = []StepResult{
		p.syncSprints(ctx),
		p.syncIssues(ctx),
		p.syncCommits(ctx),
		p.materialize(ctx),
		p.velocity(ctx),
	}
	summary.Status = runStatus(summary.Steps)

	stepsJSON, err := json.Marshal(stepRecords(summary.Steps))
	if err != nil {
		return summary, fmt.Errorf("failed to marshal step summaries: %w", err)
	}
	if err := p.db.FinishRun(runID, summary.Status, string(stepsJSON), runError(summary.Steps)); err != nil {
		return summary, err
	}

	metrics.LastRefreshTimestamp.SetToCurrentTime()
	metrics.CollectTableCounts(p.db, p.logger)

	p.logger.Info("Refresh finished", "run_id", runID, "status", summary.Status)
	return summary, nil
}

func (p *Pipeline) syncSprints(ctx context.Context) StepResult {
	if p.tracker == nil || !p.cfg.JiraEnabled() {
		return p.skipStep(metrics.StepSyncSprints, "jira is not configured")
	}
	return p.runStep(metrics.StepSyncSprints, func() (extract.Stats, error) {
		var all []jira.Sprint
		for _, boardID := range p.cfg.JiraBoardIDs {
			sprints, err := p.tracker.BoardSprints(ctx, boardID)
			if err != nil {
				return extract.Stats{}, err
			}
			all = append(all, sprints...)
		}
		return p.extractor.SyncSprints(ctx, all)
	})
}

func (p *Pipeline) syncIssues(ctx context.Context) StepResult {
	if p.tracker == nil || !p.cfg.JiraEnabled() {
		return p.skipStep(metrics.StepSyncIssues, "jira is not configured")
	}
	return p.runStep(metrics.StepSyncIssues, func() (extract.Stats, error) {
		issues, err := p.tracker.SearchIssues(ctx, p.cfg.SearchJQL())
		if err != nil {
			return extract.Stats{}, err
		}
		return p.extractor.IngestIssues(ctx, issues)
	})
}

func (p *Pipeline) syncCommits(ctx context.Context) StepResult {
	if p.commits == nil || !p.cfg.GitEnabled() {
		return p.skipStep(metrics.StepSyncCommits, "git is not configured")
	}
	return p.runStep(metrics.StepSyncCommits, func() (extract.Stats, error) {
		commits, err := p.commits.Commits(ctx)
		if err != nil {
			return extract.Stats{}, err
		}
		return p.extractor.IngestCommits(ctx, commits)
	})
}

func (p *Pipeline) materialize(ctx context.Context) StepResult {
	return p.runStep(metrics.StepMaterialize, func() (extract.Stats, error) {
		rows, err := p.aggregator.Materialize(ctx)
		return extract.Stats{Processed: int(rows)}, err
	})
}

func (p *Pipeline) velocity(ctx context.Context) StepResult {
	return p.runStep(metrics.StepVelocity, func() (extract.Stats, error) {
		velocities, err := p.aggregator.RecomputeVelocity(ctx)
		return extract.Stats{Processed: len(velocities)}, err
	})
}

func (p *Pipeline) runStep(name string, fn func() (extract.Stats, error)) StepResult {
	start := time.Now()
	stats, err := fn()
	result := StepResult{
		Name:      name,
		Status:    StepStatusOK,
		Processed: stats.Processed,
		Skipped:   stats.Skipped,
		NewEvents: stats.NewEvents,
		Duration:  time.Since(start),
	}
	metrics.StepDuration.WithLabelValues(name).Observe(result.Duration.Seconds())

	if err != nil {
		result.Status = StepStatusFailed
		result.Err = err
		metrics.StepFailuresTotal.WithLabelValues(name).Inc()
		p.logger.Error("Step failed", "step", name, "error", err)
		return result
	}

	p.logger.Info("Step finished",
		"step", name,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"new_events", stats.NewEvents,
		"duration_ms", result.Duration.Milliseconds())
	return result
}

func (p *Pipeline) skipStep(name, reason string) StepResult {
	p.logger.Info("Step skipped", "step", name, "reason", reason)
	return StepResult{Name: name, Status: StepStatusSkipped}
}

func runStatus(steps []StepResult) string {
	ran, failed := 0, 0
	for _, s := range steps {
		switch s.Status {
		case StepStatusFailed:
			ran++
			failed++
		case StepStatusOK:
			ran++
		}
	}
	switch {
	case failed == 0:
		return database.RunStatusSucceeded
	case failed == ran:
		return database.RunStatusFailed
	default:
		return database.RunStatusPartial
	}
}

// StepRecord is the persisted form of a StepResult on an etl_runs row
type StepRecord struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	NewEvents  int    `json:"new_events"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// DecodeSteps parses the per-step JSON stored on an etl_runs row
func DecodeSteps(stepsJSON string) ([]StepRecord, error) {
	var records []StepRecord
	if err := json.Unmarshal([]byte(stepsJSON), &records); err != nil {
		return nil, fmt.Errorf("failed to decode step records: %w", err)
	}
	return records, nil
}

func stepRecords(steps []StepResult) []StepRecord {
	records := make([]StepRecord, 0, len(steps))
	for _, s := range steps {
		r := StepRecord{
			Name:       s.Name,
			Status:     s.Status,
			Processed:  s.Processed,
			Skipped:    s.Skipped,
			NewEvents:  s.NewEvents,
			DurationMs: s.Duration.Milliseconds(),
		}
		if s.Err != nil {
			r.Error = s.Err.Error()
		}
		records = append(records, r)
	}
	return records
}

func runError(steps []StepResult) *string {
	var parts []string
	for _, s := range steps {
		if s.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: %v", s.Name, s.Err))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	msg := strings.Join(parts, "; ")
	return &msg
}

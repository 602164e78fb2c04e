package aggregate

import (
	"context"
	"log/slog"
	"time"

	"devpulse/internal/database"
)

// SprintVelocity is the derived planned-vs-delivered result for one sprint
type SprintVelocity struct {
	SprintID        int64
	Name            string
	State           string
	StartDate       string
	EndDate         string
	PlannedPoints   float64
	DeliveredPoints float64
	CompletionRate  float64
}

// Aggregator derives summary tables from the raw event log and issue
// snapshots. Every derivation is a full recompute, so re-running after
// ingestion always converges on the same result.
type Aggregator struct {
	db           *database.DB
	doneStatuses []string
	logger       *slog.Logger
}

func New(db *database.DB, doneStatuses []string, logger *slog.Logger) *Aggregator {
	return &Aggregator{db: db, doneStatuses: doneStatuses, logger: logger}
}

// Materialize rebuilds the daily summary table from the current events
func (a *Aggregator) Materialize(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	rows, err := a.db.RebuildDailySummary()
	if err != nil {
		return 0, err
	}

	a.logger.Info("Materialized daily summaries",
		"rows", rows,
		"duration_ms", time.Since(start).Milliseconds())
	return rows, nil
}

// RecomputeVelocity recalculates planned and delivered points for every
// sprint and stores the result on the sprint rows. Planned counts issues
// linked to the sprint that existed before it started; delivered counts
// linked issues in a done status whose status change landed on or before
// the sprint's end date. Sprints without date bounds report zero.
func (a *Aggregator) RecomputeVelocity(ctx context.Context) ([]SprintVelocity, error) {
	sprints, err := a.db.ListSprints()
	if err != nil {
		return nil, err
	}

	results := make([]SprintVelocity, 0, len(sprints))
	for _, sprint := range sprints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		planned, err := a.db.SprintPlannedPoints(sprint.ID, sprint.StartDate)
		if err != nil {
			return nil, err
		}
		delivered, err := a.db.SprintDeliveredPoints(sprint.ID, sprint.EndDate, a.doneStatuses)
		if err != nil {
			return nil, err
		}

		rate := 0.0
		if planned > 0 {
			rate = delivered / planned * 100
		}

		if err := a.db.UpdateSprintVelocity(sprint.ID, planned, delivered, rate); err != nil {
			return nil, err
		}

		results = append(results, SprintVelocity{
			SprintID:        sprint.ID,
			Name:            sprint.Name,
			State:           sprint.State,
			StartDate:       sprint.StartDate,
			EndDate:         sprint.EndDate,
			PlannedPoints:   planned,
			DeliveredPoints: delivered,
			CompletionRate:  rate,
		})
	}

	a.logger.Info("Recomputed sprint velocity", "sprints", len(results))
	return results, nil
}

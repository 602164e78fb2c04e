package database

import (
	"fmt"
	"time"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// ETLRun represents one refresh invocation and its per-step outcomes
type ETLRun struct {
	ID         string
	StartedAt  int64
	FinishedAt *int64
	Status     string
	Steps      string // JSON array of step summaries
	Error      *string
}

// StartRun records a new refresh invocation in the running state
func (db *DB) StartRun(id string) error {
	_, err := db.conn.Exec(`
		INSERT INTO etl_runs (id, started_at, status)
		VALUES (?, ?, ?)
	`, id, time.Now().Unix(), RunStatusRunning)

	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun records the outcome and per-step summaries of a refresh
func (db *DB) FinishRun(id, status, stepsJSON string, runError *string) error {
	result, err := db.conn.Exec(`
		UPDATE etl_runs
		SET finished_at = ?, status = ?, steps = ?, error = ?
		WHERE id = ?
	`, time.Now().Unix(), status, stepsJSON, runError, id)

	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found")
	}

	return nil
}

// ListRecentRuns returns the most recent refresh invocations, newest first
func (db *DB) ListRecentRuns(limit int) ([]*ETLRun, error) {
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, status, steps, error
		FROM etl_runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*ETLRun
	for rows.Next() {
		var r ETLRun
		err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Steps, &r.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

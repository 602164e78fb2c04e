package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Sprint states as reported by the tracker
const (
	SprintStateActive = "active"
	SprintStateClosed = "closed"
	SprintStateFuture = "future"
)

// Sprint represents an iteration window. Dates are local YYYY-MM-DD
// strings; the points columns are derived, recomputed from issues.
type Sprint struct {
	ID              int64
	ExternalID      *string
	Name            string
	State           string
	StartDate       string
	EndDate         string
	PlannedPoints   float64
	DeliveredPoints float64
	CompletionRate  float64
	UpdatedAt       int64
}

// UpsertSprint inserts a sprint or updates its state and dates, keyed by
// name. A stored external id is kept when the incoming one is nil. Fills
// in the sprint id.
func (db *DB) UpsertSprint(s *Sprint) error {
	s.UpdatedAt = time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO sprints (external_id, name, state, start_date, end_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			external_id = COALESCE(excluded.external_id, sprints.external_id),
			state = excluded.state,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			updated_at = excluded.updated_at
	`, s.ExternalID, s.Name, s.State, s.StartDate, s.EndDate, s.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert sprint: %w", err)
	}

	err = db.conn.QueryRow(`SELECT id FROM sprints WHERE name = ?`, s.Name).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to get sprint id: %w", err)
	}
	return nil
}

// FindSprintForDate returns the first sprint (by id, insertion order) whose
// inclusive [start_date, end_date] range contains the date, or nil when
// none does. First match wins for overlapping ranges.
func (db *DB) FindSprintForDate(date string) (*Sprint, error) {
	var s Sprint
	err := db.conn.QueryRow(`
		SELECT id, external_id, name, state, start_date, end_date,
		       planned_points, delivered_points, completion_rate, updated_at
		FROM sprints
		WHERE start_date <= ? AND end_date >= ?
		ORDER BY id
		LIMIT 1
	`, date, date).Scan(
		&s.ID, &s.ExternalID, &s.Name, &s.State, &s.StartDate, &s.EndDate,
		&s.PlannedPoints, &s.DeliveredPoints, &s.CompletionRate, &s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sprint for date: %w", err)
	}
	return &s, nil
}

// GetSprintByName retrieves a sprint by name
func (db *DB) GetSprintByName(name string) (*Sprint, error) {
	var s Sprint
	err := db.conn.QueryRow(`
		SELECT id, external_id, name, state, start_date, end_date,
		       planned_points, delivered_points, completion_rate, updated_at
		FROM sprints WHERE name = ?
	`, name).Scan(
		&s.ID, &s.ExternalID, &s.Name, &s.State, &s.StartDate, &s.EndDate,
		&s.PlannedPoints, &s.DeliveredPoints, &s.CompletionRate, &s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sprint: %w", err)
	}
	return &s, nil
}

// ListSprints returns all sprints ordered by start date
func (db *DB) ListSprints() ([]*Sprint, error) {
	rows, err := db.conn.Query(`
		SELECT id, external_id, name, state, start_date, end_date,
		       planned_points, delivered_points, completion_rate, updated_at
		FROM sprints
		ORDER BY start_date, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sprints: %w", err)
	}
	defer rows.Close()

	var sprints []*Sprint
	for rows.Next() {
		var s Sprint
		err := rows.Scan(
			&s.ID, &s.ExternalID, &s.Name, &s.State, &s.StartDate, &s.EndDate,
			&s.PlannedPoints, &s.DeliveredPoints, &s.CompletionRate, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sprint: %w", err)
		}
		sprints = append(sprints, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sprints: %w", err)
	}

	return sprints, nil
}

// UpdateSprintVelocity stores the recomputed planned, delivered and
// completion rate values for a sprint
func (db *DB) UpdateSprintVelocity(id int64, planned, delivered, rate float64) error {
	result, err := db.conn.Exec(`
		UPDATE sprints
		SET planned_points = ?, delivered_points = ?, completion_rate = ?, updated_at = ?
		WHERE id = ?
	`, planned, delivered, rate, time.Now().Unix(), id)

	if err != nil {
		return fmt.Errorf("failed to update sprint velocity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sprint not found")
	}

	return nil
}

// CountSprints returns the total number of sprints
func (db *DB) CountSprints() (int64, error) {
	var count int64
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM sprints`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sprints: %w", err)
	}
	return count, nil
}

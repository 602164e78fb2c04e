package database

import (
	"database/sql"
	"fmt"
	"time"
)

// EventType represents the source action an activity event records
type EventType string

const (
	EventTypeIssueCreated  EventType = "issue-created"
	EventTypeIssueUpdated  EventType = "issue-updated"
	EventTypeStatusChanged EventType = "status-changed"
	EventTypeCommit        EventType = "commit"
)

// ActivityEvent is the canonical unit of developer work from either source
type ActivityEvent struct {
	ID          int64
	DeveloperID int64
	EventType   EventType
	OccurredAt  int64
	LocalDate   string
	TimeBucket  string
	SprintID    *int64
	IssueKey    *string
	CommitHash  *string
	Metadata    string
	CreatedAt   int64
}

// InsertActivityEvent inserts an event unless the dedupe indexes already
// hold it (same commit hash, or same issue event tuple). Returns whether a
// row was inserted; a duplicate is success-no-op.
func (db *DB) InsertActivityEvent(e *ActivityEvent) (bool, error) {
	e.CreatedAt = time.Now().Unix()
	metadata := e.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	result, err := db.conn.Exec(`
		INSERT INTO activity_events (
			developer_id, event_type, occurred_at, local_date, time_bucket,
			sprint_id, issue_key, commit_hash, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, e.DeveloperID, e.EventType, e.OccurredAt, e.LocalDate, e.TimeBucket,
		e.SprintID, e.IssueKey, e.CommitHash, metadata, e.CreatedAt)

	if err != nil {
		return false, fmt.Errorf("failed to insert activity event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	e.ID, err = result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get event id: %w", err)
	}
	return true, nil
}

// GetEventByCommitHash retrieves the event ingested for a commit
func (db *DB) GetEventByCommitHash(hash string) (*ActivityEvent, error) {
	var e ActivityEvent
	err := db.conn.QueryRow(`
		SELECT id, developer_id, event_type, occurred_at, local_date, time_bucket,
		       sprint_id, issue_key, commit_hash, metadata, created_at
		FROM activity_events WHERE commit_hash = ?
	`, hash).Scan(
		&e.ID, &e.DeveloperID, &e.EventType, &e.OccurredAt, &e.LocalDate, &e.TimeBucket,
		&e.SprintID, &e.IssueKey, &e.CommitHash, &e.Metadata, &e.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event by commit hash: %w", err)
	}
	return &e, nil
}

// ListEventsForIssue returns the events recorded for an issue, oldest first
func (db *DB) ListEventsForIssue(issueKey string) ([]*ActivityEvent, error) {
	rows, err := db.conn.Query(`
		SELECT id, developer_id, event_type, occurred_at, local_date, time_bucket,
		       sprint_id, issue_key, commit_hash, metadata, created_at
		FROM activity_events
		WHERE issue_key = ?
		ORDER BY occurred_at, id
	`, issueKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for issue: %w", err)
	}
	defer rows.Close()

	var events []*ActivityEvent
	for rows.Next() {
		var e ActivityEvent
		err := rows.Scan(
			&e.ID, &e.DeveloperID, &e.EventType, &e.OccurredAt, &e.LocalDate, &e.TimeBucket,
			&e.SprintID, &e.IssueKey, &e.CommitHash, &e.Metadata, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// CountEvents returns the total number of activity events
func (db *DB) CountEvents() (int64, error) {
	var count int64
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM activity_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

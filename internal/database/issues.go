package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Issue is a simplified snapshot of a tracker issue, kept for sprint
// velocity math. Timestamps are stored raw (unix seconds) alongside their
// local-date projections.
type Issue struct {
	IssueKey          string
	Summary           string
	StatusName        string
	StoryPoints       *float64
	AssigneeID        *int64
	CreatorID         *int64
	CreatedAt         *int64
	CreatedDate       *string
	UpdatedAt         *int64
	UpdatedDate       *string
	StatusChangedAt   *int64
	StatusChangedDate *string
}

// UpsertIssue inserts or fully replaces an issue snapshot
func (db *DB) UpsertIssue(i *Issue) error {
	_, err := db.conn.Exec(`
		INSERT INTO issues (
			issue_key, summary, status_name, story_points, assignee_id, creator_id,
			created_at, created_date, updated_at, updated_date, status_changed_at, status_changed_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(issue_key) DO UPDATE SET
			summary = excluded.summary,
			status_name = excluded.status_name,
			story_points = excluded.story_points,
			assignee_id = excluded.assignee_id,
			creator_id = excluded.creator_id,
			created_at = excluded.created_at,
			created_date = excluded.created_date,
			updated_at = excluded.updated_at,
			updated_date = excluded.updated_date,
			status_changed_at = excluded.status_changed_at,
			status_changed_date = excluded.status_changed_date
	`, i.IssueKey, i.Summary, i.StatusName, i.StoryPoints, i.AssigneeID, i.CreatorID,
		i.CreatedAt, i.CreatedDate, i.UpdatedAt, i.UpdatedDate, i.StatusChangedAt, i.StatusChangedDate)

	if err != nil {
		return fmt.Errorf("failed to upsert issue: %w", err)
	}
	return nil
}

// GetIssue retrieves an issue by key
func (db *DB) GetIssue(issueKey string) (*Issue, error) {
	var i Issue
	err := db.conn.QueryRow(`
		SELECT issue_key, summary, status_name, story_points, assignee_id, creator_id,
		       created_at, created_date, updated_at, updated_date, status_changed_at, status_changed_date
		FROM issues WHERE issue_key = ?
	`, issueKey).Scan(
		&i.IssueKey, &i.Summary, &i.StatusName, &i.StoryPoints, &i.AssigneeID, &i.CreatorID,
		&i.CreatedAt, &i.CreatedDate, &i.UpdatedAt, &i.UpdatedDate, &i.StatusChangedAt, &i.StatusChangedDate,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return &i, nil
}

// LinkIssueSprint records that an issue belongs to a sprint. Existing
// links are left untouched.
func (db *DB) LinkIssueSprint(issueKey string, sprintID int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO issue_sprints (issue_key, sprint_id)
		VALUES (?, ?)
		ON CONFLICT(issue_key, sprint_id) DO NOTHING
	`, issueKey, sprintID)

	if err != nil {
		return fmt.Errorf("failed to link issue to sprint: %w", err)
	}
	return nil
}

// SprintPlannedPoints sums the story points of sprint-linked issues
// created strictly before the sprint started
func (db *DB) SprintPlannedPoints(sprintID int64, startDate string) (float64, error) {
	var points float64
	err := db.conn.QueryRow(`
		SELECT COALESCE(SUM(i.story_points), 0)
		FROM issues i
		JOIN issue_sprints link ON link.issue_key = i.issue_key
		WHERE link.sprint_id = ?
		  AND i.story_points IS NOT NULL
		  AND i.created_date IS NOT NULL
		  AND i.created_date < ?
	`, sprintID, startDate).Scan(&points)

	if err != nil {
		return 0, fmt.Errorf("failed to sum planned points: %w", err)
	}
	return points, nil
}

// SprintDeliveredPoints sums the story points of sprint-linked issues in a
// done status whose status change landed on or before the sprint end
func (db *DB) SprintDeliveredPoints(sprintID int64, endDate string, doneStatuses []string) (float64, error) {
	if len(doneStatuses) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(doneStatuses)), ", ")
	args := []any{sprintID}
	for _, status := range doneStatuses {
		args = append(args, status)
	}
	args = append(args, endDate)

	var points float64
	err := db.conn.QueryRow(fmt.Sprintf(`
		SELECT COALESCE(SUM(i.story_points), 0)
		FROM issues i
		JOIN issue_sprints link ON link.issue_key = i.issue_key
		WHERE link.sprint_id = ?
		  AND i.story_points IS NOT NULL
		  AND i.status_name IN (%s)
		  AND i.status_changed_date IS NOT NULL
		  AND i.status_changed_date <= ?
	`, placeholders), args...).Scan(&points)

	if err != nil {
		return 0, fmt.Errorf("failed to sum delivered points: %w", err)
	}
	return points, nil
}

// CountIssues returns the total number of issue snapshots
func (db *DB) CountIssues() (int64, error) {
	var count int64
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM issues`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return count, nil
}

package database

import (
	"database/sql"
	"fmt"
)

// DailySummary is one materialized row of the daily activity rollup
type DailySummary struct {
	ID           int64
	ActivityDate string
	DeveloperID  int64
	SprintID     *int64
	TimeBucket   string
	JiraCount    int64
	GitCount     int64
	TotalCount   int64
}

// DailySummaryRow is a summary row joined with developer and sprint names
// for report output
type DailySummaryRow struct {
	ActivityDate   string
	DeveloperEmail string
	DeveloperName  string
	TimeBucket     string
	SprintName     *string
	JiraCount      int64
	GitCount       int64
	TotalCount     int64
}

// RebuildDailySummary clears the rollup and re-derives it from the event
// log in one transaction, so the table always matches the events exactly.
// Returns the number of rows produced.
func (db *DB) RebuildDailySummary() (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin summary rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM daily_activity_summary`); err != nil {
		return 0, fmt.Errorf("failed to clear daily summary: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO daily_activity_summary (
			activity_date, developer_id, sprint_id, time_bucket,
			jira_count, git_count, total_count
		)
		SELECT local_date,
		       developer_id,
		       MAX(sprint_id),
		       time_bucket,
		       SUM(CASE WHEN event_type != 'commit' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN event_type = 'commit' THEN 1 ELSE 0 END),
		       COUNT(*)
		FROM activity_events
		GROUP BY local_date, developer_id, time_bucket
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild daily summary: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit summary rebuild: %w", err)
	}

	return rows, nil
}

// GetDailySummary retrieves one rollup row by its unique key
func (db *DB) GetDailySummary(activityDate string, developerID int64, timeBucket string) (*DailySummary, error) {
	var s DailySummary
	err := db.conn.QueryRow(`
		SELECT id, activity_date, developer_id, sprint_id, time_bucket,
		       jira_count, git_count, total_count
		FROM daily_activity_summary
		WHERE activity_date = ? AND developer_id = ? AND time_bucket = ?
	`, activityDate, developerID, timeBucket).Scan(
		&s.ID, &s.ActivityDate, &s.DeveloperID, &s.SprintID, &s.TimeBucket,
		&s.JiraCount, &s.GitCount, &s.TotalCount,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summary: %w", err)
	}
	return &s, nil
}

// ListDailySummaries returns the full rollup joined with developer and
// sprint names, ordered for stable report output
func (db *DB) ListDailySummaries() ([]*DailySummaryRow, error) {
	rows, err := db.conn.Query(`
		SELECT s.activity_date, d.email, d.display_name, s.time_bucket,
		       sp.name, s.jira_count, s.git_count, s.total_count
		FROM daily_activity_summary s
		JOIN developers d ON d.id = s.developer_id
		LEFT JOIN sprints sp ON sp.id = s.sprint_id
		ORDER BY s.activity_date, d.email, s.time_bucket
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*DailySummaryRow
	for rows.Next() {
		var s DailySummaryRow
		err := rows.Scan(
			&s.ActivityDate, &s.DeveloperEmail, &s.DeveloperName, &s.TimeBucket,
			&s.SprintName, &s.JiraCount, &s.GitCount, &s.TotalCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		summaries = append(summaries, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily summaries: %w", err)
	}

	return summaries, nil
}

// CountDailySummaries returns the number of materialized rollup rows
func (db *DB) CountDailySummaries() (int64, error) {
	var count int64
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM daily_activity_summary`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count daily summaries: %w", err)
	}
	return count, nil
}

package database

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order at Open. PRAGMA user_version records how
// many have run, so component code can assume the full schema exists and
// never probes for columns or tables.
var migrations = []string{
	schemaCore,
	schemaRuns,
	schemaEventIndexes,
}

const schemaCore = `
-- Developers table: canonical identities resolved from raw emails.
-- email always holds the normalizer's output.
CREATE TABLE developers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    external_account_id TEXT,
    active BOOLEAN NOT NULL DEFAULT 1,
    first_seen INTEGER NOT NULL,
    last_seen INTEGER NOT NULL
);

-- Aliases table: raw spellings known to map to a developer. An alias can
-- never point at two developers.
CREATE TABLE developer_email_aliases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    developer_id INTEGER NOT NULL,
    alias_email TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (developer_id) REFERENCES developers(id) ON DELETE CASCADE
);

-- Sprints table: iteration windows with local calendar date bounds.
-- The points columns are derived only, recomputed from issues.
CREATE TABLE sprints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT UNIQUE,
    name TEXT NOT NULL UNIQUE,
    state TEXT NOT NULL DEFAULT 'future',
    start_date TEXT NOT NULL,  -- YYYY-MM-DD
    end_date TEXT NOT NULL,    -- YYYY-MM-DD
    planned_points REAL NOT NULL DEFAULT 0,
    delivered_points REAL NOT NULL DEFAULT 0,
    completion_rate REAL NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL,
    CHECK (start_date <= end_date)
);

-- Issues table: snapshot used for sprint velocity math, raw timestamps
-- plus local-date projections
CREATE TABLE issues (
    issue_key TEXT PRIMARY KEY,
    summary TEXT NOT NULL DEFAULT '',
    status_name TEXT NOT NULL DEFAULT '',
    story_points REAL,
    assignee_id INTEGER REFERENCES developers(id),
    creator_id INTEGER REFERENCES developers(id),
    created_at INTEGER,
    created_date TEXT,
    updated_at INTEGER,
    updated_date TEXT,
    status_changed_at INTEGER,
    status_changed_date TEXT
);

-- Issue to sprint links
CREATE TABLE issue_sprints (
    issue_key TEXT NOT NULL,
    sprint_id INTEGER NOT NULL,
    PRIMARY KEY (issue_key, sprint_id),
    FOREIGN KEY (issue_key) REFERENCES issues(issue_key) ON DELETE CASCADE,
    FOREIGN KEY (sprint_id) REFERENCES sprints(id) ON DELETE CASCADE
);

-- Activity events: the canonical event log both sources feed
CREATE TABLE activity_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    developer_id INTEGER NOT NULL,
    event_type TEXT NOT NULL,  -- issue-created, issue-updated, status-changed, commit
    occurred_at INTEGER NOT NULL,
    local_date TEXT NOT NULL,  -- YYYY-MM-DD in the configured timezone
    time_bucket TEXT NOT NULL,
    sprint_id INTEGER,
    issue_key TEXT,
    commit_hash TEXT,
    metadata TEXT NOT NULL DEFAULT '{}',  -- JSON payload
    created_at INTEGER NOT NULL,
    FOREIGN KEY (developer_id) REFERENCES developers(id),
    FOREIGN KEY (sprint_id) REFERENCES sprints(id)
);

-- Daily activity summary: derived only, rebuilt wholesale by the aggregator
CREATE TABLE daily_activity_summary (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    activity_date TEXT NOT NULL,
    developer_id INTEGER NOT NULL,
    sprint_id INTEGER,
    time_bucket TEXT NOT NULL,
    jira_count INTEGER NOT NULL DEFAULT 0,
    git_count INTEGER NOT NULL DEFAULT 0,
    total_count INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (developer_id) REFERENCES developers(id),
    FOREIGN KEY (sprint_id) REFERENCES sprints(id)
);

-- Indexes
CREATE INDEX idx_aliases_developer_id ON developer_email_aliases(developer_id);
CREATE INDEX idx_sprints_dates ON sprints(start_date, end_date);
CREATE INDEX idx_events_local_date ON activity_events(local_date);

-- Exactly-once commit ingestion
CREATE UNIQUE INDEX idx_events_commit_hash ON activity_events(commit_hash) WHERE commit_hash IS NOT NULL;

-- Idempotent re-ingestion of issue-derived events
CREATE UNIQUE INDEX idx_events_issue_dedupe ON activity_events(event_type, issue_key, developer_id, occurred_at) WHERE issue_key IS NOT NULL;

-- One summary row per date, developer and bucket
CREATE UNIQUE INDEX idx_summary_unique ON daily_activity_summary(activity_date, developer_id, time_bucket);
`

const schemaRuns = `
-- ETL runs: one row per refresh invocation with per-step outcomes
CREATE TABLE etl_runs (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    status TEXT NOT NULL DEFAULT 'running',
    steps TEXT NOT NULL DEFAULT '[]',  -- JSON array of step summaries
    error TEXT
);

CREATE INDEX idx_etl_runs_started_at ON etl_runs(started_at DESC);
`

const schemaEventIndexes = `
-- Covering index for the summary rebuild and per-developer report queries
CREATE INDEX idx_events_developer_date ON activity_events(developer_id, local_date);
`

// migrate applies the pending tail of migrations inside transactions
func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this binary supports", version)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
	}

	return nil
}

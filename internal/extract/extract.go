package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"devpulse/internal/database"
	"devpulse/internal/gitlog"
	"devpulse/internal/identity"
	"devpulse/internal/jira"
	"devpulse/internal/metrics"
)

// Stats summarizes one ingestion pass
type Stats struct {
	Processed int
	Skipped   int
	NewEvents int
}

// Extractor turns raw source records into canonical activity events. A bad
// record is skipped with a warning; only infrastructure failures (database,
// marshalling) abort a pass.
type Extractor struct {
	db       *database.DB
	registry *identity.Registry
	loc      *time.Location
	logger   *slog.Logger
}

func New(db *database.DB, registry *identity.Registry, loc *time.Location, logger *slog.Logger) *Extractor {
	return &Extractor{db: db, registry: registry, loc: loc, logger: logger}
}

// SyncSprints upserts the sprint catalog fetched from the Agile boards
func (e *Extractor) SyncSprints(ctx context.Context, sprints []jira.Sprint) (Stats, error) {
	var stats Stats
	for _, s := range sprints {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		id, err := e.upsertSprint(s)
		if err != nil {
			return stats, err
		}
		stats.Processed++
		if id == 0 {
			stats.Skipped++
		}
	}
	return stats, nil
}

// IngestIssues records identities, issue snapshots, sprint links and
// issue-derived activity events for a batch of issues
func (e *Extractor) IngestIssues(ctx context.Context, issues []jira.Issue) (Stats, error) {
	var stats Stats
	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := e.ingestIssue(issue, &stats); err != nil {
			return stats, err
		}
		stats.Processed++
	}
	return stats, nil
}

func (e *Extractor) ingestIssue(issue jira.Issue, stats *Stats) error {
	fields := issue.Fields

	var creatorEmail, assigneeEmail string
	if fields.Creator != nil {
		email, err := e.registry.UpsertAccount(fields.Creator.EmailAddress, fields.Creator.DisplayName, fields.Creator.AccountID)
		if err != nil {
			return err
		}
		creatorEmail = email
	}
	if fields.Assignee != nil {
		email, err := e.registry.UpsertAccount(fields.Assignee.EmailAddress, fields.Assignee.DisplayName, fields.Assignee.AccountID)
		if err != nil {
			return err
		}
		assigneeEmail = email
	}

	created, createdOK := e.parseTime(issue.Key, "created", fields.Created, stats)
	updated, updatedOK := e.parseTime(issue.Key, "updated", fields.Updated, stats)
	statusChanged, statusChangedOK := e.parseTime(issue.Key, "statuscategorychangedate", fields.StatusCategoryChangeDate, stats)

	statusName := ""
	if fields.Status != nil {
		statusName = fields.Status.Name
	}

	snapshot := &database.Issue{
		IssueKey:    issue.Key,
		Summary:     fields.Summary,
		StatusName:  statusName,
		StoryPoints: fields.StoryPoints,
	}
	if creatorEmail != "" {
		id, err := e.registry.Resolve(creatorEmail)
		if err != nil {
			return err
		}
		if id != 0 {
			snapshot.CreatorID = &id
		}
	}
	if assigneeEmail != "" {
		id, err := e.registry.Resolve(assigneeEmail)
		if err != nil {
			return err
		}
		if id != 0 {
			snapshot.AssigneeID = &id
		}
	}
	if createdOK {
		ts, date := created.Unix(), LocalDate(created, e.loc)
		snapshot.CreatedAt, snapshot.CreatedDate = &ts, &date
	}
	if updatedOK {
		ts, date := updated.Unix(), LocalDate(updated, e.loc)
		snapshot.UpdatedAt, snapshot.UpdatedDate = &ts, &date
	}
	if statusChangedOK {
		ts, date := statusChanged.Unix(), LocalDate(statusChanged, e.loc)
		snapshot.StatusChangedAt, snapshot.StatusChangedDate = &ts, &date
	}

	if err := e.db.UpsertIssue(snapshot); err != nil {
		return err
	}

	// The sprint field lists entries oldest first; the last one is the
	// sprint the issue currently belongs to.
	var issueSprintID *int64
	for _, s := range fields.Sprints {
		sprintID, err := e.upsertSprint(s)
		if err != nil {
			return err
		}
		if sprintID == 0 {
			continue
		}
		if err := e.db.LinkIssueSprint(issue.Key, sprintID); err != nil {
			return err
		}
		id := sprintID
		issueSprintID = &id
	}

	metadata, err := json.Marshal(map[string]any{
		"issue_key":    issue.Key,
		"summary":      fields.Summary,
		"status":       statusName,
		"story_points": fields.StoryPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal issue metadata: %w", err)
	}

	if creatorEmail != "" && createdOK {
		if err := e.emitIssueEvent(database.EventTypeIssueCreated, issue.Key, creatorEmail, created, issueSprintID, string(metadata), stats); err != nil {
			return err
		}
	}
	if assigneeEmail != "" && updatedOK && (!createdOK || !updated.Equal(created)) {
		if err := e.emitIssueEvent(database.EventTypeIssueUpdated, issue.Key, assigneeEmail, updated, issueSprintID, string(metadata), stats); err != nil {
			return err
		}
	}
	if assigneeEmail != "" && statusChangedOK {
		if err := e.emitIssueEvent(database.EventTypeStatusChanged, issue.Key, assigneeEmail, statusChanged, issueSprintID, string(metadata), stats); err != nil {
			return err
		}
	}

	return nil
}

// IngestCommits records one commit event per resolvable commit. Authors
// that resolve to no known developer are skipped, never auto-registered.
func (e *Extractor) IngestCommits(ctx context.Context, commits []gitlog.Commit) (Stats, error) {
	var stats Stats
	for _, commit := range commits {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++

		developerID, err := e.registry.Resolve(commit.AuthorEmail)
		if err != nil {
			return stats, err
		}
		if developerID == 0 {
			stats.Skipped++
			metrics.RecordsSkippedTotal.WithLabelValues(metrics.SourceGit, metrics.SkipUnresolvedDeveloper).Inc()
			e.logger.Warn("Skipping commit by unknown author", "hash", commit.Hash, "email", commit.AuthorEmail)
			continue
		}

		localDate := LocalDate(commit.Timestamp, e.loc)
		sprintID, err := e.sprintForDate(localDate)
		if err != nil {
			return stats, err
		}

		metadata, err := json.Marshal(map[string]any{
			"author":  commit.AuthorName,
			"message": firstLine(commit.Message, 200),
		})
		if err != nil {
			return stats, fmt.Errorf("failed to marshal commit metadata: %w", err)
		}

		hash := commit.Hash
		event := &database.ActivityEvent{
			DeveloperID: developerID,
			EventType:   database.EventTypeCommit,
			OccurredAt:  commit.Timestamp.Unix(),
			LocalDate:   localDate,
			TimeBucket:  TimeBucket(commit.Timestamp, e.loc),
			SprintID:    sprintID,
			CommitHash:  &hash,
			Metadata:    string(metadata),
		}
		inserted, err := e.db.InsertActivityEvent(event)
		if err != nil {
			return stats, err
		}
		if inserted {
			stats.NewEvents++
			metrics.EventsIngestedTotal.WithLabelValues(metrics.SourceGit).Inc()
		}
	}
	return stats, nil
}

// emitIssueEvent inserts one issue-derived event, attributing it to the
// issue's own sprint when known and to the sprint covering the local date
// otherwise. Duplicates from re-ingestion are silently converged.
func (e *Extractor) emitIssueEvent(eventType database.EventType, issueKey, email string, ts time.Time, issueSprintID *int64, metadata string, stats *Stats) error {
	developerID, err := e.registry.Resolve(email)
	if err != nil {
		return err
	}
	if developerID == 0 {
		stats.Skipped++
		metrics.RecordsSkippedTotal.WithLabelValues(metrics.SourceJira, metrics.SkipUnresolvedDeveloper).Inc()
		e.logger.Warn("Skipping event for unresolved developer", "issue", issueKey, "type", eventType)
		return nil
	}

	localDate := LocalDate(ts, e.loc)
	sprintID := issueSprintID
	if sprintID == nil {
		sprintID, err = e.sprintForDate(localDate)
		if err != nil {
			return err
		}
	}

	event := &database.ActivityEvent{
		DeveloperID: developerID,
		EventType:   eventType,
		OccurredAt:  ts.Unix(),
		LocalDate:   localDate,
		TimeBucket:  TimeBucket(ts, e.loc),
		SprintID:    sprintID,
		IssueKey:    &issueKey,
		Metadata:    metadata,
	}
	inserted, err := e.db.InsertActivityEvent(event)
	if err != nil {
		return err
	}
	if inserted {
		stats.NewEvents++
		metrics.EventsIngestedTotal.WithLabelValues(metrics.SourceJira).Inc()
	}
	return nil
}

func (e *Extractor) sprintForDate(localDate string) (*int64, error) {
	sprint, err := e.db.FindSprintForDate(localDate)
	if err != nil || sprint == nil {
		return nil, err
	}
	return &sprint.ID, nil
}

// upsertSprint converts a tracker sprint into a catalog row. Date bounds
// are stored only when both parse; a half-dated sprint would break the
// start<=end invariant and can never match a containment query anyway.
func (e *Extractor) upsertSprint(s jira.Sprint) (int64, error) {
	if s.Name == "" {
		e.logger.Warn("Skipping unnamed sprint", "external_id", s.ID)
		return 0, nil
	}

	sprint := &database.Sprint{
		Name:  s.Name,
		State: strings.ToLower(s.State),
	}
	if sprint.State == "" {
		sprint.State = database.SprintStateFuture
	}
	if s.ID != 0 {
		ext := strconv.FormatInt(s.ID, 10)
		sprint.ExternalID = &ext
	}

	start, startErr := jira.ParseTime(s.StartDate)
	end, endErr := jira.ParseTime(s.EndDate)
	if s.StartDate != "" && s.EndDate != "" && startErr == nil && endErr == nil {
		sprint.StartDate = LocalDate(start, e.loc)
		sprint.EndDate = LocalDate(end, e.loc)
	} else if s.StartDate != "" || s.EndDate != "" {
		e.logger.Warn("Storing sprint without dates", "sprint", s.Name)
	}

	if err := e.db.UpsertSprint(sprint); err != nil {
		return 0, err
	}
	return sprint.ID, nil
}

// parseTime parses a Jira timestamp field. An absent value is not an
// error; a present but unparseable one skips whatever event depended on it.
func (e *Extractor) parseTime(issueKey, field, value string, stats *Stats) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	ts, err := jira.ParseTime(value)
	if err != nil {
		stats.Skipped++
		metrics.RecordsSkippedTotal.WithLabelValues(metrics.SourceJira, metrics.SkipBadTimestamp).Inc()
		e.logger.Warn("Skipping unparseable timestamp", "issue", issueKey, "field", field, "value", value)
		return time.Time{}, false
	}
	return ts, true
}

func firstLine(s string, maxRunes int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	runes := []rune(s)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return s
}

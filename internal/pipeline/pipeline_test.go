package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devpulse/internal/aggregate"
	"devpulse/internal/config"
	"devpulse/internal/database"
	"devpulse/internal/extract"
	"devpulse/internal/gitlog"
	"devpulse/internal/identity"
	"devpulse/internal/jira"
)

type fakeTracker struct {
	sprints    []jira.Sprint
	issues     []jira.Issue
	sprintsErr error
	issuesErr  error
	boardCalls []int
	searchJQLs []string
}

func (f *fakeTracker) SearchIssues(ctx context.Context, jql string) ([]jira.Issue, error) {
	f.searchJQLs = append(f.searchJQLs, jql)
	return f.issues, f.issuesErr
}

func (f *fakeTracker) BoardSprints(ctx context.Context, boardID int) ([]jira.Sprint, error) {
	f.boardCalls = append(f.boardCalls, boardID)
	return f.sprints, f.sprintsErr
}

type fakeCommits struct {
	commits []gitlog.Commit
	err     error
	calls   int
}

func (f *fakeCommits) Commits(ctx context.Context) ([]gitlog.Commit, error) {
	f.calls++
	return f.commits, f.err
}

func testPipeline(t *testing.T, cfg *config.Config, tracker TrackerClient, commits CommitSource) (*Pipeline, *database.DB) {
	t.Helper()
	db, err := database.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	norm := identity.NewNormalizer(map[string]string{"telusinternational.com": "telus.com"})
	registry := identity.NewRegistry(db, norm, nil)
	extractor := extract.New(db, registry, time.UTC, logger)
	aggregator := aggregate.New(db, []string{"Done", "Closed"}, logger)
	return New(cfg, db, tracker, commits, extractor, aggregator, logger), db
}

func TestRefreshFullRun(t *testing.T) {
	points := 5.0
	tracker := &fakeTracker{
		sprints: []jira.Sprint{{
			ID: 7, Name: "Sprint-1", State: "active",
			StartDate: "2025-03-01T00:00:00.000Z",
			EndDate:   "2025-03-14T23:59:59.000Z",
		}},
		issues: []jira.Issue{{
			Key: "CORE-1",
			Fields: jira.IssueFields{
				Summary:     "Wire the feed",
				Status:      &jira.Status{Name: "In Progress"},
				Creator:     &jira.User{EmailAddress: "carlos@telus.com", DisplayName: "Carlos"},
				Created:     "2025-03-03T09:15:00.000+0000",
				StoryPoints: &points,
			},
		}},
	}
	commits := &fakeCommits{
		commits: []gitlog.Commit{{
			Hash:        "abc123",
			AuthorName:  "Carlos",
			AuthorEmail: "carlos@telus.com",
			Timestamp:   time.Date(2025, 3, 3, 9, 20, 0, 0, time.UTC),
			Message:     "feat: wire the feed",
		}},
	}
	cfg := &config.Config{
		JiraBaseURL:  "https://jira.example.com",
		JiraBoardIDs: []int{1, 2},
		GitRepoPath:  "/some/repo",
		Location:     time.UTC,
	}
	p, db := testPipeline(t, cfg, tracker, commits)

	summary, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, database.RunStatusSucceeded, summary.Status)
	assert.Equal(t, 0, summary.FailedSteps())
	require.Len(t, summary.Steps, 5)

	names := make([]string, 0, len(summary.Steps))
	for _, step := range summary.Steps {
		names = append(names, step.Name)
		assert.Equal(t, StepStatusOK, step.Status, step.Name)
	}
	assert.Equal(t, []string{"sync-sprints", "sync-issues", "sync-commits", "materialize", "velocity"}, names)

	// Each configured board is asked for its sprints
	assert.Equal(t, []int{1, 2}, tracker.boardCalls)
	assert.Len(t, tracker.searchJQLs, 1)
	assert.Equal(t, 1, commits.calls)

	assert.Equal(t, 1, summary.Steps[1].NewEvents)
	assert.Equal(t, 1, summary.Steps[2].NewEvents)
	assert.Equal(t, 1, summary.Steps[3].Processed)
	assert.Equal(t, 1, summary.Steps[4].Processed)

	runs, err := db.ListRecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)
	assert.Equal(t, database.RunStatusSucceeded, runs[0].Status)
	require.NotNil(t, runs[0].FinishedAt)
	assert.Nil(t, runs[0].Error)
	assert.Contains(t, runs[0].Steps, "sync-issues")
}

func TestRefreshUnconfiguredSourcesAreSkipped(t *testing.T) {
	cfg := &config.Config{Location: time.UTC}
	p, db := testPipeline(t, cfg, nil, nil)

	summary, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, database.RunStatusSucceeded, summary.Status)
	require.Len(t, summary.Steps, 5)

	assert.Equal(t, StepStatusSkipped, summary.Steps[0].Status)
	assert.Equal(t, StepStatusSkipped, summary.Steps[1].Status)
	assert.Equal(t, StepStatusSkipped, summary.Steps[2].Status)
	assert.Equal(t, StepStatusOK, summary.Steps[3].Status)
	assert.Equal(t, StepStatusOK, summary.Steps[4].Status)

	runs, err := db.ListRecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, database.RunStatusSucceeded, runs[0].Status)
}

func TestRefreshFailingStepMarksRunPartial(t *testing.T) {
	tracker := &fakeTracker{
		sprints: []jira.Sprint{{
			ID: 7, Name: "Sprint-1", State: "active",
			StartDate: "2025-03-01T00:00:00.000Z",
			EndDate:   "2025-03-14T23:59:59.000Z",
		}},
		issuesErr: errors.New("server error (502)"),
	}
	cfg := &config.Config{
		JiraBaseURL:  "https://jira.example.com",
		JiraBoardIDs: []int{1},
		Location:     time.UTC,
	}
	p, db := testPipeline(t, cfg, tracker, nil)

	summary, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, database.RunStatusPartial, summary.Status)
	assert.Equal(t, 1, summary.FailedSteps())

	assert.Equal(t, StepStatusOK, summary.Steps[0].Status)
	assert.Equal(t, StepStatusFailed, summary.Steps[1].Status)
	require.Error(t, summary.Steps[1].Err)
	assert.Equal(t, StepStatusSkipped, summary.Steps[2].Status)

	// The failure does not undo what sync-sprints persisted
	sprint, err := db.GetSprintByName("Sprint-1")
	require.NoError(t, err)
	assert.NotNil(t, sprint)

	runs, err := db.ListRecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, database.RunStatusPartial, runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "sync-issues")

	records, err := DecodeSteps(runs[0].Steps)
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, StepStatusFailed, records[1].Status)
	assert.Contains(t, records[1].Error, "502")
}

func TestRunStatus(t *testing.T) {
	ok := StepResult{Status: StepStatusOK}
	failed := StepResult{Status: StepStatusFailed}
	skipped := StepResult{Status: StepStatusSkipped}

	assert.Equal(t, database.RunStatusSucceeded, runStatus([]StepResult{ok, skipped, ok}))
	assert.Equal(t, database.RunStatusPartial, runStatus([]StepResult{ok, failed}))
	assert.Equal(t, database.RunStatusFailed, runStatus([]StepResult{failed, failed}))
	assert.Equal(t, database.RunStatusFailed, runStatus([]StepResult{skipped, failed}))
}

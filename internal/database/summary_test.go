package database

import (
	"testing"
)

func TestRebuildDailySummary(t *testing.T) {
	db := testDB(t)
	carlosID := seedDeveloper(t, db, "carlos.carias@telus.com")
	janeID := seedDeveloper(t, db, "jane@telus.com")

	sprint := &Sprint{Name: "Sprint-1", State: SprintStateActive, StartDate: "2025-03-01", EndDate: "2025-03-14"}
	if err := db.UpsertSprint(sprint); err != nil {
		t.Fatalf("Failed to upsert sprint: %v", err)
	}

	seed := []*ActivityEvent{
		{DeveloperID: carlosID, EventType: EventTypeIssueCreated, OccurredAt: 1741000100,
			LocalDate: "2025-03-03", TimeBucket: "8am-10am", SprintID: &sprint.ID, IssueKey: strPtr("CORE-1")},
		{DeveloperID: carlosID, EventType: EventTypeStatusChanged, OccurredAt: 1741000200,
			LocalDate: "2025-03-03", TimeBucket: "8am-10am", SprintID: &sprint.ID, IssueKey: strPtr("CORE-1")},
		{DeveloperID: carlosID, EventType: EventTypeCommit, OccurredAt: 1741000300,
			LocalDate: "2025-03-03", TimeBucket: "8am-10am", SprintID: &sprint.ID, CommitHash: strPtr("aaa111")},
		{DeveloperID: carlosID, EventType: EventTypeCommit, OccurredAt: 1741022000,
			LocalDate: "2025-03-03", TimeBucket: "2pm-4pm", CommitHash: strPtr("bbb222")},
		{DeveloperID: janeID, EventType: EventTypeIssueUpdated, OccurredAt: 1741000400,
			LocalDate: "2025-03-03", TimeBucket: "8am-10am", IssueKey: strPtr("CORE-2")},
	}
	for _, event := range seed {
		if _, err := db.InsertActivityEvent(event); err != nil {
			t.Fatalf("Failed to insert event: %v", err)
		}
	}

	rows, err := db.RebuildDailySummary()
	if err != nil {
		t.Fatalf("Failed to rebuild summary: %v", err)
	}
	if rows != 3 {
		t.Errorf("Expected 3 summary rows, got %d", rows)
	}

	t.Run("CountsPerBucket", func(t *testing.T) {
		summary, err := db.GetDailySummary("2025-03-03", carlosID, "8am-10am")
		if err != nil {
			t.Fatalf("Failed to get summary: %v", err)
		}
		if summary == nil {
			t.Fatal("Expected summary row to exist")
		}
		if summary.JiraCount != 2 {
			t.Errorf("Expected 2 jira activities, got %d", summary.JiraCount)
		}
		if summary.GitCount != 1 {
			t.Errorf("Expected 1 git commit, got %d", summary.GitCount)
		}
		if summary.TotalCount != 3 {
			t.Errorf("Expected 3 total activities, got %d", summary.TotalCount)
		}
		if summary.SprintID == nil || *summary.SprintID != sprint.ID {
			t.Errorf("Expected sprint ID %d, got %v", sprint.ID, summary.SprintID)
		}

		summary, err = db.GetDailySummary("2025-03-03", carlosID, "2pm-4pm")
		if err != nil {
			t.Fatalf("Failed to get summary: %v", err)
		}
		if summary == nil {
			t.Fatal("Expected summary row to exist")
		}
		if summary.JiraCount != 0 || summary.GitCount != 1 {
			t.Errorf("Expected commit-only bucket, got jira=%d git=%d", summary.JiraCount, summary.GitCount)
		}
		if summary.SprintID != nil {
			t.Errorf("Expected no sprint for unattributed bucket, got %v", summary.SprintID)
		}
	})

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		summary, err := db.GetDailySummary("2025-03-04", carlosID, "8am-10am")
		if err != nil {
			t.Fatalf("Expected no error for missing summary, got: %v", err)
		}
		if summary != nil {
			t.Errorf("Expected nil for missing summary, got %+v", summary)
		}
	})

	t.Run("RebuildIsIdempotent", func(t *testing.T) {
		rows, err := db.RebuildDailySummary()
		if err != nil {
			t.Fatalf("Failed to rebuild summary again: %v", err)
		}
		if rows != 3 {
			t.Errorf("Expected 3 summary rows after rebuild, got %d", rows)
		}

		var count int
		if err := db.conn.QueryRow("SELECT COUNT(*) FROM daily_activity_summary").Scan(&count); err != nil {
			t.Fatalf("Failed to count summary rows: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3 summary rows in table, got %d", count)
		}
	})

	t.Run("RebuildPicksUpNewEvents", func(t *testing.T) {
		event := &ActivityEvent{DeveloperID: janeID, EventType: EventTypeCommit, OccurredAt: 1741100000,
			LocalDate: "2025-03-04", TimeBucket: "10am-12pm", CommitHash: strPtr("ccc333")}
		if _, err := db.InsertActivityEvent(event); err != nil {
			t.Fatalf("Failed to insert event: %v", err)
		}

		rows, err := db.RebuildDailySummary()
		if err != nil {
			t.Fatalf("Failed to rebuild summary: %v", err)
		}
		if rows != 4 {
			t.Errorf("Expected 4 summary rows, got %d", rows)
		}
	})

	t.Run("ListJoinsNames", func(t *testing.T) {
		listed, err := db.ListDailySummaries()
		if err != nil {
			t.Fatalf("Failed to list summaries: %v", err)
		}
		if len(listed) != 4 {
			t.Fatalf("Expected 4 summary rows, got %d", len(listed))
		}
		// Ordered by date, email, bucket; "2pm-4pm" sorts before "8am-10am"
		first := listed[0]
		if first.DeveloperEmail != "carlos.carias@telus.com" || first.TimeBucket != "2pm-4pm" {
			t.Errorf("Unexpected first row: %s %s", first.DeveloperEmail, first.TimeBucket)
		}
		if first.SprintName != nil {
			t.Errorf("Expected no sprint name on first row, got %v", *first.SprintName)
		}
		second := listed[1]
		if second.SprintName == nil || *second.SprintName != "Sprint-1" {
			t.Errorf("Expected sprint name Sprint-1, got %v", second.SprintName)
		}
		last := listed[len(listed)-1]
		if last.ActivityDate != "2025-03-04" || last.DeveloperEmail != "jane@telus.com" {
			t.Errorf("Unexpected last row: %s %s", last.ActivityDate, last.DeveloperEmail)
		}
	})
}

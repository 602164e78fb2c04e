package metrics

import (
	"log/slog"
)

// DB interface for table row counts
type DB interface {
	CountDevelopers() (int64, error)
	CountSprints() (int64, error)
	CountIssues() (int64, error)
	CountEvents() (int64, error)
	CountDailySummaries() (int64, error)
}

// CollectTableCounts refreshes the per-table row count gauges. The process
// is batch, so this runs once at the end of a refresh rather than on a
// ticker.
func CollectTableCounts(db DB, logger *slog.Logger) {
	counts := []struct {
		table string
		query func() (int64, error)
	}{
		{TableDevelopers, db.CountDevelopers},
		{TableSprints, db.CountSprints},
		{TableIssues, db.CountIssues},
		{TableEvents, db.CountEvents},
		{TableDailySummary, db.CountDailySummaries},
	}

	for _, c := range counts {
		n, err := c.query()
		if err != nil {
			logger.Error("Failed to count table rows", "table", c.table, "error", err)
			continue
		}
		TableRows.WithLabelValues(c.table).Set(float64(n))
	}
}

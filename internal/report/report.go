package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"devpulse/internal/database"
)

// document is the envelope every report file shares
type document struct {
	GeneratedAt string `json:"generated_at"`
	Items       any    `json:"items"`
}

type dailySummaryItem struct {
	Date           string  `json:"date"`
	DeveloperEmail string  `json:"developer_email"`
	DeveloperName  string  `json:"developer_name"`
	TimeBucket     string  `json:"time_bucket"`
	Sprint         *string `json:"sprint,omitempty"`
	JiraCount      int64   `json:"jira_count"`
	GitCount       int64   `json:"git_count"`
	TotalCount     int64   `json:"total_count"`
}

type sprintVelocityItem struct {
	Name            string  `json:"name"`
	State           string  `json:"state"`
	StartDate       string  `json:"start_date,omitempty"`
	EndDate         string  `json:"end_date,omitempty"`
	PlannedPoints   float64 `json:"planned_points"`
	DeliveredPoints float64 `json:"delivered_points"`
	CompletionRate  float64 `json:"completion_rate"`
}

type developerItem struct {
	Email             string   `json:"email"`
	DisplayName       string   `json:"display_name"`
	ExternalAccountID *string  `json:"external_account_id,omitempty"`
	Active            bool     `json:"active"`
	FirstSeen         string   `json:"first_seen"`
	LastSeen          string   `json:"last_seen"`
	Aliases           []string `json:"aliases"`
}

// Generator serializes the aggregated tables into JSON documents for the
// dashboard to consume
type Generator struct {
	db     *database.DB
	outDir string
	logger *slog.Logger
}

func New(db *database.DB, outDir string, logger *slog.Logger) *Generator {
	return &Generator{db: db, outDir: outDir, logger: logger}
}

// WriteAll generates every report document and returns the paths written
func (g *Generator) WriteAll(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	var written []string

	path, err := g.writeDailySummary()
	if err != nil {
		return written, err
	}
	written = append(written, path)

	path, err = g.writeSprintVelocity()
	if err != nil {
		return written, err
	}
	written = append(written, path)

	path, err = g.writeDevelopers()
	if err != nil {
		return written, err
	}
	written = append(written, path)

	return written, nil
}

func (g *Generator) writeDailySummary() (string, error) {
	rows, err := g.db.ListDailySummaries()
	if err != nil {
		return "", err
	}

	items := make([]dailySummaryItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dailySummaryItem{
			Date:           row.ActivityDate,
			DeveloperEmail: row.DeveloperEmail,
			DeveloperName:  row.DeveloperName,
			TimeBucket:     row.TimeBucket,
			Sprint:         row.SprintName,
			JiraCount:      row.JiraCount,
			GitCount:       row.GitCount,
			TotalCount:     row.TotalCount,
		})
	}
	return g.write("daily_summary.json", items)
}

func (g *Generator) writeSprintVelocity() (string, error) {
	sprints, err := g.db.ListSprints()
	if err != nil {
		return "", err
	}

	items := make([]sprintVelocityItem, 0, len(sprints))
	for _, s := range sprints {
		items = append(items, sprintVelocityItem{
			Name:            s.Name,
			State:           s.State,
			StartDate:       s.StartDate,
			EndDate:         s.EndDate,
			PlannedPoints:   s.PlannedPoints,
			DeliveredPoints: s.DeliveredPoints,
			CompletionRate:  s.CompletionRate,
		})
	}
	return g.write("sprint_velocity.json", items)
}

func (g *Generator) writeDevelopers() (string, error) {
	developers, err := g.db.ListDevelopers()
	if err != nil {
		return "", err
	}

	items := make([]developerItem, 0, len(developers))
	for _, d := range developers {
		aliases, err := g.db.ListAliases(d.ID)
		if err != nil {
			return "", err
		}
		if aliases == nil {
			aliases = []string{}
		}
		items = append(items, developerItem{
			Email:             d.Email,
			DisplayName:       d.DisplayName,
			ExternalAccountID: d.ExternalAccountID,
			Active:            d.Active,
			FirstSeen:         time.Unix(d.FirstSeen, 0).UTC().Format(time.RFC3339),
			LastSeen:          time.Unix(d.LastSeen, 0).UTC().Format(time.RFC3339),
			Aliases:           aliases,
		})
	}
	return g.write("developers.json", items)
}

func (g *Generator) write(name string, items any) (string, error) {
	doc := document{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Items:       items,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(g.outDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	g.logger.Info("Wrote report", "path", path)
	return path, nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"devpulse/internal/aggregate"
	"devpulse/internal/config"
	"devpulse/internal/database"
	"devpulse/internal/extract"
	"devpulse/internal/gitlog"
	"devpulse/internal/identity"
	"devpulse/internal/jira"
	"devpulse/internal/metrics"
	"devpulse/internal/pipeline"
	"devpulse/internal/report"
)

func main() {
	app := &cli.App{
		Name:  "devpulse",
		Usage: "pull Jira and git activity into sprint and daily summaries",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "load environment variables from `FILE`",
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("env-file"); path != "" {
				if err := godotenv.Load(path); err != nil {
					return fmt.Errorf("failed to load env file %s: %w", path, err)
				}
				return nil
			}
			// A local .env is optional
			godotenv.Load()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "refresh",
				Usage:  "sync sources, rebuild summaries and recompute velocity",
				Action: runRefresh,
			},
			{
				Name:   "report",
				Usage:  "write the JSON report documents",
				Action: runReport,
			},
			{
				Name:   "status",
				Usage:  "show recent runs and table counts",
				Action: runStatus,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending schema migrations",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the environment configuration and installs the logger.
// Logs go to stderr so stdout stays clean for command output.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return cfg, logger, nil
}

func runRefresh(c *cli.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	normalizer := identity.NewNormalizer(cfg.EmailDomainAliases)
	registry := identity.NewRegistry(db, normalizer, cfg.TeamEmails)
	extractor := extract.New(db, registry, cfg.Location, logger)
	aggregator := aggregate.New(db, cfg.DoneStatuses, logger)

	var tracker pipeline.TrackerClient
	if cfg.JiraEnabled() {
		tracker = jira.NewClient(jira.Config{
			BaseURL:          cfg.JiraBaseURL,
			Email:            cfg.JiraEmail,
			Token:            cfg.JiraToken,
			APIVersion:       cfg.JiraAPIVersion,
			StoryPointsField: cfg.JiraStoryPointsField,
			SprintField:      cfg.JiraSprintField,
			MaxResults:       cfg.JiraMaxResults,
		}, logger)
	}
	var commits pipeline.CommitSource
	if cfg.GitEnabled() {
		commits = gitlog.NewReader(cfg.GitRepoPath, cfg.GitBranch, cfg.GitSince, logger)
	}

	p := pipeline.New(cfg, db, tracker, commits, extractor, aggregator, logger)
	summary, err := p.Refresh(ctx)
	if err != nil {
		return err
	}

	for _, step := range summary.Steps {
		printStep(step)
	}
	fmt.Printf("\nRun %s: %s\n", summary.RunID, summary.Status)

	if cfg.PushgatewayURL != "" {
		if err := metrics.PushToGateway(cfg.PushgatewayURL, logger); err != nil {
			logger.Warn("Failed to push metrics", "error", err)
		}
	}

	if n := summary.FailedSteps(); n > 0 {
		return cli.Exit(fmt.Sprintf("%d step(s) failed", n), 1)
	}
	return nil
}

func printStep(step pipeline.StepResult) {
	switch step.Status {
	case pipeline.StepStatusSkipped:
		fmt.Printf("- %-13s skipped\n", step.Name)
	case pipeline.StepStatusFailed:
		fmt.Printf("✗ %-13s failed: %v\n", step.Name, step.Err)
	default:
		fmt.Printf("✓ %-13s processed %s, skipped %s, new events %s (%s)\n",
			step.Name,
			humanize.Comma(int64(step.Processed)),
			humanize.Comma(int64(step.Skipped)),
			humanize.Comma(int64(step.NewEvents)),
			step.Duration.Round(time.Millisecond))
	}
}

func runReport(c *cli.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	generator := report.New(db, cfg.ReportOutputDir, logger)
	paths, err := generator.WriteAll(c.Context)
	if err != nil {
		return err
	}

	for _, path := range paths {
		fmt.Println(path)
	}
	return nil
}

func runStatus(c *cli.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRecentRuns(5)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No refresh runs recorded.")
	}
	for _, run := range runs {
		started := time.Unix(run.StartedAt, 0).Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %-9s  %s\n", started, run.Status, run.ID)

		records, err := pipeline.DecodeSteps(run.Steps)
		if err != nil {
			fmt.Printf("  (unreadable step records: %v)\n", err)
			continue
		}
		for _, r := range records {
			switch r.Status {
			case pipeline.StepStatusSkipped:
				fmt.Printf("  %-13s skipped\n", r.Name)
			case pipeline.StepStatusFailed:
				fmt.Printf("  %-13s failed: %s\n", r.Name, r.Error)
			default:
				fmt.Printf("  %-13s processed %s, skipped %s, new events %s\n",
					r.Name,
					humanize.Comma(int64(r.Processed)),
					humanize.Comma(int64(r.Skipped)),
					humanize.Comma(int64(r.NewEvents)))
			}
		}
		fmt.Println()
	}

	counts := []struct {
		table string
		fn    func() (int64, error)
	}{
		{"developers", db.CountDevelopers},
		{"sprints", db.CountSprints},
		{"issues", db.CountIssues},
		{"activity_events", db.CountEvents},
		{"daily_activity_summary", db.CountDailySummaries},
	}
	fmt.Println("Table counts:")
	for _, count := range counts {
		n, err := count.fn()
		if err != nil {
			return err
		}
		fmt.Printf("  %-22s %s\n", count.table, humanize.Comma(n))
	}
	return nil
}

func runMigrate(c *cli.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	// Open applies any pending migrations
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	version, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	fmt.Printf("%s at schema version %d\n", cfg.DatabasePath, version)
	return nil
}

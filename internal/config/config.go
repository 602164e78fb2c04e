package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabasePath string

	// Timezone used for local dates and time buckets
	Timezone string
	Location *time.Location

	// Jira configuration (empty base URL disables the Jira steps)
	JiraBaseURL          string
	JiraEmail            string
	JiraToken            string
	JiraAPIVersion       string
	JiraProjectKeys      []string
	JiraJQL              string
	JiraBoardIDs         []int
	JiraStoryPointsField string
	JiraSprintField      string
	JiraMaxResults       int
	JiraUpdatedSinceDays int

	// Git configuration (empty repo path disables the git step)
	GitRepoPath string
	GitBranch   string
	GitSince    string

	// Identity configuration
	TeamEmails         []string
	EmailDomainAliases map[string]string

	// Aggregation configuration
	DoneStatuses []string

	// Report configuration
	ReportOutputDir string

	// Metrics configuration
	PushgatewayURL string

	// Logging configuration
	LogLevel string
}

// Load reads configuration from environment variables.
// Source credentials are optional: a refresh step whose source is not
// configured is skipped rather than failing at startup. Malformed values
// are collected and reported together.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:         getEnv("DATABASE_PATH", "./devpulse.db"),
		Timezone:             getEnv("TIMEZONE", "America/Guatemala"),
		JiraBaseURL:          strings.TrimRight(os.Getenv("JIRA_BASE_URL"), "/"),
		JiraEmail:            os.Getenv("JIRA_EMAIL"),
		JiraToken:            os.Getenv("JIRA_TOKEN"),
		JiraAPIVersion:       getEnv("JIRA_API_VERSION", "2"),
		JiraProjectKeys:      getEnvList("JIRA_PROJECT_KEYS"),
		JiraJQL:              os.Getenv("JIRA_JQL"),
		JiraStoryPointsField: getEnv("JIRA_STORY_POINTS_FIELD", "customfield_10016"),
		JiraSprintField:      getEnv("JIRA_SPRINT_FIELD", "customfield_10020"),
		JiraMaxResults:       getEnvInt("JIRA_MAX_RESULTS", 50),
		JiraUpdatedSinceDays: getEnvInt("JIRA_UPDATED_SINCE_DAYS", 30),
		GitRepoPath:          os.Getenv("GIT_REPO_PATH"),
		GitBranch:            getEnv("GIT_BRANCH", "HEAD"),
		GitSince:             getEnv("GIT_SINCE", "90 days ago"),
		TeamEmails:           getEnvList("TEAM_EMAILS"),
		DoneStatuses:         getEnvListDefault("DONE_STATUSES", []string{"Done", "Closed"}),
		ReportOutputDir:      getEnv("REPORT_OUTPUT_DIR", "./reports"),
		PushgatewayURL:       os.Getenv("METRICS_PUSHGATEWAY_URL"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	var problems []string

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		problems = append(problems, fmt.Sprintf("TIMEZONE: unknown location %q", cfg.Timezone))
	}
	cfg.Location = loc

	cfg.JiraBoardIDs, err = getEnvIntList("JIRA_BOARD_IDS")
	if err != nil {
		problems = append(problems, fmt.Sprintf("JIRA_BOARD_IDS: %v", err))
	}

	cfg.EmailDomainAliases, err = getEnvPairs("EMAIL_DOMAIN_ALIASES", map[string]string{
		"telusinternational.com": "telus.com",
	})
	if err != nil {
		problems = append(problems, fmt.Sprintf("EMAIL_DOMAIN_ALIASES: %v", err))
	}

	if cfg.JiraMaxResults < 1 {
		problems = append(problems, "JIRA_MAX_RESULTS: must be positive")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

// JiraEnabled reports whether the Jira sync steps are configured.
func (c *Config) JiraEnabled() bool {
	return c.JiraBaseURL != ""
}

// GitEnabled reports whether the git sync step is configured.
func (c *Config) GitEnabled() bool {
	return c.GitRepoPath != ""
}

// SearchJQL returns the issue search query: JIRA_JQL verbatim when set,
// otherwise a query derived from the project keys and the updated window.
func (c *Config) SearchJQL() string {
	if c.JiraJQL != "" {
		return c.JiraJQL
	}
	clauses := []string{}
	if len(c.JiraProjectKeys) > 0 {
		clauses = append(clauses, fmt.Sprintf("project in (%s)", strings.Join(c.JiraProjectKeys, ", ")))
	}
	if c.JiraUpdatedSinceDays > 0 {
		clauses = append(clauses, fmt.Sprintf("updated >= -%dd", c.JiraUpdatedSinceDays))
	}
	jql := strings.Join(clauses, " AND ")
	if jql == "" {
		return "ORDER BY updated DESC"
	}
	return jql + " ORDER BY updated DESC"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvList parses a comma-separated environment variable, dropping
// empty entries.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvListDefault(key string, defaultValue []string) []string {
	if list := getEnvList(key); list != nil {
		return list
	}
	return defaultValue
}

func getEnvIntList(key string) ([]int, error) {
	var out []int
	for _, part := range getEnvList(key) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// getEnvPairs parses a comma-separated list of from=to pairs.
func getEnvPairs(key string, defaultValue map[string]string) (map[string]string, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "=")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid pair %q, want from=to", part)
		}
		out[strings.ToLower(strings.TrimSpace(from))] = strings.ToLower(strings.TrimSpace(to))
	}
	return out, nil
}

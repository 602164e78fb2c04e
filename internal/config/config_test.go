package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadConfigWithDefaults(t *testing.T) {
	clearTestEnv(t)

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.DatabasePath != "./devpulse.db" {
		t.Errorf("Expected default database path './devpulse.db', got %s", config.DatabasePath)
	}
	if config.Timezone != "America/Guatemala" {
		t.Errorf("Expected default timezone 'America/Guatemala', got %s", config.Timezone)
	}
	if config.Location == nil {
		t.Error("Expected location to be resolved")
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", config.LogLevel)
	}
	if config.JiraAPIVersion != "2" {
		t.Errorf("Expected default Jira API version '2', got %s", config.JiraAPIVersion)
	}
	if config.JiraStoryPointsField != "customfield_10016" {
		t.Errorf("Expected default story points field 'customfield_10016', got %s", config.JiraStoryPointsField)
	}
	if config.JiraSprintField != "customfield_10020" {
		t.Errorf("Expected default sprint field 'customfield_10020', got %s", config.JiraSprintField)
	}
	if config.JiraMaxResults != 50 {
		t.Errorf("Expected default max results 50, got %d", config.JiraMaxResults)
	}
	if config.GitBranch != "HEAD" {
		t.Errorf("Expected default git branch 'HEAD', got %s", config.GitBranch)
	}
	if got := config.EmailDomainAliases["telusinternational.com"]; got != "telus.com" {
		t.Errorf("Expected default domain alias telusinternational.com=telus.com, got %q", got)
	}
	if len(config.DoneStatuses) != 2 || config.DoneStatuses[0] != "Done" || config.DoneStatuses[1] != "Closed" {
		t.Errorf("Expected default done statuses [Done Closed], got %v", config.DoneStatuses)
	}

	if config.JiraEnabled() {
		t.Error("Expected Jira to be disabled without JIRA_BASE_URL")
	}
	if config.GitEnabled() {
		t.Error("Expected git to be disabled without GIT_REPO_PATH")
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	setTestEnv(t, map[string]string{
		"DATABASE_PATH":     "/tmp/test.db",
		"TIMEZONE":          "UTC",
		"JIRA_BASE_URL":     "https://jira.example.com/",
		"JIRA_TOKEN":        "pat-token",
		"JIRA_PROJECT_KEYS": "CORE, PLAT",
		"JIRA_BOARD_IDS":    "12, 34",
		"GIT_REPO_PATH":     "/src/repo",
		"TEAM_EMAILS":       "a@telus.com,b@telus.com",
		"DONE_STATUSES":     "Done,Closed,Resolved",
		"LOG_LEVEL":         "debug",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path '/tmp/test.db', got %s", config.DatabasePath)
	}
	if config.JiraBaseURL != "https://jira.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", config.JiraBaseURL)
	}
	if !config.JiraEnabled() {
		t.Error("Expected Jira to be enabled")
	}
	if !config.GitEnabled() {
		t.Error("Expected git to be enabled")
	}
	if len(config.JiraProjectKeys) != 2 || config.JiraProjectKeys[1] != "PLAT" {
		t.Errorf("Expected project keys [CORE PLAT], got %v", config.JiraProjectKeys)
	}
	if len(config.JiraBoardIDs) != 2 || config.JiraBoardIDs[0] != 12 || config.JiraBoardIDs[1] != 34 {
		t.Errorf("Expected board ids [12 34], got %v", config.JiraBoardIDs)
	}
	if len(config.TeamEmails) != 2 {
		t.Errorf("Expected 2 team emails, got %v", config.TeamEmails)
	}
	if len(config.DoneStatuses) != 3 {
		t.Errorf("Expected 3 done statuses, got %v", config.DoneStatuses)
	}
}

func TestLoadConfigInvalidTimezone(t *testing.T) {
	setTestEnv(t, map[string]string{
		"TIMEZONE": "Not/AZone",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("Expected validation error for unknown timezone")
	}
	if !strings.Contains(err.Error(), "TIMEZONE") {
		t.Errorf("Expected error to mention TIMEZONE, got: %v", err)
	}
}

func TestLoadConfigInvalidBoardIDs(t *testing.T) {
	setTestEnv(t, map[string]string{
		"JIRA_BOARD_IDS": "12,abc",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("Expected validation error for non-numeric board id")
	}
	if !strings.Contains(err.Error(), "JIRA_BOARD_IDS") {
		t.Errorf("Expected error to mention JIRA_BOARD_IDS, got: %v", err)
	}
}

func TestLoadConfigCollectsAllProblems(t *testing.T) {
	setTestEnv(t, map[string]string{
		"TIMEZONE":             "Not/AZone",
		"JIRA_BOARD_IDS":       "x",
		"EMAIL_DOMAIN_ALIASES": "missing-separator",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"TIMEZONE", "JIRA_BOARD_IDS", "EMAIL_DOMAIN_ALIASES"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %s, got: %v", want, err)
		}
	}
}

func TestDomainAliasOverride(t *testing.T) {
	setTestEnv(t, map[string]string{
		"EMAIL_DOMAIN_ALIASES": "Old.Example.COM=new.example.com, other.net=example.com",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := config.EmailDomainAliases["old.example.com"]; got != "new.example.com" {
		t.Errorf("Expected lower-cased alias mapping, got %q", got)
	}
	if got := config.EmailDomainAliases["other.net"]; got != "example.com" {
		t.Errorf("Expected second pair parsed, got %q", got)
	}
	if _, ok := config.EmailDomainAliases["telusinternational.com"]; ok {
		t.Error("Expected override to replace the default map entirely")
	}
}

func TestSearchJQL(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "explicit JQL wins",
			env:  map[string]string{"JIRA_JQL": "project = X", "JIRA_PROJECT_KEYS": "Y"},
			want: "project = X",
		},
		{
			name: "derived from project keys",
			env:  map[string]string{"JIRA_PROJECT_KEYS": "CORE,PLAT", "JIRA_UPDATED_SINCE_DAYS": "14"},
			want: "project in (CORE, PLAT) AND updated >= -14d ORDER BY updated DESC",
		},
		{
			name: "window only",
			env:  map[string]string{"JIRA_UPDATED_SINCE_DAYS": "7"},
			want: "updated >= -7d ORDER BY updated DESC",
		},
		{
			name: "bare fallback",
			env:  map[string]string{"JIRA_UPDATED_SINCE_DAYS": "0"},
			want: "ORDER BY updated DESC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTestEnv(t, tt.env)

			config, err := Load()
			if err != nil {
				t.Fatalf("Failed to load config: %v", err)
			}
			if got := config.SearchJQL(); got != tt.want {
				t.Errorf("SearchJQL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Helper function to set test environment variables and clean up after test
func setTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	clearTestEnv(t)

	for key, value := range vars {
		key, value := key, value
		os.Setenv(key, value)
		t.Cleanup(func() {
			os.Unsetenv(key)
		})
	}
}

// Helper function to clear all config-related environment variables
func clearTestEnv(t *testing.T) {
	t.Helper()

	envVars := []string{
		"DATABASE_PATH", "TIMEZONE", "LOG_LEVEL",
		"JIRA_BASE_URL", "JIRA_EMAIL", "JIRA_TOKEN", "JIRA_API_VERSION",
		"JIRA_PROJECT_KEYS", "JIRA_JQL", "JIRA_BOARD_IDS",
		"JIRA_STORY_POINTS_FIELD", "JIRA_SPRINT_FIELD", "JIRA_MAX_RESULTS",
		"JIRA_UPDATED_SINCE_DAYS",
		"GIT_REPO_PATH", "GIT_BRANCH", "GIT_SINCE",
		"TEAM_EMAILS", "EMAIL_DOMAIN_ALIASES", "DONE_STATUSES",
		"REPORT_OUTPUT_DIR", "METRICS_PUSHGATEWAY_URL",
	}

	for _, key := range envVars {
		os.Unsetenv(key)
	}
}

package gitlog

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ASCII unit/record separators frame the log output so commit subjects
// containing quotes or pipes cannot break parsing
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Commit is one commit from the repository log
type Commit struct {
	Hash        string
	AuthorName  string
	AuthorEmail string
	Timestamp   time.Time
	Message     string
}

// Reader extracts commits from a local clone by shelling out to git
type Reader struct {
	repoPath string
	branch   string
	since    string
	logger   *slog.Logger
}

func NewReader(repoPath, branch, since string, logger *slog.Logger) *Reader {
	return &Reader{repoPath: repoPath, branch: branch, since: since, logger: logger}
}

// Commits runs git log over the configured branch and window. A missing
// repository or failing git invocation is an error; individual malformed
// records are skipped with a warning.
func (r *Reader) Commits(ctx context.Context) ([]Commit, error) {
	args := []string{
		"-C", r.repoPath,
		"log", r.branch,
		"--since=" + r.since,
		"--format=format:%H" + fieldSep + "%an" + fieldSep + "%ae" + fieldSep + "%aI" + fieldSep + "%s" + recordSep,
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git log failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("git log failed: %w", err)
	}

	return r.parse(string(out)), nil
}

func (r *Reader) parse(out string) []Commit {
	var commits []Commit
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}

		fields := strings.Split(record, fieldSep)
		if len(fields) != 5 {
			r.logger.Warn("Skipping malformed log record", "fields", len(fields))
			continue
		}

		ts, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			r.logger.Warn("Skipping commit with bad timestamp", "hash", fields[0], "timestamp", fields[3])
			continue
		}

		commits = append(commits, Commit{
			Hash:        fields[0],
			AuthorName:  fields[1],
			AuthorEmail: fields[2],
			Timestamp:   ts,
			Message:     fields[4],
		})
	}
	return commits
}

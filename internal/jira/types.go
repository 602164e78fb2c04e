package jira

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timeFormat is the timestamp format the REST v2 API emits
const timeFormat = "2006-01-02T15:04:05.000-0700"

// ParseTime parses a Jira timestamp. Agile endpoints emit RFC 3339 instead
// of the REST v2 format, so both are accepted.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return t, nil
}

// User is a Jira account reference
type User struct {
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

// Status is an issue workflow status
type Status struct {
	Name string `json:"name"`
}

// Sprint is an Agile sprint, from a board endpoint or an issue's sprint
// field. Dates are raw Jira timestamps; callers convert to local dates.
type Sprint struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// IssueFields is the subset of issue fields the extractor consumes.
// StoryPoints and Sprints live in instance-specific custom fields and are
// filled by a second decode pass over the raw fields object.
type IssueFields struct {
	Summary                  string  `json:"summary"`
	Status                   *Status `json:"status"`
	Creator                  *User   `json:"creator"`
	Assignee                 *User   `json:"assignee"`
	Created                  string  `json:"created"`
	Updated                  string  `json:"updated"`
	StatusCategoryChangeDate string  `json:"statuscategorychangedate"`

	StoryPoints *float64 `json:"-"`
	Sprints     []Sprint `json:"-"`
}

// Issue is one issue from a search response
type Issue struct {
	Key    string
	Fields IssueFields
}

type rawIssue struct {
	Key    string          `json:"key"`
	Fields json.RawMessage `json:"fields"`
}

type searchResponse struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []rawIssue `json:"issues"`
}

type sprintPage struct {
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	IsLast     bool     `json:"isLast"`
	Values     []Sprint `json:"values"`
}

// decodeIssue decodes an issue's fields twice: once into the typed struct,
// once into a raw map to pull out the configured custom fields
func decodeIssue(raw rawIssue, storyPointsField, sprintField string) (Issue, error) {
	issue := Issue{Key: raw.Key}
	if raw.Key == "" {
		return issue, fmt.Errorf("issue missing key")
	}
	if len(raw.Fields) == 0 {
		return issue, nil
	}

	if err := json.Unmarshal(raw.Fields, &issue.Fields); err != nil {
		return issue, fmt.Errorf("failed to decode fields of %s: %w", raw.Key, err)
	}

	var custom map[string]json.RawMessage
	if err := json.Unmarshal(raw.Fields, &custom); err != nil {
		return issue, fmt.Errorf("failed to decode fields of %s: %w", raw.Key, err)
	}
	issue.Fields.StoryPoints = coerceNumber(custom[storyPointsField])
	issue.Fields.Sprints = coerceSprints(custom[sprintField])

	return issue, nil
}

// coerceNumber accepts a JSON number or a numeric string; anything else is
// dropped silently
func coerceNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &parsed
		}
	}

	return nil
}

// coerceSprints accepts the modern object array or the legacy toString
// encoding ("com.atlassian...Sprint@1a2b[id=53,state=ACTIVE,name=Sprint 7,...]")
func coerceSprints(raw json.RawMessage) []Sprint {
	if len(raw) == 0 {
		return nil
	}

	var sprints []Sprint
	if err := json.Unmarshal(raw, &sprints); err == nil {
		return sprints
	}

	var encoded []string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	for _, s := range encoded {
		if sprint, ok := parseLegacySprint(s); ok {
			sprints = append(sprints, sprint)
		}
	}
	return sprints
}

func parseLegacySprint(s string) (Sprint, bool) {
	open := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if open < 0 || end <= open {
		return Sprint{}, false
	}

	var sprint Sprint
	for _, part := range strings.Split(s[open+1:end], ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok || value == "" || value == "<null>" {
			continue
		}
		switch key {
		case "id":
			sprint.ID, _ = strconv.ParseInt(value, 10, 64)
		case "name":
			sprint.Name = value
		case "state":
			sprint.State = strings.ToLower(value)
		case "startDate":
			sprint.StartDate = value
		case "endDate":
			sprint.EndDate = value
		}
	}

	return sprint, sprint.Name != ""
}

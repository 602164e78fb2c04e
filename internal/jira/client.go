package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"devpulse/internal/metrics"
)

const (
	requestTimeout    = 30 * time.Second
	maxRetries        = 5
	initialRetryDelay = 500 * time.Millisecond
)

// Config carries the connection settings for one Jira instance
type Config struct {
	BaseURL          string
	Email            string
	Token            string
	APIVersion       string
	StoryPointsField string
	SprintField      string
	MaxResults       int
}

// Client is a Jira REST API client
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewClient creates a new Jira API client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2"
	}
	if cfg.MaxResults < 1 {
		cfg.MaxResults = 50
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		cfg:        cfg,
		logger:     logger,
		retryDelay: initialRetryDelay,
	}
}

// SearchIssues runs a JQL search and walks startAt pagination until the
// reported total is reached. Issues that fail to decode are skipped with a
// warning rather than failing the search.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]Issue, error) {
	path := fmt.Sprintf("/rest/api/%s/search", c.cfg.APIVersion)

	var issues []Issue
	startAt := 0
	for {
		query := url.Values{}
		query.Set("jql", jql)
		query.Set("startAt", strconv.Itoa(startAt))
		query.Set("maxResults", strconv.Itoa(c.cfg.MaxResults))

		var page searchResponse
		if err := c.get(ctx, path, query, &page); err != nil {
			return nil, fmt.Errorf("failed to search issues: %w", err)
		}

		for _, raw := range page.Issues {
			issue, err := decodeIssue(raw, c.cfg.StoryPointsField, c.cfg.SprintField)
			if err != nil {
				c.logger.Warn("Skipping undecodable issue", "error", err)
				continue
			}
			issues = append(issues, issue)
		}

		startAt += len(page.Issues)
		if startAt >= page.Total || len(page.Issues) == 0 {
			break
		}
	}

	return issues, nil
}

// BoardSprints lists every sprint of an Agile board, walking pagination
// until the API reports the last page
func (c *Client) BoardSprints(ctx context.Context, boardID int) ([]Sprint, error) {
	path := fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID)

	var sprints []Sprint
	startAt := 0
	for {
		query := url.Values{}
		query.Set("startAt", strconv.Itoa(startAt))
		query.Set("maxResults", strconv.Itoa(c.cfg.MaxResults))

		var page sprintPage
		if err := c.get(ctx, path, query, &page); err != nil {
			return nil, fmt.Errorf("failed to list sprints of board %d: %w", boardID, err)
		}

		sprints = append(sprints, page.Values...)
		startAt += len(page.Values)
		if page.IsLast || len(page.Values) == 0 {
			break
		}
	}

	return sprints, nil
}

// get performs one GET with exponential retry on 429 and server errors.
// Other client errors are permanent.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	requestURL := c.cfg.BaseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		c.setAuth(req)
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			c.logger.Error("Jira request failed", "path", path, "error", err)
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		metrics.ObserveJiraRequest(resp.StatusCode, duration)
		c.logger.Debug("jira_api_request", "path", path, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("rate limited (429)")
		case resp.StatusCode >= 500:
			return fmt.Errorf("server error (%d)", resp.StatusCode)
		default:
			bodyBytes, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes)))
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
}

// setAuth uses basic auth for cloud (email + API token) and a bearer token
// for server/data center PATs
func (c *Client) setAuth(req *http.Request) {
	switch {
	case c.cfg.Email != "" && c.cfg.Token != "":
		req.SetBasicAuth(c.cfg.Email, c.cfg.Token)
	case c.cfg.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

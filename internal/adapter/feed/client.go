// Package feed fetches the Environment Agency flood-monitoring feed and
// tallies active warnings by severity level.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/floodwatch/floodcounts/internal/domain"
)

// Client polls the flood warning feed over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a feed client against the given endpoint.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchCounts downloads the current flood warning list and counts items per
// severity level: 1 → severes, 2 → warnings, 3 → alerts. Other levels
// (including 4, "no longer in force") are ignored.
func (c *Client) FetchCounts(ctx context.Context) (domain.Counts, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.Counts{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Counts{}, fmt.Errorf("fetch flood feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Counts{}, fmt.Errorf("flood feed error: status %d: %s", resp.StatusCode, body)
	}

	var feed response
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return domain.Counts{}, fmt.Errorf("decode flood feed: %w", err)
	}

	var counts domain.Counts
	for _, item := range feed.Items {
		switch item.SeverityLevel {
		case 1:
			counts.Severes++
		case 2:
			counts.Warnings++
		case 3:
			counts.Alerts++
		}
	}
	c.logger.Debug("fetched flood counts", "items", len(feed.Items),
		"severes", counts.Severes, "warnings", counts.Warnings, "alerts", counts.Alerts)
	return counts, nil
}

// Feed API response types.

type response struct {
	Items []item `json:"items"`
}

type item struct {
	SeverityLevel int `json:"severityLevel"`
}

package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
)

// RateLimit is the caller's remaining generation budget.
type RateLimit struct {
	Remaining     int `json:"remaining_requests"`
	Total         int `json:"total_requests"`
	WindowMinutes int `json:"window_minutes"`
}

// ListHistory returns past exchanges, newest first. It satisfies history.Reader.
func (c *Client) ListHistory(ctx context.Context, skip, limit int) ([]history.Exchange, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	var out []history.Exchange
	err := c.Do(ctx, http.MethodGet, "/api/ai/history", map[string]string{
		"skip":  strconv.Itoa(skip),
		"limit": strconv.Itoa(limit),
	}, &out)
	return out, err
}

// DeleteHistory removes one exchange.
func (c *Client) DeleteHistory(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, "/api/ai/history/"+url.PathEscape(id), nil, nil)
}

// RateLimitStatus returns the caller's remaining generation budget.
func (c *Client) RateLimitStatus(ctx context.Context) (RateLimit, error) {
	var out RateLimit
	err := c.Do(ctx, http.MethodGet, "/api/ai/rate-limit", nil, &out)
	return out, err
}

var _ history.Reader = (*Client)(nil)

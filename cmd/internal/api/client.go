// Package api is the request/response client for the CodeMonitor REST collaborator:
// chat history, rate-limit status and saved snippets.
//
// Every call goes through Do, which applies the bearer token, a client-side rate limit, retries
// for idempotent reads, and unwraps the {status, message, data} envelope. Failures surface as *Error.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/naval-1647/CodeMonitor/cmd/security/token"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRetries = 2
	userAgent      = "codemonitor-cli/1.0"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Retries applies to GET requests only.
	Retries int
	// RPS caps outgoing requests per second. <= 0 means unlimited.
	RPS    float64
	Logger *slog.Logger
}

// Client talks to the REST collaborator.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// Error is a failed collaborator call. Message is the server's detail when present.
type Error struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the collaborator.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}

// envelope is the collaborator's response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// errorBody is the collaborator's error shape. detail is a string or a list of field errors.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api: empty base url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")
	r.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
			return false
		}
		if err != nil {
			return true
		}
		switch resp.StatusCode() {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	})
	if cfg.Token != "" {
		r.SetAuthToken(cfg.Token)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	log.Debug("api.client", "base_url", token.RedactURL(base), "token_fp", token.Fingerprint(cfg.Token))
	return &Client{resty: r, limiter: limiter, log: log}, nil
}

// Do sends one request. payload, when non-nil, is sent as the JSON body for write methods and
// as query parameters (map[string]string) for GET. out, when non-nil, receives the envelope's data.
func (c *Client) Do(ctx context.Context, method, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	req := c.resty.R().SetContext(ctx)
	if payload != nil {
		if q, ok := payload.(map[string]string); ok && method == http.MethodGet {
			req.SetQueryParams(q)
		} else {
			req.SetHeader("Content-Type", "application/json").SetBody(payload)
		}
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Info("api.request.fail", "method", method, "path", path, "err", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.Debug("api.request", "method", method, "path", path, "status", resp.StatusCode(), "took", time.Since(start))

	if resp.IsError() {
		return &Error{
			Status:  resp.StatusCode(),
			Method:  method,
			Path:    path,
			Message: errorMessage(resp),
		}
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%s %s: decode envelope: %w", method, path, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}

func errorMessage(resp *resty.Response) string {
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil && s != "" {
			return s
		}
		var items []struct {
			Loc []any  `json:"loc"`
			Msg string `json:"msg"`
		}
		if json.Unmarshal(body.Detail, &items) == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				msgs = append(msgs, it.Msg)
			}
			return strings.Join(msgs, "; ")
		}
	}
	if text := http.StatusText(resp.StatusCode()); text != "" {
		return text
	}
	return "request failed"
}

package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
)

const (
	// DefaultLanguage is applied by the collaborator when none is given.
	DefaultLanguage  = "python"
	maxSnippetLimit  = 100
	maxSnippetTitle  = 200
	defaultSnipLimit = 50
)

// Snippet is a saved piece of code.
type Snippet struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Code        string       `json:"code"`
	Language    string       `json:"language"`
	Description *string      `json:"description"`
	Tags        []string     `json:"tags"`
	CreatedAt   history.Time `json:"created_at"`
	UpdatedAt   history.Time `json:"updated_at"`
}

// SnippetInput creates a snippet.
type SnippetInput struct {
	Title       string   `json:"title"`
	Code        string   `json:"code"`
	Language    string   `json:"language,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags"`
}

// SnippetPatch updates a snippet. Nil fields are left unchanged.
type SnippetPatch struct {
	Title       *string   `json:"title,omitempty"`
	Code        *string   `json:"code,omitempty"`
	Language    *string   `json:"language,omitempty"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// SnippetQuery filters ListSnippets.
type SnippetQuery struct {
	Search string
	Skip   int
	Limit  int
}

// ErrInvalidSnippet is returned before any request when a snippet fails local validation.
var ErrInvalidSnippet = errors.New("invalid snippet")

// Validate checks the constraints the collaborator enforces.
func (in SnippetInput) Validate() error {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return errors.Join(ErrInvalidSnippet, errors.New("title is required"))
	case len([]rune(title)) > maxSnippetTitle:
		return errors.Join(ErrInvalidSnippet, errors.New("title too long"))
	}
	return nil
}

// ListSnippets returns the caller's snippets, newest first.
func (c *Client) ListSnippets(ctx context.Context, q SnippetQuery) ([]Snippet, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSnipLimit
	}
	if limit > maxSnippetLimit {
		limit = maxSnippetLimit
	}
	params := map[string]string{
		"skip":  strconv.Itoa(max(q.Skip, 0)),
		"limit": strconv.Itoa(limit),
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		params["search"] = s
	}

	var out []Snippet
	err := c.Do(ctx, http.MethodGet, "/api/snippets", params, &out)
	return out, err
}

// GetSnippet returns one snippet.
func (c *Client) GetSnippet(ctx context.Context, id string) (Snippet, error) {
	var out Snippet
	err := c.Do(ctx, http.MethodGet, snippetPath(id), nil, &out)
	return out, err
}

// CreateSnippet saves a new snippet and returns it as stored.
func (c *Client) CreateSnippet(ctx context.Context, in SnippetInput) (Snippet, error) {
	if err := in.Validate(); err != nil {
		return Snippet{}, err
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	var out Snippet
	err := c.Do(ctx, http.MethodPost, "/api/snippets", in, &out)
	return out, err
}

// UpdateSnippet applies patch and returns the updated snippet.
func (c *Client) UpdateSnippet(ctx context.Context, id string, patch SnippetPatch) (Snippet, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return Snippet{}, errors.Join(ErrInvalidSnippet, errors.New("title is required"))
	}
	var out Snippet
	err := c.Do(ctx, http.MethodPut, snippetPath(id), patch, &out)
	return out, err
}

// DeleteSnippet removes a snippet.
func (c *Client) DeleteSnippet(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, snippetPath(id), nil, nil)
}

func snippetPath(id string) string {
	return "/api/snippets/" + url.PathEscape(strings.TrimSpace(id))
}

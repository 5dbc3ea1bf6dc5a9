package devserver

import (
	"context"
	"errors"
	"time"

	"github.com/naval-1647/CodeMonitor/cmd/internal/api"
	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
)

// ErrNotFound is returned when a record does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

// Store persists exchanges and snippets per user.
//
// Requirements:
//   - Listings are ordered newest first.
//   - Records are only visible to the user that created them.
type Store interface {
	AppendExchange(ctx context.Context, in AppendExchangeInput) (history.Exchange, error)
	ListExchanges(ctx context.Context, userID string, skip, limit int) ([]history.Exchange, error)
	DeleteExchange(ctx context.Context, userID, id string) error

	CreateSnippet(ctx context.Context, userID string, in api.SnippetInput) (api.Snippet, error)
	ListSnippets(ctx context.Context, userID string, q api.SnippetQuery) ([]api.Snippet, error)
	GetSnippet(ctx context.Context, userID, id string) (api.Snippet, error)
	UpdateSnippet(ctx context.Context, userID, id string, patch api.SnippetPatch) (api.Snippet, error)
	DeleteSnippet(ctx context.Context, userID, id string) error

	Close() error
}

// AppendExchangeInput describes one finished chat exchange.
type AppendExchangeInput struct {
	UserID      string
	Prompt      string
	Response    string
	Mode        string
	CodeContext *string
	Now         time.Time
}

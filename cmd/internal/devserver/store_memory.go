package devserver

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/naval-1647/CodeMonitor/cmd/internal/api"
	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
)

const (
	memMaxExchangesPerUser = 10_000
)

// InMemoryStore is the dev peer's Store. It keeps everything in process memory.
type InMemoryStore struct {
	mu        sync.Mutex
	exchanges map[string][]history.Exchange // user_id -> oldest first
	snippets  map[string][]api.Snippet      // user_id -> oldest first
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		exchanges: make(map[string][]history.Exchange),
		snippets:  make(map[string][]api.Snippet),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// AppendExchange records a prompt and its answer as one exchange.
func (s *InMemoryStore) AppendExchange(ctx context.Context, in AppendExchangeInput) (history.Exchange, error) {
	if in.UserID == "" || in.Prompt == "" {
		return history.Exchange{}, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return history.Exchange{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ts := history.Time{Time: now}

	ex := history.Exchange{
		ID: newExchangeID(),
		Messages: []history.Message{
			{Role: history.RoleUser, Content: in.Prompt, Timestamp: ts},
			{Role: history.RoleAssistant, Content: in.Response, Timestamp: ts},
		},
		Mode:        in.Mode,
		CodeContext: in.CodeContext,
		CreatedAt:   ts,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.exchanges[in.UserID], ex)
	// Bound memory to avoid unbounded growth in dev.
	if len(list) > memMaxExchangesPerUser {
		list = list[len(list)-memMaxExchangesPerUser:]
	}
	s.exchanges[in.UserID] = list
	return ex, nil
}

// ListExchanges returns the user's exchanges, newest first.
func (s *InMemoryStore) ListExchanges(ctx context.Context, userID string, skip, limit int) ([]history.Exchange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	snap := slices.Clone(s.exchanges[userID])
	s.mu.Unlock()

	slices.Reverse(snap)
	return page(snap, skip, limit), nil
}

// DeleteExchange removes one exchange.
func (s *InMemoryStore) DeleteExchange(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.exchanges[userID]
	i := slices.IndexFunc(list, func(e history.Exchange) bool { return e.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	s.exchanges[userID] = slices.Delete(list, i, i+1)
	return nil
}

// CreateSnippet stores a new snippet.
func (s *InMemoryStore) CreateSnippet(ctx context.Context, userID string, in api.SnippetInput) (api.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return api.Snippet{}, err
	}
	if err := in.Validate(); err != nil {
		return api.Snippet{}, err
	}

	now := history.Time{Time: time.Now().UTC()}
	sn := api.Snippet{
		ID:          newSnippetID(),
		Title:       strings.TrimSpace(in.Title),
		Code:        in.Code,
		Language:    in.Language,
		Description: in.Description,
		Tags:        slices.Clone(in.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sn.Language == "" {
		sn.Language = api.DefaultLanguage
	}
	if sn.Tags == nil {
		sn.Tags = []string{}
	}

	s.mu.Lock()
	s.snippets[userID] = append(s.snippets[userID], sn)
	s.mu.Unlock()
	return sn, nil
}

// ListSnippets returns the user's snippets, newest first. Search matches title, description
// and tags, case-insensitively.
func (s *InMemoryStore) ListSnippets(ctx context.Context, userID string, q api.SnippetQuery) ([]api.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	snap := slices.Clone(s.snippets[userID])
	s.mu.Unlock()

	slices.Reverse(snap)
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		snap = slices.DeleteFunc(snap, func(sn api.Snippet) bool { return !matches(sn, term) })
	}
	return page(snap, q.Skip, q.Limit), nil
}

// GetSnippet returns one snippet.
func (s *InMemoryStore) GetSnippet(ctx context.Context, userID, id string) (api.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return api.Snippet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sn := range s.snippets[userID] {
		if sn.ID == id {
			return sn, nil
		}
	}
	return api.Snippet{}, ErrNotFound
}

// UpdateSnippet applies the non-nil fields of patch.
func (s *InMemoryStore) UpdateSnippet(ctx context.Context, userID, id string, patch api.SnippetPatch) (api.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return api.Snippet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.snippets[userID]
	i := slices.IndexFunc(list, func(sn api.Snippet) bool { return sn.ID == id })
	if i < 0 {
		return api.Snippet{}, ErrNotFound
	}

	sn := list[i]
	if patch.Title != nil {
		sn.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Code != nil {
		sn.Code = *patch.Code
	}
	if patch.Language != nil {
		sn.Language = *patch.Language
	}
	if patch.Description != nil {
		sn.Description = patch.Description
	}
	if patch.Tags != nil {
		sn.Tags = slices.Clone(*patch.Tags)
	}
	sn.UpdatedAt = history.Time{Time: time.Now().UTC()}
	list[i] = sn
	return sn, nil
}

// DeleteSnippet removes one snippet.
func (s *InMemoryStore) DeleteSnippet(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.snippets[userID]
	i := slices.IndexFunc(list, func(sn api.Snippet) bool { return sn.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	s.snippets[userID] = slices.Delete(list, i, i+1)
	return nil
}

func matches(sn api.Snippet, term string) bool {
	if strings.Contains(strings.ToLower(sn.Title), term) {
		return true
	}
	if sn.Description != nil && strings.Contains(strings.ToLower(*sn.Description), term) {
		return true
	}
	for _, tag := range sn.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

func page[T any](xs []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(xs) {
		return []T{}
	}
	xs = xs[skip:]
	if limit > 0 && limit < len(xs) {
		xs = xs[:limit]
	}
	return xs
}

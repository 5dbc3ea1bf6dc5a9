// Package history is the client's read-only view of past chat exchanges.
//
// Exchanges come from a Reader: the REST collaborator (see package api) or, for local
// deployments, the Postgres table the server writes to. Log keeps the latest page in memory and
// is refreshed by pull only.
package history

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

// DefaultLimit is the page size used when none is configured.
const DefaultLimit = 20

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Reader lists persisted exchanges, newest first.
type Reader interface {
	ListHistory(ctx context.Context, skip, limit int) ([]Exchange, error)
}

// Exchange is one persisted prompt/answer session.
type Exchange struct {
	ID          string    `json:"id"`
	Messages    []Message `json:"messages"`
	Mode        string    `json:"mode"`
	CodeContext *string   `json:"code_context"`
	CreatedAt   Time      `json:"created_at"`
}

// Message is one turn inside an Exchange.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp Time   `json:"timestamp"`
}

// Prompt returns the first user message.
func (e Exchange) Prompt() string {
	for _, m := range e.Messages {
		if m.Role == RoleUser {
			return m.Content
		}
	}
	return ""
}

// Answer returns the last assistant message.
func (e Exchange) Answer() string {
	for i := len(e.Messages) - 1; i >= 0; i-- {
		if e.Messages[i].Role == RoleAssistant {
			return e.Messages[i].Content
		}
	}
	return ""
}

// Code returns the attached code context, or "".
func (e Exchange) Code() string {
	if e.CodeContext == nil {
		return ""
	}
	return *e.CodeContext
}

// Time is a timestamp that accepts the server's zone-less ISO-8601 form.
type Time struct{ time.Time }

// UnmarshalJSON accepts RFC 3339 and zone-less ISO-8601 strings. null and "" leave t zero.
func (t *Time) UnmarshalJSON(b []byte) error {
	var raw *string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, ok := v1.ParseTimestamp(*raw)
	if !ok {
		return &time.ParseError{Layout: time.RFC3339, Value: *raw, Message: ": unsupported timestamp"}
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes RFC 3339 with nanoseconds, or null for the zero time.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

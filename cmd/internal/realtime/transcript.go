package realtime

import (
	"sync"
	"time"
)

// EntryKind classifies a transcript entry.
type EntryKind string

const (
	// EntryUser is a prompt typed by the local user (chat) or a peer chat message (room).
	EntryUser EntryKind = "user"
	// EntryAssistant is a finalized streamed answer in the single-user chat.
	EntryAssistant EntryKind = "assistant"
	// EntryError is a server-signaled failure, rendered apart from assistant content.
	EntryError EntryKind = "error"
	// EntrySystem is a room membership notice.
	EntrySystem EntryKind = "system"
	// EntryAIPrompt records who asked the room's assistant and what.
	EntryAIPrompt EntryKind = "ai_prompt"
	// EntryAIResponse is the room assistant's final answer.
	EntryAIResponse EntryKind = "ai_response"
)

// Entry is one transcript line.
type Entry struct {
	ID      string
	Kind    EntryKind
	Author  string
	UserID  string
	Content string
	// Mine marks optimistic entries created locally before any server echo.
	Mine bool
	At   time.Time
}

// Transcript is an append-only, ordered list of entries.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
}

// Append adds e at the end, filling ID and At when empty, and returns the stored entry.
func (t *Transcript) Append(e Entry) Entry {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = NewEntryID(e.At)
	}

	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
	return e
}

// Entries returns a copy of all entries in arrival order.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// last returns the most recent entry.
func (t *Transcript) last() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// CountKind returns how many entries have kind k.
func (t *Transcript) CountKind(k EntryKind) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Reset drops every entry.
func (t *Transcript) Reset() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

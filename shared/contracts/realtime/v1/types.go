// Package v1 defines the CodeMonitor realtime wire contract.
//
// Frames are JSON text records discriminated by "type". The chat endpoint (/ws/chat) and the team
// endpoint (/ws/team/<room>) share one Event shape; each endpoint uses its own subset of types.
// This package is dependency-light and shared by the client core and the development peer.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Endpoint paths (wire-stable).
const (
	ChatPath     = "/ws/chat"
	TeamPathBase = "/ws/team/"
)

// Generation modes.
const (
	ModeGenerate = "generate"
	ModeDebug    = "debug"
	ModeExplain  = "explain"
)

// Modes lists every accepted generation mode.
var Modes = []string{ModeGenerate, ModeDebug, ModeExplain}

// ValidMode reports whether m is a known generation mode.
func ValidMode(m string) bool {
	switch m {
	case ModeGenerate, ModeDebug, ModeExplain:
		return true
	default:
		return false
	}
}

// Chat event types (server -> client on /ws/chat).
const (
	// TypeStart opens an exchange.
	TypeStart = "start"
	// TypeChunk carries one piece of the streamed answer in Content.
	TypeChunk = "chunk"
	// TypeComplete closes an exchange successfully.
	TypeComplete = "complete"
	// TypeError closes an exchange with Message, or rejects a prompt outright.
	TypeError = "error"
	// TypeChatSaved reports the persisted exchange id after a complete.
	TypeChatSaved = "chat_saved"
)

// Room event types (both directions on /ws/team/<room>).
const (
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	// TypeMessage is a peer chat message (client -> server and server -> other members).
	TypeMessage = "message"
	// TypeAIPrompt asks the room's assistant (client -> server).
	TypeAIPrompt   = "ai_prompt"
	TypeAIStart    = "ai_start"
	TypeAIChunk    = "ai_chunk"
	TypeAIComplete = "ai_complete"
)

// Event is the decoded form of every inbound frame.
// Fields not used by a given type are left empty.
type Event struct {
	Type string `json:"type"`

	Content      string `json:"content,omitempty"`
	Message      string `json:"message,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	FullResponse string `json:"full_response,omitempty"`

	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Timestamp is kept verbatim: the server emits ISO-8601 without a zone suffix.
	Timestamp string `json:"timestamp,omitempty"`

	ChatID string `json:"chat_id,omitempty"`
}

// DecodeEvent parses one inbound text frame.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev.Type = strings.TrimSpace(ev.Type)
	if ev.Type == "" {
		return Event{}, errors.New("decode event: missing field: type")
	}
	return ev, nil
}

// IsChat reports whether the event type belongs to the chat vocabulary.
func (e Event) IsChat() bool {
	switch e.Type {
	case TypeStart, TypeChunk, TypeComplete, TypeError, TypeChatSaved:
		return true
	default:
		return false
	}
}

// IsRoom reports whether the event type belongs to the room vocabulary.
func (e Event) IsRoom() bool {
	switch e.Type {
	case TypeUserJoined, TypeUserLeft, TypeMessage, TypeAIStart, TypeAIChunk, TypeAIComplete, TypeError:
		return true
	default:
		return false
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Time parses Timestamp. Zone-less values are taken as UTC.
func (e Event) Time() (time.Time, bool) {
	return ParseTimestamp(e.Timestamp)
}

// ParseTimestamp parses the server's ISO-8601 timestamps, with or without a zone suffix.
// Zone-less values are taken as UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ---- Outbound payloads ----

// PromptRequest is the single outbound record on /ws/chat.
// CodeContext is null exactly when Mode is generate.
type PromptRequest struct {
	Prompt      string  `json:"prompt"`
	Mode        string  `json:"mode"`
	CodeContext *string `json:"code_context"`
}

// NewPromptRequest builds a PromptRequest, attaching code only for debug/explain.
func NewPromptRequest(prompt, mode, code string) PromptRequest {
	req := PromptRequest{Prompt: prompt, Mode: mode}
	if mode != ModeGenerate {
		c := code
		req.CodeContext = &c
	}
	return req
}

// RoomMessage is a peer chat message sent into a room.
type RoomMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewRoomMessage builds a RoomMessage.
func NewRoomMessage(content string) RoomMessage {
	return RoomMessage{Type: TypeMessage, Content: content}
}

// RoomAIPrompt asks the room's assistant; every member sees the resulting stream.
type RoomAIPrompt struct {
	Type        string `json:"type"`
	Prompt      string `json:"prompt"`
	Mode        string `json:"mode"`
	CodeContext string `json:"code_context,omitempty"`
}

// NewRoomAIPrompt builds a RoomAIPrompt. Code is dropped in generate mode.
func NewRoomAIPrompt(prompt, mode, code string) RoomAIPrompt {
	p := RoomAIPrompt{Type: TypeAIPrompt, Prompt: prompt, Mode: mode}
	if mode != ModeGenerate {
		p.CodeContext = code
	}
	return p
}

// InboundRoomFrame is what a room member sends; the peer reads Type first, then the fields it needs.
type InboundRoomFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Mode        string `json:"mode,omitempty"`
	CodeContext string `json:"code_context,omitempty"`
}

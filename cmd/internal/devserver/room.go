package devserver

import (
	"log/slog"
	"sync"
)

// Room is an in-memory membership + broadcast fanout primitive for one team room.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Room struct {
	log *slog.Logger
	ID  string

	mu      sync.RWMutex
	members map[string]*Client
}

// NewRoom constructs a room.
func NewRoom(log *slog.Logger, id string) *Room {
	return &Room{
		log:     log,
		ID:      id,
		members: make(map[string]*Client),
	}
}

// Join adds a client to membership.
func (r *Room) Join(client *Client) {
	if r == nil || client == nil || client.SessionID == "" {
		return
	}

	r.mu.Lock()
	r.members[client.SessionID] = client
	r.mu.Unlock()

	r.log.Info("room.member.join", "room_id", r.ID, "session_id", client.SessionID, "user_id", client.User.ID)
}

// Leave removes a client from membership and returns how many members remain.
func (r *Room) Leave(sessionID string) int {
	if r == nil || sessionID == "" {
		return 0
	}

	r.mu.Lock()
	delete(r.members, sessionID)
	n := len(r.members)
	r.mu.Unlock()

	r.log.Info("room.member.leave", "room_id", r.ID, "session_id", sessionID)
	return n
}

// Len returns the number of members.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast fans a frame out to all members except excludeSession ("" excludes nobody).
// Non-blocking: if a member queue is full or the client is shutting down, it is dropped.
func (r *Room) Broadcast(frame []byte, excludeSession string) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, m := range r.members {
		if m == nil || id == excludeSession {
			continue
		}
		if !m.Enqueue(frame) {
			r.log.Debug("room.broadcast.drop", "room_id", r.ID, "session_id", id)
		}
	}
}

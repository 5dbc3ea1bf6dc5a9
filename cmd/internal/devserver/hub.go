package devserver

import (
	"log/slog"
	"sync"
)

// Hub owns the in-memory rooms. Empty rooms are dropped on the last leave.
type Hub struct {
	log *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// Join adds client to roomID, creating the room on first use.
func (h *Hub) Join(roomID string, client *Client) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		r = NewRoom(h.log, roomID)
		h.rooms[roomID] = r
	}
	r.Join(client)
	return r
}

// Leave removes the session from roomID and drops the room once empty.
func (h *Hub) Leave(roomID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if r.Leave(sessionID) == 0 {
		delete(h.rooms, roomID)
	}
}

// Rooms returns the number of live rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

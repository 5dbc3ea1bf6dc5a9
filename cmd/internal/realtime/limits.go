package realtime

import "time"

const (
	// DefaultReadyTimeout bounds the wait for Open before a chat submit is attempted anyway.
	DefaultReadyTimeout = 5 * time.Second

	defaultWriteTimeout = 5 * time.Second
	defaultDialTimeout  = 10 * time.Second

	// Max bytes per inbound frame. Room ai_complete frames carry the whole answer.
	maxFrameBytes = 1 << 20

	// Bounds the async history refresh that follows a completed exchange.
	historyRefreshTimeout = 10 * time.Second
)

// Endpoint kinds, used as metric labels and log attributes.
const (
	endpointChat = "chat"
	endpointRoom = "room"
)

package devserver

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max prompt or chat message length (runes).
	maxMessageChars = 8000
)

const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-user generation budget.
	rateLimitRequests = 50
	rateLimitWindow   = 60 * time.Minute
)

package realtime

import "errors"

var (
	// ErrConnectionUsed is returned by Connect on a Connection that already left Idle.
	// A Connection is single-use; create a new one to reconnect.
	ErrConnectionUsed = errors.New("connection already used")
	// ErrConnectionClosed is returned by AwaitOpen once the Connection is Closed.
	ErrConnectionClosed = errors.New("connection closed")

	ErrEmptyPrompt  = errors.New("empty prompt")
	ErrEmptyMessage = errors.New("empty message")
	ErrInvalidMode  = errors.New("invalid mode")

	// ErrRoomLeft is returned by operations on a RoomSession after Leave.
	ErrRoomLeft = errors.New("room left")
)

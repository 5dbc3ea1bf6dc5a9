package realtime

// ConnState is the lifecycle state of a Connection.
type ConnState int32

const (
	// StateIdle means Connect has not been called yet.
	StateIdle ConnState = iota
	// StateConnecting means the handshake is in flight.
	StateConnecting
	// StateOpen means frames can be sent.
	StateOpen
	// StateClosed is terminal: a closed Connection is never reopened.
	StateClosed
)

// String returns the string representation of a ConnState.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StreamPhase is the state of a Streaming Session (or of a room's AI channel).
type StreamPhase int32

const (
	// PhaseIdle means no exchange is outstanding.
	PhaseIdle StreamPhase = iota
	// PhaseStreaming means a start was received and chunks are being buffered.
	PhaseStreaming
)

// String returns the string representation of a StreamPhase.
func (p StreamPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Outcome records how the most recent exchange ended.
type Outcome int32

const (
	OutcomeNone Outcome = iota
	OutcomeComplete
	OutcomeFailed
	// OutcomeAborted means the transport closed or failed mid-stream.
	OutcomeAborted
)

// String returns the string representation of an Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeComplete:
		return "complete"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

package realtime

// UpdateKind says which part of a session changed.
type UpdateKind uint8

const (
	// UpdateEntry carries a newly appended transcript entry.
	UpdateEntry UpdateKind = iota + 1
	// UpdateChunk carries one streamed chunk that was added to the live buffer.
	UpdateChunk
	// UpdatePhase reports a stream opening or closing.
	UpdatePhase
	// UpdateMembers carries the room member list after a change.
	UpdateMembers
	// UpdateSaved carries the id the server persisted the last exchange under.
	UpdateSaved
	// UpdateConn reports a connection state change.
	UpdateConn
	// UpdateReset means all local state was cleared (room left).
	UpdateReset
)

// Update is published to session subscribers after each state change.
// Only the fields relevant to Kind are set.
type Update struct {
	Kind    UpdateKind
	Entry   Entry
	Chunk   string
	Phase   StreamPhase
	Outcome Outcome
	Members []string
	ChatID  string
	Conn    ConnState
}

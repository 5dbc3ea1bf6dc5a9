package realtime

import "strings"

// StreamBuffer accumulates one streamed answer until it is finalized or discarded.
//
// Invariant: text is non-empty only while the buffer is active. Finalize and Discard clear it
// in the same step that deactivates it. StreamBuffer is not safe for concurrent use; its owner
// (a ChatSession or RoomSession) serializes access.
type StreamBuffer struct {
	active bool
	text   strings.Builder
	chunks int
}

// Start opens the buffer. It reports false if a stream was already active; the previous
// content is dropped in that case.
func (b *StreamBuffer) Start() (fresh bool) {
	fresh = !b.active
	b.text.Reset()
	b.chunks = 0
	b.active = true
	return fresh
}

// Append adds a chunk in arrival order. Chunks are rejected (false) while inactive.
func (b *StreamBuffer) Append(chunk string) bool {
	if !b.active {
		return false
	}
	b.text.WriteString(chunk)
	b.chunks++
	return true
}

// Finalize returns the accumulated text and clears the buffer.
// ok is false when no stream was active.
func (b *StreamBuffer) Finalize() (text string, ok bool) {
	if !b.active {
		return "", false
	}
	text = b.text.String()
	b.reset()
	return text, true
}

// Discard drops any accumulated text. It reports whether a stream was active.
func (b *StreamBuffer) Discard() bool {
	was := b.active
	b.reset()
	return was
}

// Active reports whether a stream is open.
func (b *StreamBuffer) Active() bool { return b.active }

// Text returns the partial answer accumulated so far.
func (b *StreamBuffer) Text() string { return b.text.String() }

// Chunks returns how many chunks were appended since Start.
func (b *StreamBuffer) Chunks() int { return b.chunks }

func (b *StreamBuffer) reset() {
	b.active = false
	b.text.Reset()
	b.chunks = 0
}

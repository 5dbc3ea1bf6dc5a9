package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

// newDetachedRoom returns a room whose connection never dials, for driving events directly.
func newDetachedRoom(self string) *RoomSession {
	return &RoomSession{
		opts: RoomOptions{RoomID: "abc", Username: self},
		log:  quietLogger(),
		conn: NewConnection(ConnOptions{Logger: quietLogger()}),
	}
}

func joinTestRoom(t *testing.T, p *testPeer, roomID, self string) *RoomSession {
	t.Helper()
	r, err := JoinRoom(context.Background(), RoomOptions{
		BaseURL:  p.URL(),
		Token:    "tok",
		RoomID:   roomID,
		Username: self,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(r.Leave)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, r.AwaitOpen(ctx))
	return r
}

func TestRoomMembership(t *testing.T) {
	r := newDetachedRoom("me")

	r.handleEvent(v1.Event{Type: v1.TypeUserJoined, Username: "alice", UserID: "1"})
	assert.Equal(t, []string{"alice"}, r.Members())

	r.handleEvent(v1.Event{Type: v1.TypeUserJoined, Username: "alice", UserID: "1"})
	assert.Equal(t, []string{"alice"}, r.Members())

	r.handleEvent(v1.Event{Type: v1.TypeUserJoined, Username: "bob", UserID: "2"})
	r.handleEvent(v1.Event{Type: v1.TypeUserJoined, Username: "me", UserID: "3"})
	assert.Equal(t, []string{"alice", "bob"}, r.Members())
	assert.Equal(t, 3, r.MemberCount())

	r.handleEvent(v1.Event{Type: v1.TypeUserLeft, Username: "carol"})
	assert.Equal(t, []string{"alice", "bob"}, r.Members())

	r.handleEvent(v1.Event{Type: v1.TypeUserLeft, Username: "alice"})
	r.handleEvent(v1.Event{Type: v1.TypeUserLeft, Username: "bob"})
	assert.Empty(t, r.Members())

	assert.Equal(t, 7, r.transcript.CountKind(EntrySystem))
	first := r.Transcript()[0]
	assert.Equal(t, "alice joined the room", first.Content)
}

func TestRoomAIStream(t *testing.T) {
	r := newDetachedRoom("me")

	r.handleEvent(v1.Event{Type: v1.TypeAIStart, Username: "alice", Prompt: "greet", Timestamp: "2025-03-01T10:20:30.5"})
	asker, active := r.Streaming()
	assert.True(t, active)
	assert.Equal(t, "alice", asker)

	r.handleEvent(v1.Event{Type: v1.TypeAIChunk, Content: "Hello "})
	r.handleEvent(v1.Event{Type: v1.TypeAIChunk, Content: "world"})
	assert.Equal(t, "Hello world", r.Partial())

	r.handleEvent(v1.Event{Type: v1.TypeAIComplete, FullResponse: "Hello world"})

	entries := r.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, EntryAIPrompt, entries[0].Kind)
	assert.Equal(t, "alice", entries[0].Author)
	assert.Equal(t, "greet", entries[0].Content)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 20, 30, 500000000, time.UTC), entries[0].At)
	assert.Equal(t, EntryAIResponse, entries[1].Kind)
	assert.Equal(t, "Hello world", entries[1].Content)

	_, active = r.Streaming()
	assert.False(t, active)
	assert.Empty(t, r.Partial())
}

func TestRoomAICompleteUsesServerResponse(t *testing.T) {
	r := newDetachedRoom("me")

	r.handleEvent(v1.Event{Type: v1.TypeAIStart, Username: "bob", Prompt: "p"})
	r.handleEvent(v1.Event{Type: v1.TypeAIChunk, Content: "Hel"})
	r.handleEvent(v1.Event{Type: v1.TypeAIComplete, FullResponse: "Hello, fixed"})

	last, ok := r.transcript.last()
	require.True(t, ok)
	assert.Equal(t, "Hello, fixed", last.Content)

	// Without full_response the local buffer is used.
	r.handleEvent(v1.Event{Type: v1.TypeAIStart, Username: "bob", Prompt: "p2"})
	r.handleEvent(v1.Event{Type: v1.TypeAIChunk, Content: "local"})
	r.handleEvent(v1.Event{Type: v1.TypeAIComplete})
	last, _ = r.transcript.last()
	assert.Equal(t, "local", last.Content)

	// A stray chunk is ignored.
	r.handleEvent(v1.Event{Type: v1.TypeAIChunk, Content: "stray"})
	assert.Empty(t, r.Partial())
}

func TestRoomMessagesAndErrors(t *testing.T) {
	r := newDetachedRoom("me")

	r.handleEvent(v1.Event{Type: v1.TypeMessage, Username: "alice", UserID: "1", Content: "hi"})
	r.handleEvent(v1.Event{Type: v1.TypeError, Message: "Rate limit exceeded"})

	entries := r.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, EntryUser, entries[0].Kind)
	assert.Equal(t, "alice", entries[0].Author)
	assert.False(t, entries[0].Mine)
	assert.Equal(t, EntryError, entries[1].Kind)
	assert.Equal(t, "Rate limit exceeded", entries[1].Content)
}

func TestJoinRoomInvalidID(t *testing.T) {
	for _, id := range []string{"", "  ", "a/b"} {
		_, err := JoinRoom(context.Background(), RoomOptions{BaseURL: "ws://localhost:8000", RoomID: id})
		require.ErrorIs(t, err, ErrInvalidRoomID, "id=%q", id)
	}
}

func TestRoomConnectsEagerly(t *testing.T) {
	p := newTestPeer(t)
	r := joinTestRoom(t, p, "abc", "me")

	assert.Equal(t, v1.TeamPathBase+"abc", <-p.paths)
	assert.Equal(t, "tok", <-p.tokens)
	assert.Equal(t, StateOpen, r.ConnState())
	p.accept(t)
}

func TestRoomSendOperations(t *testing.T) {
	p := newTestPeer(t)
	r := joinTestRoom(t, p, "abc", "me")
	server := p.accept(t)

	sent, err := r.SendMessage("hi all")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.JSONEq(t, `{"type":"message","content":"hi all"}`, p.nextFrame(t))

	entries := r.Transcript()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Mine)
	assert.Equal(t, "me", entries[0].Author)

	sent, err = r.SendAIPrompt("sort a list", v1.ModeDebug, "xs.sort()")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.JSONEq(t, `{"type":"ai_prompt","prompt":"sort a list","mode":"debug","code_context":"xs.sort()"}`, p.nextFrame(t))
	assert.Len(t, r.Transcript(), 1)

	// The prompt appears through the server echo only.
	write(t, server, `{"type":"ai_start","username":"me","prompt":"sort a list","timestamp":"2025-03-01T10:00:00"}`)
	write(t, server, `{"type":"ai_chunk","content":"use "}`)
	write(t, server, `{"type":"ai_complete","full_response":"use sorted()"}`)

	require.Eventually(t, func() bool { return len(r.Transcript()) == 3 }, 3*time.Second, 10*time.Millisecond)
	entries = r.Transcript()
	assert.Equal(t, EntryAIPrompt, entries[1].Kind)
	assert.Equal(t, "use sorted()", entries[2].Content)

	_, err = r.SendMessage("  ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	_, err = r.SendAIPrompt("x", "nope", "")
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestRoomLeaveClearsState(t *testing.T) {
	p := newTestPeer(t)
	r := joinTestRoom(t, p, "abc", "me")
	server := p.accept(t)

	write(t, server, `{"type":"user_joined","username":"alice","user_id":"1"}`)
	write(t, server, `{"type":"ai_start","username":"alice","prompt":"p"}`)
	write(t, server, `{"type":"ai_chunk","content":"partial"}`)
	require.Eventually(t, func() bool { return r.Partial() == "partial" }, 3*time.Second, 10*time.Millisecond)

	resets := 0
	r.Subscribe(func(u Update) {
		if u.Kind == UpdateReset {
			resets++
		}
	})

	r.Leave()
	r.Leave()

	assert.True(t, r.Left())
	assert.Equal(t, StateClosed, r.ConnState())
	assert.Empty(t, r.Members())
	assert.Empty(t, r.Transcript())
	assert.Empty(t, r.Partial())
	assert.Equal(t, 1, resets)

	_, err := r.SendMessage("hello?")
	require.ErrorIs(t, err, ErrRoomLeft)
	_, err = r.SendAIPrompt("hello?", v1.ModeGenerate, "")
	require.ErrorIs(t, err, ErrRoomLeft)

	again := joinTestRoom(t, p, "abc", "me")
	assert.Empty(t, again.Members())
	assert.Empty(t, again.Transcript())
}

func TestRoomLeaveDuringEventKeepsStateEmpty(t *testing.T) {
	cases := []struct {
		name    string
		trigger EntryKind
		ev      v1.Event
	}{
		{name: "user_joined", trigger: EntrySystem, ev: v1.Event{Type: v1.TypeUserJoined, Username: "alice", UserID: "1"}},
		{name: "ai_start", trigger: EntryAIPrompt, ev: v1.Event{Type: v1.TypeAIStart, Username: "alice", Prompt: "p"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newDetachedRoom("me")
			r.Subscribe(func(u Update) {
				if u.Kind == UpdateEntry && u.Entry.Kind == tc.trigger {
					r.Leave()
				}
			})

			r.handleEvent(tc.ev)
			r.handleEvent(v1.Event{Type: v1.TypeUserJoined, Username: "bob", UserID: "2"})
			r.handleEvent(v1.Event{Type: v1.TypeAIChunk, Content: "late"})

			assert.True(t, r.Left())
			assert.Empty(t, r.Members())
			assert.Empty(t, r.Transcript())
			assert.Empty(t, r.Partial())
			asker, active := r.Streaming()
			assert.False(t, active)
			assert.Empty(t, asker)
		})
	}
}

func TestRoomRemoteCloseAbortsStream(t *testing.T) {
	p := newTestPeer(t)
	r := joinTestRoom(t, p, "abc", "me")
	server := p.accept(t)

	write(t, server, `{"type":"ai_start","username":"alice","prompt":"p"}`)
	write(t, server, `{"type":"ai_chunk","content":"half"}`)
	require.Eventually(t, func() bool { return r.Partial() == "half" }, 3*time.Second, 10*time.Millisecond)

	_ = server.CloseNow()
	require.Eventually(t, func() bool { return r.ConnState() == StateClosed }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { _, active := r.Streaming(); return !active }, time.Second, 10*time.Millisecond)

	// No automatic reconnect; sends are dropped.
	sent, err := r.SendMessage("anyone?")
	require.NoError(t, err)
	assert.False(t, sent)
	p.noFrame(t, 100*time.Millisecond)
}

package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

// AssistantName is the author recorded on room AI responses.
const AssistantName = "AI"

// RoomOptions configures a RoomSession.
type RoomOptions struct {
	BaseURL string
	Token   string
	RoomID  string
	// Username is the local display name. It is used for optimistic entries and is never
	// added to the member set.
	Username string

	Logger       *slog.Logger
	Metrics      *Metrics
	WriteTimeout time.Duration
	HTTPClient   *http.Client
}

// RoomSession is one visit to a team room.
//
// It connects as soon as it is created. It keeps the member set (self excluded), the room
// transcript, and one StreamBuffer for the room's AI channel. Leave ends the visit and clears
// all of it; joining again means a new RoomSession with empty state.
type RoomSession struct {
	opts RoomOptions
	log  *slog.Logger
	conn *Connection

	mu      sync.Mutex
	members MemberSet
	buf     StreamBuffer
	asker   string
	left    bool
	unsubs  []func()

	transcript Transcript
	updates    Topic[Update]
}

// JoinRoom creates a RoomSession and starts connecting immediately. It does not wait for Open;
// use AwaitOpen for that.
func JoinRoom(ctx context.Context, opts RoomOptions) (*RoomSession, error) {
	endpoint, err := RoomEndpoint(opts.BaseURL, opts.RoomID)
	if err != nil {
		return nil, err
	}
	opts.RoomID = strings.TrimSpace(opts.RoomID)
	opts.Username = strings.TrimSpace(opts.Username)

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	r := &RoomSession{
		opts: opts,
		log:  log.With("surface", endpointRoom, "room_id", opts.RoomID),
	}
	r.conn = NewConnection(ConnOptions{
		Endpoint:     endpoint,
		Token:        opts.Token,
		Kind:         endpointRoom,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
		HTTPClient:   opts.HTTPClient,
		WriteTimeout: opts.WriteTimeout,
	})
	r.unsubs = []func(){
		r.conn.OnMessage(r.handleEvent),
		r.conn.OnError(func(err error) { r.log.Info("room.transport.error", "err", err) }),
		r.conn.OnClose(r.onClose),
	}

	if err := r.conn.Connect(ctx); err != nil {
		return nil, err
	}
	r.log.Info("room.join")
	return r, nil
}

// ID returns the room identifier.
func (r *RoomSession) ID() string { return r.opts.RoomID }

// Self returns the local display name.
func (r *RoomSession) Self() string { return r.opts.Username }

// Subscribe registers fn for state updates.
func (r *RoomSession) Subscribe(fn func(Update)) (unsubscribe func()) {
	return r.updates.Subscribe(fn)
}

// AwaitOpen waits for the room connection to open.
func (r *RoomSession) AwaitOpen(ctx context.Context) error { return r.conn.AwaitOpen(ctx) }

// ConnState returns the room connection state.
func (r *RoomSession) ConnState() ConnState { return r.conn.State() }

// SendMessage sends a peer chat message and records it locally right away, before any echo.
// The local entry is kept even if the frame is dropped.
func (r *RoomSession) SendMessage(content string) (bool, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return false, ErrEmptyMessage
	}

	r.mu.Lock()
	left := r.left
	r.mu.Unlock()
	if left {
		return false, ErrRoomLeft
	}

	sent := r.conn.Send(v1.NewRoomMessage(content))

	r.mu.Lock()
	if r.left {
		// Left while sending: the reset transcript stays empty.
		r.mu.Unlock()
		return sent, nil
	}
	e := r.transcript.Append(Entry{
		Kind:    EntryUser,
		Author:  r.opts.Username,
		Content: content,
		Mine:    true,
	})
	r.mu.Unlock()

	r.emitEntry(e)
	return sent, nil
}

// SendAIPrompt asks the room's assistant. Nothing is recorded locally: the prompt shows up
// when the server echoes ai_start to every member, sender included.
func (r *RoomSession) SendAIPrompt(prompt, mode, code string) (bool, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return false, ErrEmptyPrompt
	}
	if !v1.ValidMode(mode) {
		return false, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	r.mu.Lock()
	left := r.left
	r.mu.Unlock()
	if left {
		return false, ErrRoomLeft
	}

	return r.conn.Send(v1.NewRoomAIPrompt(prompt, mode, code)), nil
}

// Leave disconnects and clears members, transcript and the AI buffer. Safe to call twice.
// State is cleared in the same critical section that marks the room left, so an event
// applied concurrently either lands before the reset or is dropped.
func (r *RoomSession) Leave() {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return
	}
	r.left = true
	unsubs := r.unsubs
	r.unsubs = nil
	r.members.Reset()
	r.buf.Discard()
	r.asker = ""
	r.transcript.Reset()
	r.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	r.conn.Disconnect()

	r.opts.Metrics.members(0)
	r.log.Info("room.leave")
	r.updates.Publish(Update{Kind: UpdateReset})
	r.updates.Clear()
}

// handleEvent applies ev under r.mu and publishes the resulting updates after unlocking, so
// subscribers may call back into the session (Leave included).
func (r *RoomSession) handleEvent(ev v1.Event) {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return
	}
	pubs := r.applyLocked(ev)
	r.mu.Unlock()

	for _, u := range pubs {
		r.updates.Publish(u)
	}
}

func (r *RoomSession) applyLocked(ev v1.Event) []Update {
	switch ev.Type {
	case v1.TypeUserJoined:
		name := displayName(ev)
		pubs := []Update{r.systemLocked(ev, name+" joined the room")}
		if name != r.opts.Username && r.members.Add(name) {
			r.opts.Metrics.members(r.members.Len())
			pubs = append(pubs, Update{Kind: UpdateMembers, Members: r.members.List()})
		}
		return pubs

	case v1.TypeUserLeft:
		name := displayName(ev)
		pubs := []Update{r.systemLocked(ev, name+" left the room")}
		if r.members.Remove(name) {
			r.opts.Metrics.members(r.members.Len())
			pubs = append(pubs, Update{Kind: UpdateMembers, Members: r.members.List()})
		}
		return pubs

	case v1.TypeMessage:
		return []Update{entryUpdate(r.transcript.Append(Entry{
			Kind:    EntryUser,
			Author:  displayName(ev),
			UserID:  ev.UserID,
			Content: ev.Content,
			At:      eventTime(ev),
		}))}

	case v1.TypeAIStart:
		asker := displayName(ev)
		e := r.transcript.Append(Entry{
			Kind:    EntryAIPrompt,
			Author:  asker,
			UserID:  ev.UserID,
			Content: ev.Prompt,
			At:      eventTime(ev),
		})
		if !r.buf.Start() {
			r.log.Warn("room.ai.restart")
			r.opts.Metrics.violation(endpointRoom, "start_while_streaming")
		}
		r.asker = asker
		return []Update{entryUpdate(e), {Kind: UpdatePhase, Phase: PhaseStreaming}}

	case v1.TypeAIChunk:
		if !r.buf.Append(ev.Content) {
			r.log.Debug("room.ai.chunk.ignored", "reason", "idle")
			r.opts.Metrics.violation(endpointRoom, "chunk_while_idle")
			return nil
		}
		return []Update{{Kind: UpdateChunk, Chunk: ev.Content}}

	case v1.TypeAIComplete:
		chunks := r.buf.Chunks()
		partial, ok := r.buf.Finalize()
		r.asker = ""
		if !ok {
			r.opts.Metrics.violation(endpointRoom, "complete_while_idle")
		}

		// The server's full_response wins over what was assembled locally.
		final := ev.FullResponse
		if final == "" {
			final = partial
		}
		if final == "" && !ok {
			r.log.Debug("room.ai.complete.ignored", "reason", "idle")
			return nil
		}
		if ok && partial != final {
			r.log.Debug("room.ai.complete.diverged", "local_chars", len(partial), "server_chars", len(final))
		}

		r.opts.Metrics.exchange(endpointRoom, OutcomeComplete)
		r.log.Debug("room.ai.complete", "chunks", chunks, "chars", len(final))
		e := r.transcript.Append(Entry{
			Kind:    EntryAIResponse,
			Author:  AssistantName,
			Content: final,
			At:      eventTime(ev),
		})
		return []Update{entryUpdate(e), {Kind: UpdatePhase, Phase: PhaseIdle, Outcome: OutcomeComplete}}

	case v1.TypeError:
		msg := strings.TrimSpace(ev.Message)
		if msg == "" {
			msg = "request failed"
		}
		r.log.Info("room.error", "message", msg)
		return []Update{entryUpdate(r.transcript.Append(Entry{Kind: EntryError, Content: msg}))}

	default:
		r.log.Debug("room.event.unknown", "type", ev.Type)
		return nil
	}
}

func (r *RoomSession) onClose(ev CloseEvent) {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return
	}
	aborted := r.buf.Discard()
	r.asker = ""
	r.mu.Unlock()

	if aborted {
		r.opts.Metrics.exchange(endpointRoom, OutcomeAborted)
		r.log.Info("room.ai.aborted", "err", ev.Err)
		r.updates.Publish(Update{Kind: UpdatePhase, Phase: PhaseIdle, Outcome: OutcomeAborted})
	}
	r.log.Info("room.closed", "close_status", ev.Code, "reason", ev.Reason)
	r.updates.Publish(Update{Kind: UpdateConn, Conn: StateClosed})
}

func (r *RoomSession) systemLocked(ev v1.Event, text string) Update {
	return entryUpdate(r.transcript.Append(Entry{
		Kind:    EntrySystem,
		UserID:  ev.UserID,
		Content: text,
		At:      eventTime(ev),
	}))
}

func (r *RoomSession) emitEntry(e Entry) {
	r.updates.Publish(entryUpdate(e))
}

func entryUpdate(e Entry) Update { return Update{Kind: UpdateEntry, Entry: e} }

// Transcript returns the room entries in arrival order.
func (r *RoomSession) Transcript() []Entry { return r.transcript.Entries() }

// Members returns the other members in first-join order.
func (r *RoomSession) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members.List()
}

// MemberCount returns the number of people in the room, self included.
func (r *RoomSession) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members.Len() + 1
}

// Streaming reports whether an AI answer is being assembled, and who asked for it.
func (r *RoomSession) Streaming() (asker string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asker, r.buf.Active()
}

// Partial returns the AI answer accumulated so far.
func (r *RoomSession) Partial() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Text()
}

// Left reports whether Leave was called.
func (r *RoomSession) Left() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.left
}

func displayName(ev v1.Event) string {
	if n := strings.TrimSpace(ev.Username); n != "" {
		return n
	}
	if id := strings.TrimSpace(ev.UserID); id != "" {
		return id
	}
	return "unknown"
}

func eventTime(ev v1.Event) time.Time {
	if t, ok := ev.Time(); ok {
		return t
	}
	return time.Time{}
}

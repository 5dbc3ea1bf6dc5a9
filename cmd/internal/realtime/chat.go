package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

// HistoryRefresher is the read-only history projection refreshed after each completed exchange.
type HistoryRefresher interface {
	Refresh(ctx context.Context) error
}

// ChatOptions configures a ChatSession.
type ChatOptions struct {
	// BaseURL is the websocket server root, e.g. ws://localhost:8000.
	BaseURL string
	Token   string

	Logger  *slog.Logger
	Metrics *Metrics
	History HistoryRefresher

	// ReadyTimeout caps the wait for Open before a submit is sent anyway. Default 5s.
	ReadyTimeout time.Duration
	WriteTimeout time.Duration
	HTTPClient   *http.Client
}

// ChatSession is the single-user streaming chat.
//
// It connects lazily on the first Submit and again on the first Submit after its Connection
// closed. One exchange is assembled at a time in a single StreamBuffer: start opens it, chunks
// append, complete finalizes it into an assistant entry, error discards it and records an
// error entry. Out-of-order events are tolerated and counted.
type ChatSession struct {
	opts     ChatOptions
	log      *slog.Logger
	endpoint string

	mu      sync.Mutex
	conn    *Connection
	unsubs  []func()
	buf     StreamBuffer
	phase   StreamPhase
	outcome Outcome
	savedID string
	closed  bool

	transcript Transcript
	updates    Topic[Update]

	refreshes sync.WaitGroup
}

// NewChatSession validates opts and returns an unconnected session.
func NewChatSession(opts ChatOptions) (*ChatSession, error) {
	endpoint, err := ChatEndpoint(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("chat endpoint: %w", err)
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &ChatSession{
		opts:     opts,
		log:      log.With("surface", endpointChat),
		endpoint: endpoint,
	}, nil
}

// Subscribe registers fn for state updates. Updates are delivered on the connection's reader
// goroutine for inbound events and on the caller's goroutine for Submit.
func (s *ChatSession) Subscribe(fn func(Update)) (unsubscribe func()) {
	return s.updates.Subscribe(fn)
}

// Submit sends one prompt.
//
// The prompt is recorded as a user entry first. If the Connection is not Open, a new one is
// started and Submit waits up to ReadyTimeout for it; the send is attempted whatever the wait
// outcome, and is silently dropped if the Connection is still not Open. It reports whether the
// frame was written. Only validation failures and ctx cancellation return an error.
func (s *ChatSession) Submit(ctx context.Context, prompt, mode, code string) (bool, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return false, ErrEmptyPrompt
	}
	if !v1.ValidMode(mode) {
		return false, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	conn, err := s.ensureConn(ctx)
	if err != nil {
		return false, err
	}

	s.emitEntry(s.transcript.Append(Entry{Kind: EntryUser, Content: prompt, Mine: true}))

	if conn.State() != StateOpen {
		waitCtx, cancel := context.WithTimeout(ctx, s.opts.ReadyTimeout)
		start := time.Now()
		werr := conn.AwaitOpen(waitCtx)
		cancel()
		s.opts.Metrics.readyWait(time.Since(start))

		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if werr != nil {
			s.log.Info("chat.ready.timeout", "err", werr, "state", conn.State().String())
		}
	}

	return conn.Send(v1.NewPromptRequest(prompt, mode, code)), nil
}

// ensureConn returns the current Connection, replacing it when absent or Closed.
func (s *ChatSession) ensureConn(ctx context.Context) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrConnectionClosed
	}
	if s.conn != nil && s.conn.State() != StateClosed {
		return s.conn, nil
	}

	for _, u := range s.unsubs {
		u()
	}

	c := NewConnection(ConnOptions{
		Endpoint:     s.endpoint,
		Token:        s.opts.Token,
		Kind:         endpointChat,
		Logger:       s.opts.Logger,
		Metrics:      s.opts.Metrics,
		HTTPClient:   s.opts.HTTPClient,
		WriteTimeout: s.opts.WriteTimeout,
	})
	s.unsubs = []func(){
		c.OnMessage(s.handleEvent),
		c.OnError(func(err error) { s.onTransportDown(c, err) }),
		c.OnClose(func(ev CloseEvent) { s.onTransportDown(c, ev.Err) }),
	}
	s.conn = c

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChatSession) handleEvent(ev v1.Event) {
	switch ev.Type {
	case v1.TypeStart:
		s.mu.Lock()
		fresh := s.buf.Start()
		s.phase = PhaseStreaming
		s.mu.Unlock()

		if !fresh {
			s.log.Warn("chat.stream.restart")
			s.opts.Metrics.violation(endpointChat, "start_while_streaming")
		}
		s.updates.Publish(Update{Kind: UpdatePhase, Phase: PhaseStreaming})

	case v1.TypeChunk:
		s.mu.Lock()
		ok := s.buf.Append(ev.Content)
		s.mu.Unlock()

		if !ok {
			s.log.Debug("chat.chunk.ignored", "reason", "idle")
			s.opts.Metrics.violation(endpointChat, "chunk_while_idle")
			return
		}
		s.updates.Publish(Update{Kind: UpdateChunk, Chunk: ev.Content})

	case v1.TypeComplete:
		s.mu.Lock()
		chunks := s.buf.Chunks()
		text, ok := s.buf.Finalize()
		if ok {
			s.phase = PhaseIdle
			s.outcome = OutcomeComplete
		}
		s.mu.Unlock()

		if !ok {
			s.log.Debug("chat.complete.ignored", "reason", "idle")
			s.opts.Metrics.violation(endpointChat, "complete_while_idle")
			return
		}

		s.opts.Metrics.exchange(endpointChat, OutcomeComplete)
		s.log.Debug("chat.stream.complete", "chunks", chunks, "chars", len(text))
		s.emitEntry(s.transcript.Append(Entry{Kind: EntryAssistant, Content: text}))
		s.updates.Publish(Update{Kind: UpdatePhase, Phase: PhaseIdle, Outcome: OutcomeComplete})
		s.refreshHistory()

	case v1.TypeError:
		msg := strings.TrimSpace(ev.Message)
		if msg == "" {
			msg = "request failed"
		}

		s.mu.Lock()
		s.buf.Discard()
		s.phase = PhaseIdle
		s.outcome = OutcomeFailed
		s.mu.Unlock()

		s.opts.Metrics.exchange(endpointChat, OutcomeFailed)
		s.log.Info("chat.stream.error", "message", msg)
		s.emitEntry(s.transcript.Append(Entry{Kind: EntryError, Content: msg}))
		s.updates.Publish(Update{Kind: UpdatePhase, Phase: PhaseIdle, Outcome: OutcomeFailed})

	case v1.TypeChatSaved:
		s.mu.Lock()
		s.savedID = ev.ChatID
		s.mu.Unlock()
		s.updates.Publish(Update{Kind: UpdateSaved, ChatID: ev.ChatID})

	default:
		s.log.Debug("chat.event.unknown", "type", ev.Type)
	}
}

// onTransportDown drops a partial answer when c fails or closes. Events from a Connection that
// was already replaced are ignored.
func (s *ChatSession) onTransportDown(c *Connection, err error) {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	aborted := s.buf.Discard()
	s.phase = PhaseIdle
	if aborted {
		s.outcome = OutcomeAborted
	}
	s.mu.Unlock()

	if aborted {
		s.opts.Metrics.exchange(endpointChat, OutcomeAborted)
		s.log.Info("chat.stream.aborted", "err", err)
		s.updates.Publish(Update{Kind: UpdatePhase, Phase: PhaseIdle, Outcome: OutcomeAborted})
	}
	s.updates.Publish(Update{Kind: UpdateConn, Conn: c.State()})
}

func (s *ChatSession) refreshHistory() {
	h := s.opts.History
	if h == nil {
		return
	}

	s.refreshes.Add(1)
	go func() {
		defer s.refreshes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), historyRefreshTimeout)
		defer cancel()
		if err := h.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("chat.history.refresh.fail", "err", err)
		}
	}()
}

func (s *ChatSession) emitEntry(e Entry) {
	s.updates.Publish(Update{Kind: UpdateEntry, Entry: e})
}

// Transcript returns the entries recorded so far.
func (s *ChatSession) Transcript() []Entry { return s.transcript.Entries() }

// Phase reports whether an exchange is streaming.
func (s *ChatSession) Phase() StreamPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Partial returns the answer accumulated so far for the live exchange.
func (s *ChatSession) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Text()
}

// LastOutcome reports how the most recent exchange ended.
func (s *ChatSession) LastOutcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// LastSavedID returns the id from the most recent chat_saved event.
func (s *ChatSession) LastSavedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedID
}

// ConnState returns the state of the current Connection (Idle before the first Submit).
func (s *ChatSession) ConnState() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return StateIdle
	}
	return s.conn.State()
}

// Disconnect closes the current Connection. The next Submit reconnects.
func (s *ChatSession) Disconnect() {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c != nil {
		c.Disconnect()
	}
}

// Close disconnects for good and waits for pending history refreshes.
func (s *ChatSession) Close() {
	s.mu.Lock()
	s.closed = true
	c := s.conn
	s.mu.Unlock()

	if c != nil {
		c.Disconnect()
	}
	s.refreshes.Wait()
	s.updates.Clear()
}

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/naval-1647/CodeMonitor/cmd/security/token"
	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Zone-less ISO-8601, the shape room clients receive in timestamp fields.
	wsTimestampLayout = "2006-01-02T15:04:05.000000"
)

var errClientGone = errors.New("client gone")

// GatewayOptions configures a WSGateway. Zero values get dev-friendly defaults.
type GatewayOptions struct {
	Logger    *slog.Logger
	Hub       *Hub
	Store     Store
	Auth      *Authenticator
	Generator Generator
	Metrics   *Metrics

	// OriginRequired rejects upgrades without an Origin header.
	OriginRequired bool
	// AllowedOrigins lists full origins or bare hosts. "*" allows any origin.
	// Empty means same-host only.
	AllowedOrigins []string

	WriteTimeout     time.Duration
	SendQueueSize    int
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
}

// WSGateway serves the chat and team websocket endpoints.
//
// It enforces origin policy, authenticates the token query parameter, runs one writer and one
// heartbeat goroutine per session, and routes decoded frames to the chat or room handlers.
type WSGateway struct {
	log     *slog.Logger
	hub     *Hub
	store   Store
	auth    *Authenticator
	gen     Generator
	metrics *Metrics
	limits  *limiterSet

	originRequired bool
	allowedOrigins []string
	anyOrigin      bool
	originPatterns []string

	writeTimeout     time.Duration
	sendQueueSize    int
	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
}

func newWSGateway(opts GatewayOptions, limits *limiterSet) *WSGateway {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(log)
	}
	if opts.Store == nil {
		opts.Store = NewInMemoryStore()
	}
	if opts.Auth == nil {
		opts.Auth = NewAuthenticator(nil, true)
	}
	if opts.Generator == nil {
		opts.Generator = EchoGenerator{}
	}
	if limits == nil {
		limits = newLimiterSet(rateLimitRequests, rateLimitWindow)
	}

	g := &WSGateway{
		log:     log,
		hub:     opts.Hub,
		store:   opts.Store,
		auth:    opts.Auth,
		gen:     opts.Generator,
		metrics: opts.Metrics,
		limits:  limits,

		originRequired: opts.OriginRequired,
		allowedOrigins: opts.AllowedOrigins,
		anyOrigin:      slices.Contains(opts.AllowedOrigins, "*"),

		writeTimeout:     nonZeroDuration(opts.WriteTimeout, wsDefaultWriteTimeout),
		sendQueueSize:    max(opts.SendQueueSize, wsMinSendQueueSize),
		heartbeatEvery:   nonZeroDuration(opts.HeartbeatEvery, heartbeatInterval),
		heartbeatTimeout: nonZeroDuration(opts.HeartbeatTimeout, heartbeatTimeout),
	}
	if opts.SendQueueSize <= 0 {
		g.sendQueueSize = wsDefaultSendQueueSize
	}

	// websocket.Accept runs its own origin check (same host, or a match in OriginPatterns).
	// The patterns come from the allowlist so both checks agree.
	g.originPatterns = deriveOriginPatterns(g.allowedOrigins)
	return g
}

// HandleChat serves /ws/chat: one prompt in, start/chunk/complete/chat_saved out.
func (g *WSGateway) HandleChat(w http.ResponseWriter, r *http.Request) {
	g.serve(w, r, "chat", sessionHooks{
		frame: g.onChatFrame,
	})
}

// HandleTeam serves /ws/team/{room}: membership notices, peer messages and a shared AI stream.
func (g *WSGateway) HandleTeam(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("room"))
	if roomID == "" || len(roomID) > 128 {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}

	g.serve(w, r, "team", sessionHooks{
		attrs: []any{"room_id", roomID},
		open:  func(s *session) { g.onTeamOpen(s, roomID) },
		frame: g.onTeamFrame,
		close: g.onTeamClose,
	})
}

type sessionHooks struct {
	attrs []any
	open  func(s *session)
	frame func(s *session, data []byte)
	close func(s *session)
}

// session is one accepted websocket.
type session struct {
	ctx    context.Context
	log    *slog.Logger
	client *Client
	room   *Room
}

// send queues ev for this session only. It blocks until queued so streamed chunks are never
// dropped, and gives up once the session ends.
func (s *session) send(ev v1.Event) bool {
	b, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("ws.encode.fail", "type", ev.Type, "err", err)
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	case <-s.client.Done():
		return false
	case s.client.Send <- b:
		return true
	}
}

func (s *session) sendError(msg string) {
	_ = s.send(v1.Event{Type: v1.TypeError, Message: msg})
}

func (g *WSGateway) serve(w http.ResponseWriter, r *http.Request, endpoint string, hooks sessionHooks) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		g.metrics.rejected("origin")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.anyOrigin,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}

	// Auth happens after the upgrade so clients observe a policy-violation close, not an HTTP error.
	user, err := g.auth.FromQuery(r)
	if err != nil {
		g.log.Info("ws.reject.auth", "endpoint", endpoint, "url", token.RedactURL(r.URL.String()), "remote", r.RemoteAddr)
		g.metrics.rejected("auth")
		_ = conn.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(user, newSessionID(), g.sendQueueSize)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{
		ctx:    ctx,
		log:    g.log.With("endpoint", endpoint, "session_id", client.SessionID, "user_id", user.ID).With(hooks.attrs...),
		client: client,
	}

	var closeOnce sync.Once
	// shutdown is idempotent. It does NOT close client.Send.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.metrics.sessionOpen(endpoint, 1)
	defer g.metrics.sessionOpen(endpoint, -1)
	s.log.Info("ws.session.open", "username", user.Username)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case frame := <-client.Send:
				if err := writeFrame(ctx, conn, frame, g.writeTimeout); err != nil {
					s.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					s.log.Info("ws.ping.fail", "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	if hooks.open != nil {
		hooks.open(s)
	}

readLoop:
	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				s.log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}
		if mt != websocket.MessageText {
			s.sendError("text frames only")
			continue
		}
		hooks.frame(s, data)
	}

	if hooks.close != nil {
		hooks.close(s)
	}
	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	s.log.Info("ws.session.closed")
}

// ---- chat ----

func (g *WSGateway) onChatFrame(s *session, data []byte) {
	var req v1.PromptRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError("invalid JSON")
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		s.sendError("Prompt is required")
		return
	}
	if len([]rune(prompt)) > maxMessageChars {
		s.sendError(fmt.Sprintf("Prompt too long: max=%d chars", maxMessageChars))
		return
	}
	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = v1.ModeGenerate
	}
	if !v1.ValidMode(mode) {
		s.sendError("Invalid mode: " + mode)
		return
	}

	now := time.Now().UTC()
	rl := g.limits.get(s.client.User.ID)
	if !rl.Allow(now) {
		g.metrics.rejected("rate_limit")
		s.sendError(fmt.Sprintf("Rate limit exceeded. Remaining: %d", rl.Remaining(now)))
		return
	}

	if !s.send(v1.Event{Type: v1.TypeStart, Message: "Generating response..."}) {
		return
	}

	var code string
	if req.CodeContext != nil {
		code = *req.CodeContext
	}
	full, err := g.gen.Generate(s.ctx, GenerateRequest{Prompt: prompt, Mode: mode, CodeContext: code}, func(chunk string) error {
		if !s.send(v1.Event{Type: v1.TypeChunk, Content: chunk}) {
			return errClientGone
		}
		return nil
	})
	if err != nil {
		g.metrics.generation("chat", "fail")
		if s.ctx.Err() != nil || errors.Is(err, errClientGone) {
			s.log.Info("chat.generate.aborted", "err", err)
			return
		}
		s.log.Warn("chat.generate.fail", "err", err)
		s.sendError("Error generating response: " + err.Error())
		return
	}
	g.metrics.generation("chat", "ok")

	if !s.send(v1.Event{Type: v1.TypeComplete, Message: "Response complete"}) {
		return
	}

	ex, err := g.store.AppendExchange(s.ctx, AppendExchangeInput{
		UserID:      s.client.User.ID,
		Prompt:      prompt,
		Response:    full,
		Mode:        mode,
		CodeContext: req.CodeContext,
		Now:         now,
	})
	if err != nil {
		s.log.Error("chat.save.fail", "err", err)
		s.sendError("Error generating response: " + err.Error())
		return
	}
	s.log.Debug("chat.saved", "chat_id", ex.ID, "chars", len(full))
	_ = s.send(v1.Event{Type: v1.TypeChatSaved, ChatID: ex.ID})
}

// ---- team ----

func (g *WSGateway) onTeamOpen(s *session, roomID string) {
	s.room = g.hub.Join(roomID, s.client)

	s.room.Broadcast(encodeEvent(v1.Event{
		Type:      v1.TypeUserJoined,
		UserID:    s.client.User.ID,
		Username:  s.client.User.Username,
		Timestamp: isoNow(),
	}), s.client.SessionID)
}

func (g *WSGateway) onTeamFrame(s *session, data []byte) {
	var in v1.InboundRoomFrame
	if err := json.Unmarshal(data, &in); err != nil {
		s.sendError("invalid JSON")
		return
	}
	user := s.client.User

	switch in.Type {
	case "", v1.TypeMessage:
		content := strings.TrimSpace(in.Content)
		if content == "" {
			return
		}
		if len([]rune(content)) > maxMessageChars {
			s.sendError(fmt.Sprintf("Message too long: max=%d chars", maxMessageChars))
			return
		}
		s.room.Broadcast(encodeEvent(v1.Event{
			Type:      v1.TypeMessage,
			UserID:    user.ID,
			Username:  user.Username,
			Content:   content,
			Timestamp: isoNow(),
		}), s.client.SessionID)

	case v1.TypeAIPrompt:
		prompt := strings.TrimSpace(in.Prompt)
		if prompt == "" {
			return
		}
		mode := in.Mode
		if !v1.ValidMode(mode) {
			mode = v1.ModeGenerate
		}

		if !g.limits.get(user.ID).Allow(time.Now().UTC()) {
			g.metrics.rejected("rate_limit")
			s.sendError("Rate limit exceeded")
			return
		}

		// Every member sees the stream, the requester included.
		s.room.Broadcast(encodeEvent(v1.Event{
			Type:     v1.TypeAIStart,
			UserID:   user.ID,
			Username: user.Username,
			Prompt:   prompt,
		}), "")

		full, err := g.gen.Generate(s.ctx, GenerateRequest{Prompt: prompt, Mode: mode, CodeContext: in.CodeContext}, func(chunk string) error {
			s.room.Broadcast(encodeEvent(v1.Event{Type: v1.TypeAIChunk, Content: chunk, UserID: user.ID}), "")
			return nil
		})
		if err != nil {
			g.metrics.generation("team", "fail")
			s.log.Warn("team.generate.fail", "err", err)
			if s.ctx.Err() == nil {
				s.sendError("Error generating response: " + err.Error())
			}
			return
		}
		g.metrics.generation("team", "ok")

		s.room.Broadcast(encodeEvent(v1.Event{
			Type:         v1.TypeAIComplete,
			UserID:       user.ID,
			FullResponse: full,
		}), "")

	default:
		s.sendError("unsupported type: " + in.Type)
	}
}

func (g *WSGateway) onTeamClose(s *session) {
	if s.room == nil {
		return
	}
	g.hub.Leave(s.room.ID, s.client.SessionID)
	s.room.Broadcast(encodeEvent(v1.Event{
		Type:      v1.TypeUserLeft,
		UserID:    s.client.User.ID,
		Username:  s.client.User.Username,
		Timestamp: isoNow(),
	}), s.client.SessionID)
}

// ---- frame IO ----

func encodeEvent(ev v1.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}

func isoNow() string { return time.Now().UTC().Format(wsTimestampLayout) }

func writeFrame(parent context.Context, conn *websocket.Conn, frame []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if g.anyOrigin {
		return nil
	}

	originHost := originHostOnly(origin)
	if originHost != "" && originHost == originHostOnly(r.Host) {
		return nil
	}
	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		// Full origin match, then host match ignoring scheme and port.
		if origin == a || (originHost != "" && originHost == originHostOnly(a)) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns returns the sorted hosts of allowed, for websocket.AcceptOptions.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/naval-1647/CodeMonitor/cmd/security/token"
	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

// ConnOptions configures a Connection.
type ConnOptions struct {
	// Endpoint is the websocket URL without credentials (see ChatEndpoint, RoomEndpoint).
	Endpoint string
	// Token is sent as the token query parameter. It is never logged.
	Token string
	// Kind labels logs and metrics ("chat" or "room").
	Kind string

	Logger       *slog.Logger
	Metrics      *Metrics
	HTTPClient   *http.Client
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// CloseEvent describes how a Connection reached Closed.
type CloseEvent struct {
	// Code is the websocket close status, or -1 when the transport failed without one.
	Code   websocket.StatusCode
	Reason string
	// Local is true when Disconnect closed the connection.
	Local bool
	Err   error
}

// Connection owns one websocket to one endpoint.
//
// Lifecycle: Idle -> Connecting -> Open -> Closed. Closed is terminal; reconnecting means
// creating a new Connection. Inbound frames are decoded on a single reader goroutine and
// delivered to message observers one at a time, in arrival order.
type Connection struct {
	opts ConnOptions
	log  *slog.Logger

	state atomic.Int32

	mu     sync.Mutex
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	opened    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	messages Topic[v1.Event]
	errs     Topic[error]
	closes   Topic[CloseEvent]
}

// NewConnection returns an Idle Connection.
func NewConnection(opts ConnOptions) *Connection {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Kind == "" {
		opts.Kind = endpointChat
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Connection{
		opts:   opts,
		log:    log.With("endpoint", opts.Kind),
		opened: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// OnMessage registers an observer for decoded inbound events.
func (c *Connection) OnMessage(fn func(v1.Event)) (unsubscribe func()) {
	return c.messages.Subscribe(fn)
}

// OnError registers an observer for transport errors (dial, read, write).
func (c *Connection) OnError(fn func(error)) (unsubscribe func()) {
	return c.errs.Subscribe(fn)
}

// OnClose registers an observer for the single transition to Closed.
func (c *Connection) OnClose(fn func(CloseEvent)) (unsubscribe func()) {
	return c.closes.Subscribe(fn)
}

// Done is closed once the Connection is Closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Connect starts the handshake in the background and returns immediately.
// It fails with ErrConnectionUsed unless the Connection is Idle.
// Values from ctx are kept, but its cancellation does not end the connection; use Disconnect.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrConnectionUsed
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.ctx, c.cancel = runCtx, cancel
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// AwaitOpen blocks until the Connection is Open (nil), Closed (ErrConnectionClosed)
// or ctx is done (ctx.Err()).
func (c *Connection) AwaitOpen(ctx context.Context) error {
	if c.State() == StateClosed {
		return ErrConnectionClosed
	}
	select {
	case <-c.opened:
		if c.State() == StateOpen {
			return nil
		}
		return ErrConnectionClosed
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send encodes v as one JSON text frame. When the Connection is not Open the payload is
// logged and dropped: nothing is queued and no error is raised. It reports whether the
// frame was written.
func (c *Connection) Send(v any) bool {
	st := c.State()
	if st != StateOpen {
		c.log.Warn("ws.send.drop", "reason", "not_open", "state", st.String())
		c.opts.Metrics.dropped("out", "not_open")
		return false
	}

	c.mu.Lock()
	ws, parent := c.ws, c.ctx
	c.mu.Unlock()
	if ws == nil {
		c.log.Warn("ws.send.drop", "reason", "not_open", "state", c.State().String())
		c.opts.Metrics.dropped("out", "not_open")
		return false
	}

	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error("ws.send.encode.fail", "err", err)
		c.opts.Metrics.dropped("out", "encode")
		return false
	}

	ctx, cancel := context.WithTimeout(parent, c.opts.WriteTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, b); err != nil {
		c.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
		c.opts.Metrics.dropped("out", "write")
		c.errs.Publish(err)
		return false
	}
	c.opts.Metrics.frameOut(c.opts.Kind)
	return true
}

// Disconnect releases the socket without a close handshake and moves to Closed.
// It is safe to call in any state and more than once.
func (c *Connection) Disconnect() {
	c.finish(CloseEvent{Code: websocket.StatusNormalClosure, Reason: "disconnect", Local: true})
}

func (c *Connection) run(ctx context.Context) {
	dialURL, err := withToken(c.opts.Endpoint, c.opts.Token)
	if err != nil {
		c.fail(err, "bad endpoint")
		return
	}

	c.log.Debug("ws.dial",
		"url", token.RedactURL(dialURL),
		"token_fp", token.Fingerprint(c.opts.Token),
	)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	ws, _, err := websocket.Dial(dialCtx, dialURL, &websocket.DialOptions{HTTPClient: c.opts.HTTPClient})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			// Disconnect won the race; finish already ran.
			return
		}
		c.log.Info("ws.dial.fail", "url", token.RedactURL(dialURL), "err", err)
		c.opts.Metrics.connectResult(c.opts.Kind, "fail")
		c.fail(err, "dial failed")
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		c.mu.Unlock()
		_ = ws.CloseNow()
		return
	}
	c.ws = ws
	c.opts.Metrics.connectResult(c.opts.Kind, "ok")
	c.opts.Metrics.opened()
	close(c.opened)
	c.mu.Unlock()

	c.log.Info("ws.open", "url", token.RedactURL(c.opts.Endpoint))

	c.readLoop(ctx, ws)
}

func (c *Connection) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		mt, data, err := ws.Read(ctx)
		if err != nil {
			c.onReadErr(err)
			return
		}
		if mt != websocket.MessageText {
			c.log.Warn("ws.read.drop", "reason", "binary")
			c.opts.Metrics.dropped("in", "binary")
			continue
		}

		ev, err := v1.DecodeEvent(data)
		if err != nil {
			c.log.Warn("ws.decode.fail", "err", err, "bytes", len(data))
			c.opts.Metrics.dropped("in", "decode")
			continue
		}

		c.opts.Metrics.frameIn(ev.Type)
		c.messages.Publish(ev)
	}
}

func (c *Connection) onReadErr(err error) {
	if c.State() == StateClosed {
		return
	}

	if code := websocket.CloseStatus(err); code != -1 {
		c.log.Info("ws.closed.remote", "close_status", code)
		c.finish(CloseEvent{Code: code, Reason: closeReason(err), Err: err})
		return
	}

	switch {
	case errors.Is(err, context.Canceled):
		c.finish(CloseEvent{Code: -1, Reason: "canceled", Err: err})
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		c.log.Info("ws.read.eof", "err", err)
		c.fail(err, "connection lost")
	default:
		c.log.Info("ws.read.fail", "err", err)
		c.fail(err, "read failed")
	}
}

func (c *Connection) fail(err error, reason string) {
	c.errs.Publish(err)
	c.finish(CloseEvent{Code: -1, Reason: reason, Err: err})
}

func (c *Connection) finish(ev CloseEvent) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		prev := ConnState(c.state.Swap(int32(StateClosed)))
		ws, cancel := c.ws, c.cancel
		c.ws = nil
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if ws != nil {
			_ = ws.CloseNow()
		}
		if prev == StateOpen {
			c.opts.Metrics.closed()
		}
		close(c.done)

		c.log.Debug("ws.closed", "from", prev.String(), "reason", ev.Reason, "local", ev.Local)
		c.closes.Publish(ev)
	})
}

func closeReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

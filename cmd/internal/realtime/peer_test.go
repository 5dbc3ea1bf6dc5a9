package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

// testPeer is a scripted websocket server. Every accepted socket is handed to the test through
// conns; every text frame a client writes lands in frames.
type testPeer struct {
	srv    *httptest.Server
	conns  chan *websocket.Conn
	frames chan string
	paths  chan string
	tokens chan string
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()

	p := &testPeer{
		conns:  make(chan *websocket.Conn, 8),
		frames: make(chan string, 64),
		paths:  make(chan string, 8),
		tokens: make(chan string, 8),
	}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.paths <- r.URL.Path
		p.tokens <- r.URL.Query().Get("token")

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.CloseNow() }()
		p.conns <- c

		for {
			_, data, err := c.Read(r.Context())
			if err != nil {
				return
			}
			p.frames <- string(data)
		}
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *testPeer) URL() string { return p.srv.URL }

func (p *testPeer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-p.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("no client connected")
		return nil
	}
}

func (p *testPeer) nextFrame(t *testing.T) string {
	t.Helper()
	select {
	case f := <-p.frames:
		return f
	case <-time.After(3 * time.Second):
		t.Fatalf("no frame received")
		return ""
	}
}

func (p *testPeer) noFrame(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case f := <-p.frames:
		t.Fatalf("unexpected frame: %s", f)
	case <-time.After(wait):
	}
}

func write(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

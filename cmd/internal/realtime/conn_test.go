package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

func openConn(t *testing.T, p *testPeer, m *Metrics) (*Connection, *websocket.Conn) {
	t.Helper()

	endpoint, err := ChatEndpoint(p.URL())
	require.NoError(t, err)

	c := NewConnection(ConnOptions{Endpoint: endpoint, Token: "tok-1", Logger: quietLogger(), Metrics: m})
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.Connect(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.AwaitOpen(ctx))
	return c, p.accept(t)
}

func TestConnectionSendWhenNotOpen(t *testing.T) {
	p := newTestPeer(t)
	m := NewMetrics(prometheus.NewRegistry())

	endpoint, err := ChatEndpoint(p.URL())
	require.NoError(t, err)
	c := NewConnection(ConnOptions{Endpoint: endpoint, Logger: quietLogger(), Metrics: m})

	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.Send(v1.NewRoomMessage("lost")))

	c.Disconnect()
	assert.Equal(t, StateClosed, c.State())
	assert.False(t, c.Send(v1.NewRoomMessage("lost again")))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesDropped.WithLabelValues("out", "not_open")))
	p.noFrame(t, 100*time.Millisecond)
}

func TestConnectionLifecycle(t *testing.T) {
	p := newTestPeer(t)
	m := NewMetrics(prometheus.NewRegistry())
	c, _ := openConn(t, p, m)

	assert.Equal(t, v1.ChatPath, <-p.paths)
	assert.Equal(t, "tok-1", <-p.tokens)
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnsOpen))

	require.ErrorIs(t, c.Connect(context.Background()), ErrConnectionUsed)

	require.True(t, c.Send(v1.NewPromptRequest("hi", v1.ModeGenerate, "")))
	assert.JSONEq(t, `{"prompt":"hi","mode":"generate","code_context":null}`, p.nextFrame(t))

	var (
		mu     sync.Mutex
		closes []CloseEvent
	)
	c.OnClose(func(ev CloseEvent) {
		mu.Lock()
		closes = append(closes, ev)
		mu.Unlock()
	})

	c.Disconnect()
	c.Disconnect()

	assert.Equal(t, StateClosed, c.State())
	require.ErrorIs(t, c.AwaitOpen(context.Background()), ErrConnectionClosed)
	assert.False(t, c.Send(v1.NewRoomMessage("after close")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, closes, 1)
	assert.True(t, closes[0].Local)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConnsOpen))
}

func TestConnectionDropsUndecodableFrames(t *testing.T) {
	p := newTestPeer(t)
	m := NewMetrics(prometheus.NewRegistry())
	c, server := openConn(t, p, m)

	got := make(chan v1.Event, 4)
	c.OnMessage(func(ev v1.Event) { got <- ev })

	write(t, server, `not json`)
	write(t, server, `{"content":"no type"}`)
	write(t, server, `{"type":"chunk","content":"ok"}`)

	select {
	case ev := <-got:
		assert.Equal(t, v1.TypeChunk, ev.Type)
		assert.Equal(t, "ok", ev.Content)
	case <-time.After(3 * time.Second):
		t.Fatal("valid event not delivered")
	}

	assert.Equal(t, StateOpen, c.State())
	assert.Len(t, got, 0)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesDropped.WithLabelValues("in", "decode")))
}

func TestConnectionObserversInRegistrationOrder(t *testing.T) {
	p := newTestPeer(t)
	c, server := openConn(t, p, nil)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(tag string) func(v1.Event) {
		return func(ev v1.Event) {
			mu.Lock()
			order = append(order, tag+":"+ev.Content)
			mu.Unlock()
		}
	}
	c.OnMessage(record("a"))
	unsubB := c.OnMessage(record("b"))
	c.OnMessage(record("c"))

	write(t, server, `{"type":"chunk","content":"1"}`)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 3*time.Second, 10*time.Millisecond)

	unsubB()
	write(t, server, `{"type":"chunk","content":"2"}`)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a:1", "b:1", "c:1", "a:2", "c:2"}, order)
}

func TestConnectionRemoteClose(t *testing.T) {
	p := newTestPeer(t)
	c, server := openConn(t, p, nil)

	closed := make(chan CloseEvent, 1)
	c.OnClose(func(ev CloseEvent) { closed <- ev })

	_ = server.Close(websocket.StatusGoingAway, "restart")

	select {
	case ev := <-closed:
		assert.Equal(t, websocket.StatusGoingAway, ev.Code)
		assert.Equal(t, "restart", ev.Reason)
		assert.False(t, ev.Local)
	case <-time.After(3 * time.Second):
		t.Fatal("close not observed")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestConnectionDialFailure(t *testing.T) {
	p := newTestPeer(t)
	endpoint, err := ChatEndpoint(p.URL())
	require.NoError(t, err)
	p.srv.Close()

	c := NewConnection(ConnOptions{Endpoint: endpoint, Logger: quietLogger(), DialTimeout: time.Second})
	errs := make(chan error, 1)
	c.OnError(func(err error) { errs <- err })

	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.ErrorIs(t, c.AwaitOpen(ctx), ErrConnectionClosed)
	assert.Equal(t, StateClosed, c.State())
	require.Len(t, errs, 1)
}

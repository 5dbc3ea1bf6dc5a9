package realtime

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naval-1647/CodeMonitor/cmd/internal/api"
	"github.com/naval-1647/CodeMonitor/cmd/internal/devserver"
	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

func startDevPeer(t *testing.T) string {
	t.Helper()
	srv := devserver.New(devserver.Config{
		Logger: quietLogger(),
		Tokens: map[string]string{"tok-alice": "alice", "tok-bob": "bob"},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestE2E_ChatRefreshesHistory(t *testing.T) {
	base := startDevPeer(t)

	client, err := api.New(api.Config{BaseURL: base, Token: "tok-alice", Logger: quietLogger()})
	require.NoError(t, err)
	hist := history.NewLog(client, history.WithLogger(quietLogger()))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s := newTestChat(t, base, ChatOptions{Token: "tok-alice", History: hist, Metrics: metrics})

	sent, err := s.Submit(context.Background(), "sort a slice", v1.ModeGenerate, "ignored")
	require.NoError(t, err)
	require.True(t, sent)

	want := devserver.EchoAnswer(devserver.GenerateRequest{Prompt: "sort a slice", Mode: v1.ModeGenerate})
	require.Eventually(t, func() bool {
		return s.LastSavedID() != "" && len(hist.Items()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	entries := s.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, EntryUser, entries[0].Kind)
	assert.Equal(t, EntryAssistant, entries[1].Kind)
	assert.Equal(t, want, entries[1].Content)
	assert.Equal(t, OutcomeComplete, s.LastOutcome())

	item := hist.Items()[0]
	assert.Equal(t, s.LastSavedID(), item.ID)
	assert.Equal(t, "sort a slice", item.Prompt())
	assert.Equal(t, want, item.Answer())
	assert.Nil(t, item.CodeContext, "generate mode sends a null code_context")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Exchanges.WithLabelValues(endpointChat, OutcomeComplete.String())))
}

func TestE2E_ChatRejectedToken(t *testing.T) {
	base := startDevPeer(t)
	s := newTestChat(t, base, ChatOptions{Token: "wrong"})

	_, err := s.Submit(context.Background(), "hi", v1.ModeGenerate, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.ConnState() == StateClosed }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Len(t, s.Transcript(), 1, "only the optimistic user entry")
}

func TestE2E_RoomConversation(t *testing.T) {
	base := startDevPeer(t)
	ctx := context.Background()

	alice, err := JoinRoom(ctx, RoomOptions{BaseURL: base, Token: "tok-alice", RoomID: "pairing", Username: "alice", Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(alice.Leave)
	require.NoError(t, alice.AwaitOpen(ctx))

	bob, err := JoinRoom(ctx, RoomOptions{BaseURL: base, Token: "tok-bob", RoomID: "pairing", Username: "bob", Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(bob.Leave)
	require.NoError(t, bob.AwaitOpen(ctx))

	require.Eventually(t, func() bool { return len(alice.Members()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"bob"}, alice.Members())
	assert.Equal(t, 2, alice.MemberCount())

	sent, err := bob.SendMessage("look at line 12")
	require.NoError(t, err)
	require.True(t, sent)

	require.Eventually(t, func() bool {
		last, ok := lastEntry(alice.Transcript())
		return ok && last.Kind == EntryUser && last.Content == "look at line 12"
	}, 5*time.Second, 10*time.Millisecond)

	// Optimistic only: bob's transcript holds exactly one copy.
	bobMsgs := 0
	for _, e := range bob.Transcript() {
		if e.Kind == EntryUser {
			bobMsgs++
			assert.True(t, e.Mine)
		}
	}
	assert.Equal(t, 1, bobMsgs)

	_, err = alice.SendAIPrompt("explain it", v1.ModeExplain, "x := 1")
	require.NoError(t, err)

	want := devserver.EchoAnswer(devserver.GenerateRequest{Prompt: "explain it", Mode: v1.ModeExplain, CodeContext: "x := 1"})
	for _, r := range []*RoomSession{alice, bob} {
		require.Eventually(t, func() bool {
			last, ok := lastEntry(r.Transcript())
			return ok && last.Kind == EntryAIResponse
		}, 5*time.Second, 10*time.Millisecond)

		var prompts int
		for _, e := range r.Transcript() {
			if e.Kind == EntryAIPrompt {
				prompts++
				assert.Equal(t, "alice", e.Author)
			}
		}
		assert.Equal(t, 1, prompts, "%s sees the prompt once", r.Self())

		last, _ := lastEntry(r.Transcript())
		assert.Equal(t, want, last.Content)
		assert.Equal(t, AssistantName, last.Author)
		_, active := r.Streaming()
		assert.False(t, active)
	}

	bob.Leave()
	require.Eventually(t, func() bool { return len(alice.Members()) == 0 }, 5*time.Second, 10*time.Millisecond)
	last, _ := lastEntry(alice.Transcript())
	assert.Equal(t, "bob left the room", last.Content)
}

func lastEntry(es []Entry) (Entry, bool) {
	if len(es) == 0 {
		return Entry{}, false
	}
	return es[len(es)-1], true
}

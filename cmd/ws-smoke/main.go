// Package main provides a CI-friendly smoke run of the CodeMonitor realtime client against a peer
// (a deployed backend or `codemonitor devserver`).
//
// It validates:
//   - chat: lazy connect, start/chunk/complete streaming, chat_saved, history refresh
//   - room: join notice, peer message fanout, AI stream reaching every member with the same answer
//   - room: leave notice
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/naval-1647/CodeMonitor/cmd/internal/api"
	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
	"github.com/naval-1647/CodeMonitor/cmd/internal/realtime"
	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8000", "websocket base URL")
		apiURL  = flag.String("api", "http://127.0.0.1:8000", "REST base URL")
		tokA    = flag.String("token-a", "smoke-a", "token for client A")
		tokB    = flag.String("token-b", "smoke-b", "token for client B")
		nameA   = flag.String("name-a", "", "display name the peer assigns to A (default: read from user_joined)")
		room    = flag.String("room", fmt.Sprintf("smoke-%d", time.Now().Unix()), "room id")
		prompt  = flag.String("prompt", "write a hello world in go", "chat prompt")
		text    = flag.String("text", "hello codemonitor 👋", "room message")
		timeout = flag.Duration("timeout", 15*time.Second, "per-step timeout")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*wsURL, "ws", "wss"); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateBaseURL(*apiURL, "http", "https"); err != nil {
		fatalf("invalid -api: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	root := context.Background()

	chatID := smokeChat(root, log, *wsURL, *apiURL, *tokA, *prompt, *timeout)
	answer, joinedAs := smokeRoom(root, log, *wsURL, *tokA, *tokB, *nameA, *room, *text, *timeout)

	fmt.Printf("OK: chat_id=%s room=%s a_joined_as=%s ai_chars=%d\n", chatID, *room, joinedAs, len(answer))
}

func smokeChat(ctx context.Context, log *slog.Logger, wsURL, apiURL, tok, prompt string, stepTimeout time.Duration) string {
	client, err := api.New(api.Config{BaseURL: apiURL, Token: tok, Logger: log})
	if err != nil {
		fatalf("api client: %v", err)
	}
	hist := history.NewLog(client, history.WithLogger(log))

	s, err := realtime.NewChatSession(realtime.ChatOptions{
		BaseURL: wsURL,
		Token:   tok,
		Logger:  log,
		History: hist,
	})
	if err != nil {
		fatalf("chat session: %v", err)
	}
	defer s.Close()

	done := make(chan realtime.Outcome, 1)
	unsubscribe := s.Subscribe(func(u realtime.Update) {
		if u.Kind == realtime.UpdatePhase && u.Phase == realtime.PhaseIdle {
			select {
			case done <- u.Outcome:
			default:
			}
		}
	})
	defer unsubscribe()

	sent, err := s.Submit(ctx, prompt, v1.ModeGenerate, "")
	if err != nil {
		fatalf("chat submit: %v", err)
	}
	if !sent {
		fatalf("chat submit: dropped (connection not open after %s)", realtime.DefaultReadyTimeout)
	}

	select {
	case o := <-done:
		if o != realtime.OutcomeComplete {
			fatalf("chat outcome: got=%s want=complete (transcript=%v)", o, s.Transcript())
		}
	case <-time.After(stepTimeout):
		fatalf("chat: no complete within %s (partial=%q)", stepTimeout, s.Partial())
	}

	entries := s.Transcript()
	last := entries[len(entries)-1]
	if last.Kind != realtime.EntryAssistant || strings.TrimSpace(last.Content) == "" {
		fatalf("chat: last entry kind=%s content=%q", last.Kind, last.Content)
	}

	chatID := waitFor(stepTimeout, "chat_saved", func() (string, bool) {
		id := s.LastSavedID()
		return id, id != ""
	})
	waitFor(stepTimeout, "history refresh", func() (struct{}, bool) {
		for _, ex := range hist.Items() {
			if ex.ID == chatID {
				return struct{}{}, true
			}
		}
		return struct{}{}, false
	})
	return chatID
}

func smokeRoom(ctx context.Context, log *slog.Logger, wsURL, tokA, tokB, nameA, room, text string, stepTimeout time.Duration) (answer, joinedAs string) {
	join := func(tok, name string) *realtime.RoomSession {
		r, err := realtime.JoinRoom(ctx, realtime.RoomOptions{
			BaseURL:  wsURL,
			Token:    tok,
			RoomID:   room,
			Username: name,
			Logger:   log,
		})
		if err != nil {
			fatalf("join %s: %v", name, err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		defer cancel()
		if err := r.AwaitOpen(waitCtx); err != nil {
			fatalf("join %s: %v", name, err)
		}
		return r
	}

	b := join(tokB, "smoke-b")
	defer b.Leave()
	a := join(tokA, nameA)
	defer a.Leave()

	// B learns A's peer-assigned name from user_joined.
	joinedAs = waitFor(stepTimeout, "user_joined", func() (string, bool) {
		m := b.Members()
		if len(m) == 0 {
			return "", false
		}
		return m[0], true
	})
	if nameA != "" && joinedAs != nameA {
		fatalf("user_joined name: got=%q want=%q", joinedAs, nameA)
	}

	if _, err := a.SendMessage(text); err != nil {
		fatalf("room message: %v", err)
	}
	waitFor(stepTimeout, "message fanout", func() (struct{}, bool) {
		last, ok := lastEntry(b)
		return struct{}{}, ok && last.Kind == realtime.EntryUser && last.Content == text && !last.Mine
	})

	if _, err := b.SendAIPrompt("explain this message", v1.ModeExplain, text); err != nil {
		fatalf("room ai prompt: %v", err)
	}
	answers := make([]string, 0, 2)
	for _, r := range []*realtime.RoomSession{a, b} {
		answers = append(answers, waitFor(stepTimeout, "ai_complete", func() (string, bool) {
			last, ok := lastEntry(r)
			return last.Content, ok && last.Kind == realtime.EntryAIResponse
		}))
	}
	if answers[0] != answers[1] || answers[0] == "" {
		fatalf("ai answers differ: a=%q b=%q", answers[0], answers[1])
	}

	a.Leave()
	waitFor(stepTimeout, "user_left", func() (struct{}, bool) {
		return struct{}{}, len(b.Members()) == 0
	})

	return answers[0], joinedAs
}

func lastEntry(r *realtime.RoomSession) (realtime.Entry, bool) {
	es := r.Transcript()
	if len(es) == 0 {
		return realtime.Entry{}, false
	}
	return es[len(es)-1], true
}

// waitFor polls cond until it holds or timeout elapses, then fails the run.
func waitFor[T any](timeout time.Duration, step string, cond func() (T, bool)) T {
	deadline := time.Now().Add(timeout)
	for {
		if v, ok := cond(); ok {
			return v
		}
		if time.Now().After(deadline) {
			fatalf("%s: timed out after %s", step, timeout)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func validateBaseURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	ok := false
	for _, s := range schemes {
		ok = ok || u.Scheme == s
	}
	if !ok {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

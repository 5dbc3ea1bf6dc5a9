package devserver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEchoGenerator_ChunksConcatenate(t *testing.T) {
	req := GenerateRequest{Prompt: "reverse a list in go", Mode: "generate"}

	var chunks []string
	full, err := EchoGenerator{}.Generate(context.Background(), req, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if full != EchoAnswer(req) || strings.Join(chunks, "") != full {
		t.Fatalf("full=%q chunks=%q", full, chunks)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
}

func TestEchoGenerator_StopsOnEmitError(t *testing.T) {
	boom := errors.New("boom")
	n := 0
	_, err := EchoGenerator{}.Generate(context.Background(), GenerateRequest{Prompt: "a b c d", Mode: "generate"}, func(string) error {
		n++
		if n == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) || n != 2 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

func TestEchoGenerator_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := EchoGenerator{Delay: time.Hour}

	n := 0
	_, err := g.Generate(ctx, GenerateRequest{Prompt: "a b c", Mode: "generate"}, func(string) error {
		n++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

func TestEchoAnswer_MentionsCodeContext(t *testing.T) {
	got := EchoAnswer(GenerateRequest{Prompt: "fix", Mode: "debug", CodeContext: "a\nb\nc"})
	if got != "[debug] fix (context: 3 lines)" {
		t.Fatalf("got %q", got)
	}
}

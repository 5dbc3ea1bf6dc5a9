package devserver

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GenerateRequest is one prompt handed to a Generator.
type GenerateRequest struct {
	Prompt      string
	Mode        string
	CodeContext string
}

// Generator produces an answer as a sequence of chunks.
//
// emit is called once per chunk, in order; an emit error aborts generation and is returned.
// The returned string is the full answer (the concatenation of all emitted chunks).
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest, emit func(chunk string) error) (string, error)
}

// EchoGenerator answers with a deterministic restatement of the request, one word per chunk.
type EchoGenerator struct {
	// Delay is slept between chunks.
	Delay time.Duration
}

// Generate implements Generator.
func (g EchoGenerator) Generate(ctx context.Context, req GenerateRequest, emit func(string) error) (string, error) {
	var full strings.Builder
	for i, chunk := range splitChunks(EchoAnswer(req)) {
		if i > 0 && g.Delay > 0 {
			t := time.NewTimer(g.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return full.String(), ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
		if err := emit(chunk); err != nil {
			return full.String(), err
		}
		full.WriteString(chunk)
	}
	return full.String(), nil
}

// EchoAnswer is the text EchoGenerator streams for req.
func EchoAnswer(req GenerateRequest) string {
	answer := fmt.Sprintf("[%s] %s", req.Mode, strings.TrimSpace(req.Prompt))
	if code := strings.TrimSpace(req.CodeContext); code != "" {
		answer += fmt.Sprintf(" (context: %d lines)", strings.Count(code, "\n")+1)
	}
	return answer
}

// splitChunks splits s after each space so the chunks concatenate back to s.
func splitChunks(s string) []string {
	if s == "" {
		return nil
	}
	out := strings.SplitAfter(s, " ")
	if out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

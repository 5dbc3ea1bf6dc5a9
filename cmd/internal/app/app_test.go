package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "loopback", in: "127.0.0.1:8000", want: "http://127.0.0.1:8000"},
		{name: "port only", in: ":8000", want: "http://127.0.0.1:8000"},
		{name: "bind all v4", in: "0.0.0.0:8000", want: "http://127.0.0.1:8000"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
		{name: "no port", in: "localhost", want: "http://localhost"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := runtimeBaseURL(tc.in); got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8000", want: "ws://127.0.0.1:8000"},
		{in: "https://codemonitor.example.com/base", want: "wss://codemonitor.example.com/base"},
		{in: "ws://already:1", want: "ws://already:1"},
		{in: "127.0.0.1:8000", want: "ws://127.0.0.1:8000"},
	}

	for _, tc := range cases {
		if got := wsBaseURL(tc.in); got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestDiagnosticsHandler(t *testing.T) {
	base := startDevPeer(t)
	a := newTestApp(t, base, "tok-alice", "alice")

	// One connect so the client metrics have a sample.
	s, err := a.NewChatSession()
	if err != nil {
		t.Fatalf("NewChatSession: %v", err)
	}
	defer s.Close()
	if _, err := s.Submit(context.Background(), "ping", "generate", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	srv := httptest.NewServer(a.diagnosticsHandler())
	defer srv.Close()

	for path, want := range map[string]string{
		"/healthz": "ok",
		"/readyz":  "ready",
		"/metrics": "codemonitor_ws_connect_total",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, resp.StatusCode)
		}
		if !strings.Contains(string(body), want) {
			t.Fatalf("GET %s body missing %q", path, want)
		}
		if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("GET %s missing nosniff: %q", path, got)
		}
	}
}

func TestStartDiagnostics_DisabledWithoutAddr(t *testing.T) {
	base := startDevPeer(t)
	a := newTestApp(t, base, "tok-alice", "alice")

	if err := a.StartDiagnostics(context.Background()); err != nil {
		t.Fatalf("StartDiagnostics: %v", err)
	}
	if a.diag != nil {
		t.Fatalf("diagnostics started without an address")
	}
}

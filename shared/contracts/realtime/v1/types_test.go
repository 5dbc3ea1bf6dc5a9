package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "chunk", in: `{"type":"chunk","content":"Hello "}`, want: TypeChunk},
		{name: "padded type", in: `{"type":" ai_start ","username":"alice","prompt":"hi"}`, want: TypeAIStart},
		{name: "unknown type still decodes", in: `{"type":"pong"}`, want: "pong"},
		{name: "missing type", in: `{"content":"x"}`, wantErr: true},
		{name: "not json", in: `chunk`, wantErr: true},
		{name: "truncated", in: `{"type":"chunk"`, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ev, err := DecodeEvent([]byte(tc.in))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("DecodeEvent(%q): expected error, got %+v", tc.in, ev)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent(%q): %v", tc.in, err)
			}
			if ev.Type != tc.want {
				t.Fatalf("type=%q want=%q", ev.Type, tc.want)
			}
		})
	}
}

func TestEventVocabulary(t *testing.T) {
	t.Parallel()

	if !(Event{Type: TypeChunk}).IsChat() || (Event{Type: TypeChunk}).IsRoom() {
		t.Fatalf("chunk must be chat-only")
	}
	if !(Event{Type: TypeAIComplete}).IsRoom() || (Event{Type: TypeAIComplete}).IsChat() {
		t.Fatalf("ai_complete must be room-only")
	}
	if !(Event{Type: TypeError}).IsChat() || !(Event{Type: TypeError}).IsRoom() {
		t.Fatalf("error belongs to both vocabularies")
	}
}

func TestEventTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{in: "2025-03-01T10:20:30.123456", want: time.Date(2025, 3, 1, 10, 20, 30, 123456000, time.UTC), ok: true},
		{in: "2025-03-01T10:20:30Z", want: time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC), ok: true},
		{in: "2025-03-01T12:20:30+02:00", want: time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC), ok: true},
		{in: "", ok: false},
		{in: "yesterday", ok: false},
	}

	for _, tc := range cases {
		got, ok := Event{Timestamp: tc.in}.Time()
		if ok != tc.ok {
			t.Fatalf("Time(%q) ok=%v want=%v", tc.in, ok, tc.ok)
		}
		if ok && !got.Equal(tc.want) {
			t.Fatalf("Time(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestPromptRequestCodeContext(t *testing.T) {
	t.Parallel()

	gen, err := json.Marshal(NewPromptRequest("write a parser", ModeGenerate, "ignored"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(gen) != `{"prompt":"write a parser","mode":"generate","code_context":null}` {
		t.Fatalf("generate payload=%s", gen)
	}

	dbg, err := json.Marshal(NewPromptRequest("why", ModeDebug, "x := 1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(dbg) != `{"prompt":"why","mode":"debug","code_context":"x := 1"}` {
		t.Fatalf("debug payload=%s", dbg)
	}

	empty, err := json.Marshal(NewPromptRequest("why", ModeExplain, ""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(empty) != `{"prompt":"why","mode":"explain","code_context":""}` {
		t.Fatalf("explain payload=%s", empty)
	}
}

func TestRoomPayloads(t *testing.T) {
	t.Parallel()

	msg, _ := json.Marshal(NewRoomMessage("hi all"))
	if string(msg) != `{"type":"message","content":"hi all"}` {
		t.Fatalf("room message=%s", msg)
	}

	ai, _ := json.Marshal(NewRoomAIPrompt("sort a list", ModeGenerate, "dropped"))
	if string(ai) != `{"type":"ai_prompt","prompt":"sort a list","mode":"generate"}` {
		t.Fatalf("room ai prompt=%s", ai)
	}
}

func TestValidMode(t *testing.T) {
	t.Parallel()

	for _, m := range Modes {
		if !ValidMode(m) {
			t.Fatalf("ValidMode(%q)=false", m)
		}
	}
	if ValidMode("refactor") || ValidMode("") {
		t.Fatalf("unexpected mode accepted")
	}
}

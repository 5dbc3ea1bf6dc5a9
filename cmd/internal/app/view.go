package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/naval-1647/CodeMonitor/cmd/internal/api"
	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
	"github.com/naval-1647/CodeMonitor/cmd/internal/realtime"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	authorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	aiStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("13")).
		Bold(true)
)

// lineReader is the input side of a terminal view.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// console provides line editing and input history for the interactive views.
type console struct {
	line        *liner.State
	historyFile string
}

func newConsole(name string) *console {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &console{line: line, historyFile: historyPath(name)}
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		_ = f.Close()
	}
	return c
}

func historyPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "codemonitor", name+"_history")
}

func (c *console) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close persists input history (0600) and restores the terminal.
func (c *console) Close() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = c.line.WriteHistory(f)
			_ = f.Close()
		}
	}
	_ = c.line.Close()
}

// isQuit reports whether err from ReadInput means the user is done (Ctrl+C or Ctrl+D).
func isQuit(err error) bool {
	return err == liner.ErrPromptAborted || err == io.EOF
}

// streamPrinter writes transcript lines and live chunks to w without interleaving them.
type streamPrinter struct {
	mu        sync.Mutex
	w         io.Writer
	streaming bool
	streamed  strings.Builder
}

func newStreamPrinter(w io.Writer) *streamPrinter {
	return &streamPrinter{w: w}
}

// begin opens a live answer line with header.
func (p *streamPrinter) begin(header string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()
	fmt.Fprint(p.w, header)
	p.streaming = true
	p.streamed.Reset()
}

func (p *streamPrinter) chunk(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.streaming {
		fmt.Fprint(p.w, aiStyle.Render(realtime.AssistantName)+": ")
		p.streaming = true
		p.streamed.Reset()
	}
	fmt.Fprint(p.w, s)
	p.streamed.WriteString(s)
}

// finish closes the live line. It reports whether final was already shown in full.
func (p *streamPrinter) finish(final string) (shown bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.streaming {
		return false
	}
	shown = p.streamed.String() == final
	p.endLocked()
	return shown
}

func (p *streamPrinter) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()
	fmt.Fprintln(p.w, s)
}

func (p *streamPrinter) endLocked() {
	if p.streaming {
		fmt.Fprintln(p.w)
		p.streaming = false
		p.streamed.Reset()
	}
}

func renderEntry(e realtime.Entry) string {
	switch e.Kind {
	case realtime.EntryUser:
		name := e.Author
		if e.Mine || name == "" {
			name = "you"
		}
		return authorStyle.Render(name) + ": " + e.Content
	case realtime.EntryAssistant, realtime.EntryAIResponse:
		return aiStyle.Render(realtime.AssistantName) + ": " + e.Content
	case realtime.EntryAIPrompt:
		return authorStyle.Render(e.Author) + infoStyle.Render(" asked AI: ") + e.Content
	case realtime.EntryError:
		return errorStyle.Render("[error]") + " " + e.Content
	case realtime.EntrySystem:
		return infoStyle.Render("* " + e.Content)
	default:
		return e.Content
	}
}

func renderExchange(n int, ex history.Exchange) string {
	when := ""
	if !ex.CreatedAt.IsZero() {
		when = ex.CreatedAt.Local().Format(time.DateTime)
	}
	return fmt.Sprintf("%3d. %s %s %s",
		n,
		commandStyle.Render("["+ex.Mode+"]"),
		truncate(oneLine(ex.Prompt()), 60),
		infoStyle.Render(when+" "+ex.ID),
	)
}

func renderSnippet(s api.Snippet) string {
	tags := ""
	if len(s.Tags) > 0 {
		tags = " #" + strings.Join(s.Tags, " #")
	}
	return fmt.Sprintf("%s %s %s%s",
		infoStyle.Render(s.ID),
		commandStyle.Render("["+s.Language+"]"),
		s.Title,
		infoStyle.Render(tags),
	)
}

func renderSnippetDetail(s api.Snippet) string {
	var b strings.Builder
	b.WriteString(renderSnippet(s))
	b.WriteByte('\n')
	if s.Description != nil && *s.Description != "" {
		b.WriteString(infoStyle.Render(*s.Description))
		b.WriteByte('\n')
	}
	b.WriteString(s.Code)
	if !strings.HasSuffix(s.Code, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func info(s string) string    { return infoStyle.Render("[" + s + "]") }
func warning(s string) string { return warningStyle.Render("[" + s + "]") }
func failure(err error) string {
	return errorStyle.Render("[error]") + " " + err.Error()
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/naval-1647/CodeMonitor/cmd/internal/api"
	"github.com/naval-1647/CodeMonitor/cmd/internal/realtime"
	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

// turnTimeout bounds how long the chat view blocks input waiting for an answer to finish.
const turnTimeout = 2 * time.Minute

// chatView is the interactive single-user chat.
type chatView struct {
	app     *App
	session *realtime.ChatSession
	in      lineReader
	out     *streamPrinter

	mode     string
	code     string
	codeFrom string

	// turnDone is signaled when an exchange ends or the connection goes away.
	turnDone chan struct{}
}

func runChat(ctx context.Context, a *App, in lineReader, out io.Writer) error {
	s, err := a.NewChatSession()
	if err != nil {
		return err
	}
	defer s.Close()

	v := &chatView{
		app:      a,
		session:  s,
		in:       in,
		out:      newStreamPrinter(out),
		mode:     v1.ModeGenerate,
		turnDone: make(chan struct{}, 1),
	}
	unsubscribe := s.Subscribe(v.onUpdate)
	defer unsubscribe()

	if err := a.history.Refresh(ctx); err != nil {
		v.out.line(warning("history unavailable: " + err.Error()))
	}

	v.out.line(promptStyle.Render("CodeMonitor chat") + " " + info("mode "+v.mode+", /help for commands"))
	return v.loop(ctx)
}

func (v *chatView) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := v.in.ReadInput(promptStyle.Render(v.mode + "> "))
		if err != nil {
			if isQuit(err) {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			cont, err := v.command(ctx, input)
			if err != nil {
				v.out.line(failure(err))
			}
			if !cont {
				return nil
			}
			continue
		}

		v.submit(ctx, input)
	}
}

// submit sends one prompt and waits for its exchange to end before reading more input.
func (v *chatView) submit(ctx context.Context, prompt string) {
	select {
	case <-v.turnDone:
	default:
	}

	sent, err := v.session.Submit(ctx, prompt, v.mode, v.code)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			v.out.line(failure(err))
		}
		return
	}
	if !sent {
		v.out.line(warning("not connected, prompt dropped"))
		return
	}

	t := time.NewTimer(turnTimeout)
	defer t.Stop()
	select {
	case <-v.turnDone:
	case <-ctx.Done():
	case <-t.C:
		v.out.line(warning("no answer yet, input unlocked"))
	}
}

func (v *chatView) onUpdate(u realtime.Update) {
	switch u.Kind {
	case realtime.UpdatePhase:
		if u.Phase == realtime.PhaseStreaming {
			v.out.begin(aiStyle.Render(realtime.AssistantName) + ": ")
			return
		}
		if u.Outcome == realtime.OutcomeAborted {
			v.out.line(warning("answer interrupted"))
		}
		v.signalTurn()

	case realtime.UpdateChunk:
		v.out.chunk(u.Chunk)

	case realtime.UpdateEntry:
		switch u.Entry.Kind {
		case realtime.EntryAssistant:
			if !v.out.finish(u.Entry.Content) {
				v.out.line(renderEntry(u.Entry))
			}
		case realtime.EntryError:
			v.out.line(renderEntry(u.Entry))
		}

	case realtime.UpdateSaved:
		v.out.line(info("saved " + u.ChatID))

	case realtime.UpdateConn:
		if u.Conn == realtime.StateClosed {
			v.out.line(info("disconnected"))
			v.signalTurn()
		}
	}
}

func (v *chatView) signalTurn() {
	select {
	case v.turnDone <- struct{}{}:
	default:
	}
}

func (v *chatView) command(ctx context.Context, input string) (bool, error) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/help", "/?":
		v.out.line(chatHelp)

	case "/quit", "/q", "/exit":
		return false, nil

	case "/mode":
		if arg == "" {
			status := "mode " + v.mode
			if v.codeFrom != "" {
				status += ", code context from " + v.codeFrom
			}
			v.out.line(info(status))
			return true, nil
		}
		if !v1.ValidMode(arg) {
			return true, fmt.Errorf("unknown mode %q (generate, debug, explain)", arg)
		}
		v.mode = arg
		v.out.line(info("mode " + v.mode))

	case "/code":
		if arg == "" {
			v.code, v.codeFrom = "", ""
			v.out.line(info("code context cleared"))
			return true, nil
		}
		b, err := os.ReadFile(arg)
		if err != nil {
			return true, err
		}
		v.code, v.codeFrom = string(b), arg
		v.out.line(info(fmt.Sprintf("code context from %s (%d lines)", arg, strings.Count(v.code, "\n")+1)))

	case "/history":
		if err := v.app.history.Refresh(ctx); err != nil {
			return true, err
		}
		items := v.app.history.Items()
		if len(items) == 0 {
			v.out.line(info("no history"))
		}
		for i, ex := range items {
			v.out.line(renderExchange(i+1, ex))
		}

	case "/load":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return true, errors.New("usage: /load <n> (see /history)")
		}
		ex, ok := v.app.history.Get(n - 1)
		if !ok {
			return true, fmt.Errorf("no history item %d", n)
		}
		if v1.ValidMode(ex.Mode) {
			v.mode = ex.Mode
		}
		v.code, v.codeFrom = ex.Code(), "history "+ex.ID
		v.out.line(info(fmt.Sprintf("loaded %s: mode %s, %d chars of code", ex.ID, v.mode, len(v.code))))

	case "/save":
		if arg == "" {
			return true, errors.New("usage: /save <title>")
		}
		answer, prompt, ok := v.lastExchange()
		if !ok {
			return true, errors.New("nothing to save yet")
		}
		desc := prompt
		sn, err := v.app.api.CreateSnippet(ctx, api.SnippetInput{
			Title:       arg,
			Code:        answer,
			Description: &desc,
			Tags:        []string{v.mode},
		})
		if err != nil {
			return true, err
		}
		v.out.line(info("snippet " + sn.ID + " saved"))

	default:
		return true, fmt.Errorf("unknown command: %s (type /help)", cmd)
	}
	return true, nil
}

// lastExchange returns the newest assistant answer and the prompt that preceded it.
func (v *chatView) lastExchange() (answer, prompt string, ok bool) {
	entries := v.session.Transcript()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind != realtime.EntryAssistant {
			continue
		}
		answer, ok = entries[i].Content, true
		for j := i - 1; j >= 0; j-- {
			if entries[j].Kind == realtime.EntryUser {
				prompt = entries[j].Content
				break
			}
		}
		return answer, prompt, ok
	}
	return "", "", false
}

const chatHelp = `Commands:
  /mode [generate|debug|explain]  show or set the mode
  /code [file]                    attach a file as code context (no file clears it)
  /history                        list recent exchanges
  /load <n>                       restore mode and code context from history item n
  /save <title>                   save the last answer as a snippet
  /quit                           leave`

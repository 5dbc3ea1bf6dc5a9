package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/naval-1647/CodeMonitor/cmd/internal/realtime"
	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

// roomView is the interactive team room.
type roomView struct {
	room *realtime.RoomSession
	in   lineReader
	out  *streamPrinter

	mode string
	code string
}

func runRoom(ctx context.Context, a *App, roomID string, in lineReader, out io.Writer) error {
	room, err := a.JoinRoom(ctx, roomID)
	if err != nil {
		return err
	}
	defer room.Leave()

	v := &roomView{
		room: room,
		in:   in,
		out:  newStreamPrinter(out),
		mode: v1.ModeGenerate,
	}
	unsubscribe := room.Subscribe(v.onUpdate)
	defer unsubscribe()

	v.out.line(promptStyle.Render("Room "+room.ID()) + " " + info("as "+room.Self()+", link "+realtime.RoomLink(room.ID())))

	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ReadyTimeout)
	err = room.AwaitOpen(waitCtx)
	cancel()
	if err != nil {
		v.out.line(warning("not connected yet: " + err.Error()))
	}

	return v.loop(ctx)
}

func (v *roomView) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil || v.room.Left() {
			return nil
		}
		input, err := v.in.ReadInput(promptStyle.Render(v.room.ID() + "> "))
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
			cont, err := v.command(input)
			if err != nil {
				v.out.line(failure(err))
			}
			if !cont {
				return nil
			}
			continue
		}

		sent, err := v.room.SendMessage(input)
		if err != nil {
			v.out.line(failure(err))
			continue
		}
		if !sent {
			v.out.line(warning("not connected, message not delivered"))
		}
	}
}

func (v *roomView) onUpdate(u realtime.Update) {
	switch u.Kind {
	case realtime.UpdateEntry:
		e := u.Entry
		switch {
		case e.Kind == realtime.EntryUser && e.Mine:
			// Already on screen as typed input.
		case e.Kind == realtime.EntryAIResponse:
			if !v.out.finish(e.Content) {
				v.out.line(renderEntry(e))
			}
		default:
			v.out.line(renderEntry(e))
		}

	case realtime.UpdatePhase:
		if u.Phase == realtime.PhaseStreaming {
			v.out.begin(aiStyle.Render(realtime.AssistantName) + ": ")
		} else if u.Outcome == realtime.OutcomeAborted {
			v.out.line(warning("answer interrupted"))
		}

	case realtime.UpdateChunk:
		v.out.chunk(u.Chunk)

	case realtime.UpdateConn:
		if u.Conn == realtime.StateClosed {
			v.out.line(info("disconnected"))
		}

	case realtime.UpdateReset:
		v.out.line(info("left room " + v.room.ID()))
	}
}

func (v *roomView) command(input string) (bool, error) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/help", "/?":
		v.out.line(roomHelp)

	case "/leave", "/quit", "/q":
		v.room.Leave()
		return false, nil

	case "/ai":
		if arg == "" {
			return true, errors.New("usage: /ai <prompt>")
		}
		sent, err := v.room.SendAIPrompt(arg, v.mode, v.code)
		if err != nil {
			return true, err
		}
		if !sent {
			v.out.line(warning("not connected, prompt dropped"))
		}

	case "/mode":
		if arg != "" {
			if !v1.ValidMode(arg) {
				return true, fmt.Errorf("unknown mode %q (generate, debug, explain)", arg)
			}
			v.mode = arg
		}
		v.out.line(info("mode " + v.mode))

	case "/code":
		if arg == "" {
			v.code = ""
			v.out.line(info("code context cleared"))
			return true, nil
		}
		b, err := os.ReadFile(arg)
		if err != nil {
			return true, err
		}
		v.code = string(b)
		v.out.line(info("code context from " + arg))

	case "/members":
		v.out.line(renderMembers(v.room.Self(), v.room.Members()))

	case "/link":
		v.out.line(realtime.RoomLink(v.room.ID()))

	default:
		return true, fmt.Errorf("unknown command: %s (type /help)", cmd)
	}
	return true, nil
}

// renderMembers lists the room with the local user first. The count includes the local user.
func renderMembers(self string, others []string) string {
	names := append([]string{self + " (you)"}, others...)
	return fmt.Sprintf("%s %s", commandStyle.Render(fmt.Sprintf("Members (%d):", len(others)+1)), strings.Join(names, ", "))
}

const roomHelp = `Commands:
  <text>                          send a message to the room
  /ai <prompt>                    ask the room's assistant
  /mode [generate|debug|explain]  show or set the mode for /ai
  /code [file]                    attach a file as code context for /ai
  /members                        list who is here
  /link                           print the shareable room link
  /leave                          leave the room`

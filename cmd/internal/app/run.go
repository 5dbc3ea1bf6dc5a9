package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	cmdChat      = "chat"
	cmdRoom      = "room"
	cmdHistory   = "history"
	cmdSnippets  = "snippets"
	cmdDevserver = "devserver"
)

// ErrUsage is returned when the command line cannot be understood. Usage has been printed.
var ErrUsage = errors.New("usage")

// Run is the CLI entrypoint used by cmd/codemonitor. args excludes the program name.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string) error {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	case cmdChat, cmdRoom, cmdHistory, cmdSnippets, cmdDevserver:
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return ErrUsage
	}

	if err := LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg := LoadConfig()
	if err := ValidateConfig(cfg, cmd); err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cmd == cmdDevserver {
		return runDevserver(ctx, cfg, log, rest, stderr)
	}

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Error("app.close.fail", "err", err)
		}
	}()
	if err := a.StartDiagnostics(ctx); err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}

	switch cmd {
	case cmdChat:
		in := newConsole(cmdChat)
		defer in.Close()
		return runChat(ctx, a, in, stdout)

	case cmdRoom:
		if len(rest) != 1 {
			fmt.Fprint(stderr, "usage: codemonitor room <room-id>\n")
			return ErrUsage
		}
		in := newConsole(cmdRoom)
		defer in.Close()
		return runRoom(ctx, a, rest[0], in, stdout)

	case cmdHistory:
		return runHistory(ctx, a, rest, stdout)

	default:
		return runSnippets(ctx, a, rest, stdout)
	}
}

const usage = `codemonitor: realtime client for the CodeMonitor assistant

Usage:
  codemonitor chat                      interactive streaming chat
  codemonitor room <room-id>            join a team room
  codemonitor history [list|delete|rate-limit]
  codemonitor snippets [list|search|get|create|update|delete]
  codemonitor devserver [-addr host:port]  local development peer

Configuration comes from CODEMONITOR_* environment variables and an optional .env file.
`

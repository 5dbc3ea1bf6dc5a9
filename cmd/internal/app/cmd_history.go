package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
)

func runHistory(ctx context.Context, a *App, args []string, out io.Writer) error {
	sub, rest := "list", args
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		sub, rest = args[0], args[1:]
	}

	switch sub {
	case "list":
		fs := flag.NewFlagSet("history list", flag.ContinueOnError)
		fs.SetOutput(out)
		skip := fs.Int("skip", 0, "items to skip")
		limit := fs.Int("limit", a.cfg.HistoryLimit, "items to show")
		if err := fs.Parse(rest); err != nil {
			return err
		}

		items, err := a.reader.ListHistory(ctx, *skip, *limit)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		printExchanges(out, *skip, items)
		return nil

	case "delete":
		if len(rest) != 1 {
			return errors.New("usage: codemonitor history delete <id>")
		}
		if err := a.api.DeleteHistory(ctx, rest[0]); err != nil {
			return fmt.Errorf("delete history: %w", err)
		}
		fmt.Fprintln(out, info("deleted "+rest[0]))
		return nil

	case "rate-limit":
		rl, err := a.api.RateLimitStatus(ctx)
		if err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		fmt.Fprintf(out, "%d of %d requests left in a %d minute window\n", rl.Remaining, rl.Total, rl.WindowMinutes)
		return nil

	default:
		return fmt.Errorf("unknown history command %q (list, delete, rate-limit)", sub)
	}
}

func printExchanges(out io.Writer, offset int, items []history.Exchange) {
	if len(items) == 0 {
		fmt.Fprintln(out, info("no history"))
		return
	}
	for i, ex := range items {
		fmt.Fprintln(out, renderExchange(offset+i+1, ex))
	}
}

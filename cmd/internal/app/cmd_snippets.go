package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/naval-1647/CodeMonitor/cmd/internal/api"
)

func runSnippets(ctx context.Context, a *App, args []string, out io.Writer) error {
	sub, rest := "list", args
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		sub, rest = args[0], args[1:]
	}

	switch sub {
	case "list", "search":
		fs := flag.NewFlagSet("snippets "+sub, flag.ContinueOnError)
		fs.SetOutput(out)
		skip := fs.Int("skip", 0, "items to skip")
		limit := fs.Int("limit", 50, "items to show")
		search := fs.String("q", "", "match title, description or tags")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		q := api.SnippetQuery{Search: *search, Skip: *skip, Limit: *limit}
		if sub == "search" && q.Search == "" {
			q.Search = strings.Join(fs.Args(), " ")
		}

		items, err := a.api.ListSnippets(ctx, q)
		if err != nil {
			return fmt.Errorf("list snippets: %w", err)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, info("no snippets"))
		}
		for _, s := range items {
			fmt.Fprintln(out, renderSnippet(s))
		}
		return nil

	case "get":
		if len(rest) != 1 {
			return errors.New("usage: codemonitor snippets get <id>")
		}
		s, err := a.api.GetSnippet(ctx, rest[0])
		if err != nil {
			return fmt.Errorf("get snippet: %w", err)
		}
		fmt.Fprint(out, renderSnippetDetail(s))
		return nil

	case "create":
		fs := flag.NewFlagSet("snippets create", flag.ContinueOnError)
		fs.SetOutput(out)
		title := fs.String("title", "", "snippet title (required)")
		file := fs.String("file", "", "read the code from this file (default stdin)")
		lang := fs.String("language", "", "language (server default when empty)")
		desc := fs.String("description", "", "description")
		tags := fs.String("tags", "", "comma separated tags")
		if err := fs.Parse(rest); err != nil {
			return err
		}

		code, err := readCode(*file)
		if err != nil {
			return err
		}
		in := api.SnippetInput{
			Title:    *title,
			Code:     code,
			Language: *lang,
			Tags:     splitTags(*tags),
		}
		if *desc != "" {
			in.Description = desc
		}

		s, err := a.api.CreateSnippet(ctx, in)
		if err != nil {
			return fmt.Errorf("create snippet: %w", err)
		}
		fmt.Fprintln(out, renderSnippet(s))
		return nil

	case "update":
		if len(rest) == 0 || rest[0] == "" || rest[0][0] == '-' {
			return errors.New("usage: codemonitor snippets update <id> [flags]")
		}
		id := rest[0]

		fs := flag.NewFlagSet("snippets update", flag.ContinueOnError)
		fs.SetOutput(out)
		title := fs.String("title", "", "new title")
		file := fs.String("file", "", "replace the code with this file")
		lang := fs.String("language", "", "new language")
		desc := fs.String("description", "", "new description")
		tags := fs.String("tags", "", "replace tags (comma separated)")
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}

		var patch api.SnippetPatch
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if set["title"] {
			patch.Title = title
		}
		if set["language"] {
			patch.Language = lang
		}
		if set["description"] {
			patch.Description = desc
		}
		if set["tags"] {
			t := splitTags(*tags)
			patch.Tags = &t
		}
		if set["file"] {
			code, err := readCode(*file)
			if err != nil {
				return err
			}
			patch.Code = &code
		}
		if len(set) == 0 {
			return errors.New("nothing to update")
		}

		s, err := a.api.UpdateSnippet(ctx, id, patch)
		if err != nil {
			return fmt.Errorf("update snippet: %w", err)
		}
		fmt.Fprintln(out, renderSnippet(s))
		return nil

	case "delete":
		if len(rest) != 1 {
			return errors.New("usage: codemonitor snippets delete <id>")
		}
		if err := a.api.DeleteSnippet(ctx, rest[0]); err != nil {
			return fmt.Errorf("delete snippet: %w", err)
		}
		fmt.Fprintln(out, info("deleted "+rest[0]))
		return nil

	default:
		return fmt.Errorf("unknown snippets command %q (list, search, get, create, update, delete)", sub)
	}
}

func readCode(path string) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func splitTags(s string) []string {
	out := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

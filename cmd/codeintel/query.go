package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dshills/codeintel/internal/app"
	"github.com/dshills/codeintel/internal/document"
	"github.com/dshills/codeintel/internal/merge"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type queryFlags struct {
	language    string
	plain       bool
	declaration bool
	timeout     time.Duration
}

func newQueryCmd(g *globals, kind provider.Kind, use, short string) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   use + " FILE LINE COL",
		Short: short,
		Long: short + `.

LINE and COL are 1-based; COL counts bytes, as in compiler diagnostics.
The file is read from disk and opened with every provider for its language.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, g, f, kind, args)
		},
	}
	cmd.Flags().StringVarP(&f.language, "lang", "l", "", "language id (default: detected from the file extension)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "give up after this long")
	if kind == provider.KindCompletion {
		cmd.Flags().BoolVar(&f.plain, "plain", false, "print one label per line")
	}
	if kind == provider.KindReferences {
		cmd.Flags().BoolVar(&f.declaration, "declaration", false, "include the declaration")
	}
	return cmd
}

// position converts 1-based line and byte column arguments to the 0-based
// line and UTF-16 column providers expect.
func position(text, lineArg, colArg string) (int, int, error) {
	line, err := strconv.Atoi(lineArg)
	if err != nil || line < 1 {
		return 0, 0, fmt.Errorf("invalid line %q", lineArg)
	}
	col, err := strconv.Atoi(colArg)
	if err != nil || col < 1 {
		return 0, 0, fmt.Errorf("invalid column %q", colArg)
	}
	return line - 1, document.UTF16Column(text, line-1, col-1), nil
}

func runQuery(cmd *cobra.Command, g *globals, f *queryFlags, kind provider.Kind, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := string(data)
	line, col, err := position(text, args[1], args[2])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	core, _, stop, err := g.startCore(ctx, false)
	if err != nil {
		return err
	}
	defer stop()

	session := app.NewSession(core)
	if _, err := session.Sync(path, f.language, text); err != nil {
		return err
	}
	awaitSettled(ctx, core, g.settle)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	body, err := session.Request(ctx, path, f.language, kind, provider.Payload{
		Line:               line,
		Column:             col,
		Text:               text,
		IncludeDeclaration: f.declaration,
	})
	if err != nil {
		return err
	}
	session.CloseAll()
	return printBody(cmd, kind, body, f.plain)
}

func printBody(cmd *cobra.Command, kind provider.Kind, body any, plain bool) error {
	out := cmd.OutOrStdout()
	if provider.IsEmpty(body) {
		writeLine(out, "null")
		return nil
	}
	if plain && kind == provider.KindCompletion {
		items, _ := merge.Items(body)
		for _, it := range items {
			writeLine(out, "%s", it.Label)
		}
		return nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			body = v
		}
	}
	enc := json.NewEncoder(out)
	if isTerminal(out) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(body)
}

// isTerminal reports whether w is a file attached to a terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

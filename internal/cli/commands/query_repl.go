package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/remotesql/internal/cli/output"
	"github.com/leapstack-labs/remotesql/pkg/adapter"
)

const (
	replPrompt     = "remotesql> "
	replContPrompt = "      ...> "
)

func runQueryREPL(cmd *cobra.Command, c *CommandContext) error {
	ctx := cmd.Context()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile(),
		AutoComplete:    newTableCompleter(ctx, c),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "remotesql (database: %s, module: %s)\n", c.Engine.DatabasePath(), c.Cfg.ModuleName)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := handleDotCommand(ctx, cmd, c, line); quit {
				break
			}
			rl.Config.AutoComplete = newTableCompleter(ctx, c)
			continue
		}

		// Accumulate multi-line SQL until semicolon
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString(" ")
			rl.SetPrompt(replContPrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		query := strings.TrimSuffix(buf.String(), ";")
		buf.Reset()

		if err := executeAndRender(ctx, c, query); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}

// historyFile returns the REPL history path in the user's home directory,
// or "" (no history) when there is none.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".remotesql_history")
}

// handleDotCommand runs one dot-command and reports whether the REPL should exit.
func handleDotCommand(ctx context.Context, cmd *cobra.Command, c *CommandContext, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	errOut := cmd.ErrOrStderr()

	report := func(err error) {
		if err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}
	}

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(cmd.OutOrStdout())

	case ".tables":
		rs, err := listTables(ctx, c)
		if err == nil {
			err = c.Renderer.Result(rs)
		}
		report(err)

	case ".schema":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(errOut, "Usage: .schema <table>")
			return false
		}
		report(showSchema(ctx, c, parts[1]))

	case ".attach":
		rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		fields := strings.SplitN(rest, " ", 3)
		if len(fields) < 3 {
			_, _ = fmt.Fprintln(errOut, "Usage: .attach <name> <url> <query>")
			return false
		}
		report(c.Engine.Attach(ctx, fields[0], fields[1], strings.TrimSpace(fields[2])))

	case ".detach":
		if len(parts) != 2 {
			_, _ = fmt.Fprintln(errOut, "Usage: .detach <name>")
			return false
		}
		report(c.Engine.Detach(ctx, parts[1]))

	default:
		_, _ = fmt.Fprintf(errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

// listTables lists local tables and views, marking remote tables with
// their endpoint.
func listTables(ctx context.Context, c *CommandContext) (*adapter.ResultSet, error) {
	remote, err := c.Engine.Tables(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(remote))
	for _, t := range remote {
		byName[t.Name] = t.URL
	}

	rs, err := c.Engine.QueryAll(ctx, `SELECT name, type, NULL AS url FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`, 0)
	if err != nil {
		return nil, err
	}
	for _, row := range rs.Rows {
		name, _ := row[0].(string)
		if u, ok := byName[name]; ok {
			row[1] = "remote"
			if u != "" {
				row[2] = u
			}
		}
	}
	return rs, nil
}

// showSchema prints the columns of a table, local or remote.
func showSchema(ctx context.Context, c *CommandContext, table string) error {
	meta, err := c.Engine.Describe(ctx, table)
	if err != nil {
		return err
	}

	rs := &adapter.ResultSet{Columns: []string{"name", "type", "nullable", "primary_key"}}
	for _, col := range meta.Columns {
		rs.Rows = append(rs.Rows, []any{col.Name, col.Type, col.Nullable, col.PrimaryKey})
	}
	if err := c.Renderer.Result(rs); err != nil {
		return err
	}
	switch c.Renderer.Mode() {
	case output.ModeTable, output.ModeMarkdown:
		c.Renderer.Muted(fmt.Sprintf("%s.%s holds %d rows", meta.Schema, meta.Name, meta.RowCount))
	}
	return nil
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help                        Show this help message
  .tables                      List tables, marking remote tables
  .schema <name>               Show the columns of a table
  .attach <name> <url> <query> Create a remote table
  .detach <name>               Drop a remote table
  .quit / .exit                Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for table names
`
	_, _ = fmt.Fprintln(w, help)
}

// newTableCompleter creates a readline completer for table names.
func newTableCompleter(ctx context.Context, c *CommandContext) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	names := tableNames(ctx, c.Engine)
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}

	schemaItems := make([]readline.PrefixCompleterInterface, 0, len(names))
	for _, name := range names {
		schemaItems = append(schemaItems, readline.PcItem(name))
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".schema", schemaItems...),
		readline.PcItem(".attach"),
		readline.PcItem(".detach"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)

	return readline.NewPrefixCompleter(items...)
}

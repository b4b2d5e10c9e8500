package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/remotesql/internal/cli/output"
	"github.com/leapstack-labs/remotesql/internal/engine"
	"github.com/leapstack-labs/remotesql/pkg/core"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Input   string
	Attach  []string
	NoSeeds bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query remote tables with SQL",
		Long: `Run SQL against a local SQLite database with remote tables attached.

A remote table is a read-only virtual table whose rows come from a remote
endpoint: the endpoint receives a SQL query as a POST body and answers with
a JSON array of objects. Tables listed under "tables" in remotesql.yaml and
given with --attach are created before the SQL runs. They can also be
created directly:

  CREATE VIRTUAL TABLE t USING remote_table('http://host:8090/', 'SELECT * FROM t');

When invoked without SQL on a terminal, enters interactive REPL mode.`,
		Example: `  # Query a remote table
  remotesql query --attach 'users=http://localhost:8090/::SELECT * FROM users' \
    "SELECT name FROM users WHERE active"

  # Read SQL from a file and print JSON
  remotesql query --input report.sql --format json

  # Interactive mode
  remotesql query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringArrayVarP(&opts.Attach, "attach", "a", nil, "Attach a remote table: name=URL::QUERY (repeatable)")
	cmd.Flags().BoolVar(&opts.NoSeeds, "no-seeds", false, "Do not load CSV seeds into the local database")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	ctx := cmd.Context()

	attach, err := parseAttachFlags(opts.Attach)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := prepareEngine(ctx, cmdCtx, attach, !opts.NoSeeds); err != nil {
		return err
	}

	var sqlQuery string
	in := cmd.InOrStdin()

	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !output.IsTerminal(in):
		content, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		return runQueryREPL(cmd, cmdCtx)
	}

	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return fmt.Errorf("no SQL given")
	}
	return executeAndRender(ctx, cmdCtx, sqlQuery)
}

// prepareEngine loads seeds and attaches the configured and flagged remote
// tables. Flagged tables replace configured ones of the same name.
func prepareEngine(ctx context.Context, c *CommandContext, attach map[string]core.RemoteTableConfig, seeds bool) error {
	if seeds {
		if _, err := c.Engine.LoadSeeds(ctx); err != nil {
			return err
		}
	}

	tables := make(map[string]core.RemoteTableConfig, len(c.Cfg.Tables)+len(attach))
	for name, t := range c.Cfg.Tables {
		tables[name] = t
	}
	for name, t := range attach {
		tables[name] = t
	}
	return c.Engine.AttachAll(ctx, tables)
}

func executeAndRender(ctx context.Context, c *CommandContext, sqlQuery string) error {
	rs, err := c.Engine.QueryAll(ctx, sqlQuery, 0)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return c.Renderer.Result(rs)
}

// parseAttachFlags parses name=URL::QUERY values.
func parseAttachFlags(values []string) (map[string]core.RemoteTableConfig, error) {
	out := make(map[string]core.RemoteTableConfig, len(values))
	for _, v := range values {
		name, t, err := parseAttach(v)
		if err != nil {
			return nil, err
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("--attach %s given more than once", name)
		}
		out[name] = t
	}
	return out, nil
}

func parseAttach(v string) (string, core.RemoteTableConfig, error) {
	name, rest, ok := strings.Cut(v, "=")
	if !ok {
		return "", core.RemoteTableConfig{}, fmt.Errorf("invalid --attach %q: expected name=URL::QUERY", v)
	}
	name = strings.TrimSpace(name)

	// The separator is the first "::" outside an IPv6 host literal.
	sep := -1
	for i := 0; i+1 < len(rest); i++ {
		if rest[i] == ':' && rest[i+1] == ':' && strings.Count(rest[:i], "[") == strings.Count(rest[:i], "]") {
			sep = i
			break
		}
	}
	if sep < 0 {
		return "", core.RemoteTableConfig{}, fmt.Errorf("invalid --attach %q: expected name=URL::QUERY", v)
	}

	t := core.RemoteTableConfig{
		URL:   strings.TrimSpace(rest[:sep]),
		Query: strings.TrimSpace(rest[sep+2:]),
	}
	if err := engine.ValidateBinding(name, t.URL, t.Query); err != nil {
		return "", core.RemoteTableConfig{}, fmt.Errorf("invalid --attach: %w", err)
	}
	return name, t, nil
}

// tableNames returns the local table and view names, for REPL completion.
func tableNames(ctx context.Context, eng *engine.Engine) []string {
	rs, err := eng.QueryAll(ctx, `SELECT name FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'`, 0)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if s, ok := row[0].(string); ok {
			names = append(names, s)
		}
	}
	sort.Strings(names)
	return names
}

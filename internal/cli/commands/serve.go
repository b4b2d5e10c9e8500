package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/remotesql/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a database as a remote SQL endpoint",
		Long: `Start an HTTP server that answers SQL: the remote end of a remote table.

POST / with a SQL statement as the body (or GET /?sql=...) returns the
result set as a JSON array of objects, keys in column order. Failing
statements get status 400 with {"error": "Invalid SQL", "data": "..."}.

The database is the configured target (sqlite, duckdb or postgres). CSV
files in the seeds directory are loaded as tables at startup, and again on
change with --watch. Read-only mode, the default, rejects statements other
than queries and then has the database itself refuse writes: query_only on
SQLite, read-only transactions on PostgreSQL, access_mode=read_only for a
DuckDB file. Seeds are not watched in read-only mode.

A browser viewer is served under /viewer: browse tables a page at a
time, run SQL (subject to read-only mode) and view table schemas. Set
server.session_secret (or REMOTESQL_SERVER_SESSION_SECRET) to keep viewer
sessions across restarts. GET / also upgrades to a websocket that answers
{"type":"query","payload":"<sql>"} with {"type":"result","payload":[...]}.`,
		Example: `  # Serve the configured target on :8090
  remotesql serve

  # Serve a SQLite file, reloading seeds when they change
  remotesql serve --database data.db --watch

  # Allow writes and cap result size
  remotesql serve --readonly=false --max-rows 10000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: :8090)")
	cmd.Flags().Bool("readonly", true, "Reject statements that are not queries")
	cmd.Flags().Int("max-rows", 0, "Maximum rows returned per request (0 = unlimited)")
	cmd.Flags().Bool("watch", false, "Reload seeds when files in the seeds directory change")
	cmd.Flags().Bool("viewer", true, "Serve the browser viewer under /viewer")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	c, cleanup, err := NewTargetCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(c.Cfg.Tables) > 0 {
		if err := c.Engine.AttachAll(ctx, c.Cfg.Tables); err != nil {
			return err
		}
	}

	srv := server.NewServer(server.Config{
		Engine:        c.Engine,
		Addr:          c.Cfg.Server.Addr,
		ReadOnly:      c.Cfg.Server.ReadOnly,
		MaxRows:       c.Cfg.Server.MaxRows,
		Watch:         c.Cfg.Server.Watch,
		Viewer:        c.Cfg.Server.Viewer,
		SessionSecret: c.Cfg.Server.SessionSecret,
		Logger:        c.Logger,
	})

	c.Renderer.Success("serving " + c.Engine.AdapterType() + " on " + srv.Addr())
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

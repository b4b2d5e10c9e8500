// Package sqlite provides the SQLite database adapter. Connections opened
// through it can create remote tables.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/remotesql/pkg/adapter"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"

	_ "modernc.org/sqlite" // sqlite driver
)

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
	params *Params
	module *remotetable.Module
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "sqlite"
}

// Module returns the remote table module available on this connection.
// It is nil before Connect.
func (a *Adapter) Module() *remotetable.Module {
	return a.module
}

// Params returns the decoded adapter params. It is nil before Connect.
func (a *Adapter) Params() *Params {
	return a.params
}

// Connect registers the remote table module and opens the database.
// Use ":memory:" (or an empty path) for an in-memory database.
//
// The pool is pinned to one connection: an in-memory database and the
// virtual tables created on it live in a single connection.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	module, err := a.ensureModule(params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("opening sqlite database", slog.String("path", path), slog.String("module", params.ModuleName))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	if err := applyPragmas(ctx, db, params); err != nil {
		_ = db.Close()
		return err
	}

	a.DB = db
	a.Cfg = cfg
	a.params = params
	a.module = module
	return nil
}

// ensureModule returns the module registered under the configured name,
// registering one first if needed. Modules are process wide, so the first
// registration's fetch settings win.
func (a *Adapter) ensureModule(p *Params) (*remotetable.Module, error) {
	if m, ok := remotetable.Registered(p.ModuleName); ok {
		a.warnOnMismatch(m, p)
		return m, nil
	}

	opts := append(p.fetcherOptions(), remotetable.WithFetchLogger(a.Logger))
	m := remotetable.NewModule(
		remotetable.WithName(p.ModuleName),
		remotetable.WithLogger(a.Logger),
		remotetable.WithFetcher(remotetable.NewFetcher(opts...)),
	)
	if err := remotetable.Register(p.ModuleName, m); err != nil {
		// Another adapter may have registered the name concurrently.
		if existing, ok := remotetable.Registered(p.ModuleName); ok {
			return existing, nil
		}
		return nil, err
	}
	a.Logger.Debug("registered remote table module", slog.String("module", p.ModuleName))
	return m, nil
}

func (a *Adapter) warnOnMismatch(m *remotetable.Module, p *Params) {
	f := m.Fetcher()
	if (p.ConnectTimeout > 0 && p.ConnectTimeout != f.ConnectTimeout()) ||
		(p.Timeout > 0 && p.Timeout != f.Timeout()) {
		a.Logger.Warn("remote table module already registered with different timeouts",
			slog.String("module", p.ModuleName),
			slog.Duration("connect_timeout", f.ConnectTimeout()),
			slog.Duration("timeout", f.Timeout()))
	}
}

func applyPragmas(ctx context.Context, db *sql.DB, p *Params) error {
	names := make([]string, 0, len(p.Pragmas))
	for name := range p.Pragmas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stmt := fmt.Sprintf("PRAGMA %s = %s", name, remotetable.QuoteArg(p.Pragmas[name]))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply pragma %s: %w", name, err)
		}
	}

	if p.QueryOnly {
		if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			return fmt.Errorf("failed to enable query_only: %w", err)
		}
	}
	return nil
}

// SetReadOnly turns on query_only for the pinned connection, so every
// later write fails inside SQLite whatever the statement looks like.
func (a *Adapter) SetReadOnly(ctx context.Context) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	if _, err := a.DB.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return fmt.Errorf("failed to enable query_only: %w", err)
	}
	a.params.QueryOnly = true
	return nil
}

// GetTableMetadata retrieves metadata for a table, including remote tables.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	schema, tableName := adapter.ParseQualifiedName(table, "main")

	//nolint:gosec // Identifiers are quoted
	query := fmt.Sprintf("PRAGMA %s.table_info(%s)",
		remotetable.QuoteIdentifier(schema), remotetable.QuoteArg(tableName))

	rows, err := a.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []adapter.Column
	for rows.Next() {
		var (
			col     adapter.Column
			cid     int
			notNull int
			pk      int
			dflt    sql.NullString
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Position = cid + 1
		col.Nullable = notNull == 0
		col.PrimaryKey = pk > 0
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	//nolint:gosec // Identifiers are quoted
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s",
		remotetable.QuoteIdentifier(schema), remotetable.QuoteIdentifier(tableName))
	var rowCount int64
	if err := a.DB.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		rowCount = 0
	}

	return &adapter.Metadata{
		Schema:   schema,
		Name:     tableName,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// LoadCSV loads data from a CSV file into a table.
// The table is replaced and all columns are created as TEXT.
func (a *Adapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	file, err := os.Open(absPath) //nolint:gosec // path comes from configuration
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	headers, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	quoted := remotetable.QuoteIdentifier(tableName)
	colDefs := make([]string, len(headers))
	marks := make([]string, len(headers))
	for i, h := range headers {
		colDefs[i] = remotetable.QuoteIdentifier(h) + " TEXT"
		marks[i] = "?"
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	//nolint:gosec // Identifiers are quoted
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(colDefs, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	//nolint:gosec // Identifiers are quoted
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoted, strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(headers))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record: %w", err)
		}
		for i := range args {
			args[i] = record[i]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert CSV record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit CSV load: %w", err)
	}
	return nil
}

// Ensure Adapter implements adapter.Adapter interface
var (
	_ adapter.Adapter       = (*Adapter)(nil)
	_ adapter.ReadOnlyGuard = (*Adapter)(nil)
)

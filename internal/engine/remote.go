package engine

// remote.go - remote table lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/leapstack-labs/remotesql/pkg/core"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

// TableInfo describes a remote table on the connection.
type TableInfo struct {
	Name string
	// URL and Query are empty for tables created outside the engine.
	URL   string
	Query string
	// SQL is the CREATE VIRTUAL TABLE statement recorded by SQLite.
	SQL string
}

// ValidateBinding checks a table name and endpoint before anything is
// sent over the network.
func ValidateBinding(name, rawURL, query string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("remote table name is empty")
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("remote table %s: query is empty", name)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("remote table %s: invalid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote table %s: URL scheme must be http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("remote table %s: URL has no host", name)
	}
	return nil
}

// Attach creates a remote table named name over the endpoint. The remote
// query runs once, now; its result set backs every later read.
func (e *Engine) Attach(ctx context.Context, name, rawURL, query string) error {
	if err := ValidateBinding(name, rawURL, query); err != nil {
		return err
	}
	if e.ReadOnly() {
		return fmt.Errorf("failed to attach %s: %w", name, ErrReadOnly)
	}

	sa, err := e.sqliteAdapter(ctx)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE %s USING %s(%s, %s)",
		remotetable.QuoteIdentifier(name),
		sa.Module().Name(),
		remotetable.QuoteArg(rawURL),
		remotetable.QuoteArg(query))

	e.logger.Debug("attaching remote table", "table", name, "url", rawURL)

	if err := sa.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to attach %s: %w", name, err)
	}

	e.tablesMu.Lock()
	e.attached[name] = remotetable.Binding{URL: rawURL, Query: query}
	e.tablesMu.Unlock()

	e.logger.Info("attached remote table", "table", name)
	return nil
}

// AttachAll validates every table, then attaches them in name order.
// Nothing is attached when any table fails validation.
func (e *Engine) AttachAll(ctx context.Context, tables map[string]core.RemoteTableConfig) error {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := tables[name]
		if err := ValidateBinding(name, t.URL, t.Query); err != nil {
			return err
		}
	}

	// The connection is shared, so creation is sequential.
	for _, name := range names {
		t := tables[name]
		if err := e.Attach(ctx, name, t.URL, t.Query); err != nil {
			return err
		}
	}
	return nil
}

// Detach drops a remote table, tearing down its cached result set.
func (e *Engine) Detach(ctx context.Context, name string) error {
	sa, err := e.sqliteAdapter(ctx)
	if err != nil {
		return err
	}

	if err := sa.Exec(ctx, "DROP TABLE "+remotetable.QuoteIdentifier(name)); err != nil {
		return fmt.Errorf("failed to detach %s: %w", name, err)
	}

	e.tablesMu.Lock()
	delete(e.attached, name)
	e.tablesMu.Unlock()

	e.logger.Info("detached remote table", "table", name)
	return nil
}

// Tables lists the remote tables on the connection, in name order.
func (e *Engine) Tables(ctx context.Context) ([]TableInfo, error) {
	sa, err := e.sqliteAdapter(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := sa.DB.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master
		 WHERE type = 'table' AND sql LIKE 'CREATE VIRTUAL TABLE%' AND sql LIKE ?
		 ORDER BY name`,
		"%USING "+sa.Module().Name()+"(%")
	if err != nil {
		return nil, fmt.Errorf("failed to list remote tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	e.tablesMu.Lock()
	defer e.tablesMu.Unlock()

	var out []TableInfo
	for rows.Next() {
		var info TableInfo
		if err := rows.Scan(&info.Name, &info.SQL); err != nil {
			return nil, fmt.Errorf("failed to scan remote table: %w", err)
		}
		if b, ok := e.attached[info.Name]; ok {
			info.URL, info.Query = b.URL, b.Query
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating remote tables: %w", err)
	}
	return out, nil
}

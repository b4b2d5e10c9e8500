// Package engine runs SQL against a backing database. On SQLite it also
// manages remote tables: virtual tables whose rows come from a remote
// endpoint.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/remotesql/pkg/adapter"
	"github.com/leapstack-labs/remotesql/pkg/adapters/sqlite"
	"github.com/leapstack-labs/remotesql/pkg/core"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

// ErrRemoteTablesUnsupported is returned when remote tables are used on a
// backing database other than SQLite.
var ErrRemoteTablesUnsupported = errors.New("remote tables require the sqlite adapter")

// ErrReadOnly is returned by operations that write once SetReadOnly has
// been called.
var ErrReadOnly = errors.New("engine is read-only")

// Engine owns one backing database connection and the remote tables
// attached to it.
type Engine struct {
	// Database adapter (lazy initialized)
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex
	readOnly    bool

	logger   *slog.Logger
	seedsDir string
	fetch    FetchConfig

	tablesMu sync.Mutex
	attached map[string]remotetable.Binding
}

// FetchConfig holds the remote fetch settings of the remote table module.
type FetchConfig struct {
	ModuleName     string
	ConnectTimeout time.Duration
	Timeout        time.Duration
	UserAgent      string
}

// Config holds engine configuration.
type Config struct {
	// AdapterConfig contains the backing database configuration. Its type
	// defaults to sqlite.
	AdapterConfig *adapter.Config
	// DatabasePath is the SQLite database path when AdapterConfig is nil
	// (empty for in-memory).
	DatabasePath string
	// SeedsDir is the directory of CSV files loaded by LoadSeeds (optional).
	SeedsDir string
	// Fetch configures the remote table module.
	Fetch FetchConfig
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine with a lazy database connection. The adapter is
// connected on first use.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var dbConfig adapter.Config
	if cfg.AdapterConfig != nil {
		dbConfig = *cfg.AdapterConfig
	} else {
		dbConfig = adapter.Config{Path: cfg.DatabasePath}
	}
	if dbConfig.Type == "" {
		dbConfig.Type = "sqlite"
	}
	// File-based databases take their path from Database when Path is unset.
	if dbConfig.Path == "" && dbConfig.Database != "" && dbConfig.Type != "postgres" {
		dbConfig.Path = dbConfig.Database
	}
	if !adapter.IsRegistered(dbConfig.Type) {
		return nil, &adapter.UnknownAdapterError{Type: dbConfig.Type, Available: adapter.ListAdapters()}
	}

	fetch := cfg.Fetch
	if fetch.ModuleName == "" {
		fetch.ModuleName = remotetable.DefaultModuleName
	}
	if dbConfig.Type == "sqlite" {
		dbConfig.Params = withFetchParams(dbConfig.Params, fetch)
	}

	logger.Debug("initializing engine", "adapter_type", dbConfig.Type, "module", fetch.ModuleName)

	return &Engine{
		dbConfig: dbConfig,
		logger:   logger,
		seedsDir: cfg.SeedsDir,
		fetch:    fetch,
		attached: make(map[string]remotetable.Binding),
	}, nil
}

// Open creates an engine and connects it.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// withFetchParams copies params and fills in the fetch settings the caller
// did not set explicitly.
func withFetchParams(params map[string]any, fetch FetchConfig) map[string]any {
	out := make(map[string]any, len(params)+4)
	for k, v := range params {
		out[k] = v
	}
	setDefault := func(key string, value any, zero bool) {
		if _, ok := out[key]; !ok && !zero {
			out[key] = value
		}
	}
	setDefault("module_name", fetch.ModuleName, fetch.ModuleName == "")
	setDefault("connect_timeout", fetch.ConnectTimeout.String(), fetch.ConnectTimeout <= 0)
	setDefault("timeout", fetch.Timeout.String(), fetch.Timeout <= 0)
	setDefault("user_agent", fetch.UserAgent, fetch.UserAgent == "")
	return out
}

// ensureDBConnected lazily connects to the database.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	e.logger.Debug("connecting to database", "adapter_type", e.dbConfig.Type)

	db, err := adapter.NewAdapter(e.dbConfig, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create database adapter: %w", err)
	}

	if err := db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	e.db = db
	e.dbConnected = true

	e.logger.Debug("database connected", "dialect", db.DialectName())
	return nil
}

// Adapter returns the connected adapter, connecting first if needed.
func (e *Engine) Adapter(ctx context.Context) (adapter.Adapter, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	return e.db, nil
}

// AdapterType returns the configured adapter type.
func (e *Engine) AdapterType() string {
	return e.dbConfig.Type
}

// DatabasePath returns the path of a file-based database, or "" for
// in-memory and network databases.
func (e *Engine) DatabasePath() string {
	switch e.dbConfig.Path {
	case "", ":memory:":
		return ""
	}
	if e.dbConfig.Type == "postgres" {
		return ""
	}
	return e.dbConfig.Path
}

// FetchConfig returns the remote fetch settings.
func (e *Engine) FetchConfig() FetchConfig {
	return e.fetch
}

// Query runs a statement that returns rows.
func (e *Engine) Query(ctx context.Context, sql string, args ...any) (*core.Rows, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	e.logger.Debug("running query", "sql", sql, "args", len(args))
	return e.db.Query(ctx, sql, args...)
}

// QueryAll runs a statement and reads at most limit rows (0 = all).
func (e *Engine) QueryAll(ctx context.Context, sql string, limit int, args ...any) (*adapter.ResultSet, error) {
	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return adapter.ReadRows(rows, limit)
}

// Exec runs a statement that does not return rows.
func (e *Engine) Exec(ctx context.Context, sql string) error {
	if err := e.ensureDBConnected(ctx); err != nil {
		return err
	}
	e.logger.Debug("executing statement", "sql", sql)
	return e.db.Exec(ctx, sql)
}

// Describe returns the columns and row count of a table.
func (e *Engine) Describe(ctx context.Context, table string) (*core.TableMetadata, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	return e.db.GetTableMetadata(ctx, table)
}

// SetReadOnly makes the backing database refuse writes. Adapters that
// cannot enforce it return adapter.ErrReadOnlyUnsupported, and the engine
// is still marked read-only so LoadSeeds and Attach refuse to run.
func (e *Engine) SetReadOnly(ctx context.Context) error {
	if err := e.ensureDBConnected(ctx); err != nil {
		return err
	}

	e.dbMu.Lock()
	defer e.dbMu.Unlock()
	e.readOnly = true

	guard, ok := e.db.(adapter.ReadOnlyGuard)
	if !ok {
		return adapter.ErrReadOnlyUnsupported
	}
	if err := guard.SetReadOnly(ctx); err != nil {
		return err
	}
	e.logger.Debug("database is read-only", "adapter_type", e.dbConfig.Type)
	return nil
}

// ReadOnly reports whether SetReadOnly has been called.
func (e *Engine) ReadOnly() bool {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()
	return e.readOnly
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	e.dbConnected = false
	if err != nil {
		return fmt.Errorf("errors closing engine: %w", err)
	}
	return nil
}

// sqliteAdapter returns the connected SQLite adapter.
func (e *Engine) sqliteAdapter(ctx context.Context) (*sqlite.Adapter, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	sa, ok := e.db.(*sqlite.Adapter)
	if !ok {
		return nil, fmt.Errorf("%w (target type is %s)", ErrRemoteTablesUnsupported, e.dbConfig.Type)
	}
	return sa, nil
}

package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/remotesql/internal/engine"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

const (
	defaultMaxRows  = 1000
	defaultPageSize = 50
	maxPageSize     = 1000
	queryTimeout    = 30 * time.Second

	sessionName     = "remotesql-viewer"
	sessionSQL      = "sql"
	sessionPageSize = "page_size"
)

// QuerySignals represents the signals sent from the frontend.
type QuerySignals struct {
	SQL string `json:"sql"`
}

// Handlers provides HTTP handlers for the viewer.
type Handlers struct {
	engine       *engine.Engine
	sessionStore sessions.Store
	check        func(sql string) error
	maxRows      int
	logger       *slog.Logger
}

// Config holds the dependencies of the viewer handlers.
type Config struct {
	Engine       *engine.Engine
	SessionStore sessions.Store
	// Check vets a statement before Execute runs it. Nil accepts all.
	Check func(sql string) error
	// MaxRows caps the rows Execute returns (0 = 1000).
	MaxRows int
	Logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg Config) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &Handlers{
		engine:       cfg.Engine,
		sessionStore: cfg.SessionStore,
		check:        cfg.Check,
		maxRows:      maxRows,
		logger:       logger,
	}
}

// Page renders the viewer shell. The panels load themselves over SSE.
func (h *Handlers) Page(w http.ResponseWriter, r *http.Request) {
	data := PageData{
		Title:    "Viewer - remotesql",
		PageSize: defaultPageSize,
		ReadOnly: h.engine.ReadOnly(),
	}
	sess := h.session(r)
	if sql, ok := sess.Values[sessionSQL].(string); ok {
		data.SQL = sql
	}
	if size, ok := sess.Values[sessionPageSize].(int); ok {
		data.PageSize = size
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ViewerPage(data).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// StatusSSE sends the database status.
func (h *Handlers) StatusSSE(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	status := Status{
		Adapter:  h.engine.AdapterType(),
		Database: h.engine.DatabasePath(),
		ReadOnly: h.engine.ReadOnly(),
	}
	if _, err := h.engine.Adapter(r.Context()); err != nil {
		status.Message = fmt.Sprintf("Connection failed: %v", err)
	} else {
		status.Connected = true
		status.Message = "Connected"
		if remote, err := h.engine.Tables(r.Context()); err == nil {
			status.RemoteTables = len(remote)
		}
	}

	if err := sse.PatchElementTempl(DatabaseStatus(status)); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// TablesSSE sends the list of tables and views.
func (h *Handlers) TablesSSE(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	tables, err := h.listTables(r.Context())
	if err != nil {
		_ = sse.ConsoleError(fmt.Errorf("failed to list tables: %w", err))
		return
	}

	if err := sse.PatchElementTempl(TableList(tables)); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// BrowseSSE sends one page of a table's rows. The page size comes from
// the size parameter, or else the one remembered in the session.
func (h *Handlers) BrowseSSE(w http.ResponseWriter, r *http.Request) {
	name := tableParam(r)
	page := atoiDefault(r.URL.Query().Get("page"), 1)
	size := h.pageSize(w, r)

	sse := datastar.NewSSE(w, r)

	data, err := h.browse(r.Context(), name, page, size)
	if err != nil {
		data = TablePage{Table: TableInfo{Name: name}, Error: err.Error()}
	}
	if err := sse.PatchElementTempl(TableView(data)); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// TableMetaSSE sends a table's columns and row count.
func (h *Handlers) TableMetaSSE(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	name := tableParam(r)

	meta, err := h.describe(r.Context(), name)
	if err != nil {
		meta = TableMeta{Table: TableInfo{Name: name}, Error: err.Error()}
	}
	if err := sse.PatchElementTempl(TableDetail(meta)); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// SchemasSSE sends the columns of every table.
func (h *Handlers) SchemasSSE(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	tables, err := h.listTables(r.Context())
	if err != nil {
		_ = sse.ConsoleError(fmt.Errorf("failed to list tables: %w", err))
		return
	}

	metas := make([]TableMeta, 0, len(tables))
	for _, t := range tables {
		meta, err := h.describeTable(r.Context(), t)
		if err != nil {
			meta = TableMeta{Table: t, Error: err.Error()}
		}
		metas = append(metas, meta)
	}

	if err := sse.PatchElementTempl(SchemaList(metas)); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// ExecuteSSE runs the statement in the sql signal and sends its result.
func (h *Handlers) ExecuteSSE(w http.ResponseWriter, r *http.Request) {
	// Read signals BEFORE creating SSE (SSE consumes the request body)
	var signals QuerySignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		sse := datastar.NewSSE(w, r)
		_ = sse.PatchElementTempl(QueryResults(QueryResult{
			Error: "Failed to read signals: " + err.Error(),
		}))
		return
	}

	query := strings.TrimSpace(signals.SQL)
	h.remember(w, r, sessionSQL, query)

	sse := datastar.NewSSE(w, r)

	result := h.execute(r.Context(), query)
	if err := sse.PatchElementTempl(QueryResults(result)); err != nil {
		_ = sse.ConsoleError(err)
	}
}

func (h *Handlers) execute(ctx context.Context, query string) QueryResult {
	if query == "" {
		return QueryResult{Error: "Query cannot be empty"}
	}
	if h.check != nil {
		if err := h.check(query); err != nil {
			return QueryResult{Error: err.Error()}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rs, err := h.engine.QueryAll(ctx, query, h.maxRows)
	if err != nil {
		return QueryResult{Error: err.Error()}
	}

	rows := formatRows(rs.Rows)
	return QueryResult{
		Columns:   rs.Columns,
		Rows:      rows,
		RowCount:  len(rows),
		Truncated: rs.Truncated,
		QueryMS:   time.Since(start).Milliseconds(),
	}
}

// listTables lists the tables and views of the database. On SQLite the
// remote tables are marked with their endpoint.
func (h *Handlers) listTables(ctx context.Context) ([]TableInfo, error) {
	query := `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_schema, table_name
	`
	if h.engine.AdapterType() == "sqlite" {
		query = `
			SELECT 'main', name, type
			FROM sqlite_master
			WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
			ORDER BY name
		`
	}

	rs, err := h.engine.QueryAll(ctx, query, 0)
	if err != nil {
		return nil, err
	}

	remote := make(map[string]string)
	if infos, err := h.engine.Tables(ctx); err == nil {
		for _, t := range infos {
			remote[t.Name] = t.URL
		}
	} else if !errors.Is(err, engine.ErrRemoteTablesUnsupported) {
		return nil, err
	}

	tables := make([]TableInfo, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		t := TableInfo{
			Schema: fmt.Sprint(row[0]),
			Name:   fmt.Sprint(row[1]),
			Type:   normalizeTableType(fmt.Sprint(row[2])),
		}
		if u, ok := remote[t.Name]; ok && t.Schema == "main" {
			t.Type = "remote"
			t.URL = u
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// findTable resolves a name from a route to a listed table, so only
// known identifiers are ever quoted into SQL.
func (h *Handlers) findTable(ctx context.Context, name string) (TableInfo, error) {
	tables, err := h.listTables(ctx)
	if err != nil {
		return TableInfo{}, err
	}
	for _, t := range tables {
		if t.Qualified() == name {
			return t, nil
		}
	}
	return TableInfo{}, fmt.Errorf("table %s not found", name)
}

func (h *Handlers) browse(ctx context.Context, name string, page, size int) (TablePage, error) {
	t, err := h.findTable(ctx, name)
	if err != nil {
		return TablePage{}, err
	}
	from := quoteTable(t)

	rs, err := h.engine.QueryAll(ctx, "SELECT COUNT(*) FROM "+from, 1)
	if err != nil {
		return TablePage{}, err
	}
	var total int64
	if len(rs.Rows) > 0 {
		total = toInt64(rs.Rows[0][0])
	}

	totalPages := int(math.Ceil(float64(total) / float64(size)))
	if totalPages < 1 {
		totalPages = 1
	}
	page = max(1, min(page, totalPages))

	//nolint:gosec // Table is quoted, limit and offset are integers
	rs, err = h.engine.QueryAll(ctx,
		fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", from, size, (page-1)*size), 0)
	if err != nil {
		return TablePage{}, err
	}

	return TablePage{
		Table:      t,
		Columns:    rs.Columns,
		Rows:       formatRows(rs.Rows),
		Page:       page,
		Size:       size,
		TotalRows:  total,
		TotalPages: totalPages,
	}, nil
}

func (h *Handlers) describe(ctx context.Context, name string) (TableMeta, error) {
	t, err := h.findTable(ctx, name)
	if err != nil {
		return TableMeta{}, err
	}
	return h.describeTable(ctx, t)
}

func (h *Handlers) describeTable(ctx context.Context, t TableInfo) (TableMeta, error) {
	meta, err := h.engine.Describe(ctx, t.Schema+"."+t.Name)
	if err != nil {
		return TableMeta{}, err
	}

	out := TableMeta{
		Table:    t,
		RowCount: meta.RowCount,
		Columns:  make([]ColumnMeta, len(meta.Columns)),
	}
	for i, col := range meta.Columns {
		out.Columns[i] = ColumnMeta{
			Name:       col.Name,
			Type:       col.Type,
			Nullable:   col.Nullable,
			PrimaryKey: col.PrimaryKey,
		}
	}
	return out, nil
}

// session returns the viewer session. A cookie that fails to decode
// yields a fresh session.
func (h *Handlers) session(r *http.Request) *sessions.Session {
	sess, err := h.sessionStore.Get(r, sessionName)
	if err != nil {
		h.logger.Debug("discarding viewer session", "error", err)
	}
	return sess
}

// remember stores a value in the session. It must run before any part
// of the response is written.
func (h *Handlers) remember(w http.ResponseWriter, r *http.Request, key string, value any) {
	sess := h.session(r)
	sess.Values[key] = value
	if err := sess.Save(r, w); err != nil {
		h.logger.Warn("failed to save viewer session", "error", err)
	}
}

// pageSize reads the size parameter and remembers it, falling back to
// the remembered size.
func (h *Handlers) pageSize(w http.ResponseWriter, r *http.Request) int {
	if raw := r.URL.Query().Get("size"); raw != "" {
		size := min(atoiDefault(raw, defaultPageSize), maxPageSize)
		h.remember(w, r, sessionPageSize, size)
		return size
	}
	if size, ok := h.session(r).Values[sessionPageSize].(int); ok && size > 0 {
		return size
	}
	return defaultPageSize
}

// tableParam returns the table named in the route, unescaped when the
// request path carried escapes.
func tableParam(r *http.Request) string {
	raw := chi.URLParam(r, "table")
	if r.URL.RawPath == "" {
		return raw
	}
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func quoteTable(t TableInfo) string {
	return remotetable.QuoteIdentifier(t.Schema) + "." + remotetable.QuoteIdentifier(t.Name)
}

// atoiDefault parses a positive integer, or returns def.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

package remotetable

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"modernc.org/sqlite/vtab"
)

// FullScanCost is the planner cost reported for every query. The table has
// no indexes, so every plan is a full scan of the in-memory rows.
const FullScanCost = 1000.0

// DeclareFunc declares the table schema to the engine. It is bound to
// vtab.Context.Declare while a table is being created.
type DeclareFunc func(schema string) error

// Table is one remote table instance. It owns the fetched rows and the
// inferred schema from creation until Disconnect or Destroy; both are
// read-only after construction and shared by every cursor.
type Table struct {
	id      string
	name    string
	binding Binding
	rows    []Value
	schema  Schema
	count   int
	closed  atomic.Bool
	logger  *slog.Logger
}

// NewTable fetches the result set for binding, infers its schema and
// declares it through declare. On any error nothing is retained.
func NewTable(ctx context.Context, fetcher *Fetcher, name string, binding Binding, declare DeclareFunc, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	logger = logger.With(slog.String("table", name), slog.String("table_id", id))

	rows, err := fetcher.Fetch(ctx, binding)
	if err != nil {
		logger.Warn("remote table fetch failed", slog.String("url", binding.URL), slog.String("error", err.Error()))
		return nil, err
	}

	schema := InferSchema(rows)
	declSQL := schema.DeclareSQL()
	if err := declare(declSQL); err != nil {
		return nil, &SchemaDeclarationError{SQL: declSQL, Duplicates: schema.Duplicates(), Err: err}
	}

	logger.Debug("remote table created",
		slog.Int("rows", len(rows)),
		slog.String("columns", strings.Join(schema.Names(), ",")),
	)

	return &Table{
		id:      id,
		name:    name,
		binding: binding,
		rows:    rows,
		schema:  schema,
		count:   len(rows),
		logger:  logger,
	}, nil
}

// ID returns the instance identifier used in log records.
func (t *Table) ID() string { return t.id }

// Name returns the SQL name of the table.
func (t *Table) Name() string { return t.name }

// Binding returns the endpoint the table was created from.
func (t *Table) Binding() Binding { return t.binding }

// Schema returns the inferred column list.
func (t *Table) Schema() Schema { return t.schema }

// RowCount returns the number of fetched rows.
func (t *Table) RowCount() int { return t.count }

// Closed reports whether the table has been torn down.
func (t *Table) Closed() bool { return t.closed.Load() }

// Estimate returns the planner cost and the expected row count. It performs
// no I/O and ignores the query shape.
func (t *Table) Estimate() (cost float64, rows int64) {
	return FullScanCost, int64(t.count)
}

// BestIndex implements vtab.Table. No constraint is consumed; SQLite filters
// the full scan itself.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	info.IdxNum = 0
	info.IdxStr = ""
	info.OrderByConsumed = false
	for i := range info.Constraints {
		info.Constraints[i].ArgIndex = -1
		info.Constraints[i].Omit = false
	}
	info.EstimatedCost, info.EstimatedRows = t.Estimate()
	return nil
}

// Open implements vtab.Table.
func (t *Table) Open() (vtab.Cursor, error) {
	if t.closed.Load() {
		return nil, ErrTableClosed
	}
	return newCursor(t.rows, t.schema), nil
}

// Disconnect implements vtab.Table and releases the fetched data.
func (t *Table) Disconnect() error {
	t.release()
	return nil
}

// Destroy implements vtab.Table. A remote table has no persistent state,
// so dropping it is the same as disconnecting.
func (t *Table) Destroy() error {
	t.release()
	return nil
}

func (t *Table) release() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.logger.Debug("remote table released", slog.Int("rows", t.count))
	t.rows = nil
	t.schema = Schema{}
	t.binding = Binding{}
	t.count = 0
}

var _ vtab.Table = (*Table)(nil)

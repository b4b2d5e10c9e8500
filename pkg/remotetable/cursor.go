package remotetable

import (
	"modernc.org/sqlite/vtab"
)

// Cursor walks the rows of a Table. It holds a read-only view of the
// table's rows and its own position, so any number of cursors can scan the
// same table independently.
//
// The cursor is Exhausted when pos >= len(rows) and Positioned otherwise.
type Cursor struct {
	rows   []Value
	schema Schema
	pos    int
}

func newCursor(rows []Value, schema Schema) *Cursor {
	return &Cursor{rows: rows, schema: schema}
}

// Filter implements vtab.Cursor. Every plan is a full scan, so it only
// rewinds to the first row.
func (c *Cursor) Filter(_ int, _ string, _ []vtab.Value) error {
	c.Rewind()
	return nil
}

// Rewind moves the cursor to the first row.
func (c *Cursor) Rewind() { c.pos = 0 }

// Next implements vtab.Cursor. SQLite only calls it while Eof is false.
func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

// Eof implements vtab.Cursor.
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

// Column implements vtab.Cursor.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	return c.Read(col).DriverValue(), nil
}

// Read returns the coerced value of column col in the current row. Missing
// fields, non-object rows and out of range columns read as NULL; ragged rows
// are normal for schemaless sources.
func (c *Cursor) Read(col int) Result {
	if c.Eof() {
		return Result{}
	}
	column, ok := c.schema.Column(col)
	if !ok || !column.Inferred {
		return Result{}
	}
	v, ok := c.rows[c.pos].Get(column.Original)
	if !ok {
		return Result{}
	}
	return Coerce(v)
}

// Rowid implements vtab.Cursor. The rowid is the zero-based position of the
// row in the fetched array.
func (c *Cursor) Rowid() (int64, error) { return int64(c.pos), nil }

// Position returns the current zero-based row index.
func (c *Cursor) Position() int { return c.pos }

// Close implements vtab.Cursor.
func (c *Cursor) Close() error {
	c.rows = nil
	c.schema = Schema{}
	return nil
}

var _ vtab.Cursor = (*Cursor)(nil)

package remotetable

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/sqlite/vtab"

	"github.com/leapstack-labs/remotesql/internal/testutil"
)

// recordDeclare captures the declared schema.
func recordDeclare(got *string) DeclareFunc {
	return func(sql string) error {
		*got = sql
		return nil
	}
}

func newTestTable(t *testing.T, body string) *Table {
	t.Helper()
	srv := newJSONServer(t, 200, body)
	var decl string
	tbl, err := NewTable(context.Background(), NewFetcher(), "t", Binding{URL: srv.URL, Query: "q"},
		recordDeclare(&decl), testutil.NewTestLogger(t))
	require.NoError(t, err)
	return tbl
}

// scan drains c, returning every row as driver values.
func scan(t *testing.T, c vtab.Cursor, cols int) [][]vtab.Value {
	t.Helper()
	require.NoError(t, c.Filter(0, "", nil))
	var out [][]vtab.Value
	for !c.Eof() {
		row := make([]vtab.Value, cols)
		for i := range row {
			v, err := c.Column(i)
			require.NoError(t, err)
			row[i] = v
		}
		out = append(out, row)
		require.NoError(t, c.Next())
	}
	return out
}

func TestNewTable(t *testing.T) {
	srv := newJSONServer(t, 200, `[{"a":1,"b":"x"}]`)

	var decl string
	tbl, err := NewTable(context.Background(), NewFetcher(), "remote", Binding{URL: srv.URL, Query: "SELECT"},
		recordDeclare(&decl), testutil.NewTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, `CREATE TABLE x("a", "b")`, decl)
	assert.Equal(t, "remote", tbl.Name())
	assert.NotEmpty(t, tbl.ID())
	assert.Equal(t, Binding{URL: srv.URL, Query: "SELECT"}, tbl.Binding())
	assert.Equal(t, []string{"a", "b"}, tbl.Schema().Names())
	assert.Equal(t, 1, tbl.RowCount())
	assert.False(t, tbl.Closed())
}

func TestNewTable_FetchFailure(t *testing.T) {
	srv := newJSONServer(t, 404, ``)

	declared := false
	_, err := NewTable(context.Background(), NewFetcher(), "t", Binding{URL: srv.URL, Query: "q"},
		func(string) error { declared = true; return nil }, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.False(t, declared, "nothing is declared when the fetch fails")
}

func TestNewTable_DeclareRejected(t *testing.T) {
	srv := newJSONServer(t, 200, `[{"a b":1,"a-b":2}]`)
	engineErr := errors.New("duplicate column name: a_b")

	_, err := NewTable(context.Background(), NewFetcher(), "t", Binding{URL: srv.URL, Query: "q"},
		func(string) error { return engineErr }, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, engineErr)

	var declErr *SchemaDeclarationError
	require.ErrorAs(t, err, &declErr)
	assert.Equal(t, []string{"a_b"}, declErr.Duplicates)
	assert.Contains(t, err.Error(), "a_b")
}

func TestTable_BestIndex(t *testing.T) {
	tbl := newTestTable(t, `[{"a":1},{"a":2},{"a":3}]`)

	info := &vtab.IndexInfo{
		Constraints: []vtab.Constraint{{Column: 0, Op: vtab.OpEQ, Usable: true, ArgIndex: 0, Omit: true}},
		OrderBy:     []vtab.OrderBy{{Column: 0}},
		IdxNum:      9,
		IdxStr:      "stale",
	}
	require.NoError(t, tbl.BestIndex(info))

	assert.Equal(t, int64(0), info.IdxNum)
	assert.Empty(t, info.IdxStr)
	assert.False(t, info.OrderByConsumed)
	assert.Equal(t, FullScanCost, info.EstimatedCost)
	assert.Equal(t, int64(3), info.EstimatedRows)
	assert.Equal(t, -1, info.Constraints[0].ArgIndex, "no constraint is consumed")
	assert.False(t, info.Constraints[0].Omit)

	cost, rows := tbl.Estimate()
	assert.Equal(t, FullScanCost, cost)
	assert.Equal(t, int64(3), rows)
}

func TestCursor_Scan(t *testing.T) {
	tbl := newTestTable(t, `[
		{"id":1,"name":"one","score":1.5,"ok":true,"tags":["x"]},
		{"id":2,"name":null,"score":2.0,"ok":false},
		{"name":"three","extra":1}
	]`)

	c, err := tbl.Open()
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	rows := scan(t, c, 5)
	assert.Equal(t, [][]vtab.Value{
		{int64(1), "one", 1.5, int64(1), `["x"]`},
		{int64(2), nil, int64(2), int64(0), nil},
		{nil, "three", nil, nil, nil},
	}, rows)
}

func TestCursor_StateMachine(t *testing.T) {
	tbl := newTestTable(t, `[{"a":10},{"a":20}]`)

	raw, err := tbl.Open()
	require.NoError(t, err)
	c := raw.(*Cursor)

	require.NoError(t, c.Filter(0, "", nil))
	require.False(t, c.Eof())
	id, err := c.Rowid()
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	assert.Equal(t, Result{Kind: ResultInteger, Int: 10}, c.Read(0))

	require.NoError(t, c.Next())
	require.False(t, c.Eof())
	id, _ = c.Rowid()
	assert.Equal(t, int64(1), id)
	assert.Equal(t, Result{Kind: ResultInteger, Int: 20}, c.Read(0))

	require.NoError(t, c.Next())
	assert.True(t, c.Eof(), "exhausted after exactly two rows")
	assert.Equal(t, Result{}, c.Read(0), "reads past the end are NULL")

	require.NoError(t, c.Next())
	assert.Equal(t, 2, c.Position(), "Next on an exhausted cursor stays put")

	require.NoError(t, c.Filter(0, "", nil))
	assert.Equal(t, 0, c.Position(), "Filter rewinds")
	assert.Equal(t, Result{}, c.Read(7), "out of range column is NULL")
}

func TestCursor_EmptyTable(t *testing.T) {
	tbl := newTestTable(t, `[]`)
	assert.True(t, tbl.Schema().IsFallback())

	c, err := tbl.Open()
	require.NoError(t, err)
	require.NoError(t, c.Filter(0, "", nil))
	assert.True(t, c.Eof())
}

func TestCursor_FallbackColumnIsNull(t *testing.T) {
	tbl := newTestTable(t, `[1, "two", null]`)

	c, err := tbl.Open()
	require.NoError(t, err)
	assert.Equal(t, [][]vtab.Value{{nil}, {nil}, {nil}}, scan(t, c, 1))
}

func TestCursor_Independent(t *testing.T) {
	tbl := newTestTable(t, `[{"a":1},{"a":2},{"a":3}]`)

	c1, err := tbl.Open()
	require.NoError(t, err)
	c2, err := tbl.Open()
	require.NoError(t, err)

	require.NoError(t, c1.Filter(0, "", nil))
	require.NoError(t, c2.Filter(0, "", nil))
	require.NoError(t, c1.Next())
	require.NoError(t, c1.Next())

	v1, _ := c1.Column(0)
	v2, _ := c2.Column(0)
	assert.Equal(t, int64(3), v1)
	assert.Equal(t, int64(1), v2, "advancing one cursor does not move another")

	require.NoError(t, c1.Close())
	assert.Len(t, scan(t, c2, 1), 3, "closing one cursor leaves the other intact")
}

func TestTable_Teardown(t *testing.T) {
	tbl := newTestTable(t, `[{"a":1}]`)

	open, err := tbl.Open()
	require.NoError(t, err)

	require.NoError(t, tbl.Disconnect())
	assert.True(t, tbl.Closed())
	assert.Equal(t, 0, tbl.RowCount())
	assert.Equal(t, 0, tbl.Schema().Len())

	_, err = tbl.Open()
	assert.ErrorIs(t, err, ErrTableClosed)

	// Teardown is idempotent, and a cursor opened before it keeps its view.
	require.NoError(t, tbl.Destroy())
	assert.Len(t, scan(t, open, 1), 1)
}

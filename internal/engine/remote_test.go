package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/remotesql/pkg/adapter"
	"github.com/leapstack-labs/remotesql/pkg/core"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

func TestValidateBinding(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		url     string
		query   string
		wantErr string
	}{
		{name: "valid", table: "t", url: "http://localhost:8090/", query: "SELECT 1"},
		{name: "https", table: "t", url: "https://example.com/sql", query: "SELECT 1"},
		{name: "empty name", table: " ", url: "http://h/", query: "q", wantErr: "name is empty"},
		{name: "empty query", table: "t", url: "http://h/", query: "", wantErr: "query is empty"},
		{name: "bad scheme", table: "t", url: "ftp://h/", query: "q", wantErr: "scheme must be http or https"},
		{name: "no scheme", table: "t", url: "localhost:8090", query: "q", wantErr: "scheme"},
		{name: "no host", table: "t", url: "http:///x", query: "q", wantErr: "no host"},
		{name: "unparsable", table: "t", url: "http://[::1", query: "q", wantErr: "invalid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBinding(tt.table, tt.url, tt.query)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEngine_AttachQueryDetach(t *testing.T) {
	srv := newRemote(t, map[string]string{
		"SELECT * FROM users": `[{"id":1,"name":"ada","score":9.5},{"id":2,"name":"bob","score":null}]`,
	})
	e := openEngine(t, Config{})
	ctx := context.Background()

	require.NoError(t, e.Attach(ctx, "users", srv.URL, "SELECT * FROM users"))

	rs, err := e.QueryAll(ctx, "SELECT name, score FROM users ORDER BY id", 0)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"ada", 9.5}, {"bob", nil}}, rs.Rows)

	tables, err := e.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "users", tables[0].Name)
	assert.Equal(t, srv.URL, tables[0].URL)
	assert.Equal(t, "SELECT * FROM users", tables[0].Query)
	assert.Contains(t, tables[0].SQL, "USING remote_table(")

	require.NoError(t, e.Detach(ctx, "users"))
	tables, err = e.Tables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	_, err = e.Query(ctx, "SELECT * FROM users")
	assert.Error(t, err)

	assert.Error(t, e.Detach(ctx, "users"), "detaching twice fails")
}

func TestEngine_AttachQuotesArguments(t *testing.T) {
	query := `SELECT 'it''s' AS "quoted name"`
	srv := newRemote(t, map[string]string{query: `[{"quoted name":"it's"}]`})
	e := openEngine(t, Config{})
	ctx := context.Background()

	require.NoError(t, e.Attach(ctx, "odd table", srv.URL, query))

	rs, err := e.QueryAll(ctx, `SELECT quoted_name FROM "odd table"`, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"it's"}}, rs.Rows)
}

func TestEngine_AttachFailures(t *testing.T) {
	srv := newRemote(t, map[string]string{"dup": `[{"a b":1,"a-b":2}]`})
	e := openEngine(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name    string
		url     string
		query   string
		wantMsg string
	}{
		{name: "invalid url", url: "not a url", query: "q", wantMsg: "scheme"},
		{name: "remote rejects query", url: srv.URL, query: "DROP", wantMsg: "HTTP error code: 400"},
		{name: "duplicate columns", url: srv.URL, query: "dup", wantMsg: "a_b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Attach(ctx, "broken", tt.url, tt.query)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)

			tables, err := e.Tables(ctx)
			require.NoError(t, err)
			assert.Empty(t, tables)
		})
	}
}

func TestEngine_AttachAll(t *testing.T) {
	srv := newRemote(t, map[string]string{
		"a": `[{"x":1}]`,
		"b": `[{"y":2},{"y":3}]`,
	})
	ctx := context.Background()

	t.Run("attaches every table", func(t *testing.T) {
		e := openEngine(t, Config{})
		require.NoError(t, e.AttachAll(ctx, map[string]core.RemoteTableConfig{
			"ta": {URL: srv.URL, Query: "a"},
			"tb": {URL: srv.URL, Query: "b"},
		}))

		tables, err := e.Tables(ctx)
		require.NoError(t, err)
		require.Len(t, tables, 2)
		assert.Equal(t, "ta", tables[0].Name)
		assert.Equal(t, "tb", tables[1].Name)
	})

	t.Run("validation failure attaches nothing", func(t *testing.T) {
		e := openEngine(t, Config{})
		err := e.AttachAll(ctx, map[string]core.RemoteTableConfig{
			"ta":  {URL: srv.URL, Query: "a"},
			"bad": {URL: "file:///etc/passwd", Query: "a"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad")

		tables, err := e.Tables(ctx)
		require.NoError(t, err)
		assert.Empty(t, tables)
	})

	t.Run("empty", func(t *testing.T) {
		e := openEngine(t, Config{})
		assert.NoError(t, e.AttachAll(ctx, nil))
	})
}

func TestEngine_TablesIncludesRawStatements(t *testing.T) {
	srv := newRemote(t, map[string]string{"q": `[{"a":1}]`})
	e := openEngine(t, Config{})
	ctx := context.Background()

	require.NoError(t, e.Exec(ctx, "CREATE VIRTUAL TABLE raw USING remote_table("+
		remotetable.QuoteArg(srv.URL)+", 'q')"))
	require.NoError(t, e.Exec(ctx, "CREATE TABLE plain (x)"))

	tables, err := e.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1, "plain tables are not listed")
	assert.Equal(t, "raw", tables[0].Name)
	assert.Empty(t, tables[0].URL)
}

func TestEngine_RemoteTablesRequireSQLite(t *testing.T) {
	e := openEngine(t, Config{AdapterConfig: &adapter.Config{Type: "duckdb"}})
	ctx := context.Background()

	err := e.Attach(ctx, "t", "http://localhost/", "q")
	assert.True(t, errors.Is(err, ErrRemoteTablesUnsupported))

	_, err = e.Tables(ctx)
	assert.ErrorIs(t, err, ErrRemoteTablesUnsupported)

	assert.ErrorIs(t, e.Detach(ctx, "t"), ErrRemoteTablesUnsupported)
}

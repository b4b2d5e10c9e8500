package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/remotesql/internal/testutil"
	"github.com/leapstack-labs/remotesql/pkg/adapter"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"

	_ "github.com/leapstack-labs/remotesql/pkg/adapters/duckdb"
)

// newRemote answers each POSTed query with the body registered for it.
func newRemote(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, _ := io.ReadAll(r.Body)
		body, ok := responses[string(q)]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"Invalid SQL","data":"unknown query"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewTestLogger(t)
	}
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNew(t *testing.T) {
	e, err := New(Config{DatabasePath: "x.db"})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", e.AdapterType())
	assert.Equal(t, "x.db", e.DatabasePath())
	assert.Equal(t, remotetable.DefaultModuleName, e.FetchConfig().ModuleName)
	assert.Nil(t, e.db, "connection is lazy")
	assert.Equal(t, "remote_table", e.dbConfig.Params["module_name"])
	assert.NoError(t, e.Close())
}

func TestNew_AdapterConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      adapter.Config
		wantType string
		wantPath string
		wantErr  bool
	}{
		{name: "defaults to sqlite", cfg: adapter.Config{}, wantType: "sqlite", wantPath: ""},
		{name: "database used as path", cfg: adapter.Config{Type: "duckdb", Database: "w.duckdb"}, wantType: "duckdb", wantPath: "w.duckdb"},
		{name: "memory path", cfg: adapter.Config{Type: "sqlite", Path: ":memory:"}, wantType: "sqlite", wantPath: ""},
		{name: "unknown adapter", cfg: adapter.Config{Type: "oracle"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			e, err := New(Config{AdapterConfig: &cfg})
			if tt.wantErr {
				var unknown *adapter.UnknownAdapterError
				require.ErrorAs(t, err, &unknown)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, e.AdapterType())
			assert.Equal(t, tt.wantPath, e.DatabasePath())
		})
	}
}

func TestWithFetchParams(t *testing.T) {
	params := withFetchParams(map[string]any{"timeout": "1s", "pragmas": map[string]any{"a": "b"}}, FetchConfig{
		ModuleName:     "rt",
		ConnectTimeout: 2 * time.Second,
		Timeout:        5 * time.Second,
	})

	assert.Equal(t, map[string]any{
		"module_name":     "rt",
		"connect_timeout": "2s",
		"timeout":         "1s",
		"pragmas":         map[string]any{"a": "b"},
	}, params, "explicit params win and zero settings are left out")
}

func TestEngine_QueryAndExec(t *testing.T) {
	e := openEngine(t, Config{})
	ctx := context.Background()

	require.NoError(t, e.Exec(ctx, "CREATE TABLE t (a INTEGER, b TEXT)"))
	require.NoError(t, e.Exec(ctx, "INSERT INTO t VALUES (1, 'x'), (2, 'y')"))

	rs, err := e.QueryAll(ctx, "SELECT a, b FROM t ORDER BY a", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rs.Columns)
	assert.Equal(t, [][]any{{int64(1), "x"}, {int64(2), "y"}}, rs.Rows)

	rs, err = e.QueryAll(ctx, "SELECT a FROM t", 1)
	require.NoError(t, err)
	assert.True(t, rs.Truncated)

	_, err = e.Query(ctx, "SELECT * FROM missing")
	assert.Error(t, err)

	meta, err := e.Describe(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, meta.Columns, 2)
	assert.Equal(t, int64(2), meta.RowCount)
}

func TestEngine_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shell.db")
	e := openEngine(t, Config{DatabasePath: path})
	require.NoError(t, e.Exec(context.Background(), "CREATE TABLE kept (x)"))
	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "close is idempotent")

	again := openEngine(t, Config{DatabasePath: path})
	meta, err := again.Describe(context.Background(), "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", meta.Name)
}

func TestEngine_SetReadOnly(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		seeds := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(seeds, "colors.csv"), []byte("name\nred\n"), 0o600))

		e := openEngine(t, Config{SeedsDir: seeds})
		require.NoError(t, e.Exec(ctx, "CREATE TABLE people (id INTEGER)"))
		require.NoError(t, e.Exec(ctx, "INSERT INTO people VALUES (1), (2), (3)"))

		require.NoError(t, e.SetReadOnly(ctx))
		assert.True(t, e.ReadOnly())

		for _, stmt := range []string{
			"WITH d AS (SELECT 1) DELETE FROM people RETURNING id",
			"UPDATE people SET id = 0",
			"PRAGMA user_version = 42",
		} {
			assert.Error(t, e.Exec(ctx, stmt), stmt)
		}

		rs, err := e.QueryAll(ctx, "SELECT count(*) FROM people", 0)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int64(3)}}, rs.Rows)

		_, err = e.LoadSeeds(ctx)
		assert.ErrorIs(t, err, ErrReadOnly)
		assert.ErrorIs(t, e.Attach(ctx, "t", "http://localhost/", "q"), ErrReadOnly)
	})

	t.Run("in-memory duckdb", func(t *testing.T) {
		e := openEngine(t, Config{AdapterConfig: &adapter.Config{Type: "duckdb"}})
		assert.ErrorIs(t, e.SetReadOnly(ctx), adapter.ErrReadOnlyUnsupported)
		assert.True(t, e.ReadOnly())
	})
}

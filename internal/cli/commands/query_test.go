package commands

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/remotesql/internal/cli/config"
	"github.com/leapstack-labs/remotesql/internal/cli/output"
	clitest "github.com/leapstack-labs/remotesql/internal/cli/testutil"
	"github.com/leapstack-labs/remotesql/internal/engine"
	"github.com/leapstack-labs/remotesql/internal/testutil"
	"github.com/leapstack-labs/remotesql/pkg/core"
)

// execute runs cmd with args and stdin, returning stdout and stderr.
func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestParseAttach(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantName  string
		wantTable core.RemoteTableConfig
		wantErr   string
	}{
		{
			name:      "simple",
			in:        "users=http://localhost:8090/::SELECT * FROM users",
			wantName:  "users",
			wantTable: core.RemoteTableConfig{URL: "http://localhost:8090/", Query: "SELECT * FROM users"},
		},
		{
			name:      "ipv6 host",
			in:        "t=http://[::1]:8090/::SELECT 1",
			wantName:  "t",
			wantTable: core.RemoteTableConfig{URL: "http://[::1]:8090/", Query: "SELECT 1"},
		},
		{
			name:      "cast in query",
			in:        "t=http://h/::SELECT 1::int AS x",
			wantName:  "t",
			wantTable: core.RemoteTableConfig{URL: "http://h/", Query: "SELECT 1::int AS x"},
		},
		{name: "no name", in: "http://h/::SELECT 1", wantErr: "expected name=URL::QUERY"},
		{name: "no query", in: "t=http://h/", wantErr: "expected name=URL::QUERY"},
		{name: "empty query", in: "t=http://h/::  ", wantErr: "query is empty"},
		{name: "bad scheme", in: "t=file:///x::SELECT 1", wantErr: "scheme must be http or https"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, table, err := parseAttach(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantTable, table)
		})
	}
}

func TestParseAttachFlags_Duplicate(t *testing.T) {
	_, err := parseAttachFlags([]string{"t=http://a/::q", "t=http://b/::q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestQueryCommand_Attach(t *testing.T) {
	clitest.SetupTestProject(t, "output: csv\n")
	srv := clitest.NewRemote(t, http.StatusOK, `[{"id":1,"name":"Ada"},{"id":2,"name":"Bob"}]`)

	out, _, err := execute(t, NewQueryCommand(), "",
		"--attach", "users="+srv.URL+"::SELECT id, name FROM people",
		"SELECT name FROM users WHERE id > 1")
	require.NoError(t, err)

	assert.Equal(t, "name\nBob\n", out)
	assert.Equal(t, []string{"SELECT id, name FROM people"}, srv.Queries(), "the remote query runs once, verbatim")
}

func TestQueryCommand_ConfiguredTables(t *testing.T) {
	srv := clitest.NewRemote(t, http.StatusOK, `[{"n":3},{"n":1},{"n":2}]`)
	clitest.SetupTestProject(t, `
output: json
tables:
  nums:
    url: `+srv.URL+`
    query: SELECT n FROM nums
`)

	out, _, err := execute(t, NewQueryCommand(), "", "SELECT n FROM nums ORDER BY n")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"n":1},{"n":2},{"n":3}]`, out)
}

func TestQueryCommand_Stdin(t *testing.T) {
	clitest.SetupTestProject(t, "output: csv\n")

	out, _, err := execute(t, NewQueryCommand(), "SELECT 1 AS one, 'x' AS two\n")
	require.NoError(t, err)
	assert.Equal(t, "one,two\n1,x\n", out)
}

func TestQueryCommand_InputFile(t *testing.T) {
	dir := clitest.SetupTestProject(t, "output: csv\n")
	path := filepath.Join(dir, "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 41 + 1 AS answer"), 0o600))

	out, _, err := execute(t, NewQueryCommand(), "", "--input", path)
	require.NoError(t, err)
	assert.Equal(t, "answer\n42\n", out)
}

func TestQueryCommand_Errors(t *testing.T) {
	t.Run("remote status", func(t *testing.T) {
		clitest.SetupTestProject(t, "")
		srv := clitest.NewRemote(t, http.StatusInternalServerError, `boom`)

		_, _, err := execute(t, NewQueryCommand(), "", "--attach", "t="+srv.URL+"::SELECT 1", "SELECT * FROM t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP error code: 500")
	})

	t.Run("remote error payload", func(t *testing.T) {
		clitest.SetupTestProject(t, "")
		srv := clitest.NewRemote(t, http.StatusOK, `{"error":"no such table: t"}`)

		_, _, err := execute(t, NewQueryCommand(), "", "--attach", "t="+srv.URL+"::SELECT 1", "SELECT * FROM t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such table: t")
	})

	t.Run("bad sql", func(t *testing.T) {
		clitest.SetupTestProject(t, "")
		_, _, err := execute(t, NewQueryCommand(), "", "SELEC 1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query failed")
	})

	t.Run("no sql", func(t *testing.T) {
		clitest.SetupTestProject(t, "")
		_, _, err := execute(t, NewQueryCommand(), "   ")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no SQL given")
	})
}

// newTestContext builds a CommandContext over an in-memory database that
// renders CSV into the returned buffers.
func newTestContext(t *testing.T) (*CommandContext, *cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	clitest.SetupTestProject(t, "")

	eng, err := engine.New(engine.Config{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	tr := clitest.NewTestRenderer(output.ModeCSV, false)
	cmd := &cobra.Command{}
	cmd.SetOut(tr.Out)
	cmd.SetErr(tr.ErrOut)

	cfg, err := config.LoadConfig("", nil)
	require.NoError(t, err)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   testutil.NewTestLogger(t),
		Engine:   eng,
		Renderer: tr.Renderer,
	}, cmd, tr.Out, tr.ErrOut
}

func TestDotCommands(t *testing.T) {
	c, cmd, out, errOut := newTestContext(t)
	ctx := context.Background()
	srv := clitest.NewRemote(t, http.StatusOK, `[{"id":1,"e-mail":"ada@example.com"}]`)

	require.NoError(t, c.Engine.Exec(ctx, "CREATE TABLE local_t (x INTEGER)"))

	assert.False(t, handleDotCommand(ctx, cmd, c, ".attach people "+srv.URL+" SELECT id, email FROM people"))
	assert.Empty(t, errOut.String())

	out.Reset()
	assert.False(t, handleDotCommand(ctx, cmd, c, ".tables"))
	assert.Equal(t, "name,type,url\nlocal_t,table,\npeople,remote,"+srv.URL+"\n", out.String())

	out.Reset()
	assert.False(t, handleDotCommand(ctx, cmd, c, ".schema people"))
	assert.Equal(t, "name,type,nullable,primary_key\nid,,true,false\ne_mail,,true,false\n", out.String())

	out.Reset()
	assert.False(t, handleDotCommand(ctx, cmd, c, ".schema local_t"))
	assert.Equal(t, "name,type,nullable,primary_key\nx,INTEGER,true,false\n", out.String())

	assert.False(t, handleDotCommand(ctx, cmd, c, ".detach people"))
	out.Reset()
	assert.False(t, handleDotCommand(ctx, cmd, c, ".tables"))
	assert.Equal(t, "name,type,url\nlocal_t,table,\n", out.String())

	assert.True(t, handleDotCommand(ctx, cmd, c, ".quit"))
}

func TestDotCommands_Usage(t *testing.T) {
	c, cmd, _, errOut := newTestContext(t)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{".schema", "Usage: .schema <table>"},
		{".attach t http://h/", "Usage: .attach <name> <url> <query>"},
		{".detach", "Usage: .detach <name>"},
		{".schema missing", "table missing not found"},
		{".bogus", "Unknown command: .bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			errOut.Reset()
			assert.False(t, handleDotCommand(ctx, cmd, c, tt.line))
			assert.Contains(t, errOut.String(), tt.want)
		})
	}
}

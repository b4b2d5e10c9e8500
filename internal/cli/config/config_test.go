package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/remotesql/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/remotesql/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/remotesql/pkg/adapters/sqlite"
)

// writeConfig writes a remotesql.yaml into a fresh directory, makes it the
// working directory and returns the file path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	ResetConfig()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "remotesql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.StringP("database", "d", "", "")
	fs.String("seeds-dir", "", "")
	fs.String("format", "", "")
	fs.Duration("timeout", 0, "")
	fs.Duration("connect-timeout", 0, "")
	fs.String("user-agent", "", "")
	fs.String("addr", "", "")
	fs.Bool("readonly", true, "")
	fs.Int("max-rows", 0, "")
	fs.StringArray("attach", nil, "")
	return fs
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Empty(t, GetConfigFileUsed())
	assert.Equal(t, "remote_table", cfg.ModuleName)
	assert.Equal(t, ":memory:", cfg.Database)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, 10*time.Second, cfg.Fetch.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.True(t, cfg.Server.ReadOnly)
	assert.Zero(t, cfg.Server.MaxRows)
	assert.True(t, cfg.Server.Viewer)
	assert.Empty(t, cfg.Server.SessionSecret)

	require.NotNil(t, cfg.Target)
	assert.Equal(t, "sqlite", cfg.Target.Type)
	assert.Equal(t, ":memory:", cfg.Target.Database)
	assert.Equal(t, "main", cfg.Target.Schema)
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
module_name: rt
database: local.db
output: json
fetch:
  connect_timeout: 2s
  timeout: 1m
  user_agent: tester
server:
  addr: 127.0.0.1:9000
  readonly: false
  max_rows: 100
  viewer: false
  session_secret: s3cret
tables:
  users:
    url: http://localhost:8090/
    query: SELECT * FROM users
`)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, path, GetConfigFileUsed())
	assert.Equal(t, "rt", cfg.ModuleName)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "local.db"), cfg.Database)
	assert.Equal(t, cfg.Database, cfg.Target.Database, "the default target uses the local database")
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 2*time.Second, cfg.Fetch.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.Fetch.Timeout)
	assert.Equal(t, "tester", cfg.Fetch.UserAgent)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.False(t, cfg.Server.ReadOnly)
	assert.Equal(t, 100, cfg.Server.MaxRows)
	assert.False(t, cfg.Server.Viewer)
	assert.Equal(t, "s3cret", cfg.Server.SessionSecret)
	assert.Equal(t, RemoteTableConfig{URL: "http://localhost:8090/", Query: "SELECT * FROM users"}, cfg.Tables["users"])
}

func TestLoadConfig_FoundUpward(t *testing.T) {
	path := writeConfig(t, "module_name: upward\n")
	sub := filepath.Join(filepath.Dir(path), "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "upward", cfg.ModuleName)
	assert.Equal(t, filepath.Dir(path), cfg.ConfigDir)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	ResetConfig()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.yaml")
}

func TestLoadConfig_Precedence(t *testing.T) {
	writeConfig(t, `
output: csv
fetch:
  timeout: 5s
server:
  addr: ":1"
`)
	t.Setenv("REMOTESQL_OUTPUT", "md")
	t.Setenv("REMOTESQL_FETCH_TIMEOUT", "7s")
	t.Setenv("REMOTESQL_SERVER_MAX_ROWS", "3")

	t.Run("env overrides file", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfig("", nil)
		require.NoError(t, err)
		assert.Equal(t, "md", cfg.OutputFormat)
		assert.Equal(t, 7*time.Second, cfg.Fetch.Timeout)
		assert.Equal(t, 3, cfg.Server.MaxRows)
		assert.Equal(t, ":1", cfg.Server.Addr)
	})

	t.Run("flags override env", func(t *testing.T) {
		ResetConfig()
		fs := testFlags()
		require.NoError(t, fs.Parse([]string{
			"--format", "yaml", "--timeout", "9s", "--addr", ":2", "--max-rows", "4", "--attach", "x=http://h::q",
		}))

		cfg, err := LoadConfig("", fs)
		require.NoError(t, err)
		assert.Equal(t, "yaml", cfg.OutputFormat)
		assert.Equal(t, 9*time.Second, cfg.Fetch.Timeout)
		assert.Equal(t, ":2", cfg.Server.Addr)
		assert.Equal(t, 4, cfg.Server.MaxRows)
	})

	t.Run("unchanged flags keep lower layers", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfig("", testFlags())
		require.NoError(t, err)
		assert.Equal(t, "md", cfg.OutputFormat)
		assert.True(t, cfg.Server.ReadOnly)
	})
}

func TestLoadConfig_DatabaseFlagRelativeToWorkingDir(t *testing.T) {
	path := writeConfig(t, "database: from_file.db\n")
	sub := filepath.Join(filepath.Dir(path), "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--database", "flag.db"}))

	cfg, err := LoadConfig("", fs)
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "flag.db"), cfg.Database)
}

func TestLoadConfigWithTarget_Environments(t *testing.T) {
	content := `
environment: dev
target:
  type: duckdb
  database: base.duckdb
tables:
  users:
    url: http://base/
    query: SELECT 1
environments:
  dev:
    target:
      database: dev.duckdb
  prod:
    target:
      database: prod.duckdb
      schema: prod
    tables:
      orders:
        url: http://prod/
        query: SELECT 2
`

	t.Run("default environment", func(t *testing.T) {
		path := writeConfig(t, content)
		cfg, err := LoadConfigWithTarget(path, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "duckdb", cfg.Target.Type)
		assert.Equal(t, filepath.Join(filepath.Dir(path), "dev.duckdb"), cfg.Target.Database)
		assert.Equal(t, "main", cfg.Target.Schema)
		assert.Len(t, cfg.Tables, 1)
	})

	t.Run("override", func(t *testing.T) {
		path := writeConfig(t, content)
		cfg, err := LoadConfigWithTarget(path, "prod", nil)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(filepath.Dir(path), "prod.duckdb"), cfg.Target.Database)
		assert.Equal(t, "prod", cfg.Target.Schema)
		assert.Len(t, cfg.Tables, 2)
		assert.Equal(t, "http://prod/", cfg.Tables["orders"].URL)
	})

	t.Run("unknown override", func(t *testing.T) {
		path := writeConfig(t, content)
		_, err := LoadConfigWithTarget(path, "staging", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown environment "staging"`)
	})
}

func TestLoadConfig_TargetErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown type", "target:\n  type: mysql\n", "unknown adapter type"},
		{"postgres without host", "target:\n  type: postgres\n", "host is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := LoadConfig(path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid target configuration")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_PG_HOST", "db.internal")
	t.Setenv("TEST_PG_PASSWORD", "secret123")
	t.Setenv("TEST_REMOTE_HOST", "remote.internal")

	path := writeConfig(t, `
target:
  type: postgres
  host: ${TEST_PG_HOST}
  user: app
  password: ${TEST_PG_PASSWORD}
  database: app
tables:
  t:
    url: http://${TEST_REMOTE_HOST}:8090/
    query: SELECT 1
`)
	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Target.Host)
	assert.Equal(t, "secret123", cfg.Target.Password)
	assert.Equal(t, "app", cfg.Target.Database, "postgres database names are not paths")
	assert.Equal(t, 5432, cfg.Target.Port)
	assert.Equal(t, "public", cfg.Target.Schema)
	assert.Equal(t, "http://remote.internal:8090/", cfg.Tables["t"].URL)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ModuleName:   "remote_table",
			OutputFormat: "table",
			Fetch:        FetchConfig{ConnectTimeout: time.Second, Timeout: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty module name", func(c *Config) { c.ModuleName = "" }, "module_name"},
		{"bad module name", func(c *Config) { c.ModuleName = "remote-table" }, "not a valid identifier"},
		{"zero connect timeout", func(c *Config) { c.Fetch.ConnectTimeout = 0 }, "fetch.connect_timeout must be positive"},
		{"negative timeout", func(c *Config) { c.Fetch.Timeout = -time.Second }, "fetch.timeout must be positive"},
		{"bad output", func(c *Config) { c.OutputFormat = "xml" }, `output "xml" is not supported`},
		{"negative max rows", func(c *Config) { c.Server.MaxRows = -1 }, "server.max_rows"},
		{"bad table url", func(c *Config) {
			c.Tables = map[string]RemoteTableConfig{"t": {URL: "ftp://h/", Query: "q"}}
		}, "scheme must be http or https"},
		{"empty table query", func(c *Config) {
			c.Tables = map[string]RemoteTableConfig{"t": {URL: "http://h/"}}
		}, "query is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")
	t.Setenv("TEST_VAR_TWO", "value_two")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single variable", "${TEST_VAR_ONE}", "value_one"},
		{"multiple variables", "${TEST_VAR_ONE}/${TEST_VAR_TWO}", "value_one/value_two"},
		{"unset variable stays as-is", "${UNSET_VARIABLE}", "${UNSET_VARIABLE}"},
		{"no variables", "plain string", "plain string"},
		{"mixed set and unset", "${TEST_VAR_ONE}:${UNSET_VAR}", "value_one:${UNSET_VAR}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "module_name", envKey("REMOTESQL_MODULE_NAME"))
	assert.Equal(t, "fetch.connect_timeout", envKey("REMOTESQL_FETCH_CONNECT_TIMEOUT"))
	assert.Equal(t, "server.max_rows", envKey("REMOTESQL_SERVER_MAX_ROWS"))
	assert.Equal(t, "server.session_secret", envKey("REMOTESQL_SERVER_SESSION_SECRET"))
	assert.Equal(t, "target.type", envKey("REMOTESQL_TARGET_TYPE"))
}

func TestMergeTargetConfig(t *testing.T) {
	t.Run("nil sides", func(t *testing.T) {
		o := &TargetConfig{Type: "duckdb"}
		assert.Same(t, o, MergeTargetConfig(nil, o))
		assert.Same(t, o, MergeTargetConfig(o, nil))
		assert.Nil(t, MergeTargetConfig(nil, nil))
	})

	t.Run("override replaces set fields", func(t *testing.T) {
		base := &TargetConfig{
			Type:     "duckdb",
			Database: "base.db",
			Host:     "localhost",
			Options:  map[string]string{"a": "1", "b": "1"},
			Params:   map[string]any{"threads": 2},
		}
		override := &TargetConfig{
			Database: "override.db",
			Options:  map[string]string{"b": "2"},
			Params:   map[string]any{"memory_limit": "1GB"},
		}

		got := MergeTargetConfig(base, override)
		assert.Equal(t, "duckdb", got.Type)
		assert.Equal(t, "override.db", got.Database)
		assert.Equal(t, "localhost", got.Host)
		assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got.Options)
		assert.Equal(t, map[string]any{"threads": 2, "memory_limit": "1GB"}, got.Params)
		assert.Equal(t, "base.db", base.Database, "base is not modified")
	})
}

func TestGetLogger(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ctx := context.WithValue(context.Background(), LoggerKey(), logger)
	assert.Same(t, logger, GetLogger(ctx))
	assert.NotNil(t, GetLogger(context.Background()))
}

func TestEngineConfig(t *testing.T) {
	cfg := &Config{
		ModuleName: "rt",
		Database:   "x.db",
		SeedsDir:   "seeds",
		Fetch:      FetchConfig{ConnectTimeout: time.Second, Timeout: 2 * time.Second, UserAgent: "ua"},
		Target:     &TargetConfig{Type: "duckdb", Database: "y.duckdb"},
	}

	ec := cfg.EngineConfig(nil)
	assert.Equal(t, "x.db", ec.DatabasePath)
	assert.Nil(t, ec.AdapterConfig)
	assert.Equal(t, "rt", ec.Fetch.ModuleName)
	assert.Equal(t, 2*time.Second, ec.Fetch.Timeout)

	tc := cfg.TargetEngineConfig(nil)
	require.NotNil(t, tc.AdapterConfig)
	assert.Equal(t, "duckdb", tc.AdapterConfig.Type)
	assert.Equal(t, "y.duckdb", tc.AdapterConfig.Path)
	assert.Equal(t, "seeds", tc.SeedsDir)
	assert.Equal(t, "ua", tc.Fetch.UserAgent)
}

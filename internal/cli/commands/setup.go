package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/remotesql/internal/cli/config"
	"github.com/leapstack-labs/remotesql/internal/cli/output"
	"github.com/leapstack-labs/remotesql/internal/engine"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an engine over the local
// SQLite database, the one remote tables live in. Returns the context and
// a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	return newCommandContext(cmd, false)
}

// NewTargetCommandContext creates a CommandContext with an engine over the
// configured target database.
func NewTargetCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	return newCommandContext(cmd, true)
}

func newCommandContext(cmd *cobra.Command, target bool) (*CommandContext, func(), error) {
	c := NewCommandContextWithoutEngine(cmd)

	ecfg := c.Cfg.EngineConfig(c.Logger)
	if target {
		ecfg = c.Cfg.TargetEngineConfig(c.Logger)
	}
	eng, err := engine.New(ecfg)
	if err != nil {
		return nil, nil, err
	}
	c.Engine = eng

	cleanup := func() {
		if err := eng.Close(); err != nil {
			c.Logger.Warn("failed to close engine", "error", err)
		}
	}
	return c, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need database access.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ParseMode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, loading defaults when no
// configuration has been loaded yet.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		return &config.Config{
			ModuleName:   config.DefaultModuleName,
			Database:     config.DefaultDatabase,
			OutputFormat: config.DefaultOutput,
			Fetch: config.FetchConfig{
				ConnectTimeout: config.DefaultConnectTimeout,
				Timeout:        config.DefaultTimeout,
			},
			Server: config.ServerConfig{Addr: config.DefaultServerAddr, ReadOnly: true},
			Target: &config.TargetConfig{Type: "sqlite", Database: config.DefaultDatabase},
		}
	}
	return cfg
}

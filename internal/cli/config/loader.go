package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	sharedcfg "github.com/leapstack-labs/remotesql/internal/config"
	"github.com/leapstack-labs/remotesql/internal/engine"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix is the prefix of environment variables read as configuration.
const EnvPrefix = "REMOTESQL_"

var configNames = []string{"remotesql.yaml", "remotesql.yml"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flag names onto config keys where the two differ.
var flagKeys = map[string]string{
	"connect-timeout": "fetch.connect_timeout",
	"timeout":         "fetch.timeout",
	"user-agent":      "fetch.user_agent",
	"addr":            "server.addr",
	"readonly":        "server.readonly",
	"max-rows":        "server.max_rows",
	"watch":           "server.watch",
	"viewer":          "server.viewer",
	"format":          "output",
	"env":             "environment",
}

// skippedFlags are command flags that are not configuration.
var skippedFlags = map[string]bool{
	"config": true,
	"target": true,
	"attach": true,
	"input":  true,
	"help":   true,
}

// envSections are the nested sections reachable from environment variables.
var envSections = []string{"fetch_", "server_", "target_"}

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if found := configExistsIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, already absolute or in-memory.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) || strings.HasPrefix(path, "file:") {
		return path
	}
	return filepath.Join(baseDir, path)
}

// envKey turns REMOTESQL_FETCH_CONNECT_TIMEOUT into fetch.connect_timeout.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range envSections {
		if strings.HasPrefix(key, section) {
			return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(key, section)
		}
	}
	return key
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadConfigWithTarget(cfgFile, "", flags)
}

// LoadConfigWithTarget loads configuration with an optional environment
// override selecting which environment's target and tables to use.
func LoadConfigWithTarget(cfgFile string, targetOverride string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	// Paths given as flags are relative to the working directory.
	var flagDatabase, flagSeedsDir string
	if flags != nil {
		if f := flags.Lookup("database"); f != nil && f.Changed {
			flagDatabase = resolvePathRelativeTo(f.Value.String(), cwd)
		}
		if f := flags.Lookup("seeds-dir"); f != nil && f.Changed {
			flagSeedsDir = resolvePathRelativeTo(f.Value.String(), cwd)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"module_name":           DefaultModuleName,
		"database":              DefaultDatabase,
		"seeds_dir":             DefaultSeedsDir,
		"verbose":               false,
		"output":                DefaultOutput,
		"fetch.connect_timeout": DefaultConnectTimeout.String(),
		"fetch.timeout":         DefaultTimeout.String(),
		"fetch.user_agent":      "",
		"server.addr":           DefaultServerAddr,
		"server.readonly":       true,
		"server.max_rows":       0,
		"server.watch":          false,
		"server.viewer":         true,
		"server.session_secret": "",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		cfgFile = findConfigUpward(cwd)
	} else if _, err := os.Stat(cfgFile); err != nil {
		return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
	}
	configFileUsed = cfgFile
	configDir := cwd
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
		if abs, err := filepath.Abs(configFileUsed); err == nil {
			configDir = filepath.Dir(abs)
		}
	}

	// 3. Load environment variables (REMOTESQL_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || skippedFlags[f.Name] {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigDir = configDir

	// 6. Apply the selected environment
	envName := cfg.Environment
	if targetOverride != "" {
		envName = targetOverride
	}
	if envName != "" {
		if envCfg, ok := cfg.Environments[envName]; ok {
			if envCfg.Database != "" {
				cfg.Database = envCfg.Database
			}
			if envCfg.SeedsDir != "" {
				cfg.SeedsDir = envCfg.SeedsDir
			}
			if envCfg.Target != nil {
				cfg.Target = MergeTargetConfig(cfg.Target, envCfg.Target)
			}
			cfg.Tables = mergeTables(cfg.Tables, envCfg.Tables)
		} else if targetOverride != "" {
			return nil, fmt.Errorf("unknown environment %q", targetOverride)
		}
	}

	// 7. Resolve paths
	if flagDatabase != "" {
		cfg.Database = flagDatabase
	} else {
		cfg.Database = resolvePathRelativeTo(expandEnvVars(cfg.Database), configDir)
	}
	if flagSeedsDir != "" {
		cfg.SeedsDir = flagSeedsDir
	} else {
		cfg.SeedsDir = resolvePathRelativeTo(cfg.SeedsDir, configDir)
	}

	// 8. Target defaults to the local SQLite database.
	if cfg.Target == nil {
		cfg.Target = &TargetConfig{Type: sharedcfg.DefaultTarget}
	}
	if cfg.Target.Type == "" && cfg.Target.Host == "" {
		cfg.Target.Type = sharedcfg.DefaultTarget
	}
	expandTargetEnvVars(cfg.Target)
	if cfg.Target.Database == "" && strings.EqualFold(cfg.Target.Type, sharedcfg.DefaultTarget) {
		cfg.Target.Database = cfg.Database
	} else if !strings.EqualFold(cfg.Target.Type, "postgres") {
		cfg.Target.Database = resolvePathRelativeTo(cfg.Target.Database, configDir)
	}
	sharedcfg.ApplyTargetDefaults(cfg.Target)

	for name, t := range cfg.Tables {
		t.URL = expandEnvVars(t.URL)
		cfg.Tables[name] = t
	}

	if err := sharedcfg.ValidateTarget(cfg.Target); err != nil {
		return nil, fmt.Errorf("invalid target configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the configuration loaded last.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}

// expandTargetEnvVars expands environment variables in sensitive target fields.
func expandTargetEnvVars(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Password = expandEnvVars(t.Password)
	t.User = expandEnvVars(t.User)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
}

// MergeTargetConfig merges two target configs, with override taking precedence.
func MergeTargetConfig(base, override *TargetConfig) *TargetConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := &TargetConfig{
		Type:     base.Type,
		Database: base.Database,
		Host:     base.Host,
		Port:     base.Port,
		User:     base.User,
		Password: base.Password,
		Schema:   base.Schema,
		Options:  make(map[string]string),
		Params:   make(map[string]any),
	}
	for k, v := range base.Options {
		merged.Options[k] = v
	}
	for k, v := range base.Params {
		merged.Params[k] = v
	}

	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Schema != "" {
		merged.Schema = override.Schema
	}
	for k, v := range override.Options {
		merged.Options[k] = v
	}
	for k, v := range override.Params {
		merged.Params[k] = v
	}

	return merged
}

// mergeTables returns base with override's bindings added or replaced.
func mergeTables(base, override map[string]RemoteTableConfig) map[string]RemoteTableConfig {
	if len(override) == 0 {
		return base
	}
	merged := make(map[string]RemoteTableConfig, len(base)+len(override))
	for name, t := range base {
		merged[name] = t
	}
	for name, t := range override {
		merged[name] = t
	}
	return merged
}

// EngineConfig returns the engine configuration for the local query shell:
// the SQLite database named by Database.
func (c *Config) EngineConfig(logger *slog.Logger) engine.Config {
	return engine.Config{
		DatabasePath: c.Database,
		SeedsDir:     c.SeedsDir,
		Fetch:        c.fetchConfig(),
		Logger:       logger,
	}
}

// TargetEngineConfig returns the engine configuration for the configured
// target, used by serve and seed.
func (c *Config) TargetEngineConfig(logger *slog.Logger) engine.Config {
	ac := c.Target.AdapterConfig()
	return engine.Config{
		AdapterConfig: &ac,
		SeedsDir:      c.SeedsDir,
		Fetch:         c.fetchConfig(),
		Logger:        logger,
	}
}

func (c *Config) fetchConfig() engine.FetchConfig {
	return engine.FetchConfig{
		ModuleName:     c.ModuleName,
		ConnectTimeout: c.Fetch.ConnectTimeout,
		Timeout:        c.Fetch.Timeout,
		UserAgent:      c.Fetch.UserAgent,
	}
}

// Package config loads remotesql configuration.
//
// Values are layered from defaults, a remotesql.yaml file, REMOTESQL_*
// environment variables and command-line flags, each overriding the
// previous one. The shared target type lives in pkg/core and is
// re-exported here.
package config

import (
	"time"

	sharedcfg "github.com/leapstack-labs/remotesql/internal/config"
	"github.com/leapstack-labs/remotesql/pkg/core"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

// TargetConfig is an alias for the shared target configuration.
type TargetConfig = core.TargetConfig

// RemoteTableConfig is an alias for the shared remote table binding.
type RemoteTableConfig = core.RemoteTableConfig

// Config holds all CLI configuration options.
type Config struct {
	ModuleName   string                       `koanf:"module_name"`
	Database     string                       `koanf:"database"`
	SeedsDir     string                       `koanf:"seeds_dir"`
	Environment  string                       `koanf:"environment"`
	Verbose      bool                         `koanf:"verbose"`
	OutputFormat string                       `koanf:"output"`
	Fetch        FetchConfig                  `koanf:"fetch"`
	Server       ServerConfig                 `koanf:"server"`
	Target       *TargetConfig                `koanf:"target"`
	Tables       map[string]RemoteTableConfig `koanf:"tables"`
	Environments map[string]EnvConfig         `koanf:"environments"`

	// ConfigDir is the directory relative paths were resolved against.
	ConfigDir string `koanf:"-"`
}

// FetchConfig holds the remote request settings of the remote table module.
type FetchConfig struct {
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	Timeout        time.Duration `koanf:"timeout"`
	UserAgent      string        `koanf:"user_agent"`
}

// ServerConfig holds configuration for the remote SQL server.
type ServerConfig struct {
	Addr          string `koanf:"addr"`
	ReadOnly      bool   `koanf:"readonly"`
	MaxRows       int    `koanf:"max_rows"`
	Watch         bool   `koanf:"watch"`
	Viewer        bool   `koanf:"viewer"`
	SessionSecret string `koanf:"session_secret"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	Database string                       `koanf:"database"`
	SeedsDir string                       `koanf:"seeds_dir"`
	Target   *TargetConfig                `koanf:"target"`
	Tables   map[string]RemoteTableConfig `koanf:"tables"`
}

// Default configuration values.
const (
	DefaultModuleName     = remotetable.DefaultModuleName
	DefaultDatabase       = sharedcfg.DefaultDatabase
	DefaultSeedsDir       = sharedcfg.DefaultSeedsDir
	DefaultOutput         = "table"
	DefaultConnectTimeout = remotetable.DefaultConnectTimeout
	DefaultTimeout        = remotetable.DefaultTimeout
	DefaultServerAddr     = ":8090"
)

// OutputFormats lists the accepted values of the output setting.
var OutputFormats = []string{"table", "json", "csv", "md", "yaml"}

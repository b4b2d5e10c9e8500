// Package config holds configuration helpers shared by the CLI and the
// server: target defaults and target validation.
package config

import (
	"strings"

	"github.com/leapstack-labs/remotesql/pkg/core"
)

// Default configuration values.
const (
	DefaultSeedsDir = "seeds"
	DefaultDatabase = ":memory:"
	DefaultTarget   = "sqlite"
)

var defaultSchemas = map[string]string{
	"sqlite":   "main",
	"duckdb":   "main",
	"postgres": "public",
}

// DefaultSchemaForType returns the default schema for a database type.
// Unknown types fall back to "main".
func DefaultSchemaForType(dbType string) string {
	if s, ok := defaultSchemas[strings.ToLower(dbType)]; ok {
		return s
	}
	return "main"
}

// ApplyTargetDefaults applies default values to a TargetConfig based on the target type.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil {
		return
	}

	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}

	switch strings.ToLower(t.Type) {
	case "postgres":
		if t.Port == 0 {
			t.Port = 5432
		}
	case "sqlite", "duckdb":
		if t.Database == "" {
			t.Database = DefaultDatabase
		}
	}
}

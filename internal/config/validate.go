package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/remotesql/pkg/adapter"
	"github.com/leapstack-labs/remotesql/pkg/core"
)

// ValidateTarget checks that a target names a registered adapter.
// It normalizes the type to lower case.
func ValidateTarget(t *core.TargetConfig) error {
	if t == nil {
		return fmt.Errorf("target is required")
	}
	if strings.TrimSpace(t.Type) == "" {
		return fmt.Errorf("target type is required")
	}

	t.Type = strings.ToLower(t.Type)
	if !adapter.IsRegistered(t.Type) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	if t.Type == "postgres" && t.Host == "" {
		return fmt.Errorf("target host is required for postgres")
	}
	return nil
}

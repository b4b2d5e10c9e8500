package config

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/remotesql/internal/engine"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ModuleName == "" || remotetable.SanitizeIdentifier(c.ModuleName) != c.ModuleName {
		return fmt.Errorf("module_name %q is not a valid identifier", c.ModuleName)
	}
	if c.Fetch.ConnectTimeout <= 0 {
		return fmt.Errorf("fetch.connect_timeout must be positive, got %s", c.Fetch.ConnectTimeout)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("output %q is not supported (use one of %v)", c.OutputFormat, OutputFormats)
	}
	if c.Server.MaxRows < 0 {
		return fmt.Errorf("server.max_rows must not be negative, got %d", c.Server.MaxRows)
	}

	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := c.Tables[name]
		if err := engine.ValidateBinding(name, t.URL, t.Query); err != nil {
			return fmt.Errorf("tables: %w", err)
		}
	}
	return nil
}

package sqlite

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

// Params holds SQLite-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// ModuleName is the name CREATE VIRTUAL TABLE ... USING refers to.
	ModuleName string `mapstructure:"module_name"`

	// ConnectTimeout bounds connection setup to a remote endpoint.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Timeout bounds a whole remote request.
	Timeout time.Duration `mapstructure:"timeout"`

	// UserAgent is sent with every remote request.
	UserAgent string `mapstructure:"user_agent"`

	// Pragmas are applied once after the connection opens (e.g. journal_mode, busy_timeout).
	Pragmas map[string]string `mapstructure:"pragmas"`

	// QueryOnly sets PRAGMA query_only, rejecting writes to the database file.
	QueryOnly bool `mapstructure:"query_only"`
}

// parseParams decodes raw adapter params. Durations accept strings like "30s".
func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			Result:           p,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create params decoder: %w", err)
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid sqlite params: %w", err)
		}
	}

	if p.ModuleName == "" {
		p.ModuleName = remotetable.DefaultModuleName
	}
	if p.ConnectTimeout < 0 || p.Timeout < 0 {
		return nil, fmt.Errorf("invalid sqlite params: timeouts must not be negative")
	}
	for name := range p.Pragmas {
		if remotetable.SanitizeIdentifier(name) != name {
			return nil, fmt.Errorf("invalid sqlite params: bad pragma name %q", name)
		}
	}
	return p, nil
}

// fetcherOptions converts the params into remote fetch options. Zero values
// keep the fetcher defaults.
func (p *Params) fetcherOptions() []remotetable.FetcherOption {
	var opts []remotetable.FetcherOption
	if p.ConnectTimeout > 0 {
		opts = append(opts, remotetable.WithConnectTimeout(p.ConnectTimeout))
	}
	if p.Timeout > 0 {
		opts = append(opts, remotetable.WithTimeout(p.Timeout))
	}
	if p.UserAgent != "" {
		opts = append(opts, remotetable.WithUserAgent(p.UserAgent))
	}
	return opts
}

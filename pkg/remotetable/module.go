package remotetable

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"modernc.org/sqlite/vtab"

	// The driver installs the hook behind vtab.RegisterModule.
	_ "modernc.org/sqlite"
)

// DefaultModuleName is the name the module is registered under unless
// configured otherwise.
const DefaultModuleName = "remote_table"

// SQLite passes module name, database name and table name ahead of the
// arguments written in USING module(...).
const (
	argTableName = 2
	argURL       = 3
	argQuery     = 4
	argCount     = 5
)

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithFetcher sets the Fetcher shared by all tables of the module.
func WithFetcher(f *Fetcher) ModuleOption {
	return func(m *Module) {
		if f != nil {
			m.fetcher = f
		}
	}
}

// WithLogger sets the module logger.
func WithLogger(l *slog.Logger) ModuleOption {
	return func(m *Module) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithName sets the name used in error messages and registration.
func WithName(name string) ModuleOption {
	return func(m *Module) {
		if name != "" {
			m.name = name
		}
	}
}

// Module implements vtab.Module for remote tables.
type Module struct {
	name    string
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewModule creates a module. Without WithFetcher it uses a Fetcher with
// the default timeouts.
func NewModule(opts ...ModuleOption) *Module {
	m := &Module{
		name:   DefaultModuleName,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fetcher == nil {
		m.fetcher = NewFetcher(WithFetchLogger(m.logger))
	}
	return m
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Fetcher returns the module's Fetcher.
func (m *Module) Fetcher() *Fetcher { return m.fetcher }

// Create implements vtab.Module (xCreate).
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx.Declare, args)
}

// Connect implements vtab.Module (xConnect). The result set is not
// persisted, so reconnecting fetches it again.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx.Declare, args)
}

func (m *Module) connect(declare DeclareFunc, args []string) (*Table, error) {
	binding, err := m.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	return NewTable(context.Background(), m.fetcher, args[argTableName], binding, declare, m.logger)
}

// ParseArgs extracts the endpoint binding from the xCreate argument vector.
func (m *Module) ParseArgs(args []string) (Binding, error) {
	if len(args) != argCount {
		got := len(args) - argURL
		if got < 0 {
			got = 0
		}
		return Binding{}, &UsageError{Module: m.name, Got: got}
	}
	return Binding{
		URL:   Dequote(args[argURL]),
		Query: Dequote(args[argQuery]),
	}, nil
}

// Dequote strips one level of SQL quoting from a module argument. SQLite
// hands module arguments over as raw tokens, so 'http://host/' arrives with
// its quotes. Unquoted arguments are only trimmed.
func Dequote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	open, last := s[0], s[len(s)-1]
	var closeQuote byte
	switch open {
	case '\'', '"', '`':
		closeQuote = open
	case '[':
		closeQuote = ']'
	default:
		return s
	}
	if last != closeQuote {
		return s
	}
	inner := s[1 : len(s)-1]
	if open == '[' {
		return inner
	}
	q := string(open)
	return strings.ReplaceAll(inner, q+q, q)
}

// QuoteArg renders s as a single quoted SQL string literal, suitable as a
// module argument.
func QuoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var (
	registeredMu sync.Mutex
	registered   = make(map[string]*Module)
)

// Register installs m with the modernc SQLite driver under name. The driver
// keeps modules process wide and applies them to connections opened after
// registration, so Register must run before the first connection of a
// database that uses the module. Registering the same module twice is a
// no-op; registering a different module under a taken name fails.
func Register(name string, m *Module) error {
	if name == "" {
		name = m.name
	}

	registeredMu.Lock()
	defer registeredMu.Unlock()

	if prev, ok := registered[name]; ok {
		if prev == m {
			return nil
		}
		return fmt.Errorf("module %q is already registered", name)
	}
	if err := vtab.RegisterModule(nil, name, m); err != nil {
		return fmt.Errorf("register module %q: %w", name, err)
	}
	registered[name] = m
	return nil
}

// Registered returns the module registered under name, if any.
func Registered(name string) (*Module, bool) {
	registeredMu.Lock()
	defer registeredMu.Unlock()
	m, ok := registered[name]
	return m, ok
}

var _ vtab.Module = (*Module)(nil)

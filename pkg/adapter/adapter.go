// Package adapter provides database adapter interfaces and the shared
// database/sql plumbing used by the implementations in pkg/adapters.
//
// Core types (Config, Column, Metadata, Rows) are defined in pkg/core and
// re-exported here via type aliases so adapter code reads naturally.
package adapter

import (
	"context"
	"errors"

	"github.com/leapstack-labs/remotesql/pkg/core"
)

type (
	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter

	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Column is an alias for core.Column.
	Column = core.Column

	// Metadata is an alias for core.TableMetadata.
	Metadata = core.TableMetadata

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)

// ReadOnlyGuard is implemented by adapters that can refuse writes at the
// database level. SetReadOnly cannot be undone on the same adapter.
type ReadOnlyGuard interface {
	SetReadOnly(ctx context.Context) error
}

// ErrReadOnlyUnsupported is returned by SetReadOnly when the database
// cannot be made read-only, e.g. an in-memory DuckDB database.
var ErrReadOnlyUnsupported = errors.New("database cannot be made read-only")

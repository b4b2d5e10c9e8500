// Package core defines the shared language of remotesql.
//
// This package contains:
//   - Service interfaces (Adapter)
//   - Configuration types (AdapterConfig, TargetConfig, RemoteTableConfig)
//   - Metadata types returned by adapters (Column, TableMetadata)
//
// pkg/core imports only the standard library. Everything else depends on
// core, not the reverse.
package core

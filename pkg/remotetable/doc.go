// Package remotetable exposes the JSON output of a remote SQL endpoint as a
// read-only SQLite virtual table.
//
// A table is declared with two module arguments, the endpoint URL and the
// query to POST to it:
//
//	CREATE VIRTUAL TABLE users USING remote_table('http://host:8090/', 'SELECT * FROM users');
//
// Creating the table performs exactly one HTTP request. The response must be
// a JSON array of objects; the column set is inferred from the keys of the
// first object and every row is served from memory for the lifetime of the
// table. Nothing is refetched, and the engine evaluates all predicates.
//
// The package is organised leaf first:
//
//   - document.go: the ordered JSON document tree (Value)
//   - value.go: coercion of document values into SQLite result kinds
//   - schema.go: column inference and identifier sanitization
//   - fetch.go: the single HTTP round trip
//   - table.go, cursor.go: the vtab.Table and vtab.Cursor implementations
//   - module.go: the vtab.Module glue and registration
package remotetable

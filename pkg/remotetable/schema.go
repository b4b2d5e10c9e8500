package remotetable

import (
	"strings"
)

// FallbackColumn is the single column declared when no field names can be
// inferred from the result set.
const FallbackColumn = "data"

// Column pairs the declared (sanitized) column name with the field name it
// is read from.
type Column struct {
	Name     string
	Original string
	// Inferred is false for the fallback column, which has no source field.
	Inferred bool
}

// Schema is the ordered column list of a remote table.
type Schema struct {
	Columns []Column
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.Columns) }

// Names returns the sanitized column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the i-th column.
func (s Schema) Column(i int) (Column, bool) {
	if i < 0 || i >= len(s.Columns) {
		return Column{}, false
	}
	return s.Columns[i], true
}

// IsFallback reports whether the schema is the one-column placeholder used
// for empty or shapeless result sets.
func (s Schema) IsFallback() bool {
	return len(s.Columns) == 1 && !s.Columns[0].Inferred
}

// InferSchema derives the column list from the field names of the first row.
// Later rows do not contribute: a field missing from a later row reads as
// NULL and extra fields are ignored. Duplicate names are kept as is.
func InferSchema(rows []Value) Schema {
	if len(rows) == 0 || !rows[0].IsObject() {
		return fallbackSchema()
	}

	first := rows[0].Fields()
	cols := make([]Column, 0, len(first))
	for _, f := range first {
		cols = append(cols, Column{
			Name:     SanitizeIdentifier(f.Name),
			Original: f.Name,
			Inferred: true,
		})
	}
	if len(cols) == 0 {
		// {} as the first row; SQLite rejects a table with no columns.
		return fallbackSchema()
	}
	return Schema{Columns: cols}
}

// Duplicates returns the column names that occur more than once. SQLite
// compares column names case-insensitively, so "ID" and "id" collide.
func (s Schema) Duplicates() []string {
	seen := make(map[string]int, len(s.Columns))
	var dups []string
	for _, c := range s.Columns {
		key := strings.ToLower(c.Name)
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, c.Name)
		}
	}
	return dups
}

func fallbackSchema() Schema {
	return Schema{Columns: []Column{{Name: FallbackColumn}}}
}

// SanitizeIdentifier replaces every byte outside [A-Za-z0-9_] with '_'.
// The replacement is byte-wise, so a multi-byte UTF-8 character turns into
// one underscore per byte. An empty name becomes "_".
func SanitizeIdentifier(name string) string {
	if name == "" {
		return "_"
	}
	b := []byte(name)
	for i, c := range b {
		if !isIdentByte(c) {
			b[i] = '_'
		}
	}
	return string(b)
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// DeclareSQL renders the CREATE TABLE statement passed to
// sqlite3_declare_vtab. Names are double quoted so that sanitized names that
// collide with keywords or start with a digit are still legal.
func (s Schema) DeclareSQL() string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE x(")
	for i, c := range s.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdentifier(c.Name))
	}
	sb.WriteString(")")
	return sb.String()
}

// QuoteIdentifier wraps name in double quotes, doubling embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

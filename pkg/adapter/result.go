package adapter

import (
	"fmt"
)

// ResultSet is a fully materialized query result with columns in select
// order.
type ResultSet struct {
	Columns []string
	Rows    [][]any
	// Truncated is set when ReadRows stopped at its limit with rows left.
	Truncated bool
}

// ReadRows drains rows into a ResultSet and closes them. A positive limit
// caps the number of rows read. []byte values are converted to strings.
func ReadRows(rows *Rows, limit int) (*ResultSet, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	rs := &ResultSet{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if limit > 0 && len(rs.Rows) >= limit {
			rs.Truncated = true
			break
		}

		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return rs, nil
}

// Package viewer provides a browser UI over the served database: browse
// tables a page at a time, run SQL, and view table schemas.
package viewer

// Status describes the database behind the viewer.
type Status struct {
	Connected    bool
	Adapter      string
	Database     string
	ReadOnly     bool
	RemoteTables int
	Message      string
}

// TableInfo represents a table or view.
type TableInfo struct {
	Schema string
	Name   string
	Type   string // "table", "view" or "remote"
	URL    string // endpoint of a remote table
}

// Qualified returns the name the viewer routes use for the table.
func (t TableInfo) Qualified() string {
	if t.Schema == "" || t.Schema == "main" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnMeta represents column metadata.
type ColumnMeta struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

// TableMeta represents detailed table metadata.
type TableMeta struct {
	Table    TableInfo
	RowCount int64
	Columns  []ColumnMeta
	Error    string
}

// TablePage is one page of a table's rows.
type TablePage struct {
	Table      TableInfo
	Columns    []string
	Rows       [][]string
	Page       int
	Size       int
	TotalRows  int64
	TotalPages int
	Error      string
}

// QueryResult is the outcome of an executed statement.
type QueryResult struct {
	Columns   []string
	Rows      [][]string
	RowCount  int
	Truncated bool
	QueryMS   int64
	Error     string
}

// PageData is what the page shell is rendered from.
type PageData struct {
	Title    string
	SQL      string
	PageSize int
	ReadOnly bool
}

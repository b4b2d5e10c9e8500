package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/remotesql/internal/engine"
	"github.com/leapstack-labs/remotesql/pkg/adapter"
)

// schemaOutput is the structured form of an inspection.
type schemaOutput struct {
	URL        string         `json:"url" yaml:"url"`
	Query      string         `json:"query" yaml:"query"`
	Rows       int            `json:"rows" yaml:"rows"`
	Fallback   bool           `json:"fallback" yaml:"fallback"`
	Columns    []schemaColumn `json:"columns" yaml:"columns"`
	Duplicates []string       `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
}

type schemaColumn struct {
	Name     string `json:"name" yaml:"name"`
	Original string `json:"original" yaml:"original"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <url> <query>",
		Short: "Show the table a remote query would produce",
		Long: `Run a remote query once and print the columns a remote table over it
would have, without creating the table.

Column names come from the first row's fields, with every character other
than ASCII letters, digits and underscore replaced by an underscore. An
empty result or a first row that is not an object gives the single column
"data".`,
		Example: `  remotesql schema http://localhost:8090/ "SELECT * FROM users"
  remotesql schema http://localhost:8090/ "SELECT * FROM users" --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd, args[0], args[1])
		},
	}
}

func runSchema(cmd *cobra.Command, rawURL, query string) error {
	c := NewCommandContextWithoutEngine(cmd)

	eng, err := engine.New(c.Cfg.EngineConfig(c.Logger))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	insp, err := eng.Inspect(cmd.Context(), rawURL, query)
	if err != nil {
		return err
	}

	out := schemaOutput{
		URL:        insp.Binding.URL,
		Query:      insp.Binding.Query,
		Rows:       insp.RowCount,
		Fallback:   insp.Schema.IsFallback(),
		Columns:    make([]schemaColumn, 0, insp.Schema.Len()),
		Duplicates: insp.Duplicates,
	}
	for _, col := range insp.Schema.Columns {
		out.Columns = append(out.Columns, schemaColumn{Name: col.Name, Original: col.Original})
	}

	r := c.Renderer
	if ok, err := r.Structured(out); ok {
		return err
	}

	r.Header(1, "Remote schema")
	r.KeyValue("URL", out.URL)
	r.KeyValue("Query", out.Query)
	r.KeyValue("Rows", strconv.Itoa(out.Rows))
	r.Println("")

	rs := &adapter.ResultSet{Columns: []string{"column", "field"}, Rows: make([][]any, 0, len(out.Columns))}
	for _, col := range out.Columns {
		var field any
		if !out.Fallback {
			field = col.Original
		}
		rs.Rows = append(rs.Rows, []any{col.Name, field})
	}
	if err := r.Result(rs); err != nil {
		return err
	}

	if out.Fallback {
		r.Muted(`No object rows: the table gets the single column "data".`)
	}
	if len(out.Duplicates) > 0 {
		r.Warning(fmt.Sprintf("duplicate column names after sanitization: %s (creating the table will fail)",
			strings.Join(out.Duplicates, ", ")))
	}
	return nil
}

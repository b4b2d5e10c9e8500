package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/remotesql/pkg/adapter"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

// Result writes a query result in the renderer's mode.
func (r *Renderer) Result(rs *adapter.ResultSet) error {
	var err error
	switch r.mode {
	case ModeJSON:
		err = r.resultJSON(rs)
	case ModeCSV:
		err = r.resultCSV(rs)
	case ModeMarkdown:
		r.resultMarkdown(rs)
	case ModeYAML:
		err = r.resultYAML(rs)
	default:
		r.resultTable(rs)
	}
	if err != nil {
		return err
	}
	if rs.Truncated {
		r.Warning(fmt.Sprintf("result truncated at %d rows", len(rs.Rows)))
	}
	return nil
}

func (r *Renderer) resultTable(rs *adapter.ResultSet) {
	if len(rs.Columns) == 0 {
		r.Muted("OK")
		return
	}
	if len(rs.Rows) == 0 {
		r.Muted("(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	if r.isTTY {
		t.SetStyle(table.StyleLight)
	} else {
		t.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, len(rs.Columns))
	for i, col := range rs.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range rs.Rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = FormatValue(v)
		}
		t.AppendRow(out)
	}

	t.Render()
	r.Muted(rowCount(len(rs.Rows)))
}

func (r *Renderer) resultJSON(rs *adapter.ResultSet) error {
	compact, err := remotetable.Records(rs.Columns, rs.Rows).MarshalJSON()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = r.out.Write(buf.Bytes())
	return err
}

func (r *Renderer) resultCSV(rs *adapter.ResultSet) error {
	w := csv.NewWriter(r.out)
	if err := w.Write(rs.Columns); err != nil {
		return err
	}
	record := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && row[i] != nil {
				record[i] = FormatValue(row[i])
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (r *Renderer) resultMarkdown(rs *adapter.ResultSet) {
	if len(rs.Rows) == 0 {
		r.Println("(0 rows)")
		return
	}

	cols := make([]string, len(rs.Columns))
	seps := make([]string, len(rs.Columns))
	for i, col := range rs.Columns {
		cols[i] = escapeMarkdown(col)
		seps[i] = "---"
	}
	r.Printf("| %s |\n", strings.Join(cols, " | "))
	r.Printf("| %s |\n", strings.Join(seps, " | "))

	values := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i := range values {
			values[i] = ""
			if i < len(row) {
				values[i] = escapeMarkdown(FormatValue(row[i]))
			}
		}
		r.Printf("| %s |\n", strings.Join(values, " | "))
	}
	r.Println("")
	r.Println(rowCount(len(rs.Rows)))
}

// resultYAML writes a sequence of mappings that keep column order.
func (r *Renderer) resultYAML(rs *adapter.ResultSet) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range rs.Rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for i, col := range rs.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			val := &yaml.Node{}
			if err := val.Encode(v); err != nil {
				return fmt.Errorf("failed to encode column %s: %w", col, err)
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: col}, val)
		}
		doc.Content = append(doc.Content, m)
	}
	if len(doc.Content) == 0 {
		doc.Style = yaml.FlowStyle
	}
	return r.YAML(doc)
}

// FormatValue renders a column value as text. NULL is spelled out.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func rowCount(n int) string {
	if n == 1 {
		return "(1 row)"
	}
	return fmt.Sprintf("(%d rows)", n)
}

package viewer

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// normalizeTableType converts database-specific table types to standard ones.
func normalizeTableType(t string) string {
	t = strings.ToLower(t)
	switch {
	case strings.Contains(t, "view"):
		return "view"
	case strings.Contains(t, "table"):
		return "table"
	default:
		return t
	}
}

func tableIcon(tableType string) string {
	switch tableType {
	case "view":
		return "V"
	case "remote":
		return "R"
	}
	return "T"
}

func formatRows(rows [][]any) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = formatValue(v)
		}
	}
	return out
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

// apiPath builds a viewer API path for a table, safe inside a single
// quoted datastar expression.
func apiPath(table string, suffix string) string {
	p := "/viewer/api/tables/" + url.PathEscape(table) + suffix
	return strings.ReplaceAll(p, "'", "%27")
}

func plural(n int64, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.FormatInt(n, 10) + " " + word + "s"
}

package viewer

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/goccy/go-json"
)

// datastarScript is the client library behind the page's data-* attributes.
const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

const pageStyle = `body{font-family:system-ui,sans-serif;margin:0;display:grid;grid-template-columns:16rem 1fr}` +
	`header{grid-column:1/3;padding:.5rem 1rem;background:#f4f4f5}header span{margin-left:1rem}` +
	`nav{padding:1rem;border-right:1px solid #e4e4e7}nav ul{list-style:none;padding:0}` +
	`main{padding:1rem;overflow:auto}section{margin-bottom:2rem}` +
	`table{border-collapse:collapse}td,th{border:1px solid #e4e4e7;padding:.25rem .5rem;text-align:left}` +
	`textarea{width:100%;min-height:6rem;font-family:monospace}.error{color:#b91c1c}.muted{color:#71717a}`

// Element ids patched by the SSE endpoints.
const (
	idStatus  = "viewer-status"
	idTables  = "viewer-tables"
	idTable   = "viewer-table"
	idSchemas = "viewer-schemas"
	idResults = "viewer-results"
)

var pageSizes = []int{25, 50, 100}

func esc(s string) string { return templ.EscapeString(s) }

// component renders the HTML written by fn. Output is kept on one line so
// each SSE patch is a single data line.
func component(fn func(b *strings.Builder)) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		fn(&b)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ViewerPage renders the full page shell.
func ViewerPage(data PageData) templ.Component {
	return component(func(b *strings.Builder) {
		signals, _ := json.Marshal(map[string]any{"sql": data.SQL, "size": data.PageSize})

		b.WriteString(`<!doctype html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<title>` + esc(data.Title) + `</title>`)
		b.WriteString(`<script type="module" src="` + datastarScript + `"></script>`)
		b.WriteString(`<style>` + pageStyle + `</style></head>`)
		b.WriteString(`<body data-signals="` + esc(string(signals)) + `">`)
		b.WriteString(`<header id="` + idStatus + `" data-init="@get('/viewer/api/status')">remotesql</header>`)
		b.WriteString(`<nav id="` + idTables + `" data-init="@get('/viewer/api/tables')"></nav>`)
		b.WriteString(`<main>`)

		b.WriteString(`<section><h2>Execute SQL</h2>`)
		if data.ReadOnly {
			b.WriteString(`<p class="muted">Read-only: only queries run.</p>`)
		}
		b.WriteString(`<textarea data-bind:sql>` + esc(data.SQL) + `</textarea>`)
		b.WriteString(`<button data-on:click="@post('/viewer/api/execute')">Run</button>`)
		b.WriteString(`<div id="` + idResults + `"></div></section>`)

		b.WriteString(`<section id="` + idTable + `"><p class="muted">Pick a table to browse it.</p></section>`)

		b.WriteString(`<section><h2>Schemas</h2>`)
		b.WriteString(`<button data-on:click="@get('/viewer/api/schemas')">Show schemas</button>`)
		b.WriteString(`<div id="` + idSchemas + `"></div></section>`)

		b.WriteString(`</main></body></html>`)
	})
}

// DatabaseStatus renders the connection status header.
func DatabaseStatus(s Status) templ.Component {
	return component(func(b *strings.Builder) {
		b.WriteString(`<header id="` + idStatus + `"><strong>remotesql</strong>`)
		b.WriteString(`<span>` + esc(s.Adapter) + `</span>`)
		if s.Database != "" {
			b.WriteString(`<span class="muted">` + esc(s.Database) + `</span>`)
		}
		if !s.Connected {
			b.WriteString(`<span class="error">` + esc(s.Message) + `</span></header>`)
			return
		}
		mode := "read-write"
		if s.ReadOnly {
			mode = "read-only"
		}
		b.WriteString(`<span>` + mode + `</span>`)
		b.WriteString(`<span>` + plural(int64(s.RemoteTables), "remote table") + `</span>`)
		b.WriteString(`<span class="muted">` + esc(s.Message) + `</span></header>`)
	})
}

// TableList renders the table navigation.
func TableList(tables []TableInfo) templ.Component {
	return component(func(b *strings.Builder) {
		b.WriteString(`<nav id="` + idTables + `"><h2>Tables</h2>`)
		if len(tables) == 0 {
			b.WriteString(`<p class="muted">No tables</p></nav>`)
			return
		}
		b.WriteString(`<ul>`)
		for _, t := range tables {
			name := t.Qualified()
			b.WriteString(`<li class="db-table--` + esc(t.Type) + `">`)
			b.WriteString(`<a href="#" data-on:click="@get('` + esc(apiPath(name, "")) + `')">`)
			b.WriteString(tableIcon(t.Type) + ` ` + esc(name) + `</a> `)
			b.WriteString(`<a href="#" class="muted" data-on:click="@get('` + esc(apiPath(name, "/meta")) + `')">columns</a>`)
			if t.URL != "" {
				b.WriteString(` <span class="muted" title="` + esc(t.URL) + `">remote</span>`)
			}
			b.WriteString(`</li>`)
		}
		b.WriteString(`</ul></nav>`)
	})
}

// TableView renders one page of a table with its pagination controls.
func TableView(p TablePage) templ.Component {
	return component(func(b *strings.Builder) {
		b.WriteString(`<section id="` + idTable + `"><h2>` + esc(p.Table.Qualified()) + `</h2>`)
		if p.Error != "" {
			b.WriteString(`<p class="error">` + esc(p.Error) + `</p></section>`)
			return
		}

		writeRows(b, p.Columns, p.Rows)

		name := p.Table.Qualified()
		pageLink := func(page, size int, label string) {
			q := "?page=" + strconv.Itoa(page) + "&size=" + strconv.Itoa(size)
			b.WriteString(`<button data-on:click="@get('` + esc(apiPath(name, q)) + `')">` + label + `</button>`)
		}

		b.WriteString(`<p>`)
		if p.Page > 1 {
			pageLink(p.Page-1, p.Size, "Previous")
		}
		b.WriteString(` Page ` + strconv.Itoa(p.Page) + ` of ` + strconv.Itoa(p.TotalPages) +
			` (` + plural(p.TotalRows, "row") + `) `)
		if p.Page < p.TotalPages {
			pageLink(p.Page+1, p.Size, "Next")
		}
		b.WriteString(`</p><p class="muted">Rows per page:`)
		for _, size := range pageSizes {
			if size == p.Size {
				b.WriteString(` <strong>` + strconv.Itoa(size) + `</strong>`)
				continue
			}
			b.WriteString(` `)
			pageLink(1, size, strconv.Itoa(size))
		}
		b.WriteString(`</p></section>`)
	})
}

// TableDetail renders a table's columns in place of its rows.
func TableDetail(m TableMeta) templ.Component {
	return component(func(b *strings.Builder) {
		b.WriteString(`<section id="` + idTable + `">`)
		writeMeta(b, m, "h2")
		b.WriteString(`</section>`)
	})
}

// SchemaList renders the columns of every table.
func SchemaList(metas []TableMeta) templ.Component {
	return component(func(b *strings.Builder) {
		b.WriteString(`<div id="` + idSchemas + `">`)
		if len(metas) == 0 {
			b.WriteString(`<p class="muted">No tables</p>`)
		}
		for _, m := range metas {
			writeMeta(b, m, "h3")
		}
		b.WriteString(`</div>`)
	})
}

// QueryResults renders the outcome of an executed statement.
func QueryResults(r QueryResult) templ.Component {
	return component(func(b *strings.Builder) {
		b.WriteString(`<div id="` + idResults + `">`)
		if r.Error != "" {
			b.WriteString(`<p class="error">` + esc(r.Error) + `</p></div>`)
			return
		}
		writeRows(b, r.Columns, r.Rows)
		b.WriteString(`<p class="muted">` + plural(int64(r.RowCount), "row") +
			` in ` + strconv.FormatInt(r.QueryMS, 10) + ` ms`)
		if r.Truncated {
			b.WriteString(`, truncated`)
		}
		b.WriteString(`</p></div>`)
	})
}

func writeRows(b *strings.Builder, columns []string, rows [][]string) {
	b.WriteString(`<table><thead><tr>`)
	for _, c := range columns {
		b.WriteString(`<th>` + esc(c) + `</th>`)
	}
	b.WriteString(`</tr></thead><tbody>`)
	for _, row := range rows {
		b.WriteString(`<tr>`)
		for _, v := range row {
			b.WriteString(`<td>` + esc(v) + `</td>`)
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</tbody></table>`)
}

func writeMeta(b *strings.Builder, m TableMeta, heading string) {
	b.WriteString(`<` + heading + `>` + esc(m.Table.Qualified()) + `</` + heading + `>`)
	if m.Error != "" {
		b.WriteString(`<p class="error">` + esc(m.Error) + `</p>`)
		return
	}
	b.WriteString(`<p class="muted">` + esc(m.Table.Type) + `, ` + plural(m.RowCount, "row") + `</p>`)
	b.WriteString(`<table><thead><tr><th>Column</th><th>Type</th><th>Nullable</th><th>Key</th></tr></thead><tbody>`)
	for _, c := range m.Columns {
		nullable, key := "no", ""
		if c.Nullable {
			nullable = "yes"
		}
		if c.PrimaryKey {
			key = "PK"
		}
		b.WriteString(`<tr><td>` + esc(c.Name) + `</td><td>` + esc(c.Type) + `</td><td>` +
			nullable + `</td><td>` + key + `</td></tr>`)
	}
	b.WriteString(`</tbody></table>`)
}

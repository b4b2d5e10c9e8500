package server

import (
	"strings"
	"unicode"
)

// pragmaArgReaders are the pragmas whose parenthesized argument names
// something to read rather than a value to set.
var pragmaArgReaders = map[string]bool{
	"TABLE_INFO":        true,
	"TABLE_XINFO":       true,
	"TABLE_LIST":        true,
	"INDEX_INFO":        true,
	"INDEX_XINFO":       true,
	"INDEX_LIST":        true,
	"FOREIGN_KEY_LIST":  true,
	"FOREIGN_KEY_CHECK": true,
	"INTEGRITY_CHECK":   true,
	"QUICK_CHECK":       true,
}

// pragmaWriters change state even without an argument.
var pragmaWriters = map[string]bool{
	"OPTIMIZE":           true,
	"SHRINK_MEMORY":      true,
	"INCREMENTAL_VACUUM": true,
	"WAL_CHECKPOINT":     true,
}

// IsReadOnly reports whether sql is a single statement that only reads:
// SELECT or VALUES, possibly behind a WITH clause, EXPLAIN, or a PRAGMA
// that neither assigns a value nor changes state. Leading comments and
// parentheses are skipped.
func IsReadOnly(sql string) bool {
	toks, statements := scanStatements(sql)
	if statements != 1 {
		return false
	}

	first := -1
	for i, t := range toks {
		if t.kind == tokWord {
			first = i
			break
		}
		if t.kind == tokQuoted {
			return false
		}
	}
	if first < 0 {
		return false
	}

	switch toks[first].text {
	case "SELECT", "VALUES", "EXPLAIN":
		return true
	case "WITH":
		return withReadsOnly(toks[first:])
	case "PRAGMA":
		return pragmaReadsOnly(toks[first+1:])
	}
	return false
}

// withReadsOnly finds the statement a WITH clause introduces: the first
// statement keyword at the depth of WITH itself. CTE bodies are nested
// deeper and are skipped.
func withReadsOnly(toks []token) bool {
	depth := toks[0].depth
	for _, t := range toks[1:] {
		if t.kind != tokWord || t.depth != depth {
			continue
		}
		switch t.text {
		case "SELECT", "VALUES":
			return true
		case "INSERT", "UPDATE", "DELETE", "REPLACE":
			return false
		}
	}
	return false
}

// pragmaReadsOnly accepts PRAGMA [schema.]name and the argument form of
// the pragmas in pragmaArgReaders. Any assignment is rejected.
func pragmaReadsOnly(toks []token) bool {
	name := ""
	hasArg := false
	for i, t := range toks {
		switch {
		case t.kind == tokPunct && t.text == "=":
			return false
		case t.kind == tokPunct && t.text == "(":
			hasArg = true
		case t.kind == tokWord && name == "" && !hasArg:
			// schema.name keeps the last word before the argument
			if i+1 < len(toks) && toks[i+1].text == "." {
				continue
			}
			name = t.text
		}
	}
	if name == "" || pragmaWriters[name] {
		return false
	}
	return !hasArg || pragmaArgReaders[name]
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string // upper-cased for words
	depth int
}

// scanStatements splits sql into tokens up to the end of its first
// statement and counts the non-empty statements. Quoted text and comments
// never produce keywords.
func scanStatements(sql string) ([]token, int) {
	var (
		toks       []token
		depth      int
		statements int
		inStmt     bool
	)

	start := func() {
		if !inStmt {
			inStmt = true
			statements++
		}
	}
	emit := func(t token) {
		if statements == 1 {
			toks = append(toks, t)
		}
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 3
			}
		case c == ';':
			inStmt = false
			depth = 0
		case unicode.IsSpace(rune(c)):
		case c == '\'' || c == '"' || c == '`' || c == '[':
			start()
			emit(token{kind: tokQuoted, depth: depth})
			i = skipQuoted(sql, i)
		case isWordByte(c):
			start()
			j := i
			for j < len(sql) && isWordByte(sql[j]) {
				j++
			}
			emit(token{kind: tokWord, text: strings.ToUpper(sql[i:j]), depth: depth})
			i = j - 1
		default:
			start()
			if c == ')' && depth > 0 {
				depth--
			}
			emit(token{kind: tokPunct, text: string(c), depth: depth})
			if c == '(' {
				depth++
			}
		}
	}
	return toks, statements
}

// skipQuoted returns the index of the byte closing the quoted run at i.
func skipQuoted(sql string, i int) int {
	closeQuote := sql[i]
	if closeQuote == '[' {
		closeQuote = ']'
	}
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != closeQuote {
			continue
		}
		if closeQuote != ']' && j+1 < len(sql) && sql[j+1] == closeQuote {
			j++
			continue
		}
		return j
	}
	return len(sql)
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

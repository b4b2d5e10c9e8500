package remotetable

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ValueKind identifies the dynamic type of a document Value.
type ValueKind uint8

// Document value kinds.
const (
	KindNull ValueKind = iota
	KindString
	KindInteger
	KindReal
	KindBoolean
	KindArray
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("ValueKind(%d)", uint8(k))
	}
}

// Field is one named member of an object, in document order.
type Field struct {
	Name  string
	Value Value
}

// Value is a node of a parsed JSON document. The zero Value is null.
//
// Objects keep their fields in document order, duplicates included, so the
// first row of a result set can be turned into a positional schema.
type Value struct {
	kind   ValueKind
	str    string
	i      int64
	f      float64
	b      bool
	items  []Value
	fields []Field
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Integer returns an integral number value.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Real returns a floating point number value.
func Real(f float64) Value { return Value{kind: KindReal, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Array returns an array value holding items.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// Object returns an object value holding fields in the given order.
func Object(fields ...Field) Value {
	if fields == nil {
		fields = []Field{}
	}
	return Value{kind: KindObject, fields: fields}
}

// Kind reports the dynamic type of v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsObject reports whether v is an object.
func (v Value) IsObject() bool { return v.kind == KindObject }

// IsArray reports whether v is an array.
func (v Value) IsArray() bool { return v.kind == KindArray }

// Str returns the string payload; empty for other kinds.
func (v Value) Str() string { return v.str }

// Int returns the integer payload; zero for other kinds.
func (v Value) Int() int64 { return v.i }

// Float returns the numeric payload as float64 for integers and reals.
func (v Value) Float() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// Boolean returns the boolean payload; false for other kinds.
func (v Value) Boolean() bool { return v.b }

// Len returns the number of array items or object fields.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.fields)
	default:
		return 0
	}
}

// Index returns the i-th array item, or null when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return Value{}
	}
	return v.items[i]
}

// Items returns the array items. The slice must not be modified.
func (v Value) Items() []Value { return v.items }

// Fields returns the object fields in document order. The slice must not be
// modified.
func (v Value) Fields() []Field { return v.fields }

// Get returns the first field named name. Matching is exact (case
// sensitive).
func (v Value) Get(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	for _, f := range v.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// ErrInvalidJSON is returned by Parse for input that is not a single valid
// JSON document.
var ErrInvalidJSON = errors.New("not valid JSON")

// Parse decodes a JSON document into a Value tree, keeping object fields in
// document order. Integer literals that fit in an int64 are kept exact; all
// other numbers become reals.
func Parse(data []byte) (Value, error) {
	if !json.Valid(data) {
		return Value{}, ErrInvalidJSON
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	v, err := parseToken(dec, tok)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	// json.Valid tolerates stray closing delimiters after the value.
	if extra, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("%w: unexpected %v after top-level value", ErrInvalidJSON, extra)
	}
	return v, nil
}

func parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			return parseArray(dec)
		case '{':
			return parseObject(dec)
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", rune(t))
		}
	case json.Number:
		// The literal may alias the decoder buffer; convert before the next
		// Token call.
		return parseNumber(string(t))
	case string:
		return String(validUTF8(t)), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Real(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %T", tok)
	}
}

func parseArray(dec *json.Decoder) (Value, error) {
	items := []Value{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, unexpectedEOF(err)
		}
		if d, ok := tok.(json.Delim); ok && d == ']' {
			return Array(items...), nil
		}
		item, err := parseToken(dec, tok)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
}

func parseObject(dec *json.Decoder) (Value, error) {
	fields := []Field{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, unexpectedEOF(err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return Object(fields...), nil
		}
		name, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key must be a string, got %T", tok)
		}
		tok, err = dec.Token()
		if err != nil {
			return Value{}, unexpectedEOF(err)
		}
		val, err := parseToken(dec, tok)
		if err != nil {
			return Value{}, err
		}
		fields = append(fields, Field{Name: validUTF8(name), Value: val})
	}
}

// validUTF8 replaces each run of invalid UTF-8 bytes in a decoded string
// with U+FFFD. Text results are always valid UTF-8.
func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

func parseNumber(lit string) (Value, error) {
	if !strings.ContainsAny(lit, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return Integer(i), nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		// Out of range literals saturate to ±Inf, which JSON cannot carry back.
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return Real(f), nil
		}
		return Value{}, fmt.Errorf("invalid number %q: %w", lit, err)
	}
	return Real(f), nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// MarshalJSON renders v as compact JSON, keeping object fields in order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON parses data into v, keeping object fields in order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Compact returns the canonical compact serialization of v.
func (v Value) Compact() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		return encodeString(buf, v.str)
	case KindInteger:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindReal:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindBoolean:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, f.Name); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode value of kind %s", v.kind)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	b, err := json.MarshalWithOption(s, json.DisableHTMLEscape())
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// Records builds the array-of-objects payload for a result set: one object
// per row with fields in column order.
func Records(columns []string, rows [][]any) Value {
	items := make([]Value, len(rows))
	for i, row := range rows {
		fields := make([]Field, len(columns))
		for j, col := range columns {
			var v any
			if j < len(row) {
				v = row[j]
			}
			fields[j] = Field{Name: col, Value: FromGo(v)}
		}
		items[i] = Object(fields...)
	}
	return Array(items...)
}

// FromGo converts a value produced by a database/sql driver (or decoded from
// JSON into `any`) into a document Value. Maps are emitted with sorted keys
// since Go maps carry no order.
func FromGo(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case bool:
		return Bool(t)
	case int:
		return Integer(int64(t))
	case int8:
		return Integer(int64(t))
	case int16:
		return Integer(int64(t))
	case int32:
		return Integer(int64(t))
	case int64:
		return Integer(t)
	case uint8:
		return Integer(int64(t))
	case uint16:
		return Integer(int64(t))
	case uint32:
		return Integer(int64(t))
	case uint:
		if uint64(t) <= math.MaxInt64 {
			return Integer(int64(t))
		}
		return Real(float64(t))
	case uint64:
		if t <= math.MaxInt64 {
			return Integer(int64(t))
		}
		return Real(float64(t))
	case float32:
		return Real(float64(t))
	case float64:
		return Real(t)
	case json.Number:
		v, err := parseNumber(string(t))
		if err != nil {
			return String(string(t))
		}
		return v
	case time.Time:
		return String(t.Format(time.RFC3339Nano))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromGo(item)
		}
		return Array(items...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, len(keys))
		for i, k := range keys {
			fields[i] = Field{Name: k, Value: FromGo(t[k])}
		}
		return Object(fields...)
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprint(t))
	}
}

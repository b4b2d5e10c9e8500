package remotetable

import (
	"database/sql/driver"
	"math"
)

// ResultKind is one of SQLite's storage classes a column value is reported
// as. SQLite has no boolean class and no structured values.
type ResultKind uint8

// Result kinds.
const (
	ResultNull ResultKind = iota
	ResultInteger
	ResultReal
	ResultText
)

func (k ResultKind) String() string {
	switch k {
	case ResultInteger:
		return "INTEGER"
	case ResultReal:
		return "REAL"
	case ResultText:
		return "TEXT"
	default:
		return "NULL"
	}
}

// Result is a coerced column value.
type Result struct {
	Kind ResultKind
	Int  int64
	Real float64
	Text string
}

// DriverValue returns the value handed back to the engine through the
// vtab.Cursor.Column contract.
func (r Result) DriverValue() driver.Value {
	switch r.Kind {
	case ResultInteger:
		return r.Int
	case ResultReal:
		return r.Real
	case ResultText:
		return r.Text
	default:
		return nil
	}
}

// 2^63 as a float64; the first value above the int64 range.
const twoPow63 = float64(1 << 63)

// Coerce maps a document value onto a SQLite result kind.
//
//   - strings become TEXT verbatim
//   - numbers become INTEGER when they survive an int64 round trip, REAL otherwise
//   - booleans become INTEGER 1 or 0
//   - null becomes NULL
//   - arrays and objects become TEXT holding their compact JSON form
func Coerce(v Value) Result {
	switch v.Kind() {
	case KindString:
		return Result{Kind: ResultText, Text: v.Str()}
	case KindInteger:
		return Result{Kind: ResultInteger, Int: v.Int()}
	case KindReal:
		return coerceReal(v.Float())
	case KindBoolean:
		if v.Boolean() {
			return Result{Kind: ResultInteger, Int: 1}
		}
		return Result{Kind: ResultInteger, Int: 0}
	case KindArray, KindObject:
		return Result{Kind: ResultText, Text: v.Compact()}
	default:
		return Result{Kind: ResultNull}
	}
}

func coerceReal(f float64) Result {
	// float64(int64(f)) is implementation defined outside the int64 range.
	if f >= -twoPow63 && f < twoPow63 && !math.IsNaN(f) {
		if i := int64(f); float64(i) == f {
			return Result{Kind: ResultInteger, Int: i}
		}
	}
	return Result{Kind: ResultReal, Real: f}
}

package inference

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the inferred data type of a template variable.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindNull    Kind = "null"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindUnknown Kind = "unknown"
)

// Literal is a scalar value found in template source: a string, a number,
// a boolean or null. The zero Literal is null.
type Literal struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// String returns a string literal.
func String(s string) Literal { return Literal{kind: KindString, str: s} }

// Number returns a number literal.
func Number(f float64) Literal { return Literal{kind: KindNumber, num: f} }

// Bool returns a boolean literal.
func Bool(b bool) Literal { return Literal{kind: KindBoolean, b: b} }

// Null returns the null literal.
func Null() Literal { return Literal{kind: KindNull} }

// Kind reports the literal's native kind.
func (l Literal) Kind() Kind {
	if l.kind == "" {
		return KindNull
	}
	return l.kind
}

// Value returns the literal as a plain Go value: string, float64, bool or nil.
func (l Literal) Value() any {
	switch l.Kind() {
	case KindString:
		return l.str
	case KindNumber:
		return l.num
	case KindBoolean:
		return l.b
	default:
		return nil
	}
}

// String renders the literal as text. Strings are returned without quotes,
// numbers in their shortest decimal form and null as "null".
func (l Literal) String() string {
	switch l.Kind() {
	case KindString:
		return l.str
	case KindNumber:
		return strconv.FormatFloat(l.num, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(l.b)
	default:
		return "null"
	}
}

// Equal reports whether two literals have the same kind and rendered text.
func (l Literal) Equal(o Literal) bool {
	return l.Kind() == o.Kind() && l.String() == o.String()
}

// key identifies a literal for deduplication.
func (l Literal) key() string {
	return string(l.Kind()) + "\x00" + l.String()
}

// MarshalJSON encodes the literal as its native JSON value.
func (l Literal) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Value())
}

// UnmarshalJSON decodes a JSON scalar into a literal.
func (l *Literal) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*l = String(t)
	case float64:
		*l = Number(t)
	case bool:
		*l = Bool(t)
	default:
		*l = Null()
	}
	return nil
}

var decimalPattern = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)$`)

// ParseLiteral classifies a raw token taken from template source. The token is
// trimmed and then matched, in order, as: the keywords true/false, the keywords
// nil/null, a string wrapped in one matching pair of single or double quotes
// (quotes stripped), a decimal number, and finally the raw trimmed text as a
// string.
//
// Every detector goes through ParseLiteral so that the same token is typed the
// same way no matter which construct it was found in.
func ParseLiteral(raw string) Literal {
	tok := strings.TrimSpace(raw)
	switch tok {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	case "nil", "null":
		return Null()
	}
	if len(tok) >= 2 {
		q := tok[0]
		if (q == '\'' || q == '"') && tok[len(tok)-1] == q {
			return String(tok[1 : len(tok)-1])
		}
	}
	if decimalPattern.MatchString(tok) {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return Number(f)
		}
	}
	return String(tok)
}

// KindOf reports the kind of a runtime value as decoded from metadata
// (YAML or JSON). Timestamps are edited as text and reported as strings.
func KindOf(v any) Kind {
	if v == nil {
		return KindNull
	}
	if _, ok := v.(json.Number); ok {
		return KindNumber
	}
	if _, ok := v.(time.Time); ok {
		return KindString
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return KindNull
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	case reflect.Slice, reflect.Array:
		return KindArray
	case reflect.Map, reflect.Struct:
		return KindObject
	}
	return KindUnknown
}

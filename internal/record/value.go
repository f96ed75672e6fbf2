package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a sealed interface over the constrained field value types.
// Only Null, String, Int, Decimal, Bool, and List implement it.
//
// There is NO float variant. Monetary and fractional values are carried
// as Decimal, which preserves the exact canonical string form. Float64
// round-trips are not deterministic and are rejected at every boundary.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an absent/cleared field value.
// Using an explicit type keeps nil out of the Fields map.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string field value.
// Enum members and reference IDs are also carried as String.
type String string

func (String) value() {}

// Int represents an integer field value.
// Always int64, never float64. Timestamps (seconds since epoch) are Int.
type Int int64

func (Int) value() {}

// Decimal represents an exact decimal value in canonical string form,
// e.g. "1250.00". Arithmetic is not performed on Decimals in this core;
// they are copied verbatim (engagement fees survive recreation unchanged).
type Decimal string

func (Decimal) value() {}

// Bool represents a boolean field value.
type Bool bool

func (Bool) value() {}

// List represents an ordered list of values (user-id lists, priority
// lists). Serialization to the store's scalar column happens only in
// this package - never in trigger rules.
type List []Value

func (List) value() {}

// NewDecimal validates s as a canonical decimal literal and returns it.
// Accepted forms: optional leading '-', digits, optional '.' + digits.
func NewDecimal(s string) (Decimal, error) {
	if !validDecimal(s) {
		return "", fmt.Errorf("invalid decimal literal %q", s)
	}
	return Decimal(s), nil
}

func validDecimal(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '-' {
		i++
	}
	digits := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		digits++
	}
	if digits == 0 {
		return false
	}
	if i == len(s) {
		return true
	}
	if s[i] != '.' {
		return false
	}
	i++
	frac := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		frac++
	}
	return frac > 0 && i == len(s)
}

// StringList builds a List from plain string elements.
// Convenience for user-id lists, the most common list shape.
func StringList(elems ...string) List {
	l := make(List, len(elems))
	for i, e := range elems {
		l[i] = String(e)
	}
	return l
}

// Strings unpacks a List of String values into a plain string slice.
// Non-string elements are skipped (lists written through the entity
// store are validated to be homogeneous, so this is a no-op in practice).
func Strings(v Value) []string {
	list, ok := v.(List)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(String); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// Equal reports deep equality of two field values.
// Used by the entity store's equality filters and by diffing rules.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Decimal:
		bv, ok := b.(Decimal)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalValue serializes a Value to JSON bytes.
// Decimal is written as a bare JSON number preserving its exact literal,
// so "12.50" stays "12.50" on disk and on reload.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Decimal:
		if !validDecimal(string(val)) {
			return nil, fmt.Errorf("marshal: invalid decimal %q", string(val))
		}
		return []byte(val), nil
	case Bool:
		return json.Marshal(bool(val))
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// UnmarshalValue decodes JSON bytes into a Value.
// JSON numbers containing '.' or an exponent become Decimal (preserving
// the literal); all other numbers must fit int64. Objects are rejected -
// field values are scalars and lists only.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return convertValue(raw)
}

func convertValue(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case json.Number:
		s := string(v)
		if strings.ContainsAny(s, ".eE") {
			d, err := NewDecimal(s)
			if err != nil {
				return nil, fmt.Errorf("non-canonical number literal %q", s)
			}
			return d, nil
		}
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", v)
		}
		return Int(n), nil
	case []any:
		list := make(List, len(v))
		for i, elem := range v {
			ev, err := convertValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = ev
		}
		return list, nil
	case map[string]any:
		return nil, fmt.Errorf("nested objects are not valid field values")
	default:
		return nil, fmt.Errorf("unsupported value type: %T", raw)
	}
}

package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Fields maps field keys to values. A Fields map is the dynamic portion
// of a Record; its shape is dictated by the entity's schema, not by Go
// types.
type Fields map[string]Value

// Clone returns a deep copy. Lists are copied element-wise so that
// rewriting a patch cannot alias the committed record.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	list, ok := v.(List)
	if !ok {
		return v
	}
	out := make(List, len(list))
	for i, e := range list {
		out[i] = cloneValue(e)
	}
	return out
}

// Merge returns a copy of f with patch applied on top.
// Keys present in patch replace keys in f; a Null value clears a field
// rather than deleting the key, keeping the clear observable to hooks.
func (f Fields) Merge(patch Fields) Fields {
	out := f.Clone()
	for k, v := range patch {
		out[k] = cloneValue(v)
	}
	return out
}

// SortedKeys returns the field keys in ascending byte order.
// Serialization iterates keys in this order for deterministic output.
func (f Fields) SortedKeys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StringAt returns the field as a plain string, or "" when absent,
// null, or not a string. Enum and reference fields read through here.
func (f Fields) StringAt(key string) string {
	s, ok := f[key].(String)
	if !ok {
		return ""
	}
	return string(s)
}

// IntAt returns the field as int64, or 0 when absent or not an Int.
func (f Fields) IntAt(key string) int64 {
	n, ok := f[key].(Int)
	if !ok {
		return 0
	}
	return int64(n)
}

// BoolAt returns the field as bool, or false when absent or not a Bool.
func (f Fields) BoolAt(key string) bool {
	b, ok := f[key].(Bool)
	if !ok {
		return false
	}
	return bool(b)
}

// StringsAt returns the field as a string slice, or nil when absent.
func (f Fields) StringsAt(key string) []string {
	v, ok := f[key]
	if !ok {
		return nil
	}
	return Strings(v)
}

// IsNull reports whether the field is absent or explicitly null.
func (f Fields) IsNull(key string) bool {
	v, ok := f[key]
	if !ok {
		return true
	}
	_, isNull := v.(Null)
	return isNull
}

// MarshalFields serializes a Fields map to JSON text with sorted keys.
// This is the single serialize boundary between typed values and the
// store's scalar column - trigger rules never see encoded JSON.
func MarshalFields(f Fields) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return "", fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalValue(f[k])
		if err != nil {
			return "", fmt.Errorf("marshal field %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// UnmarshalFields parses JSON text produced by MarshalFields.
func UnmarshalFields(data string) (Fields, error) {
	if data == "" || data == "{}" {
		return Fields{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	out := make(Fields, len(raw))
	for k, v := range raw {
		val, err := convertValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

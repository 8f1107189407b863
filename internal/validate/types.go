package validate

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// TypeTag names the shape of a loosely typed configuration value
type TypeTag string

const (
	TypeString  TypeTag = "string"
	TypeNumber  TypeTag = "number"
	TypeBoolean TypeTag = "boolean"
	TypeObject  TypeTag = "object"
	TypeArray   TypeTag = "array"
	TypeNull    TypeTag = "null"
)

// TypeOf classifies a value produced by a TOML, JSON or YAML decoder.
// Unknown Go types (e.g. TOML local dates) classify as "object".
func TypeOf(value any) TypeTag {
	switch v := value.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return TypeNumber
	case map[string]any:
		return TypeObject
	case []any:
		return TypeArray
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			return TypeArray
		case reflect.String:
			return TypeString
		}
		return TypeObject
	}
}

// Is reports whether value has the given shape
func Is(value any, typ TypeTag) bool {
	return TypeOf(value) == typ
}

// AsObject returns value as a string-keyed map when it is one
func AsObject(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

// AsArray returns value as a slice of elements when it is any kind of slice
func AsArray(value any) ([]any, bool) {
	if v, ok := value.([]any); ok {
		return v, true
	}
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// AsNumber returns value as a float64 when it is numeric
func AsNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Keys returns the keys of an object in sorted order
func Keys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stringify renders a value as JSON for use in diagnostic messages.
// Map keys are sorted so messages are deterministic.
func Stringify(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

// equal compares two configuration values, treating numbers by value
func equal(a, b any) bool {
	if an, ok := AsNumber(a); ok {
		bn, ok := AsNumber(b)
		return ok && an == bn
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

package validate

import (
	"fmt"
	"strings"

	"workercfg/internal/diagnostics"
)

// Property names one property of a container together with its expected type
type Property struct {
	Key   string
	Value any
	Type  TypeTag
}

func joinPath(container, key string) string {
	if container == "" {
		return key
	}
	if strings.HasPrefix(key, "[") {
		return container + key
	}
	return container + "." + key
}

// RequiredProperty checks that key of container is present, has the given
// type and, when choices are given, equals one of them.
func RequiredProperty(d *diagnostics.Diagnostics, container, key string, value any, typ TypeTag, choices ...any) bool {
	path := joinPath(container, key)
	switch {
	case value == nil:
		d.Errorf("%q is a required field.", path)
		return false
	case !Is(value, typ):
		d.Errorf("Expected %q to be of type %s but got %s.", path, typ, Stringify(value))
		return false
	case len(choices) > 0:
		return IsOneOf(choices...)(d, path, value, nil)
	}
	return true
}

// OptionalProperty is RequiredProperty for a property that may be absent
func OptionalProperty(d *diagnostics.Diagnostics, container, key string, value any, typ TypeTag, choices ...any) bool {
	if value == nil {
		return true
	}
	return RequiredProperty(d, container, key, value, typ, choices...)
}

// AtLeastOneProperty checks that one of props is present with its type
func AtLeastOneProperty(d *diagnostics.Diagnostics, container string, props []Property) bool {
	present := false
	for _, p := range props {
		if p.Value != nil {
			present = true
			if Is(p.Value, p.Type) {
				return true
			}
		}
	}
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = fmt.Sprintf("%q", joinPath(container, p.Key))
	}
	if !present {
		d.Errorf("%s is required.", strings.Join(names, " or "))
		return false
	}
	d.Errorf("Expected one of %s to have the expected type.", strings.Join(names, ", "))
	return false
}

// TypedArray checks that value is an array whose every element has typ.
// Only the first offending element is reported.
func TypedArray(d *diagnostics.Diagnostics, container string, value any, typ TypeTag) bool {
	items, ok := AsArray(value)
	if !ok {
		d.Errorf("Expected %q to be an array of %ss but got %s", container, typ, Stringify(value))
		return false
	}
	for i, item := range items {
		if !Is(item, typ) {
			d.Errorf("Expected \"%s[%d]\" to be of type %s but got %s.", container, i, typ, Stringify(item))
			return false
		}
	}
	return true
}

// OptionalTypedArray is TypedArray for a field that may be absent
func OptionalTypedArray(d *diagnostics.Diagnostics, container string, value any, typ TypeTag) bool {
	if value == nil {
		return true
	}
	return TypedArray(d, container, value, typ)
}

// AdditionalProperties warns once about every key in actual that is not in
// known. Unknown keys never produce errors.
func AdditionalProperties(d *diagnostics.Diagnostics, fieldPath string, actual, known []string) bool {
	knownSet := make(map[string]struct{}, len(known))
	for _, k := range known {
		knownSet[k] = struct{}{}
	}
	var unexpected []string
	seen := make(map[string]struct{})
	for _, k := range actual {
		if _, ok := knownSet[k]; ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unexpected = append(unexpected, fmt.Sprintf("%q", k))
	}
	if len(unexpected) > 0 {
		d.Warnf("Unexpected fields found in %s field: %s", fieldPath, strings.Join(unexpected, ","))
		return false
	}
	return true
}

// IsRequiredProperty reports whether target has key with the given type and,
// when choices are given, one of those values.
func IsRequiredProperty(target map[string]any, key string, typ TypeTag, choices ...any) bool {
	value, ok := target[key]
	if !ok || !Is(value, typ) {
		return false
	}
	if len(choices) == 0 {
		return true
	}
	for _, c := range choices {
		if equal(value, c) {
			return true
		}
	}
	return false
}

// IsOptionalProperty reports whether key is absent from target or has typ
func IsOptionalProperty(target map[string]any, key string, typ TypeTag) bool {
	value, ok := target[key]
	return !ok || value == nil || Is(value, typ)
}

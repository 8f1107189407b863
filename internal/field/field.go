// Package field resolves one configuration field of one environment from
// its override, the top-level value and a hard-coded default.
package field

import (
	"encoding/json"
	"fmt"

	"workercfg/internal/diagnostics"
	"workercfg/internal/validate"
)

// Descriptor binds a field name to its validator, default and decoder
type Descriptor[T any] struct {
	Name     string
	Validate validate.ValidatorFn
	Default  T
	// Decode converts a validated raw value to T. When nil the value is
	// converted through its JSON encoding.
	Decode func(raw any) (T, error)
}

// Transform rewrites an inherited value for a specific environment
type Transform[T any] func(inherited T) T

// AppendEnvName suffixes an inherited value with "-<env>".
// An empty value stays empty.
func AppendEnvName(env string) Transform[string] {
	return func(inherited string) string {
		if inherited == "" {
			return ""
		}
		return inherited + "-" + env
	}
}

// Lookup returns raw[name] when it is present and not null
func Lookup(raw map[string]any, name string) (any, bool) {
	if raw == nil {
		return nil, false
	}
	v, ok := raw[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (desc Descriptor[T]) check(d *diagnostics.Diagnostics, value any, parent any) bool {
	if desc.Validate == nil {
		return true
	}
	return desc.Validate(d, desc.Name, value, parent)
}

func (desc Descriptor[T]) decode(value any) (T, error) {
	if desc.Decode != nil {
		return desc.Decode(value)
	}
	return DecodeJSON[T](value)
}

// DecodeJSON converts a loosely typed value to T through its JSON encoding
func DecodeJSON[T any](value any) (T, error) {
	var out T
	data, err := json.Marshal(value)
	if err != nil {
		return out, fmt.Errorf("failed to encode value: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

// Inheritable resolves a field that flows from the environment override to
// the inherited top-level value to the default. inherited is nil while the
// top level itself is being resolved.
//
// A malformed override records one error and falls back to the inherited
// value as is, without validating it again. transform, when set, only
// applies to a value the environment leaves unset.
func Inheritable[T any](d *diagnostics.Diagnostics, inherited *T, raw map[string]any, desc Descriptor[T], transform Transform[T], parent any) T {
	v, ok := Lookup(raw, desc.Name)
	if ok && desc.check(d, v, parent) {
		out, err := desc.decode(v)
		if err == nil {
			return out
		}
		d.Errorf("Could not read %q: %s.", desc.Name, validate.Stringify(v))
	}
	if inherited == nil {
		return desc.Default
	}
	if transform != nil && !ok {
		return transform(*inherited)
	}
	return *inherited
}

// NotInheritable resolves a field that each environment must set itself.
// When the environment omits a field the top level defines, one warning is
// recorded and the default is used instead of the top-level value. rawTop
// is nil while the top level is being resolved.
func NotInheritable[T any](d *diagnostics.Diagnostics, rawTop, raw map[string]any, envName string, desc Descriptor[T], parent any) T {
	v, ok := Lookup(raw, desc.Name)
	if !ok {
		if _, onTop := Lookup(rawTop, desc.Name); onTop {
			d.Warnf("%q exists at the top level, but not on \"env.%s\".\n"+
				"This is not what you probably want, since %q is not inherited by environments.\n"+
				"Please add %q to \"env.%s\".", desc.Name, envName, desc.Name, desc.Name, envName)
		}
		return desc.Default
	}
	if !desc.check(d, v, parent) {
		return desc.Default
	}
	out, err := desc.decode(v)
	if err != nil {
		d.Errorf("Could not read %q: %s.", desc.Name, validate.Stringify(v))
		return desc.Default
	}
	return out
}

// NotAllowedInServiceEnvironment keeps the top-level value of a field that
// named service environments may not override, recording an error when the
// environment tries to.
func NotAllowedInServiceEnvironment[T any](d *diagnostics.Diagnostics, inherited T, raw map[string]any, name string) T {
	if _, ok := Lookup(raw, name); ok {
		d.Errorf("The %q field is not allowed in named service environments.\n"+
			"Please remove the field from this environment.", name)
	}
	return inherited
}

// Deprecated reports a deprecated dotted field path when it is present in
// config. title defaults to "Deprecation". It returns true when the key
// exists and remove is set, in which case the caller must leave it out of
// the resolved output. A null value is absent: it is not reported but is
// still removed.
func Deprecated(d *diagnostics.Diagnostics, config map[string]any, fieldPath, message string, remove bool, title string, severity diagnostics.Severity) bool {
	container, key, ok := Unwind(config, fieldPath)
	if !ok {
		return false
	}
	if _, exists := container[key]; !exists {
		return false
	}
	if _, present := Lookup(container, key); !present {
		return remove
	}
	if title == "" {
		title = "Deprecation"
	}
	d.Add(severity, fmt.Sprintf("%s: %q:\n%s", title, fieldPath, message))
	return remove
}

// Experimental warns when the dotted field path is present in config.
// The value is still used.
func Experimental(d *diagnostics.Diagnostics, config map[string]any, fieldPath string) bool {
	container, key, ok := Unwind(config, fieldPath)
	if !ok {
		return false
	}
	if _, present := Lookup(container, key); !present {
		return false
	}
	d.Warnf("%q fields are experimental and may change or break at any time.", fieldPath)
	return true
}

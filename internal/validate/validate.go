// Package validate provides composable predicates that check the shape of
// loosely typed configuration values. Every validator records exactly one
// diagnostic when it rejects a value and is otherwise free of side effects.
package validate

import (
	"regexp"
	"strings"
	"time"

	"workercfg/internal/diagnostics"
)

// ValidatorFn checks value, found at field, and records an error on d when it
// returns false. parent is the resolved enclosing scope, if any: the
// top-level environment while a named environment is being validated.
//
// A nil value means the field is absent. Shape validators accept it; use
// RequiredProperty to demand presence.
type ValidatorFn func(d *diagnostics.Diagnostics, field string, value any, parent any) bool

// Accept is a validator that accepts every value
func Accept(*diagnostics.Diagnostics, string, any, any) bool { return true }

// validNameRegex matches lowercase alphanumeric names with dashes and underscores
var validNameRegex = regexp.MustCompile(`^$|^[a-z0-9_][a-z0-9-_]*$`)

// IsString accepts strings
func IsString(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
	if value != nil && !Is(value, TypeString) {
		d.Errorf("Expected %q to be of type string but got %s.", field, Stringify(value))
		return false
	}
	return true
}

// IsNonEmptyString accepts strings with at least one character
func IsNonEmptyString(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); !ok || s == "" {
		d.Errorf("Expected %q to be a non-empty string but got %s.", field, Stringify(value))
		return false
	}
	return true
}

// IsValidName accepts names that are lowercase alphanumeric with dashes only
func IsValidName(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok && validNameRegex.MatchString(s) {
		return true
	}
	d.Errorf("Expected %q to be of type string, alphanumeric and lowercase with dashes only but got %s.", field, Stringify(value))
	return false
}

// IsValidDate accepts ISO-8601 calendar dates (YYYY-MM-DD) and full timestamps.
// En- and em-dashes get their own message since they are a common paste error.
func IsValidDate(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
	s, ok := value.(string)
	if !ok {
		return true
	}
	if strings.ContainsAny(s, "–—") {
		d.Errorf("%q field should use ISO-8601 accepted hyphens (-) rather than en-dashes (–) or em-dashes (—).", field)
		return false
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339, "2006-01-02T15:04:05", "2006-01"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	d.Errorf("%q field should be a valid ISO-8601 date (YYYY-MM-DD), but got %s.", field, Stringify(value))
	return false
}

// IsBoolean accepts booleans
func IsBoolean(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
	if value != nil && !Is(value, TypeBoolean) {
		d.Errorf("Expected %q to be of type boolean but got %s.", field, Stringify(value))
		return false
	}
	return true
}

// IsNumber accepts numbers of any width
func IsNumber(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
	if value != nil && !Is(value, TypeNumber) {
		d.Errorf("Expected %q to be of type number but got %s.", field, Stringify(value))
		return false
	}
	return true
}

// IsStringArray accepts arrays whose every element is a string
func IsStringArray(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
	if value == nil {
		return true
	}
	items, ok := AsArray(value)
	if ok {
		for _, item := range items {
			if !Is(item, TypeString) {
				ok = false
				break
			}
		}
	}
	if !ok {
		d.Errorf("Expected %q to be of type string array but got %s.", field, Stringify(value))
		return false
	}
	return true
}

// IsOneOf accepts values equal to one of choices
func IsOneOf(choices ...any) ValidatorFn {
	return func(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
		if value == nil {
			return true
		}
		for _, choice := range choices {
			if equal(value, choice) {
				return true
			}
		}
		d.Errorf("Expected %q field to be one of %s but got %s.", field, Stringify(choices), Stringify(value))
		return false
	}
}

// IsObjectWith accepts objects that contain every listed property. Extra
// properties are tolerated but warned about.
func IsObjectWith(properties ...string) ValidatorFn {
	return func(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
		if value == nil {
			return true
		}
		obj, ok := AsObject(value)
		if ok {
			for _, p := range properties {
				if _, present := obj[p]; !present {
					ok = false
					break
				}
			}
		}
		if !ok {
			d.Errorf("Expected %q to be of type object, containing only properties %s, but got %s.",
				field, strings.Join(properties, ","), Stringify(value))
			return false
		}
		AdditionalProperties(d, field, Keys(obj), properties)
		return true
	}
}

// All combines validators with a logical AND, stopping at the first one
// that rejects the value so only a single error is recorded.
func All(validators ...ValidatorFn) ValidatorFn {
	return func(d *diagnostics.Diagnostics, field string, value any, parent any) bool {
		for _, v := range validators {
			if !v(d, field, value, parent) {
				return false
			}
		}
		return true
	}
}

// IsMutuallyExclusiveWith rejects the value when any of the named sibling
// fields is also present in container.
func IsMutuallyExclusiveWith(container map[string]any, fields ...string) ValidatorFn {
	return func(d *diagnostics.Diagnostics, field string, value any, _ any) bool {
		if value == nil {
			return true
		}
		for _, other := range fields {
			if container[other] != nil {
				d.Errorf("Expected exactly one of the following fields %s.", Stringify(append([]string{field}, fields...)))
				return false
			}
		}
		return true
	}
}

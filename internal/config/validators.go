package config

import (
	"workercfg/internal/diagnostics"
	"workercfg/internal/field"
	"workercfg/internal/validate"
)

// isValidRouteValue accepts a non-empty string, or an object with a string
// pattern plus a zone and/or a custom_domain flag
func isValidRouteValue(item any) bool {
	switch v := item.(type) {
	case string:
		return v != ""
	case map[string]any:
		if _, ok := v["pattern"].(string); !ok {
			return false
		}
		otherKeys := len(v) - 1
		_, hasZoneID := v["zone_id"].(string)
		_, hasZoneName := v["zone_name"].(string)
		_, hasCustomDomain := v["custom_domain"].(bool)
		switch otherKeys {
		case 2:
			return hasCustomDomain && (hasZoneID || hasZoneName)
		case 1:
			return hasZoneID || hasZoneName || hasCustomDomain
		}
	}
	return false
}

func isRoute(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
	if value != nil && !isValidRouteValue(value) {
		d.Errorf("Expected %q to be either a string, or an object with shape { pattern, custom_domain, zone_id | zone_name }, but got %s.",
			f, validate.Stringify(value))
		return false
	}
	return true
}

func isRouteArray(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
	if value == nil {
		return true
	}
	items, ok := validate.AsArray(value)
	if !ok {
		d.Errorf("Expected %q to be an array but got %s.", f, validate.Stringify(value))
		return false
	}
	var invalid []any
	for _, item := range items {
		if !isValidRouteValue(item) {
			invalid = append(invalid, item)
		}
	}
	if len(invalid) > 0 {
		d.Errorf("Expected %q to be an array of either strings or objects with the shape { pattern, custom_domain, zone_id | zone_name }, but these weren't valid: %s.",
			f, validate.Stringify(invalid))
		return false
	}
	return true
}

func routesValidator(sc *scope) validate.ValidatorFn {
	return validate.All(isRouteArray, validate.IsMutuallyExclusiveWith(sc.raw, "route"))
}

func isTriggers(d *diagnostics.Diagnostics, f string, value any, parent any) bool {
	if !validate.IsObjectWith("crons")(d, f, value, parent) {
		return false
	}
	if value == nil {
		return true
	}
	obj, _ := validate.AsObject(value)
	return validate.TypedArray(d, f+".crons", obj["crons"], validate.TypeString)
}

func isLimits(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
	if value == nil {
		return true
	}
	obj, ok := validate.AsObject(value)
	if !ok {
		d.Errorf("%q should be an object but got %s.", f, validate.Stringify(value))
		return false
	}
	return validate.RequiredProperty(d, f, "cpu_ms", obj["cpu_ms"], validate.TypeNumber)
}

func isPlacement(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
	if value == nil {
		return true
	}
	obj, ok := validate.AsObject(value)
	if !ok {
		d.Errorf("%q should be an object but got %s.", f, validate.Stringify(value))
		return false
	}
	valid := validate.RequiredProperty(d, f, "mode", obj["mode"], validate.TypeString, "off", "smart")
	valid = validate.OptionalProperty(d, f, "hint", obj["hint"], validate.TypeString) && valid
	if hint, _ := obj["hint"].(string); hint != "" && obj["mode"] != "smart" {
		d.Errorf("%q cannot be set if %q is not \"smart\"", f+".hint", f+".mode")
		valid = false
	}
	return valid
}

func isObservability(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
	if value == nil {
		return true
	}
	obj, ok := validate.AsObject(value)
	if !ok {
		d.Errorf("%q should be an object but got %s.", f, validate.Stringify(value))
		return false
	}
	valid := validate.RequiredProperty(d, f, "enabled", obj["enabled"], validate.TypeBoolean)
	valid = validate.OptionalProperty(d, f, "head_sampling_rate", obj["head_sampling_rate"], validate.TypeNumber) && valid
	valid = validate.AdditionalProperties(d, f, validate.Keys(obj), []string{"enabled", "head_sampling_rate"}) && valid

	if rate, ok := validate.AsNumber(obj["head_sampling_rate"]); ok && (rate < 0 || rate > 1) {
		d.Errorf("%q must be a value between 0 and 1.", f+".head_sampling_rate")
		valid = false
	}
	return valid
}

var migrationKeys = []string{"tag", "new_classes", "new_sqlite_classes", "renamed_classes", "deleted_classes"}

func isMigrations(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
	if value == nil {
		return true
	}
	items, ok := validate.AsArray(value)
	if !ok {
		d.Errorf("The optional %q field should be an array, but got %s", f, validate.Stringify(value))
		return false
	}

	valid := true
	for i, item := range items {
		container := indexed(f, i)
		m, ok := validate.AsObject(item)
		if !ok {
			d.Errorf("Expected %q to be an object but got %s.", container, validate.Stringify(item))
			valid = false
			continue
		}
		valid = validate.AdditionalProperties(d, f, validate.Keys(m), migrationKeys) && valid
		valid = validate.RequiredProperty(d, container, "tag", m["tag"], validate.TypeString) && valid
		valid = validate.OptionalTypedArray(d, container+".new_classes", m["new_classes"], validate.TypeString) && valid
		valid = validate.OptionalTypedArray(d, container+".new_sqlite_classes", m["new_sqlite_classes"], validate.TypeString) && valid
		if renamed, present := field.Lookup(m, "renamed_classes"); present && !isRenamedClasses(renamed) {
			d.Errorf("Expected %q to be an array of \"{from: string, to: string}\" objects but got %s.",
				container+".renamed_classes", validate.Stringify(renamed))
			valid = false
		}
		valid = validate.OptionalTypedArray(d, container+".deleted_classes", m["deleted_classes"], validate.TypeString) && valid
	}
	return valid
}

func isRenamedClasses(value any) bool {
	items, ok := validate.AsArray(value)
	if !ok {
		return false
	}
	for _, item := range items {
		obj, ok := validate.AsObject(item)
		if !ok ||
			!validate.IsRequiredProperty(obj, "from", validate.TypeString) ||
			!validate.IsRequiredProperty(obj, "to", validate.TypeString) {
			return false
		}
	}
	return true
}

var buildKeys = []string{"command", "cwd", "watch_dir", "upload"}

func isBuild(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
	if value == nil {
		return true
	}
	obj, ok := validate.AsObject(value)
	if !ok {
		d.Errorf("%q should be an object but got %s.", f, validate.Stringify(value))
		return false
	}
	validate.AdditionalProperties(d, f, validate.Keys(obj), buildKeys)

	valid := validate.OptionalProperty(d, f, "command", obj["command"], validate.TypeString)
	valid = validate.OptionalProperty(d, f, "cwd", obj["cwd"], validate.TypeString) && valid
	if validate.Is(obj["watch_dir"], validate.TypeArray) {
		valid = validate.TypedArray(d, f+".watch_dir", obj["watch_dir"], validate.TypeString) && valid
	} else {
		valid = validate.OptionalProperty(d, f, "watch_dir", obj["watch_dir"], validate.TypeString) && valid
	}
	return valid
}

// resolveBuild reports the removed build.upload fields and resolves the
// build step. watch_dir defaults to "./src" once a command is set.
func resolveBuild(sc *scope, env *Environment) {
	reportBuildUpload(sc)

	var inherited *Build
	if sc.top != nil {
		inherited = &sc.top.Build
	}
	desc := field.Descriptor[Build]{
		Name:     "build",
		Validate: isBuild,
		Decode: func(v any) (Build, error) {
			obj, _ := validate.AsObject(v)
			b := Build{}
			b.Command, _ = obj["command"].(string)
			b.Cwd, _ = obj["cwd"].(string)
			switch dirs := obj["watch_dir"].(type) {
			case string:
				b.WatchDir = []string{dirs}
			default:
				if items, ok := validate.AsArray(dirs); ok {
					for _, item := range items {
						b.WatchDir = append(b.WatchDir, item.(string))
					}
				}
			}
			if b.Command != "" {
				if len(b.WatchDir) == 0 {
					b.WatchDir = []string{"./src"}
				}
				for i, dir := range b.WatchDir {
					b.WatchDir[i] = resolvePath(sc.configPath, dir)
				}
			}
			return b, nil
		},
	}
	env.Build = field.Inheritable(sc.d, inherited, sc.raw, desc, nil, sc.parent())
}

func reportBuildUpload(sc *scope) {
	if field.Deprecated(sc.d, sc.raw, "build.upload.format", "The format is inferred automatically from the code.",
		true, "", diagnostics.Warning) {
		sc.raw = field.Without(sc.raw, "build.upload.format")
	}

	_, hasMain := field.Lookup(sc.raw, "main")
	container, _, ok := field.Unwind(sc.raw, "build.upload.main")
	if hasMain && ok && container["main"] != nil {
		sc.d.Errorf("Don't define both the `main` and `build.upload.main` fields in your configuration.\n" +
			"They serve the same purpose: to point to the entry-point of your worker.\n" +
			"Delete the `build.upload.main` and `build.upload.dir` field from your config.")
		return
	}
	if field.Deprecated(sc.d, sc.raw, "build.upload.main",
		"Delete the `build.upload.main` and `build.upload.dir` fields.\n"+
			"Then add the top level `main` field to your configuration file.", true, "", diagnostics.Warning) {
		sc.raw = field.Without(sc.raw, "build.upload.main")
	}
	if field.Deprecated(sc.d, sc.raw, "build.upload.dir",
		"Use the top level \"main\" field or a command-line argument to specify the entry-point for the Worker.",
		true, "", diagnostics.Warning) {
		sc.raw = field.Without(sc.raw, "build.upload.dir")
	}
}

package config

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"workercfg/internal/diagnostics"
	"workercfg/internal/field"
	"workercfg/internal/validate"
)

func indexed(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

// bindingShape declares the properties of one kind of binding object
type bindingShape struct {
	kind string
	// required string properties; nonEmpty ones must also not be ""
	required []string
	nonEmpty []string
	optional []validate.Property
	// known enables unknown-key warnings when set
	known []string
	// terse messages omit the binding itself; used for bindings that
	// already report into their own node
	terse bool
	// check runs extra rules once the declared properties pass
	check func(d *diagnostics.Diagnostics, path string, obj map[string]any) bool
}

func (s bindingShape) validate(d *diagnostics.Diagnostics, path string, value any) bool {
	obj, ok := validate.AsObject(value)
	if !ok {
		d.Errorf("%q bindings should be objects, but got %s", s.kind, validate.Stringify(value))
		return false
	}

	valid := true
	for _, key := range s.required {
		v, isString := obj[key].(string)
		if !isString || (v == "" && slices.Contains(s.nonEmpty, key)) {
			if s.terse {
				d.Errorf("binding should have a string %q field.", key)
				valid = false
				continue
			}
			d.Errorf("%q bindings should have a string %q field but got %s.", path, key, validate.Stringify(obj))
			valid = false
		}
	}
	for _, p := range s.optional {
		if !validate.IsOptionalProperty(obj, p.Key, p.Type) {
			if s.terse {
				d.Errorf("the field %q, when present, should be a %s.", p.Key, p.Type)
				valid = false
				continue
			}
			d.Errorf("%q bindings should, optionally, have a %s %q field but got %s.", path, p.Type, p.Key, validate.Stringify(obj))
			valid = false
		}
	}
	if s.known != nil {
		validate.AdditionalProperties(d, path, validate.Keys(obj), s.known)
	}
	if valid && s.check != nil {
		valid = s.check(d, path, obj)
	}
	return valid
}

func optionalStrings(keys ...string) []validate.Property {
	props := make([]validate.Property, len(keys))
	for i, k := range keys {
		props[i] = validate.Property{Key: k, Type: validate.TypeString}
	}
	return props
}

var (
	kvShape = bindingShape{
		kind:     "kv_namespaces",
		required: []string{"binding", "id"},
		nonEmpty: []string{"id"},
		optional: optionalStrings("preview_id"),
		known:    []string{"binding", "id", "preview_id"},
	}
	r2Shape = bindingShape{
		kind:     "r2_buckets",
		required: []string{"binding", "bucket_name"},
		nonEmpty: []string{"bucket_name"},
		optional: optionalStrings("preview_bucket_name", "jurisdiction"),
		known:    []string{"binding", "bucket_name", "preview_bucket_name", "jurisdiction"},
	}
	d1Shape = bindingShape{
		kind:     "d1_databases",
		required: []string{"binding", "database_id"},
		optional: optionalStrings("preview_database_id", "database_name", "migrations_dir", "migrations_table"),
		known: []string{"binding", "database_id", "database_internal_env", "database_name",
			"migrations_dir", "migrations_table", "preview_database_id"},
	}
	serviceShape = bindingShape{
		kind:     "services",
		required: []string{"binding", "service"},
		optional: optionalStrings("environment", "entrypoint"),
	}
	analyticsEngineShape = bindingShape{
		kind:     "analytics_engine",
		required: []string{"binding"},
		optional: optionalStrings("dataset"),
		known:    []string{"binding", "dataset"},
		check: func(d *diagnostics.Diagnostics, path string, obj map[string]any) bool {
			if obj["dataset"] == "" {
				d.Errorf("%q bindings should, optionally, have a string \"dataset\" field but got %s.", path, validate.Stringify(obj))
				return false
			}
			return true
		},
	}
	hyperdriveShape = bindingShape{
		kind:     "hyperdrive",
		required: []string{"binding", "id"},
		optional: optionalStrings("localConnectionString"),
		known:    []string{"binding", "id", "localConnectionString"},
	}
	vectorizeShape = bindingShape{
		kind:     "vectorize",
		required: []string{"binding", "index_name"},
		known:    []string{"binding", "index_name"},
	}
	mtlsShape = bindingShape{
		kind:     "mtls_certificates",
		required: []string{"binding", "certificate_id"},
		nonEmpty: []string{"certificate_id"},
		known:    []string{"binding", "certificate_id"},
	}
	queueProducerShape = bindingShape{
		kind:     "queue",
		required: []string{"binding", "queue"},
		nonEmpty: []string{"queue"},
		optional: []validate.Property{{Key: "delivery_delay", Type: validate.TypeNumber}},
		known:    []string{"binding", "queue", "delivery_delay"},
	}
	durableObjectShape = bindingShape{
		kind:     "durable_objects",
		required: []string{"name", "class_name"},
		optional: optionalStrings("script_name", "environment"),
		known:    []string{"class_name", "environment", "name", "script_name"},
		terse:    true,
		check: func(d *diagnostics.Diagnostics, path string, obj map[string]any) bool {
			_, hasEnv := obj["environment"]
			_, hasScript := obj["script_name"]
			if hasEnv && !hasScript {
				d.Errorf("binding should have a \"script_name\" field if \"environment\" is present.")
				return false
			}
			return true
		},
	}
	unsafeShape = bindingShape{
		kind:     "unsafe",
		required: []string{"name", "type"},
		terse:    true,
		check: func(d *diagnostics.Diagnostics, path string, obj map[string]any) bool {
			kind := obj["type"].(string)
			if slices.Contains(directlySupportedBindings, kind) {
				d.Warnf("The binding type %q is directly supported.\n"+
					"Consider migrating this unsafe binding to a format for '%s' bindings that is supported for optimal support.", kind, kind)
			}
			if kind == "metadata" {
				d.Warnf("The deployment object in the metadata binding is now deprecated. " +
					"Please switch using the version_metadata binding for access to version specific fields.")
			}
			return true
		},
	}
)

var directlySupportedBindings = []string{
	"plain_text", "secret_text", "json", "wasm_module", "data_blob", "text_blob", "browser", "ai",
	"kv_namespace", "durable_object_namespace", "d1_database", "r2_bucket", "service", "logfwdr",
	"mtls_certificate", "pipeline",
}

// bindingNames extracts the names of a raw bindings collection: a
// {bindings: [{name}]} container, a [{binding}] list, a single {binding}
// object or a plain key/value table
func bindingNames(value any) []string {
	if obj, ok := validate.AsObject(value); ok {
		if list, ok := validate.AsArray(obj["bindings"]); ok {
			var names []string
			for _, item := range list {
				if b, ok := validate.AsObject(item); ok {
					if name, ok := b["name"].(string); ok {
						names = append(names, name)
					}
				}
			}
			return names
		}
		if name, ok := obj["binding"].(string); ok {
			return []string{name}
		}
		var names []string
		for _, k := range validate.Keys(obj) {
			if obj[k] != nil {
				names = append(names, k)
			}
		}
		return names
	}
	if list, ok := validate.AsArray(value); ok {
		var names []string
		for _, item := range list {
			if b, ok := validate.AsObject(item); ok {
				if name, ok := b["binding"].(string); ok {
					names = append(names, name)
				}
			}
		}
		return names
	}
	return nil
}

// topLevelValue returns the raw top-level value at the dotted path f
func (sc *scope) topLevelValue(f string) any {
	if sc.rawTop == nil {
		return nil
	}
	container, key, ok := field.Unwind(sc.rawTop, f)
	if !ok {
		return nil
	}
	return container[key]
}

// bindingArray validates a list of bindings and warns about top-level
// bindings the environment does not redeclare
func bindingArray(shape bindingShape) func(sc *scope) validate.ValidatorFn {
	return func(sc *scope) validate.ValidatorFn {
		return func(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
			if value == nil {
				return true
			}
			fieldPath := sc.path(f)
			items, ok := validate.AsArray(value)
			if !ok {
				d.Errorf("The field %q should be an array but got %s.", fieldPath, validate.Stringify(value))
				return false
			}

			valid := true
			for i, item := range items {
				valid = shape.validate(d, indexed(fieldPath, i), item) && valid
			}

			envNames := bindingNames(value)
			for _, name := range bindingNames(sc.topLevelValue(f)) {
				if !slices.Contains(envNames, name) {
					d.Warnf("There is a %s binding with name %q at the top level, but not on \"env.%s\".\n"+
						"This is not what you probably want, since %q configuration is not inherited by environments.\n"+
						"Please add a binding for %q to \"env.%s.%s.bindings\".", f, name, sc.envName, f, name, sc.envName, f)
				}
			}
			return valid
		}
	}
}

// bindingsProperty validates a {bindings: [...]} container. Each binding
// reports into its own child node.
func bindingsProperty(shape bindingShape) func(sc *scope) validate.ValidatorFn {
	return func(sc *scope) validate.ValidatorFn {
		return func(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
			if value == nil {
				return true
			}
			fieldPath := sc.path(f)
			obj, ok := validate.AsObject(value)
			if !ok {
				d.Errorf("The field %q should be an object but got %s.", fieldPath, validate.Stringify(value))
				return false
			}
			if _, ok := obj["bindings"]; !ok {
				d.Errorf("The field %q is missing the required \"bindings\" property.", fieldPath)
				return false
			}
			items, ok := validate.AsArray(obj["bindings"])
			if !ok {
				d.Errorf("The field %q should be an array but got %s.", fieldPath+".bindings", validate.Stringify(obj["bindings"]))
				return false
			}

			valid := true
			for i, item := range items {
				path := indexed(fieldPath+".bindings", i)
				child := diagnostics.New(fmt.Sprintf("%q: %s", path, validate.Stringify(item)))
				valid = shape.validate(child, path, item) && valid
				d.AddChild(child)
			}

			if !valid {
				return false
			}
			envNames := bindingNames(value)
			var missing []string
			for _, name := range bindingNames(sc.topLevelValue(f)) {
				if !slices.Contains(envNames, name) {
					missing = append(missing, "- "+name)
				}
			}
			if len(missing) > 0 {
				d.Warnf("The following bindings are at the top level, but not on \"env.%s\".\n"+
					"This is not what you probably want, since %q configuration is not inherited by environments.\n"+
					"Please add a binding for each to \"%s.bindings\":\n%s", sc.envName, f, fieldPath, strings.Join(missing, "\n"))
			}
			return true
		}
	}
}

var consumerKeys = []string{
	"queue", "type", "max_batch_size", "max_batch_timeout", "max_retries",
	"dead_letter_queue", "max_concurrency", "visibility_timeout_ms", "retry_delay",
}

var consumerOptions = []validate.Property{
	{Key: "type", Type: validate.TypeString},
	{Key: "max_batch_size", Type: validate.TypeNumber},
	{Key: "max_batch_timeout", Type: validate.TypeNumber},
	{Key: "max_retries", Type: validate.TypeNumber},
	{Key: "dead_letter_queue", Type: validate.TypeString},
	{Key: "max_concurrency", Type: validate.TypeNumber},
	{Key: "visibility_timeout_ms", Type: validate.TypeNumber},
	{Key: "retry_delay", Type: validate.TypeNumber},
}

func validateConsumer(d *diagnostics.Diagnostics, path string, value any) bool {
	obj, ok := validate.AsObject(value)
	if !ok {
		d.Errorf("%q should be an object, but got %s", path, validate.Stringify(value))
		return false
	}
	valid := validate.AdditionalProperties(d, path, validate.Keys(obj), consumerKeys)
	if !validate.IsRequiredProperty(obj, "queue", validate.TypeString) {
		d.Errorf("%q should have a string \"queue\" field but got %s.", path, validate.Stringify(obj))
		valid = false
	}
	for _, opt := range consumerOptions {
		if !validate.IsOptionalProperty(obj, opt.Key, opt.Type) {
			d.Errorf("%q should, optionally, have a %s %q field but got %s.", path, opt.Type, opt.Key, validate.Stringify(obj))
			valid = false
		}
	}
	return valid
}

func validateQueues(sc *scope) validate.ValidatorFn {
	producers := bindingArray(queueProducerShape)(sc)
	return func(d *diagnostics.Diagnostics, f string, value any, parent any) bool {
		if value == nil {
			return true
		}
		fieldPath := sc.path(f)
		obj, ok := validate.AsObject(value)
		if !ok {
			d.Errorf("The field %q should be an object but got %s.", fieldPath, validate.Stringify(value))
			return false
		}
		valid := validate.AdditionalProperties(d, fieldPath, validate.Keys(obj), []string{"consumers", "producers"})

		if consumers, present := field.Lookup(obj, "consumers"); present {
			items, ok := validate.AsArray(consumers)
			if !ok {
				d.Errorf("The field %q should be an array but got %s.", fieldPath+".consumers", validate.Stringify(consumers))
				valid = false
			}
			for i, item := range items {
				valid = validateConsumer(d, indexed(fieldPath+".consumers", i), item) && valid
			}
		}
		if p, present := field.Lookup(obj, "producers"); present {
			valid = producers(d, f+".producers", p, parent) && valid
		}
		return valid
	}
}

func validateTailConsumers(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
	if value == nil {
		return true
	}
	items, ok := validate.AsArray(value)
	if !ok {
		d.Errorf("Expected %q to be an array but got %s.", f, validate.Stringify(value))
		return false
	}
	valid := true
	for i, item := range items {
		path := indexed(f, i)
		obj, ok := validate.AsObject(item)
		if !ok {
			d.Errorf("%q should be an object but got %s.", path, validate.Stringify(item))
			valid = false
			continue
		}
		valid = validate.RequiredProperty(d, path, "service", obj["service"], validate.TypeString) &&
			validate.OptionalProperty(d, path, "environment", obj["environment"], validate.TypeString) && valid
	}
	return valid
}

// namedBinding validates a single {binding = "NAME"} object
func namedBinding(sc *scope) validate.ValidatorFn {
	return func(d *diagnostics.Diagnostics, f string, value any, _ any) bool {
		obj, ok := validate.AsObject(value)
		if !ok {
			d.Errorf("The field %q should be an object but got %s.", sc.path(f), validate.Stringify(value))
			return false
		}
		if !validate.IsRequiredProperty(obj, "binding", validate.TypeString) {
			d.Errorf("binding should have a string \"binding\" field.")
			return false
		}
		validate.AdditionalProperties(d, f, validate.Keys(obj), []string{"binding"})
		return true
	}
}

func validateUnsafe(sc *scope) validate.ValidatorFn {
	bindings := bindingsProperty(unsafeShape)(sc)
	return func(d *diagnostics.Diagnostics, f string, value any, parent any) bool {
		fieldPath := sc.path(f)
		obj, ok := validate.AsObject(value)
		if !ok {
			d.Errorf("The field %q should be an object but got %s.", fieldPath, validate.Stringify(value))
			return false
		}
		_, hasBindings := field.Lookup(obj, "bindings")
		_, hasMetadata := field.Lookup(obj, "metadata")
		capnp, hasCapnp := field.Lookup(obj, "capnp")
		if !hasBindings && !hasMetadata && !hasCapnp {
			d.Errorf("The field %q should contain at least one of \"bindings\", \"metadata\" or \"capnp\" properties but got %s.",
				fieldPath, validate.Stringify(value))
			return false
		}
		if hasBindings && !bindings(d, f, value, parent) {
			return false
		}
		if hasMetadata && !validate.Is(obj["metadata"], validate.TypeObject) {
			d.Errorf("The field %q should be an object but got %s.", fieldPath+".metadata", validate.Stringify(obj["metadata"]))
			return false
		}
		if hasCapnp {
			return validateCapnp(d, fieldPath+".capnp", capnp)
		}
		return true
	}
}

func validateCapnp(d *diagnostics.Diagnostics, path string, value any) bool {
	obj, ok := validate.AsObject(value)
	if !ok {
		d.Errorf("The field %q should be an object but got %s.", path, validate.Stringify(value))
		return false
	}
	if compiled, has := obj["compiled_schema"]; has {
		_, hasBase := obj["base_path"]
		_, hasSources := obj["source_schemas"]
		if hasBase || hasSources {
			d.Errorf("The field %q cannot contain both \"compiled_schema\" and one of \"base_path\" or \"source_schemas\".", path)
			return false
		}
		if !validate.Is(compiled, validate.TypeString) {
			d.Errorf("The field %q, when present, should be a string but got %s.", path+".compiled_schema", validate.Stringify(compiled))
			return false
		}
		return true
	}
	if !validate.IsRequiredProperty(obj, "base_path", validate.TypeString) {
		d.Errorf("The field %q, when present, should be a string but got %s", path+".base_path", validate.Stringify(obj["base_path"]))
	}
	return validate.TypedArray(d, path+".source_schemas", obj["source_schemas"], validate.TypeString)
}

func validateVars(sc *scope) validate.ValidatorFn {
	return func(d *diagnostics.Diagnostics, f string, value any, parent any) bool {
		fieldPath := sc.path(f)
		obj, ok := validate.AsObject(value)
		if !ok {
			d.Errorf("The field %q should be an object but got %s.\n", fieldPath, validate.Stringify(value))
			return false
		}
		if top, ok := parent.(*Environment); ok {
			for _, name := range sortedKeys(top.Vars) {
				if _, has := obj[name]; !has {
					d.Warnf("\"vars.%s\" exists at the top level, but not on %q.\n"+
						"This is not what you probably want, since \"vars\" configuration is not inherited by environments.\n"+
						"Please add \"vars.%s\" to \"env.%s\".", name, fieldPath, name, sc.envName)
				}
			}
		}
		return true
	}
}

func validateDefines(sc *scope) validate.ValidatorFn {
	return func(d *diagnostics.Diagnostics, f string, value any, parent any) bool {
		fieldPath := sc.path(f)
		obj, ok := validate.AsObject(value)
		if !ok {
			d.Errorf("The field %q should be an object but got %s.\n", fieldPath, validate.Stringify(value))
			return false
		}
		valid := true
		for _, name := range validate.Keys(obj) {
			if !validate.Is(obj[name], validate.TypeString) {
				d.Errorf("The field \"%s.%s\" should be a string but got %s.", fieldPath, name, validate.Stringify(obj[name]))
				valid = false
			}
		}

		top, ok := parent.(*Environment)
		if !ok || len(top.Define) == 0 {
			return valid
		}
		for _, name := range sortedKeys(top.Define) {
			if _, has := obj[name]; !has {
				d.Warnf("\"define.%s\" exists at the top level, but not on %q.\n"+
					"This is not what you probably want, since \"define\" configuration is not inherited by environments.\n"+
					"Please add \"define.%s\" to \"env.%s\".", name, fieldPath, name, sc.envName)
			}
		}
		for _, name := range validate.Keys(obj) {
			if _, has := top.Define[name]; !has {
				d.Warnf("%q exists on \"env.%s\", but not on the top level.\n"+
					"This is not what you probably want, since \"define\" configuration within environments can only override existing top level \"define\" configuration\n"+
					"Please remove \"%s.%s\", or add \"define.%s\".", name, sc.envName, fieldPath, name, name)
			}
		}
		return valid
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bindingGroup is the names of one kind of binding in a resolved environment
type bindingGroup struct {
	kind  string
	names []string
}

func bindingGroups(env *Environment) []bindingGroup {
	groups := []bindingGroup{{kind: "Durable Object"}, {kind: "KV Namespace"}, {kind: "R2 Bucket"},
		{kind: "D1 Database"}, {kind: "Service"}, {kind: "Analytics Engine Dataset"}, {kind: "Hyperdrive"},
		{kind: "Vectorize Index"}, {kind: "mTLS Certificate"}, {kind: "Queue"}, {kind: "Browser"}, {kind: "AI"},
		{kind: "Version Metadata"}, {kind: "Unsafe"}, {kind: "Environment Variable"}, {kind: "Definition"}}

	add := func(i int, name string) { groups[i].names = append(groups[i].names, name) }
	for _, b := range env.DurableObjects.Bindings {
		add(0, b.Name)
	}
	for _, b := range env.KVNamespaces {
		add(1, b.Binding)
	}
	for _, b := range env.R2Buckets {
		add(2, b.Binding)
	}
	for _, b := range env.D1Databases {
		add(3, b.Binding)
	}
	for _, b := range env.Services {
		add(4, b.Binding)
	}
	for _, b := range env.AnalyticsEngineDatasets {
		add(5, b.Binding)
	}
	for _, b := range env.Hyperdrive {
		add(6, b.Binding)
	}
	for _, b := range env.Vectorize {
		add(7, b.Binding)
	}
	for _, b := range env.MTLSCertificates {
		add(8, b.Binding)
	}
	for _, b := range env.Queues.Producers {
		add(9, b.Binding)
	}
	for i, b := range []*NamedBinding{env.Browser, env.AI, env.VersionMetadata} {
		if b != nil {
			add(10+i, b.Binding)
		}
	}
	if env.Unsafe != nil {
		for _, b := range env.Unsafe.Bindings {
			if name, ok := b["name"].(string); ok {
				add(13, name)
			}
		}
	}
	for _, name := range sortedKeys(env.Vars) {
		add(14, name)
	}
	for _, name := range sortedKeys(env.Define) {
		add(15, name)
	}
	return groups
}

// checkUniqueBindingNames reports binding names used more than once,
// within one kind or across kinds
func checkUniqueBindingNames(d *diagnostics.Diagnostics, env *Environment) bool {
	var order []string
	kindsByName := make(map[string][]string)
	for _, g := range bindingGroups(env) {
		for _, name := range g.names {
			if _, seen := kindsByName[name]; !seen {
				order = append(order, name)
			}
			kindsByName[name] = append(kindsByName[name], g.kind)
		}
	}

	unique := true
	for _, name := range order {
		kinds := kindsByName[name]
		if len(kinds) < 2 {
			continue
		}
		unique = false

		var distinct, repeated []string
		for i, k := range kinds {
			if !slices.Contains(distinct, k) {
				distinct = append(distinct, k)
			} else if slices.Index(kinds, k) != i && !slices.Contains(repeated, k) {
				repeated = append(repeated, k)
			}
		}
		if len(distinct) > 1 {
			d.Errorf("%s assigned to %s bindings.", name, englishList(distinct))
		}
		for _, k := range repeated {
			d.Errorf("%s assigned to multiple %s bindings.", name, k)
		}
	}
	if !unique {
		d.Errorf("Bindings must have unique names, so that they can all be referenced in the worker.\n" +
			"Please change your bindings to have unique names.")
	}
	return unique
}

// reservedPagesBinding is the binding name Pages uses for static assets
const reservedPagesBinding = "ASSETS"

func checkReservedPagesBinding(d *diagnostics.Diagnostics, env *Environment) {
	for _, g := range bindingGroups(env) {
		if slices.Contains(g.names, reservedPagesBinding) {
			d.Errorf("The name '%s' is reserved in Pages projects. Please use a different name for your %s binding.",
				reservedPagesBinding, g.kind)
		}
	}
}

func englishList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
}

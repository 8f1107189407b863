package config

import (
	"path/filepath"

	"workercfg/internal/diagnostics"
	"workercfg/internal/field"
	"workercfg/internal/validate"
)

// scope is the state shared by every field while one environment resolves
type scope struct {
	d *diagnostics.Diagnostics
	// raw is a shallow copy of the environment being resolved
	raw RawEnvironment
	// rawTop is the raw top level, nil while resolving the top level itself
	rawTop RawEnvironment
	// top is the resolved top level, nil while resolving the top level itself
	top     *Environment
	envName string

	configPath        string
	legacyEnv         bool
	dispatchNamespace bool
}

func (sc *scope) isTop() bool {
	return sc.top == nil
}

// parent is the value handed to validators as their enclosing scope
func (sc *scope) parent() any {
	if sc.top == nil {
		return nil
	}
	return sc.top
}

// serviceEnvironment reports whether a named service environment is resolving
func (sc *scope) serviceEnvironment() bool {
	return !sc.legacyEnv && sc.top != nil
}

// path prefixes field with the environment it belongs to
func (sc *scope) path(name string) string {
	if sc.isTop() {
		return name
	}
	return "env." + sc.envName + "." + name
}

// envField resolves one environment field into env
type envField struct {
	name    string
	resolve func(sc *scope, env *Environment)
}

func inherit[T any](name string, v validate.ValidatorFn, def func() T, get func(*Environment) *T) envField {
	return inheritWith(name, fixed(v), def, get)
}

// inheritWith is an inheritable field whose validator depends on the scope
func inheritWith[T any](name string, v func(sc *scope) validate.ValidatorFn, def func() T, get func(*Environment) *T) envField {
	return envField{name: name, resolve: func(sc *scope, env *Environment) {
		var inherited *T
		if sc.top != nil {
			inherited = get(sc.top)
		}
		desc := field.Descriptor[T]{Name: name, Validate: v(sc), Default: def()}
		*get(env) = field.Inheritable(sc.d, inherited, sc.raw, desc, nil, sc.parent())
	}}
}

// own is a not-inheritable field whose validator depends on the environment
func own[T any](name string, v func(sc *scope) validate.ValidatorFn, def func() T, get func(*Environment) *T) envField {
	return envField{name: name, resolve: func(sc *scope, env *Environment) {
		desc := field.Descriptor[T]{Name: name, Validate: v(sc), Default: def()}
		*get(env) = field.NotInheritable(sc.d, sc.rawTop, sc.raw, sc.envName, desc, sc.parent())
	}}
}

func fixed(v validate.ValidatorFn) func(*scope) validate.ValidatorFn {
	return func(*scope) validate.ValidatorFn { return v }
}

func zero[T any]() T {
	var z T
	return z
}

func str(s string) func() string { return func() string { return s } }

func emptyStrings() []string { return []string{} }

// environmentFields is the ordered table of every environment field
func environmentFields() []envField {
	return []envField{
		{name: "route", resolve: resolveRoute},
		{name: "account_id", resolve: resolveAccountID},
		inheritWith("routes", routesValidator, zero[[]Route], func(e *Environment) *[]Route { return &e.Routes }),
		inherit("workers_dev", validate.IsBoolean, zero[*bool], func(e *Environment) **bool { return &e.WorkersDev }),
		{name: "build", resolve: resolveBuild},
		inherit("compatibility_date", validate.All(validate.IsString, validate.IsValidDate), zero[string],
			func(e *Environment) *string { return &e.CompatibilityDate }),
		inherit("compatibility_flags", validate.IsStringArray, emptyStrings,
			func(e *Environment) *[]string { return &e.CompatibilityFlags }),
		inherit("jsx_factory", validate.IsString, str("React.createElement"),
			func(e *Environment) *string { return &e.JSXFactory }),
		inherit("jsx_fragment", validate.IsString, str("React.Fragment"),
			func(e *Environment) *string { return &e.JSXFragment }),
		{name: "name", resolve: resolveName},
		{name: "main", resolve: relativePath("main", func(e *Environment) *string { return &e.Main })},
		{name: "base_dir", resolve: relativePath("base_dir", func(e *Environment) *string { return &e.BaseDir })},
		inherit("triggers", isTriggers, func() Triggers { return Triggers{Crons: []string{}} },
			func(e *Environment) *Triggers { return &e.Triggers }),
		inherit("usage_model", validate.IsOneOf("bundled", "unbound"), zero[string],
			func(e *Environment) *string { return &e.UsageModel }),
		inherit("limits", isLimits, zero[*Limits], func(e *Environment) **Limits { return &e.Limits }),
		inherit("placement", isPlacement, zero[*Placement], func(e *Environment) **Placement { return &e.Placement }),
		own("vars", validateVars, func() map[string]any { return map[string]any{} },
			func(e *Environment) *map[string]any { return &e.Vars }),
		own("define", validateDefines, func() map[string]string { return map[string]string{} },
			func(e *Environment) *map[string]string { return &e.Define }),
		own("durable_objects", bindingsProperty(durableObjectShape), func() DurableObjects { return DurableObjects{Bindings: []DurableObjectBinding{}} },
			func(e *Environment) *DurableObjects { return &e.DurableObjects }),
		inherit("migrations", isMigrations, func() []Migration { return []Migration{} },
			func(e *Environment) *[]Migration { return &e.Migrations }),
		own("kv_namespaces", bindingArray(kvShape), func() []KVNamespace { return []KVNamespace{} },
			func(e *Environment) *[]KVNamespace { return &e.KVNamespaces }),
		own("queues", validateQueues, func() Queues { return Queues{Producers: []QueueProducer{}, Consumers: []QueueConsumer{}} },
			func(e *Environment) *Queues { return &e.Queues }),
		own("r2_buckets", bindingArray(r2Shape), func() []R2Bucket { return []R2Bucket{} },
			func(e *Environment) *[]R2Bucket { return &e.R2Buckets }),
		own("d1_databases", bindingArray(d1Shape), func() []D1Database { return []D1Database{} },
			func(e *Environment) *[]D1Database { return &e.D1Databases }),
		own("vectorize", bindingArray(vectorizeShape), func() []Vectorize { return []Vectorize{} },
			func(e *Environment) *[]Vectorize { return &e.Vectorize }),
		own("hyperdrive", bindingArray(hyperdriveShape), func() []Hyperdrive { return []Hyperdrive{} },
			func(e *Environment) *[]Hyperdrive { return &e.Hyperdrive }),
		own("services", bindingArray(serviceShape), func() []ServiceBinding { return []ServiceBinding{} },
			func(e *Environment) *[]ServiceBinding { return &e.Services }),
		own("analytics_engine_datasets", bindingArray(analyticsEngineShape), func() []AnalyticsEngineDataset { return []AnalyticsEngineDataset{} },
			func(e *Environment) *[]AnalyticsEngineDataset { return &e.AnalyticsEngineDatasets }),
		own("mtls_certificates", bindingArray(mtlsShape), func() []MTLSCertificate { return []MTLSCertificate{} },
			func(e *Environment) *[]MTLSCertificate { return &e.MTLSCertificates }),
		own("tail_consumers", fixed(validateTailConsumers), zero[[]TailConsumer],
			func(e *Environment) *[]TailConsumer { return &e.TailConsumers }),
		own("unsafe", validateUnsafe, zero[*Unsafe], func(e *Environment) **Unsafe { return &e.Unsafe }),
		own("browser", namedBinding, zero[*NamedBinding], func(e *Environment) **NamedBinding { return &e.Browser }),
		own("ai", namedBinding, zero[*NamedBinding], func(e *Environment) **NamedBinding { return &e.AI }),
		own("version_metadata", namedBinding, zero[*NamedBinding],
			func(e *Environment) **NamedBinding { return &e.VersionMetadata }),
		{name: "zone_id", resolve: func(sc *scope, env *Environment) {
			if s, ok := sc.raw["zone_id"].(string); ok {
				env.ZoneID = s
			}
		}},
		inherit("no_bundle", validate.IsBoolean, zero[*bool], func(e *Environment) **bool { return &e.NoBundle }),
		inherit("minify", validate.IsBoolean, zero[*bool], func(e *Environment) **bool { return &e.Minify }),
		inherit("logpush", validate.IsBoolean, zero[*bool], func(e *Environment) **bool { return &e.Logpush }),
		inherit("upload_source_maps", validate.IsBoolean, zero[*bool],
			func(e *Environment) **bool { return &e.UploadSourceMaps }),
		inherit("observability", isObservability, zero[*Observability],
			func(e *Environment) **Observability { return &e.Observability }),
	}
}

func resolveName(sc *scope, env *Environment) {
	if sc.serviceEnvironment() {
		env.Name = field.NotAllowedInServiceEnvironment(sc.d, sc.top.Name, sc.raw, "name")
		return
	}
	v := validate.IsValidName
	if sc.dispatchNamespace {
		v = validate.IsString
	}
	var inherited *string
	if sc.top != nil {
		inherited = &sc.top.Name
	}
	desc := field.Descriptor[string]{Name: "name", Validate: v}
	env.Name = field.Inheritable(sc.d, inherited, sc.raw, desc, field.AppendEnvName(sc.envName), sc.parent())
}

func resolveAccountID(sc *scope, env *Environment) {
	if sc.raw["account_id"] == "" {
		sc.d.Warnf("The \"account_id\" field in your configuration is an empty string and will be ignored.\n" +
			"Please remove the \"account_id\" field from your configuration.")
		delete(sc.raw, "account_id")
	}
	if sc.serviceEnvironment() {
		env.AccountID = field.NotAllowedInServiceEnvironment(sc.d, sc.top.AccountID, sc.raw, "account_id")
		return
	}
	var inherited *string
	if sc.top != nil {
		inherited = &sc.top.AccountID
	}
	desc := field.Descriptor[string]{Name: "account_id", Validate: validate.IsString}
	env.AccountID = field.Inheritable(sc.d, inherited, sc.raw, desc, nil, sc.parent())
}

func resolveRoute(sc *scope, env *Environment) {
	if sc.raw["route"] == "" {
		sc.d.Warnf("The \"route\" field in your configuration is an empty string and will be ignored.\n" +
			"Please remove the \"route\" field from your configuration.")
		delete(sc.raw, "route")
	}
	var inherited **Route
	if sc.top != nil {
		inherited = &sc.top.Route
	}
	desc := field.Descriptor[*Route]{Name: "route", Validate: isRoute}
	env.Route = field.Inheritable(sc.d, inherited, sc.raw, desc, nil, sc.parent())
}

// relativePath resolves a string field naming a path relative to the
// configuration file. Inherited values are already resolved.
func relativePath(name string, get func(*Environment) *string) func(sc *scope, env *Environment) {
	return func(sc *scope, env *Environment) {
		var inherited *string
		if sc.top != nil {
			inherited = get(sc.top)
		}
		desc := field.Descriptor[string]{
			Name:     name,
			Validate: validate.IsString,
			Decode: func(v any) (string, error) {
				return resolvePath(sc.configPath, v.(string)), nil
			},
		}
		*get(env) = field.Inheritable(sc.d, inherited, sc.raw, desc, nil, sc.parent())
	}
}

// resolvePath makes p absolute against the directory of the configuration
// file. Absolute paths are returned unchanged so a resolved configuration
// can be normalised again.
func resolvePath(configPath, p string) string {
	if configPath == "" || p == "" || filepath.IsAbs(p) {
		return p
	}
	joined := filepath.Join(filepath.Dir(configPath), p)
	if abs, err := filepath.Abs(joined); err == nil {
		return abs
	}
	return joined
}

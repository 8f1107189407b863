package config

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"path/filepath"
	"strings"

	"workercfg/internal/diagnostics"
	"workercfg/internal/field"
	"workercfg/internal/validate"
)

// Args carries the command-line values that shape normalisation. Zero
// values mean "not given".
type Args struct {
	Name              string
	Env               string
	LegacyEnv         *bool
	DispatchNamespace string
	Remote            bool
	LocalProtocol     string
	UpstreamProtocol  string
}

// Normalizer turns raw configuration documents into resolved ones
type Normalizer struct {
	fields []envField
	logger *slog.Logger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithLogger sets the logger used for debug output
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNormalizer creates a Normalizer for the full field table
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		fields: environmentFields(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NormalizeAndValidateConfig normalises raw with a default Normalizer
func NormalizeAndValidateConfig(raw RawConfig, configPath string, args Args) (*Config, *diagnostics.Diagnostics) {
	return NewNormalizer().Normalize(raw, configPath, args)
}

var ignoredTopLevel = []struct{ key, message string }{
	{"miniflare", "Wrangler does not use configuration in the `miniflare` section. " +
		"Unless you are using Miniflare directly you can remove this section."},
	{"type", "Most common features now work out of the box with wrangler, including modules, jsx, typescript, etc. " +
		"If you need anything more, use a custom build."},
	{"webpack_config", "Most common features now work out of the box with wrangler, including modules, jsx, typescript, etc. " +
		"If you need anything more, use a custom build."},
}

// topLevelOnly are the keys only the top level may hold, besides "env"
var topLevelOnly = []string{"legacy_env", "send_metrics", "keep_vars", "pages_build_output_dir", "$schema", "dev", "alias"}

// Normalize resolves raw into a Config. It never fails; every problem is
// recorded in the returned tree and the caller treats HasErrors as fatal.
func (n *Normalizer) Normalize(raw RawConfig, configPath string, args Args) (*Config, *diagnostics.Diagnostics) {
	d := diagnostics.New(rootDescription(configPath))
	top := maps.Clone(raw.Top)
	if top == nil {
		top = RawEnvironment{}
	}

	for _, ignored := range ignoredTopLevel {
		if field.Deprecated(d, top, ignored.key, ignored.message, true, "Ignored", diagnostics.Warning) {
			top = field.Without(top, ignored.key)
		}
	}
	validate.OptionalProperty(d, "", "legacy_env", top["legacy_env"], validate.TypeBoolean)
	validate.OptionalProperty(d, "", "send_metrics", top["send_metrics"], validate.TypeBoolean)
	validate.OptionalProperty(d, "", "keep_vars", top["keep_vars"], validate.TypeBoolean)
	validate.OptionalProperty(d, "", "pages_build_output_dir", top["pages_build_output_dir"], validate.TypeString)
	validate.OptionalProperty(d, "", "$schema", top["$schema"], validate.TypeString)

	legacyEnv := true
	if args.LegacyEnv != nil {
		legacyEnv = *args.LegacyEnv
	} else if v, ok := top["legacy_env"].(bool); ok {
		legacyEnv = v
	}
	if !legacyEnv {
		d.Warnf("Experimental: Service environments are in beta, and their behaviour is guaranteed to change in the future. DO NOT USE IN PRODUCTION.")
	}

	base := scope{
		configPath:        configPath,
		legacyEnv:         legacyEnv,
		dispatchNamespace: strings.TrimSpace(args.DispatchNamespace) != "",
	}
	pages := IsPagesConfig(raw)

	topScope := base
	topScope.d = d
	topScope.raw = top
	topEnv := n.resolveEnvironment(&topScope, pages)
	top = topScope.raw

	cfg := &Config{
		ConfigPath:   configPath,
		EnvName:      args.Env,
		LegacyEnv:    legacyEnv,
		Environments: make(map[string]*Environment, len(raw.Env)),
	}

	for _, name := range raw.EnvNames() {
		envD := diagnostics.New(fmt.Sprintf("%q environment configuration", "env."+name))
		sc := base
		sc.d = envD
		sc.raw = maps.Clone(raw.Env[name])
		sc.rawTop = top
		sc.top = topEnv
		sc.envName = name
		cfg.Environments[name] = n.resolveEnvironment(&sc, pages)
		d.AddChild(envD)
	}

	active := topEnv
	if args.Env != "" {
		if env, ok := cfg.Environments[args.Env]; ok {
			active = env
		} else if !pages {
			sc := base
			sc.d = diagnostics.New(fmt.Sprintf("%q environment configuration", "env."+args.Env))
			sc.raw = RawEnvironment{}
			sc.rawTop = top
			sc.top = topEnv
			sc.envName = args.Env
			active = n.resolveEnvironment(&sc, pages)
			reportMissingEnvironment(d, raw.EnvNames(), args.Env, configPath)
		}
	}
	cfg.Environment = *active

	if v, ok := top["send_metrics"].(bool); ok {
		cfg.SendMetrics = &v
	}
	if v, ok := top["keep_vars"].(bool); ok {
		cfg.KeepVars = &v
	}
	if dir, ok := top["pages_build_output_dir"].(string); ok {
		cfg.PagesBuildOutputDir = resolvePath(configPath, dir)
	}
	cfg.Dev = normalizeDev(d, top["dev"], args)
	cfg.Alias = normalizeAlias(d, top)

	known := append(n.fieldNames(), topLevelOnly...)
	validate.AdditionalProperties(d, "top-level", validate.Keys(top), known)

	if args.Name != "" {
		cfg.Name = args.Name
	}

	n.logger.Debug("normalized configuration",
		slog.String("config", configPath),
		slog.String("env", args.Env),
		slog.Int("environments", len(cfg.Environments)),
		slog.Bool("errors", d.HasErrors()),
		slog.Bool("warnings", d.HasWarnings()))
	return cfg, d
}

func rootDescription(configPath string) string {
	if configPath == "" {
		return "Processing worker configuration:"
	}
	return fmt.Sprintf("Processing %s configuration:", configPath)
}

func (n *Normalizer) fieldNames() []string {
	names := make([]string, len(n.fields))
	for i, f := range n.fields {
		names[i] = f.name
	}
	return names
}

// resolveEnvironment runs every field of the table against sc and the
// checks that span several fields
func (n *Normalizer) resolveEnvironment(sc *scope, pages bool) *Environment {
	reportEnvironmentDeprecations(sc)

	env := &Environment{}
	for _, f := range n.fields {
		f.resolve(sc, env)
	}

	if !sc.isTop() {
		validate.AdditionalProperties(sc.d, "env."+sc.envName, validate.Keys(sc.raw), n.fieldNames())
	}
	checkUniqueBindingNames(sc.d, env)
	if pages {
		checkReservedPagesBinding(sc.d, env)
	}
	warnIfDurableObjectsHaveNoMigrations(sc.d, env, sc.configPath)

	n.logger.Debug("resolved environment", slog.String("env", sc.envName), slog.String("name", env.Name))
	return env
}

func reportEnvironmentDeprecations(sc *scope) {
	removed := []struct {
		key, message string
		severity     diagnostics.Severity
	}{
		{"kv-namespaces", `The "kv-namespaces" field is no longer supported, please rename to "kv_namespaces"`, diagnostics.Warning},
		{"experimental_services", `The "experimental_services" field is no longer supported. ` +
			`Simply rename the [experimental_services] field to [services].`, diagnostics.Warning},
		{"node_compat", "The \"node_compat\" field is no longer supported as of Wrangler v4. " +
			"Instead, use the `nodejs_compat` compatibility flag.", diagnostics.Error},
	}
	for _, r := range removed {
		if field.Deprecated(sc.d, sc.raw, r.key, r.message, true, "", r.severity) {
			sc.raw = field.Without(sc.raw, r.key)
		}
	}
	field.Deprecated(sc.d, sc.raw, "zone_id", "This is unnecessary since we can deduce this from routes directly.",
		false, "", diagnostics.Warning)
	field.Experimental(sc.d, sc.raw, "unsafe")
}

func reportMissingEnvironment(d *diagnostics.Diagnostics, envNames []string, envName, configPath string) {
	available := ""
	if len(envNames) > 0 {
		available = fmt.Sprintf("The available configured environment names are: %s\n", validate.Stringify(envNames))
	}
	file := defaultConfigFile
	if configPath != "" {
		file = filepath.Base(configPath)
	}
	message := fmt.Sprintf("No environment found in configuration with name %q.\n"+
		"Before using `--env=%s` there should be an equivalent environment section in the configuration.\n"+
		"%s\n"+
		"Consider adding an environment configuration section to the %s file:\n"+
		"```\n[env.%s]\n```\n", envName, envName, available, file, envName)

	// only an error when the file does define other environments
	if available != "" {
		d.Add(diagnostics.Error, message)
		return
	}
	d.Add(diagnostics.Warning, message)
}

var devKeys = []string{"ip", "port", "inspector_port", "local_protocol", "upstream_protocol", "host"}

func normalizeDev(d *diagnostics.Diagnostics, value any, args Args) DevConfig {
	dev := DevConfig{IP: "localhost", LocalProtocol: "http"}
	if value == nil {
		value = map[string]any{}
	}
	raw, ok := validate.AsObject(value)
	if !ok {
		d.Errorf("The field \"dev\" should be an object but got %s.", validate.Stringify(value))
		raw = map[string]any{}
	}
	validate.AdditionalProperties(d, "dev", validate.Keys(raw), devKeys)

	if validate.OptionalProperty(d, "dev", "ip", raw["ip"], validate.TypeString) && raw["ip"] != nil {
		dev.IP = raw["ip"].(string)
	}
	dev.Port = optionalPort(d, "port", raw["port"])
	dev.InspectorPort = optionalPort(d, "inspector_port", raw["inspector_port"])
	if validate.OptionalProperty(d, "dev", "local_protocol", raw["local_protocol"], validate.TypeString, "http", "https") &&
		raw["local_protocol"] != nil {
		dev.LocalProtocol = raw["local_protocol"].(string)
	}
	if args.LocalProtocol != "" {
		dev.LocalProtocol = args.LocalProtocol
	}

	dev.UpstreamProtocol = dev.LocalProtocol
	if args.Remote {
		dev.UpstreamProtocol = "https"
	}
	if validate.OptionalProperty(d, "dev", "upstream_protocol", raw["upstream_protocol"], validate.TypeString, "http", "https") &&
		raw["upstream_protocol"] != nil {
		dev.UpstreamProtocol = raw["upstream_protocol"].(string)
	}
	if args.UpstreamProtocol != "" {
		dev.UpstreamProtocol = args.UpstreamProtocol
	}

	if validate.OptionalProperty(d, "dev", "host", raw["host"], validate.TypeString) && raw["host"] != nil {
		dev.Host = raw["host"].(string)
	}
	return dev
}

const maxPort = 65535

func optionalPort(d *diagnostics.Diagnostics, key string, value any) *int {
	if value == nil || !validate.OptionalProperty(d, "dev", key, value, validate.TypeNumber) {
		return nil
	}
	n, _ := validate.AsNumber(value)
	if n != math.Trunc(n) || n < 0 || n > maxPort {
		d.Errorf("Expected \"dev.%s\" to be an integer between 0 and %d but got %s.", key, maxPort, validate.Stringify(value))
		return nil
	}
	port := int(n)
	return &port
}

func normalizeAlias(d *diagnostics.Diagnostics, top RawEnvironment) map[string]string {
	value, ok := field.Lookup(top, "alias")
	if !ok {
		return nil
	}
	obj, ok := validate.AsObject(value)
	if !ok {
		d.Errorf("Expected alias to be an object, but got %s", validate.TypeOf(value))
		return nil
	}
	alias := make(map[string]string, len(obj))
	valid := true
	for _, k := range validate.Keys(obj) {
		s, ok := obj[k].(string)
		if !ok {
			d.Errorf("Expected alias[%q] to be a string, but got %s", k, validate.TypeOf(obj[k]))
			valid = false
			continue
		}
		alias[k] = s
	}
	if !valid {
		return nil
	}
	return alias
}

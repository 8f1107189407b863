package config

import (
	"encoding/json"
	"reflect"
	"slices"
	"strings"

	"workercfg/internal/diagnostics"
	"workercfg/internal/validate"
)

// pagesEnvironments are the only named environments a Pages project has
var pagesEnvironments = []string{"preview", "production"}

// pagesSupportedFields may differ from their defaults in a Pages project
var pagesSupportedFields = []string{
	"pages_build_output_dir", "name", "compatibility_date", "compatibility_flags", "send_metrics",
	"no_bundle", "limits", "placement", "vars", "durable_objects", "kv_namespaces", "queues",
	"r2_buckets", "d1_databases", "vectorize", "hyperdrive", "services", "analytics_engine_datasets",
	"ai", "version_metadata", "dev", "mtls_certificates", "browser", "upload_source_maps", "legacy_env",
}

// ValidatePagesConfig checks a resolved configuration against the subset
// of fields a Pages project supports. projectName, when empty, defaults to
// the configured name. cfg is never modified.
func ValidatePagesConfig(cfg *Config, envNames []string, projectName string) *diagnostics.Diagnostics {
	d := diagnostics.New("Running configuration file validation for Pages:")

	if cfg.Main != "" && cfg.PagesBuildOutputDir != "" {
		d.Errorf("Configuration file cannot contain both both \"main\" and \"pages_build_output_dir\" configuration keys.\n" +
			"Please use \"main\" if you are deploying a Worker, or \"pages_build_output_dir\" if you are deploying a Pages project.")
	}

	if projectName == "" {
		projectName = cfg.Name
	}
	if projectName == "" {
		d.Errorf("Missing top-level field \"name\" in configuration file.\n" +
			"Pages requires the name of your project to be configured at the top-level of your Wrangler configuration file. " +
			"This is because, in Pages, environments target the same project.")
	}

	var unsupported []string
	for _, name := range envNames {
		if !slices.Contains(pagesEnvironments, name) {
			unsupported = append(unsupported, name)
		}
	}
	if len(unsupported) > 0 {
		d.Errorf("Configuration file contains the following environment names that are not supported by Pages projects:\n"+
			"%q.\nThe supported named-environments for Pages are \"preview\" and \"production\".", strings.Join(unsupported, ","))
	}

	validateUnsupportedPagesFields(d, cfg)

	environments := []*Environment{&cfg.Environment}
	for _, name := range sortedKeys(cfg.Environments) {
		environments = append(environments, cfg.Environments[name])
	}
	for _, env := range environments {
		if !durableObjectsHaveScriptNames(env) {
			d.Errorf("Durable Objects bindings should specify a \"script_name\".\n" +
				"Pages requires Durable Object bindings to specify the name of the Worker where the Durable Object is defined.")
			break
		}
	}
	return d
}

func validateUnsupportedPagesFields(d *diagnostics.Diagnostics, cfg *Config) {
	defaults, _ := NormalizeAndValidateConfig(RawConfig{}, cfg.ConfigPath, Args{})
	actual, err1 := asDocument(cfg)
	expected, err2 := asDocument(defaults)
	if err1 != nil || err2 != nil {
		d.Errorf("Could not compare the configuration with its defaults.")
		return
	}

	for _, key := range validate.Keys(actual) {
		if slices.Contains(pagesSupportedFields, key) {
			continue
		}
		if !reflect.DeepEqual(actual[key], expected[key]) {
			d.Errorf("Configuration file for Pages projects does not support %q", key)
		}
	}
	if len(cfg.Queues.Consumers) > 0 {
		d.Errorf("Configuration file for Pages projects does not support %q", "queues.consumers")
	}
}

func durableObjectsHaveScriptNames(env *Environment) bool {
	for _, b := range env.DurableObjects.Bindings {
		if b.ScriptName == "" {
			return false
		}
	}
	return true
}

// asDocument converts v to its generic JSON form
func asDocument(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

package config

import (
	"fmt"
	"sort"

	"workercfg/internal/validate"
)

// RawEnvironment is one loosely typed overlay as produced by a parser.
// A key holding nil is treated as absent.
type RawEnvironment = map[string]any

// RawConfig is an untrusted configuration document split into its
// top-level section and its named environment overlays
type RawConfig struct {
	Top RawEnvironment
	Env map[string]RawEnvironment
}

// FromDocument splits a parsed document into its top level and its "env"
// table. It fails when "env" or one of its entries is not a table.
func FromDocument(doc map[string]any) (RawConfig, error) {
	raw := RawConfig{Top: make(RawEnvironment, len(doc))}
	for k, v := range doc {
		if k != "env" {
			raw.Top[k] = v
		}
	}

	envValue, ok := doc["env"]
	if !ok || envValue == nil {
		return raw, nil
	}
	envs, ok := validate.AsObject(envValue)
	if !ok {
		return RawConfig{}, fmt.Errorf("\"env\" must be a table but got %s", validate.TypeOf(envValue))
	}
	raw.Env = make(map[string]RawEnvironment, len(envs))
	for name, v := range envs {
		if v == nil {
			raw.Env[name] = RawEnvironment{}
			continue
		}
		env, ok := validate.AsObject(v)
		if !ok {
			return RawConfig{}, fmt.Errorf("\"env.%s\" must be a table but got %s", name, validate.TypeOf(v))
		}
		raw.Env[name] = env
	}
	return raw, nil
}

// EnvNames returns the declared environment names in lexical order
func (r RawConfig) EnvNames() []string {
	names := make([]string, 0, len(r.Env))
	for name := range r.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsPagesConfig reports whether the document describes a Pages project
// rather than a Worker
func IsPagesConfig(raw RawConfig) bool {
	v, ok := raw.Top["pages_build_output_dir"]
	return ok && v != nil
}

// ToRaw re-serialises the resolved configuration as a raw document with no
// environments, suitable for another normalisation pass
func (c *Config) ToRaw() (RawConfig, error) {
	doc, err := asDocument(c)
	if err != nil {
		return RawConfig{}, fmt.Errorf("failed to convert config: %w", err)
	}
	return FromDocument(doc)
}

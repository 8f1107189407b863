package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"workercfg/internal/config"
)

// ConfigArtifact is the resolved configuration of one environment, flattened
// to dotted paths with JSON-encoded leaf values
type ConfigArtifact struct {
	ConfigVersion string            `json:"configVersion"` // sha256:hex
	Env           string            `json:"env"`
	Values        map[string]string `json:"values"`
}

// GenerateArtifact flattens the active environment of cfg
func GenerateArtifact(cfg *config.Config) (ConfigArtifact, error) {
	return generate(cfg, cfg.EnvName)
}

// GenerateEnvironmentArtifact flattens a named environment of cfg. The
// top-level-only fields are taken from cfg.
func GenerateEnvironmentArtifact(cfg *config.Config, envName string) (ConfigArtifact, error) {
	if envName == "" {
		return generate(cfg, "")
	}
	env, ok := cfg.Environments[envName]
	if !ok {
		return ConfigArtifact{}, fmt.Errorf("unknown environment %q", envName)
	}
	view := *cfg
	view.Environment = *env
	view.EnvName = envName
	return generate(&view, envName)
}

func generate(v any, envName string) (ConfigArtifact, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ConfigArtifact{}, fmt.Errorf("failed to encode config: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return ConfigArtifact{}, fmt.Errorf("failed to decode config: %w", err)
	}

	values := Flatten(doc)
	return ConfigArtifact{
		ConfigVersion: ComputeConfigVersion(values),
		Env:           envName,
		Values:        values,
	}, nil
}

// Flatten maps every leaf of doc to its dotted path, e.g. "dev.port" or
// "kv_namespaces[0].id". Strings are kept as is; other leaves are JSON.
// Empty objects and arrays are leaves too so that they are not lost.
func Flatten(doc map[string]any) map[string]string {
	values := make(map[string]string)
	flatten(values, "", doc)
	return values
}

func flatten(out map[string]string, path string, v any) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 && path != "" {
			out[path] = "{}"
			return
		}
		for k, item := range t {
			key := k
			if path != "" {
				key = path + "." + k
			}
			flatten(out, key, item)
		}
	case []any:
		if len(t) == 0 {
			out[path] = "[]"
			return
		}
		for i, item := range t {
			flatten(out, path+"["+strconv.Itoa(i)+"]", item)
		}
	case string:
		out[path] = t
	default:
		data, _ := json.Marshal(t)
		out[path] = string(data)
	}
}

// ComputeConfigVersion computes the SHA-256 hash of the values in canonical form.
// Returns the hash prefixed with "sha256:".
func ComputeConfigVersion(values map[string]string) string {
	canonical := canonicalValuesJSON(values)
	hash := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// ToCanonicalJSON serializes the artifact to canonical JSON (sorted keys, no whitespace).
func (a ConfigArtifact) ToCanonicalJSON() []byte {
	versionJSON, _ := json.Marshal(a.ConfigVersion)
	envJSON, _ := json.Marshal(a.Env)

	result := []byte(`{"configVersion":`)
	result = append(result, versionJSON...)
	result = append(result, `,"env":`...)
	result = append(result, envJSON...)
	result = append(result, `,"values":`...)
	result = append(result, canonicalValuesJSON(a.Values)...)
	result = append(result, '}')
	return result
}

// ToJSON serializes the artifact to pretty-printed JSON for human readability.
func (a ConfigArtifact) ToJSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// canonicalValuesJSON produces canonical JSON for just the values map.
// Keys are sorted alphabetically, no whitespace.
func canonicalValuesJSON(values map[string]string) []byte {
	if len(values) == 0 {
		return []byte("{}")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}
		keyJSON, _ := json.Marshal(k)
		valueJSON, _ := json.Marshal(values[k])
		result = append(result, keyJSON...)
		result = append(result, ':')
		result = append(result, valueJSON...)
	}
	result = append(result, '}')
	return result
}

// Package loader reads configuration files from disk and parses them into
// raw documents for the normaliser.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"workercfg/internal/config"
)

// Format is a configuration file syntax
type Format string

const (
	FormatTOML  Format = "toml"
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
	FormatYAML  Format = "yaml"
)

var (
	// ErrUnsupportedFormat is returned for file extensions with no parser
	ErrUnsupportedFormat = errors.New("unsupported configuration format")
	// ErrConfigNotFound is returned when discovery finds no configuration file
	ErrConfigNotFound = errors.New("no configuration file found")
)

// candidates are the file names discovery looks for, in order of preference
var candidates = []string{"wrangler.json", "wrangler.jsonc", "wrangler.toml", "wrangler.yaml"}

// FormatFromPath infers the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonc":
		return FormatJSONC, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Parse decodes data into a generic document
func Parse(format Format, data []byte) (map[string]any, error) {
	doc := map[string]any{}
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
		return normalizeTOML(doc).(map[string]any), nil
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case FormatJSONC:
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
			return nil, fmt.Errorf("invalid JSONC: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return doc, nil
}

// normalizeTOML renders TOML date and time values as the strings they
// were written as
func normalizeTOML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeTOML(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeTOML(item)
		}
		return t
	case toml.LocalDate:
		return t.String()
	case toml.LocalDateTime:
		return t.String()
	case toml.LocalTime:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return v
}

// Load reads and parses the configuration file at path
func Load(path string) (config.RawConfig, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return config.RawConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config.RawConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}
	doc, err := Parse(format, data)
	if err != nil {
		return config.RawConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	raw, err := config.FromDocument(doc)
	if err != nil {
		return config.RawConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}

// Find looks for a configuration file in dir and then in each parent
// directory
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	for {
		for _, name := range candidates {
			path := filepath.Join(abs, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("%w in %s or its parents", ErrConfigNotFound, dir)
		}
		abs = parent
	}
}

// Marshal encodes v in the given format using its JSON field names.
// JSONC is written as plain JSON.
func Marshal(format Format, v any) ([]byte, error) {
	switch format {
	case FormatJSON, FormatJSONC:
		return json.MarshalIndent(v, "", "  ")
	case FormatTOML, FormatYAML:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	doc = dropNulls(doc)
	if format == FormatYAML {
		return yaml.Marshal(doc)
	}
	return toml.Marshal(doc)
}

// dropNulls removes null object members, which TOML cannot represent
func dropNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			if item == nil {
				delete(t, k)
				continue
			}
			t[k] = dropNulls(item)
		}
	case []any:
		for i, item := range t {
			t[i] = dropNulls(item)
		}
	}
	return v
}

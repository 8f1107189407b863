package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"workercfg/internal/diagnostics"
)

const defaultConfigFile = "wrangler.toml"

type migrationSnippet struct {
	Tag        string   `toml:"tag" json:"tag" comment:"Should be unique for each entry"`
	NewClasses []string `toml:"new_classes" json:"new_classes"`
}

type migrationsSnippet struct {
	Migrations []migrationSnippet `toml:"migrations" json:"migrations"`
}

// renderMigrationSnippet renders the [[migrations]] entry that declares classes,
// in the format of the configuration file
func renderMigrationSnippet(configPath string, classes []string) (string, error) {
	doc := migrationsSnippet{Migrations: []migrationSnippet{{Tag: "v1", NewClasses: classes}}}

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".json", ".jsonc":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to render migrations: %w", err)
		}
		return string(data), nil
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render migrations: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// warnIfDurableObjectsHaveNoMigrations warns when the worker exports
// Durable Object classes but declares no migrations for them
func warnIfDurableObjectsHaveNoMigrations(d *diagnostics.Diagnostics, env *Environment, configPath string) {
	if len(env.Migrations) > 0 {
		return
	}
	var classes []string
	for _, b := range env.DurableObjects.Bindings {
		if b.ScriptName == "" {
			classes = append(classes, b.ClassName)
		}
	}
	if len(classes) == 0 {
		return
	}

	file := defaultConfigFile
	if configPath != "" {
		file = filepath.Base(configPath)
	}
	snippet, err := renderMigrationSnippet(configPath, classes)
	if err != nil {
		d.Errorf("%s", err)
		return
	}
	indented := "  " + strings.ReplaceAll(snippet, "\n", "\n  ")

	d.Warnf("In %s, you have configured [durable_objects] exported by this Worker (%s), but no [migrations] for them. "+
		"This may not work as expected until you add a [migrations] section to your %s. "+
		"Add this configuration to your %s:\n\n  ```\n%s\n  ```\n\n"+
		"Refer to https://developers.cloudflare.com/durable-objects/reference/durable-objects-migrations/ for more details.",
		file, strings.Join(classes, ", "), file, file, indented)
}

package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workercfg/internal/diagnostics"
)

const pagesScope = "Running configuration file validation for Pages:"

func pagesConfig(t *testing.T, top map[string]any, envs map[string]map[string]any) *Config {
	t.Helper()
	base := map[string]any{"pages_build_output_dir": "dist", "name": "site"}
	for k, v := range top {
		base[k] = v
	}
	cfg, d := normalize(t, base, envs, Args{})
	require.False(t, d.HasErrors(), d.RenderErrors())
	return cfg
}

func TestValidatePagesConfig_Valid(t *testing.T) {
	cfg := pagesConfig(t, map[string]any{
		"compatibility_date": "2024-01-01",
		"vars":               map[string]any{"A": "1"},
		"kv_namespaces":      []any{map[string]any{"binding": "KV", "id": "abc"}},
	}, nil)

	d := ValidatePagesConfig(cfg, []string{"preview", "production"}, "")
	assert.Equal(t, pagesScope, d.Description())
	assert.False(t, d.HasErrors(), d.RenderErrors())
}

func TestValidatePagesConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		top      map[string]any
		envNames []string
		project  string
		want     string
	}{
		{
			"main and output dir",
			map[string]any{"main": "index.js"},
			nil, "",
			`Configuration file cannot contain both both "main" and "pages_build_output_dir" configuration keys.`,
		},
		{
			"missing name",
			map[string]any{"name": nil},
			nil, "",
			`Missing top-level field "name" in configuration file.`,
		},
		{
			"unsupported environments",
			nil,
			[]string{"staging", "preview", "dev"}, "",
			"Configuration file contains the following environment names that are not supported by Pages projects:\n\"staging,dev\".",
		},
		{
			"unsupported field",
			map[string]any{"minify": true},
			nil, "",
			`Configuration file for Pages projects does not support "minify"`,
		},
		{
			"triggers",
			map[string]any{"triggers": map[string]any{"crons": []any{"* * * * *"}}},
			nil, "",
			`Configuration file for Pages projects does not support "triggers"`,
		},
		{
			"queue consumers",
			map[string]any{"queues": map[string]any{"consumers": []any{map[string]any{"queue": "q"}}}},
			nil, "",
			`Configuration file for Pages projects does not support "queues.consumers"`,
		},
		{
			"durable object without script",
			map[string]any{
				"durable_objects": map[string]any{"bindings": []any{map[string]any{"name": "D", "class_name": "D"}}},
				"migrations":      []any{map[string]any{"tag": "v1", "new_classes": []any{"D"}}},
			},
			nil, "",
			`Durable Objects bindings should specify a "script_name".`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := map[string]any{"pages_build_output_dir": "dist", "name": "site"}
			for k, v := range tt.top {
				base[k] = v
			}
			cfg, _ := normalize(t, base, nil, Args{})

			d := ValidatePagesConfig(cfg, tt.envNames, tt.project)
			assert.True(t, containsText(texts(d, diagnostics.Error, pagesScope), tt.want), d.RenderErrors())
		})
	}
}

func TestValidatePagesConfig_ProjectNameArgument(t *testing.T) {
	cfg, _ := normalize(t, map[string]any{"pages_build_output_dir": "dist"}, nil, Args{})

	assert.True(t, ValidatePagesConfig(cfg, nil, "").HasErrors())
	assert.False(t, ValidatePagesConfig(cfg, nil, "site").HasErrors())
}

func TestValidatePagesConfig_ChecksEveryEnvironment(t *testing.T) {
	envs := map[string]map[string]any{"preview": {
		"durable_objects": map[string]any{"bindings": []any{map[string]any{"name": "D", "class_name": "D"}}},
		"migrations":      []any{map[string]any{"tag": "v1", "new_classes": []any{"D"}}},
	}}
	cfg := pagesConfig(t, nil, envs)

	d := ValidatePagesConfig(cfg, []string{"preview"}, "")
	assert.True(t, containsText(texts(d, diagnostics.Error, pagesScope), `Durable Objects bindings should specify a "script_name".`))
}

func TestValidatePagesConfig_DoesNotMutate(t *testing.T) {
	cfg := pagesConfig(t, map[string]any{"main": "index.js", "minify": true}, nil)
	before, err := asDocument(cfg)
	require.NoError(t, err)

	ValidatePagesConfig(cfg, []string{"staging"}, "")

	after, err := asDocument(cfg)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("config changed (-before +after):\n%s", diff)
	}
}

package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"wrangler.toml", FormatTOML},
		{"dir/wrangler.json", FormatJSON},
		{"wrangler.jsonc", FormatJSONC},
		{"wrangler.yaml", FormatYAML},
		{"WRANGLER.YML", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatFromPath("wrangler.ini")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestParse_AllFormatsAgree(t *testing.T) {
	inputs := map[Format]string{
		FormatTOML: `
name = "worker"
compatibility_date = "2024-01-01"

[vars]
A = "1"

[env.staging]
workers_dev = true
`,
		FormatJSON: `{"name": "worker", "compatibility_date": "2024-01-01", "vars": {"A": "1"},
			"env": {"staging": {"workers_dev": true}}}`,
		FormatJSONC: `{
			// the worker
			"name": "worker",
			"compatibility_date": "2024-01-01",
			"vars": {"A": "1",},
			"env": {"staging": {"workers_dev": true}},
		}`,
		FormatYAML: `
name: worker
compatibility_date: "2024-01-01"
vars:
  A: "1"
env:
  staging:
    workers_dev: true
`,
	}

	want := map[string]any{
		"name":               "worker",
		"compatibility_date": "2024-01-01",
		"vars":               map[string]any{"A": "1"},
		"env":                map[string]any{"staging": map[string]any{"workers_dev": true}},
	}
	for format, input := range inputs {
		t.Run(string(format), func(t *testing.T) {
			doc, err := Parse(format, []byte(input))
			require.NoError(t, err)
			assert.Equal(t, want, doc)
		})
	}
}

func TestParse_TOMLDatesBecomeStrings(t *testing.T) {
	doc, err := Parse(FormatTOML, []byte("compatibility_date = 2024-01-01\n"))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", doc["compatibility_date"])
}

func TestParse_Invalid(t *testing.T) {
	for _, format := range []Format{FormatTOML, FormatJSON, FormatJSONC, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			_, err := Parse(format, []byte("name = = [\n"))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrangler.toml")
	require.NoError(t, os.WriteFile(path, []byte("name = \"worker\"\n[env.staging]\nname = \"w\"\n"), 0644))

	raw, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "worker", raw.Top["name"])
	assert.Equal(t, []string{"staging"}, raw.EnvNames())
}

func TestLoad_EnvNotATable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrangler.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"env": 1}`), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, `"env" must be a table`)
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "wrangler.toml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "wrangler.json"), []byte("{}"), 0644))

	got, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "wrangler.json"), got, "json is preferred over toml")
}

func TestFind_NotFound(t *testing.T) {
	// a temp dir's parents may hold a stray config on developer machines,
	// so only assert the error type when discovery fails
	_, err := Find(t.TempDir())
	if err != nil {
		assert.True(t, errors.Is(err, ErrConfigNotFound))
	}
}

func TestMarshal_UsesJSONNames(t *testing.T) {
	type doc struct {
		CompatibilityDate string  `json:"compatibility_date"`
		Missing           *string `json:"missing"`
	}
	v := doc{CompatibilityDate: "2024-01-01"}

	for _, format := range []Format{FormatTOML, FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			out, err := Marshal(format, v)
			require.NoError(t, err)
			assert.Contains(t, string(out), "compatibility_date")
			assert.Contains(t, string(out), "2024-01-01")
		})
	}

	_, err := Marshal("ini", v)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

package field

import (
	"strings"
	"testing"

	"workercfg/internal/diagnostics"
	"workercfg/internal/validate"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var retries = Descriptor[float64]{Name: "retries", Validate: validate.IsNumber, Default: 3}

func TestInheritable_MalformedTopLevelUsesDefault(t *testing.T) {
	d := diagnostics.New("root")
	got := Inheritable(d, nil, map[string]any{"retries": "5"}, retries, nil, nil)

	if got != 3 {
		t.Errorf("resolved = %v, want default 3", got)
	}
	msgs := d.Messages(diagnostics.Error)
	if len(msgs) != 1 {
		t.Fatalf("got %d errors, want 1", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, `"retries"`) {
		t.Errorf("error %q should cite retries", msgs[0].Text)
	}
}

func TestInheritable_Tiers(t *testing.T) {
	top := 7.0
	tests := []struct {
		name      string
		inherited *float64
		raw       map[string]any
		want      float64
		wantErrs  int
	}{
		{"default", nil, map[string]any{}, 3, 0},
		{"top level", nil, map[string]any{"retries": int64(7)}, 7, 0},
		{"inherited", &top, map[string]any{}, 7, 0},
		{"override", &top, map[string]any{"retries": 1.5}, 1.5, 0},
		{"bad override falls back", &top, map[string]any{"retries": true}, 7, 1},
		{"null is absent", &top, map[string]any{"retries": nil}, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diagnostics.New("env")
			got := Inheritable(d, tt.inherited, tt.raw, retries, nil, nil)
			if got != tt.want {
				t.Errorf("resolved = %v, want %v", got, tt.want)
			}
			if n := len(d.Messages(diagnostics.Error)); n != tt.wantErrs {
				t.Errorf("got %d errors, want %d", n, tt.wantErrs)
			}
		})
	}
}

func TestInheritable_TransformOnlyAppliesToInherited(t *testing.T) {
	name := Descriptor[string]{Name: "name", Validate: validate.IsValidName}
	top := "svc"
	d := diagnostics.New("env")

	if got := Inheritable(d, &top, map[string]any{}, name, AppendEnvName("staging"), nil); got != "svc-staging" {
		t.Errorf("inherited name = %q, want svc-staging", got)
	}
	if got := Inheritable(d, &top, map[string]any{"name": "custom"}, name, AppendEnvName("staging"), nil); got != "custom" {
		t.Errorf("explicit name = %q, want custom", got)
	}
	empty := ""
	if got := Inheritable(d, &empty, map[string]any{}, name, AppendEnvName("staging"), nil); got != "" {
		t.Errorf("empty inherited name = %q, want empty", got)
	}
}

func TestInheritable_MalformedOverrideSkipsTransform(t *testing.T) {
	name := Descriptor[string]{Name: "name", Validate: validate.IsValidName}
	top := "svc"
	d := diagnostics.New("env")

	got := Inheritable(d, &top, map[string]any{"name": "Bad Name!"}, name, AppendEnvName("staging"), nil)
	if got != "svc" {
		t.Errorf("resolved = %q, want the top-level value svc", got)
	}
	if n := len(d.Messages(diagnostics.Error)); n != 1 {
		t.Errorf("got %d errors, want 1", n)
	}
}

func TestNotInheritable_WarnsAndUsesDefault(t *testing.T) {
	name := Descriptor[string]{Name: "name", Validate: validate.IsString, Default: ""}
	rawTop := map[string]any{"name": "svc"}

	d := diagnostics.New(`"env.staging" environment configuration`)
	got := NotInheritable(d, rawTop, map[string]any{"name": nil}, "staging", name, nil)

	if got != "" {
		t.Errorf("resolved = %q, want default", got)
	}
	warnings := d.Messages(diagnostics.Warning)
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	want := `"name" exists at the top level, but not on "env.staging".`
	if !strings.HasPrefix(warnings[0].Text, want) {
		t.Errorf("warning = %q", warnings[0].Text)
	}
	if d.HasErrors() {
		t.Error("non-inheritance should not error")
	}
}

func TestNotInheritable_OwnValue(t *testing.T) {
	vars := Descriptor[map[string]any]{Name: "vars", Default: map[string]any{}}
	d := diagnostics.New("env")
	got := NotInheritable(d, map[string]any{"vars": map[string]any{"A": "1"}},
		map[string]any{"vars": map[string]any{"A": "2"}}, "prod", vars, nil)
	if got["A"] != "2" {
		t.Errorf("vars = %v", got)
	}
	if d.HasWarnings() || d.HasErrors() {
		t.Error("an environment with its own value should be quiet")
	}
}

func TestNotAllowedInServiceEnvironment(t *testing.T) {
	d := diagnostics.New("env")
	got := NotAllowedInServiceEnvironment(d, "svc", map[string]any{"name": "other"}, "name")
	if got != "svc" {
		t.Errorf("resolved = %q, want top-level value", got)
	}
	want := "The \"name\" field is not allowed in named service environments.\nPlease remove the field from this environment."
	if msgs := d.Messages(diagnostics.Error); len(msgs) != 1 || msgs[0].Text != want {
		t.Errorf("messages = %v", msgs)
	}
}

func TestDeprecated(t *testing.T) {
	raw := map[string]any{
		"type":  "webpack",
		"build": map[string]any{"upload": map[string]any{"format": "modules"}},
	}

	d := diagnostics.New("root")
	if !Deprecated(d, raw, "type", "Use a custom build.", true, "Ignored", diagnostics.Warning) {
		t.Error("present removable field should report removal")
	}
	if Deprecated(d, raw, "build.upload.format", "Inferred.", false, "", diagnostics.Warning) {
		t.Error("non-removable field should not report removal")
	}
	if Deprecated(d, raw, "build.upload.main", "gone", true, "", diagnostics.Error) {
		t.Error("absent field should not report")
	}

	warnings := d.Messages(diagnostics.Warning)
	if len(warnings) != 2 {
		t.Fatalf("got %d warnings, want 2", len(warnings))
	}
	if warnings[0].Text != "Ignored: \"type\":\nUse a custom build." {
		t.Errorf("warning[0] = %q", warnings[0].Text)
	}
	if warnings[1].Text != "Deprecation: \"build.upload.format\":\nInferred." {
		t.Errorf("warning[1] = %q", warnings[1].Text)
	}
	if d.HasErrors() {
		t.Error("absent error-severity field should not record")
	}
}

func TestDeprecated_NullIsAbsent(t *testing.T) {
	raw := map[string]any{"zone_id": nil, "type": nil}

	d := diagnostics.New("root")
	if !Deprecated(d, raw, "type", "Use a custom build.", true, "Ignored", diagnostics.Warning) {
		t.Error("a null removable field should still be removed")
	}
	if Deprecated(d, raw, "zone_id", "Not used.", false, "", diagnostics.Warning) {
		t.Error("a null kept field should not report removal")
	}
	if Experimental(d, map[string]any{"unsafe": nil}, "unsafe") {
		t.Error("a null experimental field should not be reported")
	}
	if d.HasWarnings() || d.HasErrors() {
		t.Errorf("null fields should be quiet, got %v", d.Messages(diagnostics.Warning))
	}
}

func TestExperimental(t *testing.T) {
	d := diagnostics.New("root")
	if !Experimental(d, map[string]any{"unsafe": map[string]any{}}, "unsafe") {
		t.Error("present field should be reported")
	}
	if Experimental(d, map[string]any{}, "unsafe") {
		t.Error("absent field should not be reported")
	}
	want := `"unsafe" fields are experimental and may change or break at any time.`
	if msgs := d.Messages(diagnostics.Warning); len(msgs) != 1 || msgs[0].Text != want {
		t.Errorf("messages = %v", msgs)
	}
}

func TestUnwindAndWithout(t *testing.T) {
	raw := map[string]any{"build": map[string]any{"upload": map[string]any{"format": "x", "dir": "d"}}}

	container, key, ok := Unwind(raw, "build.upload.format")
	if !ok || key != "format" || container["format"] != "x" {
		t.Fatalf("Unwind = %v %q %v", container, key, ok)
	}
	if _, _, ok := Unwind(raw, "site.bucket"); ok {
		t.Error("missing intermediate should not unwind")
	}

	stripped := Without(raw, "build.upload.format")
	upload := stripped["build"].(map[string]any)["upload"].(map[string]any)
	if _, still := upload["format"]; still {
		t.Error("format should be removed from the copy")
	}
	if upload["dir"] != "d" {
		t.Error("siblings should survive")
	}
	original := raw["build"].(map[string]any)["upload"].(map[string]any)
	if _, ok := original["format"]; !ok {
		t.Error("original must not be mutated")
	}
}

// Feature: workercfg, Property: Precedence and fallback
// A valid override always wins. An invalid override resolves to the
// inherited value with exactly one error.
func TestInheritable_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("valid override wins", prop.ForAll(
		func(top, override float64) bool {
			d := diagnostics.New("env")
			got := Inheritable(d, &top, map[string]any{"retries": override}, retries, nil, nil)
			return got == override && !d.HasErrors()
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("invalid override falls back with one error", prop.ForAll(
		func(top float64, bad string) bool {
			d := diagnostics.New("env")
			got := Inheritable(d, &top, map[string]any{"retries": bad}, retries, nil, nil)
			return got == top && len(d.Messages(diagnostics.Error)) == 1
		},
		gen.Float64Range(-1e6, 1e6),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

package validate

import (
	"strings"
	"testing"

	"workercfg/internal/diagnostics"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTypeOf(t *testing.T) {
	tests := []struct {
		value any
		want  TypeTag
	}{
		{nil, TypeNull},
		{"x", TypeString},
		{true, TypeBoolean},
		{int64(5), TypeNumber},
		{5, TypeNumber},
		{5.5, TypeNumber},
		{map[string]any{}, TypeObject},
		{[]any{1}, TypeArray},
		{[]string{"a"}, TypeArray},
	}

	for _, tt := range tests {
		if got := TypeOf(tt.value); got != tt.want {
			t.Errorf("TypeOf(%#v) = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func TestScalarValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      ValidatorFn
		value   any
		wantOK  bool
		wantMsg string
	}{
		{"string ok", IsString, "hello", true, ""},
		{"string absent", IsString, nil, true, ""},
		{"string bad", IsString, int64(5), false, `Expected "f" to be of type string but got 5.`},
		{"boolean bad", IsBoolean, "true", false, `Expected "f" to be of type boolean but got "true".`},
		{"number ok", IsNumber, 3.5, true, ""},
		{"number bad", IsNumber, "5", false, `Expected "f" to be of type number but got "5".`},
		{"non-empty bad", IsNonEmptyString, "", false, `Expected "f" to be a non-empty string but got "".`},
		{"string array ok", IsStringArray, []any{"a", "b"}, true, ""},
		{"string array bad", IsStringArray, []any{"a", 1}, false, `Expected "f" to be of type string array but got ["a",1].`},
		{"valid name ok", IsValidName, "my-worker_1", true, ""},
		{"valid name empty", IsValidName, "", true, ""},
		{"valid name upper", IsValidName, "MyWorker", false,
			`Expected "f" to be of type string, alphanumeric and lowercase with dashes only but got "MyWorker".`},
		{"date ok", IsValidDate, "2024-01-31", true, ""},
		{"date bad", IsValidDate, "31/01/2024", false,
			`"f" field should be a valid ISO-8601 date (YYYY-MM-DD), but got "31/01/2024".`},
		{"date en-dash", IsValidDate, "2024–01–31", false,
			`"f" field should use ISO-8601 accepted hyphens (-) rather than en-dashes (–) or em-dashes (—).`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diagnostics.New("test")
			ok := tt.fn(d, "f", tt.value, nil)
			if ok != tt.wantOK {
				t.Fatalf("returned %v, want %v", ok, tt.wantOK)
			}
			msgs := d.Messages(diagnostics.Error)
			if tt.wantOK {
				if len(msgs) != 0 {
					t.Errorf("unexpected errors: %v", msgs)
				}
				return
			}
			if len(msgs) != 1 {
				t.Fatalf("got %d errors, want exactly 1", len(msgs))
			}
			if msgs[0].Text != tt.wantMsg {
				t.Errorf("message = %q\nwant      %q", msgs[0].Text, tt.wantMsg)
			}
		})
	}
}

func TestIsOneOf(t *testing.T) {
	d := diagnostics.New("test")
	v := IsOneOf("bundled", "unbound")

	if !v(d, "usage_model", "bundled", nil) {
		t.Error("bundled should be accepted")
	}
	if v(d, "usage_model", "standard", nil) {
		t.Error("standard should be rejected")
	}
	want := `Expected "usage_model" field to be one of ["bundled","unbound"] but got "standard".`
	if got := d.RenderErrors(); !strings.Contains(got, want) {
		t.Errorf("RenderErrors() = %q, want it to contain %q", got, want)
	}

	// numbers compare by value across decoder widths
	if !IsOneOf(1, 2)(diagnostics.New("n"), "n", int64(2), nil) {
		t.Error("int64(2) should equal 2")
	}
}

func TestIsObjectWith(t *testing.T) {
	d := diagnostics.New("test")
	v := IsObjectWith("crons")

	if !v(d, "triggers", map[string]any{"crons": []any{}}, nil) {
		t.Error("object with crons should pass")
	}
	if d.HasErrors() || d.HasWarnings() {
		t.Error("clean object should produce no diagnostics")
	}

	if v(d, "triggers", []any{}, nil) {
		t.Error("array should be rejected")
	}
	if v(d, "triggers", map[string]any{}, nil) {
		t.Error("object missing crons should be rejected")
	}
	if len(d.Messages(diagnostics.Error)) != 2 {
		t.Errorf("want 2 errors, got %v", d.Messages(diagnostics.Error))
	}

	d = diagnostics.New("extra")
	if !v(d, "triggers", map[string]any{"crons": []any{}, "extra": 1}, nil) {
		t.Error("extra properties are tolerated")
	}
	if !d.HasWarnings() || d.HasErrors() {
		t.Error("extra property should warn, not error")
	}
}

func TestAll_ShortCircuits(t *testing.T) {
	d := diagnostics.New("test")
	called := false
	second := func(d *diagnostics.Diagnostics, field string, value any, parent any) bool {
		called = true
		d.Errorf("second")
		return false
	}

	if All(IsString, second)(d, "f", 5, nil) {
		t.Fatal("All should fail")
	}
	if called {
		t.Error("second validator should not run after the first failure")
	}
	if n := len(d.Messages(diagnostics.Error)); n != 1 {
		t.Errorf("got %d errors, want 1", n)
	}
}

func TestIsMutuallyExclusiveWith(t *testing.T) {
	container := map[string]any{"route": "a.com/*", "routes": []any{"b.com/*"}}

	d := diagnostics.New("test")
	if IsMutuallyExclusiveWith(container, "routes")(d, "route", container["route"], nil) {
		t.Fatal("route and routes together should be rejected")
	}
	want := `Expected exactly one of the following fields ["route","routes"].`
	if msgs := d.Messages(diagnostics.Error); len(msgs) != 1 || msgs[0].Text != want {
		t.Errorf("messages = %v", msgs)
	}

	d = diagnostics.New("test")
	delete(container, "routes")
	if !IsMutuallyExclusiveWith(container, "routes")(d, "route", container["route"], nil) {
		t.Error("route alone should pass")
	}
}

func TestRequiredProperty(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		choices []any
		wantMsg string
	}{
		{"present", "MY_KV", nil, ""},
		{"missing", nil, nil, `"kv_namespaces[0].binding" is a required field.`},
		{"wrong type", 5, nil, `Expected "kv_namespaces[0].binding" to be of type string but got 5.`},
		{"bad choice", "x", []any{"a", "b"}, `Expected "kv_namespaces[0].binding" field to be one of ["a","b"] but got "x".`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diagnostics.New("test")
			ok := RequiredProperty(d, "kv_namespaces[0]", "binding", tt.value, TypeString, tt.choices...)
			if ok != (tt.wantMsg == "") {
				t.Fatalf("returned %v", ok)
			}
			msgs := d.Messages(diagnostics.Error)
			if tt.wantMsg == "" {
				if len(msgs) != 0 {
					t.Errorf("unexpected errors: %v", msgs)
				}
				return
			}
			if len(msgs) != 1 || msgs[0].Text != tt.wantMsg {
				t.Errorf("messages = %v, want %q", msgs, tt.wantMsg)
			}
		})
	}
}

func TestOptionalProperty_Absent(t *testing.T) {
	d := diagnostics.New("test")
	if !OptionalProperty(d, "limits", "cpu_ms", nil, TypeNumber) {
		t.Error("absent optional property should pass")
	}
	if OptionalProperty(d, "limits", "cpu_ms", "fast", TypeNumber) {
		t.Error("wrong-typed optional property should fail")
	}
	if n := len(d.Messages(diagnostics.Error)); n != 1 {
		t.Errorf("got %d errors, want 1", n)
	}
}

func TestAtLeastOneProperty(t *testing.T) {
	d := diagnostics.New("test")
	props := []Property{{Key: "id", Type: TypeString}, {Key: "preview_id", Type: TypeString}}
	if AtLeastOneProperty(d, "kv_namespaces[0]", props) {
		t.Fatal("no properties present should fail")
	}
	want := `"kv_namespaces[0].id" or "kv_namespaces[0].preview_id" is required.`
	if msgs := d.Messages(diagnostics.Error); len(msgs) != 1 || msgs[0].Text != want {
		t.Errorf("messages = %v", msgs)
	}

	props[1].Value = "abc"
	if !AtLeastOneProperty(diagnostics.New("ok"), "kv_namespaces[0]", props) {
		t.Error("one present property should pass")
	}
}

func TestTypedArray_FirstOffenderOnly(t *testing.T) {
	d := diagnostics.New("test")
	if TypedArray(d, "crons", []any{"* * * * *", 1, false}, TypeString) {
		t.Fatal("mixed array should fail")
	}
	msgs := d.Messages(diagnostics.Error)
	if len(msgs) != 1 {
		t.Fatalf("got %d errors, want 1", len(msgs))
	}
	if want := `Expected "crons[1]" to be of type string but got 1.`; msgs[0].Text != want {
		t.Errorf("message = %q, want %q", msgs[0].Text, want)
	}

	if !OptionalTypedArray(d, "crons", nil, TypeString) {
		t.Error("absent optional array should pass")
	}
	if TypedArray(diagnostics.New("x"), "crons", "nope", TypeString) {
		t.Error("non-array should fail")
	}
}

func TestIsRequiredAndOptionalProperty(t *testing.T) {
	obj := map[string]any{"mode": "smart", "hint": 5}

	if !IsRequiredProperty(obj, "mode", TypeString, "off", "smart") {
		t.Error("mode should be a required string from the choices")
	}
	if IsRequiredProperty(obj, "mode", TypeString, "off") {
		t.Error("smart is not in the choices")
	}
	if IsRequiredProperty(obj, "missing", TypeString) {
		t.Error("missing key is not present")
	}
	if !IsOptionalProperty(obj, "missing", TypeString) {
		t.Error("missing optional key is fine")
	}
	if IsOptionalProperty(obj, "hint", TypeString) {
		t.Error("hint has the wrong type")
	}
}

// Feature: workercfg, Property: Unknown-key tolerance
// For any set of known keys and one undeclared key, AdditionalProperties
// records zero errors and exactly one warning naming that key.
func TestAdditionalProperties_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("one unknown key yields one warning", prop.ForAll(
		func(known []string, unknown string) bool {
			unknown = "x_" + unknown
			for i := range known {
				known[i] = "k_" + known[i]
			}

			d := diagnostics.New("test")
			actual := append(append([]string(nil), known...), unknown)
			AdditionalProperties(d, "top-level", actual, known)

			warnings := d.Messages(diagnostics.Warning)
			return !d.HasErrors() &&
				len(warnings) == 1 &&
				strings.Contains(warnings[0].Text, `"`+unknown+`"`)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestAdditionalProperties_Message(t *testing.T) {
	d := diagnostics.New("test")
	AdditionalProperties(d, "top-level", []string{"a", "zz", "yy"}, []string{"a"})
	want := `Unexpected fields found in top-level field: "zz","yy"`
	if msgs := d.Messages(diagnostics.Warning); len(msgs) != 1 || msgs[0].Text != want {
		t.Errorf("messages = %v, want %q", msgs, want)
	}
}

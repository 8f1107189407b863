package baseline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workercfg/internal/artifact"
)

func genValues() gopter.Gen {
	return gen.MapOf(gen.Identifier(), gen.AlphaString()).Map(func(m map[string]string) map[string]string {
		if m == nil {
			return map[string]string{}
		}
		return m
	})
}

func genBaseline() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(), // name
		gen.Identifier(), // env
		genValues(),
	).Map(func(vals []interface{}) Baseline {
		values := vals[2].(map[string]string)
		return Baseline{
			Name:   vals[0].(string),
			Config: "/work/wrangler.toml",
			Artifact: artifact.ConfigArtifact{
				ConfigVersion: artifact.ComputeConfigVersion(values),
				Env:           vals[1].(string),
				Values:        values,
			},
			Timestamp: time.Now().UTC().Truncate(time.Second),
		}
	})
}

// Feature: workercfg, Property: Baseline round trip
// Saving and loading a baseline preserves every field.
func TestBaselineRoundTrip_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("save then load preserves baseline", prop.ForAll(
		func(b Baseline) bool {
			tmpDir, err := os.MkdirTemp("", "baseline-test-*")
			if err != nil {
				return false
			}
			defer os.RemoveAll(tmpDir)

			store := NewStore(tmpDir)
			if err := store.Save(b); err != nil {
				return false
			}
			loaded, err := store.Load(b.Name)
			if err != nil {
				return false
			}
			return cmp.Diff(b, loaded) == ""
		},
		genBaseline(),
	))

	properties.TestingRun(t)
}

func TestStore_ListAndDelete(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "baselines"))

	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list, "missing directory lists nothing")

	for _, name := range []string{"release", "before/refactor"} {
		require.NoError(t, store.Save(Baseline{Name: name, Artifact: artifact.ConfigArtifact{Env: "staging", ConfigVersion: "sha256:x"}}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir, "junk.json"), []byte("{"), 0644))

	list, err = store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "before/refactor", list[0].Name)
	assert.Equal(t, "release", list[1].Name)
	assert.Equal(t, "staging", list[1].Env)
	assert.True(t, store.Exists("before/refactor"))

	require.NoError(t, store.Delete("release"))
	assert.False(t, store.Exists("release"))
	assert.True(t, errors.Is(store.Delete("release"), ErrBaselineNotFound))

	_, err = store.Load("release")
	assert.True(t, errors.Is(err, ErrBaselineNotFound))
}

func TestStore_InvalidName(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, name := range []string{"", ".", ".."} {
		assert.True(t, errors.Is(store.Save(Baseline{Name: name}), ErrInvalidName), name)
	}
	assert.False(t, store.Exists(""))
}

func TestResolveDir(t *testing.T) {
	none := func(string) string { return "" }
	assert.Equal(t, filepath.Join("/work", ".workercfg", "baselines"), ResolveDir(none, "/work/wrangler.toml"))

	set := func(key string) string {
		if key == DirEnv {
			return "/custom"
		}
		return ""
	}
	assert.Equal(t, "/custom", ResolveDir(set, "/work/wrangler.toml"))
}

package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirEnv overrides the baseline directory
const DirEnv = "WORKERCFG_BASELINE_DIR"

// ErrBaselineNotFound is returned when a baseline doesn't exist.
var ErrBaselineNotFound = errors.New("baseline not found")

// ErrInvalidName is returned for names that cannot be stored
var ErrInvalidName = errors.New("invalid baseline name")

// Store keeps baselines as one JSON file each in Dir.
type Store struct {
	Dir string
}

// NewStore creates a store with the given directory.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// ResolveDir returns $WORKERCFG_BASELINE_DIR, or .workercfg/baselines next
// to the configuration file.
func ResolveDir(getenv func(string) string, configPath string) string {
	if dir := getenv(DirEnv); dir != "" {
		return dir
	}
	return filepath.Join(filepath.Dir(configPath), ".workercfg", "baselines")
}

// Save stores b, replacing any baseline with the same name.
func (s *Store) Save(b Baseline) error {
	path, err := s.path(b.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write baseline: %w", err)
	}
	return nil
}

// Load retrieves a baseline by name.
func (s *Store) Load(name string) (Baseline, error) {
	path, err := s.path(name)
	if err != nil {
		return Baseline{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Baseline{}, fmt.Errorf("%w: %q", ErrBaselineNotFound, name)
		}
		return Baseline{}, err
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return Baseline{}, fmt.Errorf("baseline %q is corrupt: %w", name, err)
	}
	return b, nil
}

// List returns all stored baselines sorted by name. Unreadable files are
// skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, err
	}

	summaries := []Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			continue
		}
		var b Baseline
		if err := json.Unmarshal(data, &b); err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			Name:          b.Name,
			Env:           b.Artifact.Env,
			ConfigVersion: b.Artifact.ConfigVersion,
			Timestamp:     b.Timestamp,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

// Delete removes a baseline by name.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrBaselineNotFound, name)
		}
		return err
	}
	return nil
}

// Exists checks if a baseline exists.
func (s *Store) Exists(name string) bool {
	path, err := s.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	safeName := strings.ReplaceAll(name, "/", "_")
	safeName = strings.ReplaceAll(safeName, "\\", "_")
	return filepath.Join(s.Dir, safeName+".json"), nil
}

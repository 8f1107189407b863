package artifact

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteToFile writes the artifact to the specified path, creating parent directories if needed.
func (a ConfigArtifact) WriteToFile(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}

	jsonBytes, err := a.ToJSON()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

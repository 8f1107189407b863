package baseline

import (
	"time"

	"workercfg/internal/artifact"
)

// Baseline is a saved, known-good resolution of one environment that later
// resolutions are compared against.
type Baseline struct {
	Name      string                  `json:"name"`
	Config    string                  `json:"config"` // configuration file the artifact came from
	Artifact  artifact.ConfigArtifact `json:"artifact"`
	Timestamp time.Time               `json:"timestamp"`
}

// Summary is a lightweight view for listing baselines.
type Summary struct {
	Name          string    `json:"name"`
	Env           string    `json:"env"`
	ConfigVersion string    `json:"configVersion"`
	Timestamp     time.Time `json:"timestamp"`
}

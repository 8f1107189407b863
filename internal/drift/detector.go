package drift

import (
	"sort"

	"workercfg/internal/artifact"
)

// DriftType represents the type of configuration change.
type DriftType string

const (
	DriftAdded   DriftType = "added"   // Key in target but not base
	DriftRemoved DriftType = "removed" // Key in base but not target
	DriftChanged DriftType = "changed" // Key in both with different values
)

// KeyDrift represents a single key's drift.
type KeyDrift struct {
	Key         string    `json:"key"`
	Type        DriftType `json:"type"`
	BaseValue   string    `json:"baseValue,omitempty"`
	TargetValue string    `json:"targetValue,omitempty"`
}

// DriftReport contains the differences between two resolved environments.
type DriftReport struct {
	HasDrift   bool       `json:"hasDrift"`
	BaseEnv    string     `json:"baseEnv"`
	TargetEnv  string     `json:"targetEnv"`
	BaseHash   string     `json:"baseHash"`
	TargetHash string     `json:"targetHash"`
	Changes    []KeyDrift `json:"changes"`
}

// Detect compares the target artifact against the base artifact.
// Changes are sorted by key.
func Detect(base, target artifact.ConfigArtifact) DriftReport {
	report := DriftReport{
		BaseEnv:    base.Env,
		TargetEnv:  target.Env,
		BaseHash:   base.ConfigVersion,
		TargetHash: target.ConfigVersion,
		Changes:    []KeyDrift{},
	}

	// Quick check: if hashes match, no drift
	if base.ConfigVersion != "" && base.ConfigVersion == target.ConfigVersion {
		return report
	}

	allKeys := make(map[string]bool)
	for k := range base.Values {
		allKeys[k] = true
	}
	for k := range target.Values {
		allKeys[k] = true
	}

	keys := make([]string, 0, len(allKeys))
	for k := range allKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		baseVal, inBase := base.Values[key]
		targetVal, inTarget := target.Values[key]

		switch {
		case inBase && !inTarget:
			report.Changes = append(report.Changes, KeyDrift{Key: key, Type: DriftRemoved, BaseValue: baseVal})
		case !inBase && inTarget:
			report.Changes = append(report.Changes, KeyDrift{Key: key, Type: DriftAdded, TargetValue: targetVal})
		case baseVal != targetVal:
			report.Changes = append(report.Changes, KeyDrift{
				Key:         key,
				Type:        DriftChanged,
				BaseValue:   baseVal,
				TargetValue: targetVal,
			})
		}
	}

	report.HasDrift = len(report.Changes) > 0
	return report
}

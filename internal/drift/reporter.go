package drift

import (
	"encoding/json"
	"fmt"
	"strings"
)

func envLabel(name string) string {
	if name == "" {
		return "top level"
	}
	return "env." + name
}

// FormatCLI formats drift report for terminal output.
func FormatCLI(report DriftReport) string {
	if !report.HasDrift {
		return fmt.Sprintf("No differences between %s and %s.\n", envLabel(report.BaseEnv), envLabel(report.TargetEnv))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Differences from %s to %s:\n", envLabel(report.BaseEnv), envLabel(report.TargetEnv)))

	for _, change := range report.Changes {
		switch change.Type {
		case DriftAdded:
			sb.WriteString(fmt.Sprintf("  + %s: (unset) → %s\n", change.Key, change.TargetValue))
		case DriftRemoved:
			sb.WriteString(fmt.Sprintf("  - %s: %s → (unset)\n", change.Key, change.BaseValue))
		case DriftChanged:
			sb.WriteString(fmt.Sprintf("  ~ %s: %s → %s\n", change.Key, change.BaseValue, change.TargetValue))
		}
	}
	return sb.String()
}

// FormatCI formats drift report as GitHub Actions notice annotations.
func FormatCI(report DriftReport, file string) string {
	if !report.HasDrift {
		return ""
	}

	var sb strings.Builder
	for _, change := range report.Changes {
		var msg string
		switch change.Type {
		case DriftAdded:
			msg = fmt.Sprintf("%s only set in %s (value: %s)", change.Key, envLabel(report.TargetEnv), change.TargetValue)
		case DriftRemoved:
			msg = fmt.Sprintf("%s only set in %s (value: %s)", change.Key, envLabel(report.BaseEnv), change.BaseValue)
		case DriftChanged:
			msg = fmt.Sprintf("%s differs: '%s' vs '%s'", change.Key, change.BaseValue, change.TargetValue)
		}
		sb.WriteString(fmt.Sprintf("::notice file=%s::%s\n", file, msg))
	}
	sb.WriteString(fmt.Sprintf("\n%d difference(s) between %s and %s\n", len(report.Changes), envLabel(report.BaseEnv), envLabel(report.TargetEnv)))
	return sb.String()
}

// FormatJSON formats drift report as JSON.
func FormatJSON(report DriftReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Package report renders a diagnostics tree for terminals, CI logs and
// machine consumers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"workercfg/internal/diagnostics"
)

var (
	colorError   = lipgloss.Color("#FF5F87")
	colorWarning = lipgloss.Color("#FFAF00")
)

// Styles holds the terminal styles bound to one output
type Styles struct {
	Error   lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles binds the styles to w so colours are dropped when w is not a
// colour terminal
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Error:   r.NewStyle().Foreground(colorError).Bold(true),
		Warning: r.NewStyle().Foreground(colorWarning).Bold(true),
		Muted:   r.NewStyle().Faint(true),
	}
}

// FormatCLI formats errors and warnings for terminal output.
// Returns "" when the tree is empty.
func FormatCLI(d *diagnostics.Diagnostics, styles Styles) string {
	var sb strings.Builder
	if d.HasWarnings() {
		sb.WriteString(styles.Warning.Render("▲ [WARNING]"))
		sb.WriteString(" ")
		sb.WriteString(d.RenderWarnings())
		sb.WriteString("\n\n")
	}
	if d.HasErrors() {
		sb.WriteString(styles.Error.Render("✘ [ERROR]"))
		sb.WriteString(" ")
		sb.WriteString(d.RenderErrors())
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// FormatCI formats every message as a GitHub Actions annotation on file
func FormatCI(d *diagnostics.Diagnostics, file string) string {
	var sb strings.Builder
	for _, sev := range []diagnostics.Severity{diagnostics.Error, diagnostics.Warning} {
		for _, m := range d.Messages(sev) {
			sb.WriteString(fmt.Sprintf("::%s file=%s::%s\n", sev, file, escapeAnnotation(annotationText(m))))
		}
	}

	errors, warnings := len(d.Messages(diagnostics.Error)), len(d.Messages(diagnostics.Warning))
	if errors+warnings > 0 {
		sb.WriteString(fmt.Sprintf("\n%d error(s), %d warning(s) in %s\n", errors, warnings, file))
	}
	return sb.String()
}

// annotationText prefixes the message with its scopes below the root
func annotationText(m diagnostics.Message) string {
	if len(m.Scope) <= 1 {
		return m.Text
	}
	return strings.Join(m.Scope[1:], " > ") + ": " + m.Text
}

// escapeAnnotation encodes the characters workflow commands reserve
func escapeAnnotation(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}

// Result is the JSON form of a diagnostics tree
type Result struct {
	Valid    bool                  `json:"valid"`
	Errors   []diagnostics.Message `json:"errors"`
	Warnings []diagnostics.Message `json:"warnings"`
}

// NewResult flattens d
func NewResult(d *diagnostics.Diagnostics) Result {
	r := Result{
		Valid:    !d.HasErrors(),
		Errors:   d.Messages(diagnostics.Error),
		Warnings: d.Messages(diagnostics.Warning),
	}
	if r.Errors == nil {
		r.Errors = []diagnostics.Message{}
	}
	if r.Warnings == nil {
		r.Warnings = []diagnostics.Message{}
	}
	return r
}

// FormatJSON formats diagnostics as JSON.
func FormatJSON(d *diagnostics.Diagnostics) (string, error) {
	data, err := json.MarshalIndent(NewResult(d), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

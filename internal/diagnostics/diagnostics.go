package diagnostics

import (
	"fmt"
	"strings"
)

// Severity classifies a diagnostic message
type Severity int

const (
	// Warning means the configuration is usable but suspicious
	Warning Severity = iota
	// Error means the affected field cannot be trusted
	Error
)

// String returns the lower-case name of the severity
func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Diagnostics is one node in a tree of scoped errors and warnings.
// The description names the scope, e.g. `"env.staging" environment configuration`.
type Diagnostics struct {
	description string
	errors      []string
	warnings    []string
	children    []*Diagnostics
}

// Message is a single diagnostic together with the descriptions of the
// scopes that enclose it, outermost first.
type Message struct {
	Scope    []string `json:"scope"`
	Severity string   `json:"severity"`
	Text     string   `json:"message"`
}

// New creates an empty node for the given scope description
func New(description string) *Diagnostics {
	return &Diagnostics{description: description}
}

// Description returns the scope description of this node
func (d *Diagnostics) Description() string {
	return d.description
}

// Add appends a message with the given severity to this node
func (d *Diagnostics) Add(severity Severity, message string) {
	if severity == Error {
		d.errors = append(d.errors, message)
		return
	}
	d.warnings = append(d.warnings, message)
}

// Errorf appends a formatted error to this node
func (d *Diagnostics) Errorf(format string, args ...any) {
	d.Add(Error, fmt.Sprintf(format, args...))
}

// Warnf appends a formatted warning to this node
func (d *Diagnostics) Warnf(format string, args ...any) {
	d.Add(Warning, fmt.Sprintf(format, args...))
}

// AddChild appends child beneath this node. Inserting an ancestor of d
// creates a cycle; callers must not do that.
func (d *Diagnostics) AddChild(child *Diagnostics) {
	d.children = append(d.children, child)
}

// HasErrors reports whether this node or any descendant holds an error
func (d *Diagnostics) HasErrors() bool {
	return d.has(Error)
}

// HasWarnings reports whether this node or any descendant holds a warning
func (d *Diagnostics) HasWarnings() bool {
	return d.has(Warning)
}

// RenderErrors renders every error in the tree, nested by scope.
// Returns "" when the tree holds no errors.
func (d *Diagnostics) RenderErrors() string {
	return d.render(Error)
}

// RenderWarnings renders every warning in the tree, nested by scope.
// Returns "" when the tree holds no warnings.
func (d *Diagnostics) RenderWarnings() string {
	return d.render(Warning)
}

// Messages returns a flattened copy of every message of the given
// severity in depth-first order.
func (d *Diagnostics) Messages(severity Severity) []Message {
	var out []Message
	d.walk(func(node *Diagnostics, scope []string, _ int) bool {
		if !node.has(severity) {
			return false
		}
		for _, text := range node.own(severity) {
			out = append(out, Message{
				Scope:    append([]string(nil), scope...),
				Severity: severity.String(),
				Text:     text,
			})
		}
		return true
	})
	return out
}

func (d *Diagnostics) own(severity Severity) []string {
	if severity == Error {
		return d.errors
	}
	return d.warnings
}

func (d *Diagnostics) has(severity Severity) bool {
	found := false
	d.walk(func(node *Diagnostics, _ []string, _ int) bool {
		if len(node.own(severity)) > 0 {
			found = true
		}
		return !found
	})
	return found
}

type frame struct {
	node  *Diagnostics
	scope []string
	depth int
}

// walk visits the tree depth-first in insertion order. visit returns
// false to skip the node's children.
func (d *Diagnostics) walk(visit func(node *Diagnostics, scope []string, depth int) bool) {
	stack := []frame{{node: d, scope: []string{d.description}}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visit(top.node, top.scope, top.depth) {
			continue
		}
		// push in reverse so children pop in insertion order
		for i := len(top.node.children) - 1; i >= 0; i-- {
			child := top.node.children[i]
			scope := make([]string, len(top.scope), len(top.scope)+1)
			copy(scope, top.scope)
			stack = append(stack, frame{
				node:  child,
				scope: append(scope, child.description),
				depth: top.depth + 1,
			})
		}
	}
}

func (d *Diagnostics) render(severity Severity) string {
	var sb strings.Builder
	d.walk(func(node *Diagnostics, _ []string, depth int) bool {
		if !node.has(severity) {
			return false
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		indent := strings.Repeat("  ", depth)
		sb.WriteString(indent)
		sb.WriteString(node.description)
		for _, message := range node.own(severity) {
			for i, line := range strings.Split(message, "\n") {
				sb.WriteString("\n")
				switch {
				case i == 0:
					sb.WriteString(indent + "  - " + line)
				case strings.TrimSpace(line) == "":
					// blank continuation lines carry no indentation
				default:
					sb.WriteString(indent + "    " + line)
				}
			}
		}
		return true
	})
	return sb.String()
}

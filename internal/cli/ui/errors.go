package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a multi-line terminal message:
//
//	❌ FIELD NOT FOUND: Cannot find field 'total_lifetme'.
//
//	   Did you mean: total_lifetime?
//
//	   → List fields: sumfields fields --all
type Message struct {
	Level        Level
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// String formats the message
func (m Message) String() string {
	var b strings.Builder

	var head *color.Color
	var symbol string
	switch m.Level {
	case LevelWarning:
		head, symbol = colorFor(m.NoColor, color.FgYellow, color.Bold), "⚠️"
	case LevelInfo:
		head, symbol = colorFor(m.NoColor, color.FgCyan, color.Bold), "ℹ️"
	default:
		head, symbol = colorFor(m.NoColor, color.FgRed, color.Bold), "❌"
	}

	if m.Context != "" {
		head.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		head.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	if m.Consequence != "" {
		fmt.Fprintf(&b, "\n   %s\n", m.Consequence)
	}

	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		colorFor(m.NoColor, color.FgYellow).Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := colorFor(m.NoColor, color.FgCyan)
		for _, cmd := range m.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// Write prints the message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.String())
}

// FormatSuccess creates a success line
func FormatSuccess(message string, noColor bool) string {
	return colorFor(noColor, color.FgGreen, color.Bold).Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// FieldNotFound reports an unknown summary field with close matches
func FieldNotFound(name string, known []string, noColor bool) Message {
	return Message{
		Level:        LevelError,
		Context:      "field not found",
		Problem:      fmt.Sprintf("Cannot find field '%s'.", name),
		Suggestions:  Suggest(name, known, 3),
		HelpCommands: []string{"List fields: sumfields fields --all"},
		NoColor:      noColor,
	}
}

// DatabaseError reports a failed database step
func DatabaseError(step, detail, consequence string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     step + " failed",
		Problem:     detail,
		Consequence: consequence,
		HelpCommands: []string{
			"Check the connection: sumfields triggers status",
			"Show details: rerun with --verbose",
		},
		NoColor: noColor,
	}
}

// ConfigError reports an invalid configuration
func ConfigError(detail string, noColor bool) Message {
	return Message{
		Level:   LevelError,
		Context: "configuration error",
		Problem: detail,
		HelpCommands: []string{
			"View config: cat sumfields.yml",
			"Check definitions: sumfields validate",
		},
		NoColor: noColor,
	}
}

// Warning creates a warning message
func Warning(message string, noColor bool) Message {
	return Message{Level: LevelWarning, Problem: message, NoColor: noColor}
}

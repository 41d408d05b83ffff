// Package ui prints command line output.
package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headingColor = color.New(color.FgCyan, color.Bold)
	mutedColor   = color.New(color.Faint)
)

// PrintSuccess prints a success message.
func PrintSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintln(w, "✓ "+fmt.Sprintf(format, args...))
}

// PrintError prints an error message.
func PrintError(w io.Writer, format string, args ...any) {
	errorColor.Fprintln(w, "✗ "+fmt.Sprintf(format, args...))
}

// PrintWarning prints a warning message.
func PrintWarning(w io.Writer, format string, args ...any) {
	warningColor.Fprintln(w, "⚠ "+fmt.Sprintf(format, args...))
}

// PrintInfo prints an informational message.
func PrintInfo(w io.Writer, format string, args ...any) {
	infoColor.Fprintln(w, "ℹ "+fmt.Sprintf(format, args...))
}

// PrintHeading prints a section title.
func PrintHeading(w io.Writer, title string) {
	headingColor.Fprintln(w, title)
}

// PrintStep prints a numbered line.
func PrintStep(w io.Writer, index int, line string) {
	fmt.Fprintf(w, "%s %s\n", mutedColor.Sprintf("%2d.", index), line)
}

// PrintJSON prints v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

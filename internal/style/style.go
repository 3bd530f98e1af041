// Package style provides the terminal styles of the adsync command line.
package style

import "github.com/charmbracelet/lipgloss"

var (
	// Success style for applied changes
	Success = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")). // Green
		Bold(true)

	// Warning style for skipped work
	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.Color("11")). // Yellow
		Bold(true)

	// Error style for failures
	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")). // Red
		Bold(true)

	// Dim style for dry-run output
	Dim = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")) // Gray

	// Bold style for section headings
	Bold = lipgloss.NewStyle().
		Bold(true)

	// Line prefixes rendered with the styles above
	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	DryRunPrefix  = Dim.Render("·")
)

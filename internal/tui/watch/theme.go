// Package watch implements the live run-watching TUI. It connects to a
// running runlet service, follows the event stream over SSE, and renders
// runs and their output as they happen.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Selected  lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	teal := lipgloss.Color("#2AA198")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(teal),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1C1C1C")).
			Background(teal),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

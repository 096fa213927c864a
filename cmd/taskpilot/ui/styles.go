// Package ui provides the visual styling for the taskpilot chat interface.
package ui

import "github.com/charmbracelet/lipgloss"

// Palette shared by both panes of the chat view.
var (
	Primary = lipgloss.Color("#2196F3") // Blue
	Accent  = lipgloss.Color("#8BC34A") // Lime Green
	Warning = lipgloss.Color("#FFC107") // Yellow
	Danger  = lipgloss.Color("#e53935") // Red
	Subtle  = lipgloss.Color("245")
)

// Styles holds the pre-built lipgloss styles used by the chat view.
type Styles struct {
	Header   lipgloss.Style
	User     lipgloss.Style
	Agent    lipgloss.Style
	Step     lipgloss.Style
	Route    lipgloss.Style
	Question lipgloss.Style
	Error    lipgloss.Style
	Muted    lipgloss.Style
	Input    lipgloss.Style
}

// NewStyles builds the default style set.
func NewStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(Primary).MarginBottom(1),
		User:     lipgloss.NewStyle().Bold(true).Foreground(Primary),
		Agent:    lipgloss.NewStyle().Bold(true).Foreground(Accent),
		Step:     lipgloss.NewStyle().Foreground(Subtle),
		Route:    lipgloss.NewStyle().Foreground(Accent),
		Question: lipgloss.NewStyle().Foreground(Warning),
		Error:    lipgloss.NewStyle().Foreground(Danger),
		Muted:    lipgloss.NewStyle().Foreground(Subtle),
		Input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Subtle).
			Padding(0, 1),
	}
}

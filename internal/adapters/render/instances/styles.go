package instances

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	name       lipgloss.Style
	marker     lipgloss.Style
	detail     lipgloss.Style
	running    lipgloss.Style
	stopped    lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	category   lipgloss.Style
	barBracket lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		name:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		marker:     lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		running:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		stopped:    lipgloss.NewStyle().Faint(true),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		category:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

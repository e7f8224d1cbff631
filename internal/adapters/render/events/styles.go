package events

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	incoming lipgloss.Style
	outgoing lipgloss.Style
	message  lipgloss.Style
	negative lipgloss.Style
	detail   lipgloss.Style
	meta     lipgloss.Style
	empty    lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		incoming: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		outgoing: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		message:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("177")),
		negative: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		detail:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		meta:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		empty:    lipgloss.NewStyle().Faint(true),
	}
}

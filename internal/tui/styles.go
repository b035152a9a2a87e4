package tui

import "github.com/charmbracelet/lipgloss"

var (
	sage   = lipgloss.Color("#8BC34A")
	ink    = lipgloss.Color("#101F38")
	muted  = lipgloss.Color("#8A94A6")
	danger = lipgloss.Color("#E53935")
	amber  = lipgloss.Color("#FFC107")
)

type styles struct {
	Title   lipgloss.Style
	Kind    lipgloss.Style
	Body    lipgloss.Style
	Timer   lipgloss.Style
	Paused  lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Star    lipgloss.Style
	Frame   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(ink).Background(sage).Padding(0, 1),
		Kind:    lipgloss.NewStyle().Foreground(sage).Italic(true),
		Body:    lipgloss.NewStyle().Width(72),
		Timer:   lipgloss.NewStyle().Bold(true).Foreground(sage),
		Paused:  lipgloss.NewStyle().Bold(true).Foreground(amber),
		Muted:   lipgloss.NewStyle().Foreground(muted),
		Error:   lipgloss.NewStyle().Foreground(danger),
		Success: lipgloss.NewStyle().Bold(true).Foreground(sage),
		Star:    lipgloss.NewStyle().Foreground(amber),
		Frame:   lipgloss.NewStyle().Padding(1, 2),
	}
}

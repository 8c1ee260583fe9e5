package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/inmobiliaria/gestion-chat/internal/chat"
)

type theme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	chip        lipgloss.Style
	chipEmpty   lipgloss.Style
	panel       lipgloss.Style
	user        lipgloss.Style
	agent       lipgloss.Style
	failure     lipgloss.Style
	banner      lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style
	agentDesc   lipgloss.Style
}

func newTheme() theme {
	teal := lipgloss.Color("#2dd4bf")
	amber := lipgloss.Color("#fbbf24")
	red := lipgloss.Color("#f87171")
	text := lipgloss.Color("#e5e7eb")
	muted := lipgloss.Color("#9ca3af")
	panelBg := lipgloss.Color("#111827")

	return theme{
		root: lipgloss.NewStyle().Padding(0, 1),
		header: lipgloss.NewStyle().
			Foreground(text).
			Bold(true),
		tabActive: lipgloss.NewStyle().
			Background(teal).
			Foreground(lipgloss.Color("#042f2e")).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Background(lipgloss.Color("#1f2937")).
			Foreground(muted).
			Padding(0, 1),
		chip: lipgloss.NewStyle().
			Foreground(amber).
			Bold(true),
		chipEmpty: lipgloss.NewStyle().Foreground(muted),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")),
		user:    lipgloss.NewStyle().Foreground(teal).Bold(true),
		agent:   lipgloss.NewStyle().Foreground(amber).Bold(true),
		failure: lipgloss.NewStyle().Foreground(red).Bold(true),
		banner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fff1f2")).
			Background(lipgloss.Color("#7f1d1d")).
			Padding(0, 1),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(teal),
		helpText:  lipgloss.NewStyle().Foreground(muted),
		agentDesc: lipgloss.NewStyle().Foreground(muted).Italic(true),
	}
}

func (t theme) authorStyle(e chat.Entry) lipgloss.Style {
	switch {
	case e.AuthoredBy == chat.AuthorUser:
		return t.user
	case e.Failed():
		return t.failure
	default:
		return t.agent
	}
}

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/AltairaLabs/livevoice/session"
)

// Color palette
const (
	colorPrimary   = "#7C3AED"
	colorSuccess   = "#10B981"
	colorInfo      = "#3B82F6"
	colorError     = "#EF4444"
	colorWarning   = "#F59E0B"
	colorGray      = "#6B7280"
	colorLightGray = "#9CA3AF"
	colorViolet    = "#A78BFA"
	colorSky       = "#93C5FD"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorLightGray))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorSky))

	modelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorViolet))

	interimStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color(colorGray))

	meterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorSuccess))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorGray)).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorGray))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorWarning))
)

// statusStyle colors the status line by state.
func statusStyle(s session.State) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch s {
	case session.Active:
		return style.Foreground(lipgloss.Color(colorSuccess))
	case session.Connecting, session.Closing:
		return style.Foreground(lipgloss.Color(colorWarning))
	case session.Errored:
		return style.Foreground(lipgloss.Color(colorError))
	default:
		return style.Foreground(lipgloss.Color(colorInfo))
	}
}

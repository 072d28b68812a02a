package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mr-karan/slawatch/pkg/models"
)

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7C3AED"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#10B981"}
	warning   = lipgloss.AdaptiveColor{Light: "#F59E0B", Dark: "#FBBF24"}
	danger    = lipgloss.AdaptiveColor{Light: "#EF4444", Dark: "#F87171"}
	muted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"}

	titleStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#1F2937")).
			Foreground(lipgloss.Color("#F9FAFB")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#1F2937")).
			Foreground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#F9FAFB")).
				Background(lipgloss.Color("#374151"))

	summaryStyle = lipgloss.NewStyle().
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(muted)

	errorStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(special)

	severityStyles = map[models.AlertSeverity]lipgloss.Style{
		models.AlertSeverityCritical: lipgloss.NewStyle().Foreground(danger).Bold(true),
		models.AlertSeverityError:    lipgloss.NewStyle().Foreground(danger),
		models.AlertSeverityWarning:  lipgloss.NewStyle().Foreground(warning),
		models.AlertSeverityInfo:     lipgloss.NewStyle().Foreground(special),
	}
)

func getSeverityStyle(sev models.AlertSeverity) lipgloss.Style {
	if style, ok := severityStyles[sev]; ok {
		return style
	}
	return lipgloss.NewStyle()
}

package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/chaospilot/incident-console/internal"
)

type theme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	inputPanel  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	helpText    lipgloss.Style
	badgeOn     lipgloss.Style
	badgeOff    lipgloss.Style

	roles      map[internal.Role]lipgloss.Style
	agents     map[internal.AgentStatus]lipgloss.Style
	phases     map[internal.PhaseStatus]lipgloss.Style
	workflows  map[internal.WorkflowStatus]lipgloss.Style
	severities map[internal.Severity]lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("62")
	green := lipgloss.Color("42")
	red := lipgloss.Color("196")
	amber := lipgloss.Color("214")
	blue := lipgloss.Color("39")
	muted := lipgloss.Color("245")

	bold := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c).Bold(true)
	}

	return theme{
		root: lipgloss.NewStyle().Padding(0, 1),
		header: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(accent).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		panelTitle: bold(accent),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		footer:      lipgloss.NewStyle().Padding(0, 1),
		status:      bold(blue),
		errorStatus: bold(red),
		helpText:    lipgloss.NewStyle().Foreground(muted),
		badgeOn:     bold(green),
		badgeOff:    lipgloss.NewStyle().Foreground(muted),

		roles: map[internal.Role]lipgloss.Style{
			internal.RoleUser:      bold(green),
			internal.RoleAssistant: bold(blue),
			internal.RoleThinking:  lipgloss.NewStyle().Foreground(muted).Italic(true),
			internal.RoleTransfer:  bold(amber),
			internal.RoleError:     bold(red),
		},
		agents: map[internal.AgentStatus]lipgloss.Style{
			internal.AgentIdle:      lipgloss.NewStyle().Foreground(muted),
			internal.AgentThinking:  bold(amber),
			internal.AgentWorking:   bold(blue),
			internal.AgentCompleted: bold(green),
			internal.AgentError:     bold(red),
		},
		phases: map[internal.PhaseStatus]lipgloss.Style{
			internal.PhasePending:   lipgloss.NewStyle().Foreground(muted),
			internal.PhaseActive:    bold(amber),
			internal.PhaseCompleted: bold(green),
		},
		workflows: map[internal.WorkflowStatus]lipgloss.Style{
			internal.WorkflowMonitoring: lipgloss.NewStyle().Foreground(muted),
			internal.WorkflowDetected:   bold(amber),
			internal.WorkflowAnalyzing:  bold(blue),
			internal.WorkflowActing:     bold(accent),
			internal.WorkflowResolved:   bold(green),
		},
		severities: map[internal.Severity]lipgloss.Style{
			internal.SeverityInfo:     bold(blue),
			internal.SeverityWarning:  bold(amber),
			internal.SeverityError:    bold(red),
			internal.SeverityCritical: bold(red).Underline(true),
		},
	}
}

// pick returns styles[key], or the zero style when key is unknown
func pick[K comparable](styles map[K]lipgloss.Style, key K) lipgloss.Style {
	if s, ok := styles[key]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

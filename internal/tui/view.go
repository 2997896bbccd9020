package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chaospilot/incident-console/internal"
)

func (m Model) View() string {
	header := m.renderHeader()
	content := m.renderContent()
	input := m.renderInput()
	footer := m.renderFooter()
	return m.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer))
}

func (m *Model) contentSize() (width, height int) {
	return max(40, m.width-4), max(8, m.height-11)
}

func (m *Model) paneWidths() (left, right int) {
	width, _ := m.contentSize()
	left = int(float64(width) * 0.64)
	right = width - left - 1
	if right < 30 {
		right = 30
		left = width - right - 1
	}
	return left, right
}

func (m *Model) resize() {
	width, _ := m.contentSize()
	m.input.Width = max(20, width-6)
}

// renderPanes refreshes viewport contents, keeping the timeline pinned to
// the bottom unless the user scrolled up.
func (m *Model) renderPanes() {
	atBottom := m.timeline.AtBottom()
	offset := m.timeline.YOffset

	_, height := m.contentSize()
	left, right := m.paneWidths()
	m.timeline.Width = max(20, left-4)
	m.timeline.Height = max(4, height-3)
	m.sidebar.Width = max(20, right-4)
	m.sidebar.Height = max(4, height-3)

	m.timeline.SetContent(m.renderTimeline())
	if atBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(offset)
	}
	m.sidebar.SetContent(m.renderSidebar())
}

func (m *Model) renderHeader() string {
	segments := make([]string, 0, len(tabLabels)+3)
	for _, tab := range tabLabels {
		style := m.theme.tabInactive
		if tab.id == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(tab.label))
	}
	session := m.snap.SessionID
	if session == "" {
		session = "none"
	}
	segments = append(segments,
		m.theme.helpText.Render("  session "+session+"  "),
		m.badge("AUTO", m.snap.Autonomous),
		m.badge("MON", m.snap.Monitoring),
	)
	width, _ := m.contentSize()
	return m.theme.header.Width(width).Render(lipgloss.JoinHorizontal(lipgloss.Left, segments...))
}

func (m *Model) badge(label string, on bool) string {
	if on {
		return m.theme.badgeOn.Render(" ● " + label)
	}
	return m.theme.badgeOff.Render(" ○ " + label)
}

func (m *Model) renderContent() string {
	width, height := m.contentSize()
	switch m.activeTab {
	case tabChat:
		left, right := m.paneWidths()
		timeline := m.theme.panel.Width(left).Height(height).Render(
			m.theme.panelTitle.Render("Conversation") + "\n" + m.timeline.View(),
		)
		sidebar := m.theme.panel.Width(right).Height(height).Render(
			m.theme.panelTitle.Render("Agents & Phases") + "\n" + m.sidebar.View(),
		)
		return lipgloss.JoinHorizontal(lipgloss.Top, timeline, sidebar)
	case tabWorkflows:
		return m.theme.panel.Width(width).Height(height).Render(
			m.theme.panelTitle.Render("Autonomous Workflows") + "\n" + m.renderWorkflows(),
		)
	case tabInsights:
		return m.theme.panel.Width(width).Height(height).Render(
			m.theme.panelTitle.Render("Insights") + "\n" + m.renderInsights(),
		)
	default:
		return m.theme.panel.Width(width).Height(height).Render(
			m.theme.panelTitle.Render("Help") + "\n" + m.renderHelp(),
		)
	}
}

func (m *Model) renderTimeline() string {
	if len(m.snap.Messages) == 0 {
		return m.theme.helpText.Render("No messages yet. Describe an incident to start the agents.")
	}
	wrap := lipgloss.NewStyle().Width(max(20, m.timeline.Width-1))

	var b strings.Builder
	for _, msg := range m.snap.Messages {
		label := speaker(msg)
		header := fmt.Sprintf("%s %s", msg.Timestamp.Local().Format("15:04:05"), label)
		b.WriteString(pick(m.theme.roles, msg.Role).Render(header))
		if msg.Confidence != nil {
			b.WriteString(m.theme.helpText.Render(fmt.Sprintf("  %.0f%%", *msg.Confidence*100)))
		}
		b.WriteString("\n")
		b.WriteString(wrap.Render(msg.Content))
		b.WriteString("\n")
		if msg.StructuredData != nil && !strings.Contains(msg.Content, "```") {
			b.WriteString(internal.FormatPayload(msg.StructuredData, m.opts.Color))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func speaker(msg internal.Message) string {
	switch msg.Role {
	case internal.RoleUser:
		return "Operator"
	case internal.RoleError:
		return "Error"
	case internal.RoleTransfer:
		return "Transfer"
	}
	if msg.Agent != "" {
		return internal.AgentDisplayName(msg.Agent)
	}
	return string(msg.Role)
}

func (m *Model) renderSidebar() string {
	var b strings.Builder
	if len(m.snap.Agents) == 0 {
		b.WriteString(m.theme.helpText.Render("No agents active."))
		b.WriteString("\n")
	}
	for _, agent := range m.snap.Agents {
		style := pick(m.theme.agents, agent.Status)
		b.WriteString(style.Render(fmt.Sprintf("%-10s", agent.Status)))
		b.WriteString(" ")
		b.WriteString(internal.AgentDisplayName(agent.ID))
		b.WriteString(m.theme.helpText.Render(fmt.Sprintf(" %d%%", agent.Progress)))
		b.WriteString("\n")
		if agent.Message != "" {
			b.WriteString(m.theme.helpText.Render("  " + compactLine(agent.Message, max(10, m.sidebar.Width-2))))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.theme.panelTitle.Render("Phases"))
	b.WriteString("\n")
	for _, phase := range m.snap.Phases {
		mark := "[ ]"
		switch phase.Status {
		case internal.PhaseActive:
			mark = "[>]"
		case internal.PhaseCompleted:
			mark = "[x]"
		}
		b.WriteString(pick(m.theme.phases, phase.Status).Render(fmt.Sprintf("%s %d. %s", mark, phase.Number, phase.Name)))
		b.WriteString("\n")
	}

	metrics := m.snap.Metrics
	b.WriteString("\n")
	b.WriteString(m.theme.panelTitle.Render("Metrics"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "workflows  %d active · %d resolved · %d%% success\n",
		metrics.ActiveWorkflows, metrics.ResolvedWorkflows, metrics.SuccessRate)
	fmt.Fprintf(&b, "insights   %d total · %d critical\n", metrics.TotalInsights, metrics.CriticalInsights)
	fmt.Fprintf(&b, "agents     %d active · %d%% efficiency\n", metrics.ActiveAgents, metrics.AgentEfficiency)
	if metrics.PendingApprovals > 0 {
		b.WriteString(m.theme.errorStatus.Render(fmt.Sprintf("%d actions awaiting approval", metrics.PendingApprovals)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderWorkflows() string {
	if len(m.snap.Workflows) == 0 {
		return m.theme.helpText.Render("No workflows.")
	}
	var b strings.Builder
	for _, w := range m.snap.Workflows {
		b.WriteString(pick(m.theme.workflows, w.Status).Render(fmt.Sprintf("%-10s", w.Status)))
		fmt.Fprintf(&b, " %s  [%s, %.0f%%]\n", w.Name, w.Priority, w.Confidence*100)
		if w.Description != "" {
			b.WriteString(m.theme.helpText.Render("  " + w.Description))
			b.WriteString("\n")
		}
		for _, a := range w.Actions {
			fmt.Fprintf(&b, "  - %s (%s, %s) %s\n", a.Name, a.Type, a.EstimatedTime, a.Status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderInsights() string {
	if len(m.snap.Insights) == 0 {
		return m.theme.helpText.Render("No insights yet.")
	}
	var b strings.Builder
	for _, in := range m.snap.Insights {
		b.WriteString(m.theme.helpText.Render(in.Timestamp.Local().Format("15:04:05")))
		b.WriteString(" ")
		b.WriteString(pick(m.theme.severities, in.Severity).Render(fmt.Sprintf("%-8s", in.Severity)))
		fmt.Fprintf(&b, " %s: %s\n", in.Type, in.Title)
		b.WriteString(m.theme.helpText.Render("  " + in.Description))
		b.WriteString("\n")
		if len(in.Actions) > 0 {
			fmt.Fprintf(&b, "  → %s\n", strings.Join(in.Actions, "; "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderHelp() string {
	lines := []string{
		"Enter        send the message to the agent backend",
		"Tab          next view, Shift+Tab previous",
		"PgUp/PgDn    scroll the conversation",
		"/auto on|off      toggle autonomous mode",
		"/monitor on|off   toggle background monitoring",
		"/clear       clear the conversation",
		"/new         start a fresh session",
		"/end         delete the session on the backend",
		"/quit        leave (or Ctrl+C)",
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderInput() string {
	width, _ := m.contentSize()
	view := m.input.View()
	if m.inflight {
		view = m.spinner.View() + " waiting for agents... " + view
	}
	return m.theme.inputPanel.Width(width).Render(view)
}

func (m *Model) renderFooter() string {
	width, _ := m.contentSize()
	style := m.theme.status
	if m.failed {
		style = m.theme.errorStatus
	}
	hints := m.theme.helpText.Render("Tab views · Enter send · /help commands · Ctrl+C quit")
	return m.theme.footer.Width(width).Render(style.Render(compactLine(m.status, 160)) + "\n" + hints)
}

// compactLine flattens s to one line of at most limit runes
func compactLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if limit > 3 && len(r) > limit {
		return string(r[:limit-3]) + "..."
	}
	return s
}

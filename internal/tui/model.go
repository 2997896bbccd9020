// Package tui is the terminal dashboard: a chat pane over the console
// conversation plus live agent, phase, workflow and insight panels.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/chaospilot/incident-console/internal"
)

const refreshInterval = time.Second

type tabID int

const (
	tabChat tabID = iota
	tabWorkflows
	tabInsights
	tabHelp
)

var tabLabels = []struct {
	id    tabID
	label string
}{
	{tabChat, "Chat"},
	{tabWorkflows, "Workflows"},
	{tabInsights, "Insights"},
	{tabHelp, "Help"},
}

// Options tune the dashboard
type Options struct {
	// Color enables highlighted payloads in the timeline.
	Color bool
}

type snapshotMsg internal.DashboardSnapshot

type sentMsg struct {
	appended []internal.Message
}

type sessionMsg struct {
	status string
	err    error
}

type tickMsg time.Time

// Model is the bubbletea model of the dashboard. It only reads the console
// through snapshots and writes through its public operations.
type Model struct {
	ctx     context.Context
	console *internal.Console
	opts    Options
	updates <-chan internal.DashboardSnapshot

	snap      internal.DashboardSnapshot
	activeTab tabID
	inflight  bool
	status    string
	failed    bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	sidebar  viewport.Model
	spinner  spinner.Model

	theme theme
}

// New builds a dashboard over console. The snapshot stream ends when ctx is
// done.
func New(ctx context.Context, console *internal.Console, opts Options) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Describe the incident, or /help for commands"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	sidebar := viewport.New(0, 0)

	m := Model{
		ctx:       ctx,
		console:   console,
		opts:      opts,
		updates:   console.Watch(ctx),
		snap:      console.Snapshot(),
		activeTab: tabChat,
		status:    "ready",
		input:     input,
		timeline:  timeline,
		sidebar:   sidebar,
		spinner:   sp,
		theme:     newTheme(),
	}
	m.renderPanes()
	return m
}

// Run starts the dashboard on the alternate screen and blocks until the
// user quits or ctx is done.
func Run(ctx context.Context, console *internal.Console, opts Options) error {
	p := tea.NewProgram(New(ctx, console, opts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitSnapshot(m.updates),
		tickEvery(refreshInterval),
	)
}

func waitSnapshot(ch <-chan internal.DashboardSnapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func tickEvery(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) sendCmd(text string) tea.Cmd {
	ctx, console := m.ctx, m.console
	return func() tea.Msg {
		return sentMsg{appended: console.SendMessage(ctx, text)}
	}
}

func (m Model) newSessionCmd() tea.Cmd {
	console := m.console
	return func() tea.Msg {
		id, err := console.NewSession()
		if err != nil {
			return sessionMsg{err: err}
		}
		return sessionMsg{status: "new session " + id}
	}
}

func (m Model) endSessionCmd() tea.Cmd {
	ctx, console := m.ctx, m.console
	return func() tea.Msg {
		if err := console.EndSession(ctx); err != nil {
			return sessionMsg{err: err}
		}
		return sessionMsg{status: "session ended"}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = internal.DashboardSnapshot(msg)
		m.renderPanes()
		cmds = append(cmds, waitSnapshot(m.updates))
	case sentMsg:
		m.inflight = false
		m.failed = false
		m.status = fmt.Sprintf("%d new messages", len(msg.appended))
		for _, appended := range msg.appended {
			if appended.Role == internal.RoleError {
				m.failed = true
				m.status = "send failed: " + compactLine(appended.Content, 120)
			}
		}
		m.snap = m.console.Snapshot()
		m.renderPanes()
	case sessionMsg:
		m.inflight = false
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.failed = false
			m.status = msg.status
		}
		m.snap = m.console.Snapshot()
		m.renderPanes()
	case tickMsg:
		if !m.inflight {
			m.snap = m.console.Snapshot()
			m.renderPanes()
		}
		cmds = append(cmds, tickEvery(refreshInterval))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabID(len(tabLabels))
			m.renderPanes()
			return m, nil
		case "shift+tab":
			m.activeTab = (m.activeTab + tabID(len(tabLabels)) - 1) % tabID(len(tabLabels))
			m.renderPanes()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		case "enter":
			raw := strings.TrimSpace(m.input.Value())
			if raw == "" || m.inflight {
				return m, nil
			}
			m.input.Reset()
			if strings.HasPrefix(raw, "/") {
				return m, m.handleSlash(raw)
			}
			m.inflight = true
			m.status = "sending to " + internal.AgentDisplayName(internal.RouteMessage(raw))
			return m, tea.Batch(m.sendCmd(raw), m.spinner.Tick)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleSlash runs a local command. Unknown commands only set the status.
func (m *Model) handleSlash(raw string) tea.Cmd {
	parts := strings.Fields(raw)
	arg := ""
	if len(parts) > 1 {
		arg = strings.ToLower(parts[1])
	}

	switch strings.ToLower(parts[0]) {
	case "/quit", "/exit":
		return tea.Quit
	case "/help":
		m.activeTab = tabHelp
	case "/clear":
		m.console.ClearConversation()
		m.status = "conversation cleared"
	case "/new":
		m.inflight = true
		m.status = "starting a new session"
		return m.newSessionCmd()
	case "/end":
		m.inflight = true
		m.status = "ending session"
		return m.endSessionCmd()
	case "/auto", "/autonomous":
		enabled, ok := parseToggle(arg, m.snap.Autonomous)
		if !ok {
			m.setError(fmt.Errorf("usage: /auto on|off"))
			return nil
		}
		m.console.SetAutonomous(enabled)
		m.status = "autonomous mode " + onOff(enabled)
	case "/monitor", "/monitoring":
		enabled, ok := parseToggle(arg, m.snap.Monitoring)
		if !ok {
			m.setError(fmt.Errorf("usage: /monitor on|off"))
			return nil
		}
		m.console.SetMonitoring(enabled)
		m.status = "monitoring " + onOff(enabled)
	default:
		m.setError(fmt.Errorf("unknown command %s", parts[0]))
		return nil
	}
	m.failed = false
	m.snap = m.console.Snapshot()
	m.renderPanes()
	return nil
}

// parseToggle reads on/off; an empty argument flips current
func parseToggle(arg string, current bool) (bool, bool) {
	switch arg {
	case "":
		return !current, true
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	}
	return false, false
}

func (m *Model) setError(err error) {
	m.failed = true
	m.status = "error: " + compactLine(err.Error(), 160)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

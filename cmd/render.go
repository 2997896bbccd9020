package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chaospilot/incident-console/internal"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	agentMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true)

	transferStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

func speakerLabel(msg internal.Message) string {
	switch msg.Role {
	case internal.RoleUser:
		return userMessageStyle.Render("Operator")
	case internal.RoleError:
		return errorMessageStyle.Render("Error")
	case internal.RoleTransfer:
		return transferStyle.Render("Transfer")
	case internal.RoleThinking:
		return dateStyle.Render(internal.AgentDisplayName(msg.Agent) + " (thinking)")
	}
	if msg.Agent != "" {
		return agentMessageStyle.Render(internal.AgentDisplayName(msg.Agent))
	}
	return agentMessageStyle.Render(string(msg.Role))
}

// printMessages writes messages in conversation order. Structured payloads
// are shown as (optionally highlighted) JSON unless the text already
// carries its fenced block.
func printMessages(w io.Writer, messages []internal.Message, color bool) {
	for _, msg := range messages {
		header := speakerLabel(msg)
		if !msg.Timestamp.IsZero() {
			header += " " + timestampStyle.Render(msg.Timestamp.Local().Format("15:04:05"))
		}
		if msg.Confidence != nil {
			header += " " + countStyle.Render(fmt.Sprintf("%.0f%%", *msg.Confidence*100))
		}
		fmt.Fprintln(w, header)
		if content := strings.TrimSpace(msg.Content); content != "" {
			fmt.Fprintln(w, messageContentStyle.Render(wrapText(content, 100)))
		}
		if msg.StructuredData != nil && !strings.Contains(msg.Content, "```") {
			fmt.Fprintln(w, internal.FormatPayload(msg.StructuredData, color))
		}
		fmt.Fprintln(w)
	}
}

// printPhases writes the phase checklist
func printPhases(w io.Writer, phases []internal.WorkflowPhase) {
	for _, p := range phases {
		mark := "[ ]"
		switch p.Status {
		case internal.PhaseActive:
			mark = "[>]"
		case internal.PhaseCompleted:
			mark = "[x]"
		}
		fmt.Fprintf(w, "  %s %d. %s\n", mark, p.Number, p.Name)
	}
}

// printWorkflows writes one block per workflow with its actions
func printWorkflows(w io.Writer, workflows []internal.AutonomousWorkflow) {
	for _, wf := range workflows {
		fmt.Fprintf(w, "  %s %s [%s, %s, %.0f%%]\n",
			idStyle.Render(wf.ID), titleStyle.Render(wf.Name), wf.Status, wf.Priority, wf.Confidence*100)
		for _, a := range wf.Actions {
			fmt.Fprintf(w, "      - %s (%s, %s): %s\n", a.Name, a.Type, a.EstimatedTime, a.Status)
		}
	}
}

// wrapText breaks lines longer than width at word boundaries
func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			switch {
			case currentLine == "":
				currentLine = word
			case len(currentLine)+len(word)+1 > width:
				wrapped = append(wrapped, currentLine)
				currentLine = word
			default:
				currentLine += " " + word
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

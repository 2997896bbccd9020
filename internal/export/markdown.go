package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chaospilot/incident-console/internal"
)

var phaseMarks = map[internal.PhaseStatus]string{
	internal.PhasePending:   "[ ]",
	internal.PhaseActive:    "[>]",
	internal.PhaseCompleted: "[x]",
}

// MarkdownExporter exports transcripts in Markdown format
type MarkdownExporter struct{}

// Export writes a readable incident report: header, phase checklist,
// messages and any autonomous workflows
func (e *MarkdownExporter) Export(transcript *internal.Transcript, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# Session %s\n\n", transcript.SessionID)

	if transcript.AppName != "" {
		_, _ = fmt.Fprintf(w, "**App:** %s  \n", transcript.AppName)
	}
	if agents := transcript.Agents(); len(agents) > 0 {
		_, _ = fmt.Fprintf(w, "**Agents:** %s  \n", strings.Join(agents, ", "))
	}
	if !transcript.ExportedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Exported:** %s  \n", transcript.ExportedAt.UTC().Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(transcript.Messages))

	if len(transcript.Phases) > 0 {
		_, _ = fmt.Fprintf(w, "## Phases\n\n")
		for _, p := range transcript.Phases {
			_, _ = fmt.Fprintf(w, "- %s %d. %s\n", phaseMarks[p.Status], p.Number, p.Name)
		}
		_, _ = fmt.Fprintf(w, "\n")
	}

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range transcript.Messages {
		timestamp := ""
		if !msg.Timestamp.IsZero() {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp.UTC().Format(time.RFC3339))
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n", speaker(msg), timestamp)
		if msg.Content != "" {
			_, _ = fmt.Fprintf(w, "%s\n\n", escapeMarkdown(msg.Content))
		}
		if msg.StructuredData != nil && !strings.Contains(msg.Content, "```") {
			data, err := json.MarshalIndent(msg.StructuredData, "", "  ")
			if err != nil {
				return &internal.ExportError{Format: "md", Err: fmt.Errorf("failed to encode payload of %s: %w", msg.ID, err)}
			}
			_, _ = fmt.Fprintf(w, "```json\n%s\n```\n\n", data)
		}
		if msg.Confidence != nil {
			_, _ = fmt.Fprintf(w, "_Confidence: %.0f%%_\n\n", *msg.Confidence*100)
		}

		if i < len(transcript.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	if len(transcript.Workflows) > 0 {
		_, _ = fmt.Fprintf(w, "\n## Autonomous Workflows\n\n")
		for _, wf := range transcript.Workflows {
			_, _ = fmt.Fprintf(w, "### %s\n\n", wf.Name)
			_, _ = fmt.Fprintf(w, "Status: %s, priority: %s, confidence: %.0f%%\n\n", wf.Status, wf.Priority, wf.Confidence*100)
			for _, a := range wf.Actions {
				_, _ = fmt.Fprintf(w, "- %s (%s, %s)\n", a.Name, a.Type, a.Status)
			}
			if len(wf.Actions) > 0 {
				_, _ = fmt.Fprintf(w, "\n")
			}
		}
	}

	return nil
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
	if msg.Agent == "" {
		return string(msg.Role)
	}
	return internal.AgentDisplayName(msg.Agent)
}

// escapeMarkdown escapes emphasis markers outside fenced code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}

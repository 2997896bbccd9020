package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chaospilot/incident-console/internal"
	"github.com/spf13/cobra"
)

var (
	limit    int
	since    string
	archived bool
)

var (
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show the conversation of a session",
	Long: `Display the conversation of one session, rebuilt from the events the
agent server recorded. Without an id the current session is shown.

With --archived the transcript is read from the local archive instead, which
also works for sessions the server no longer holds. When the server cannot
be reached an archived copy is used if there is one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var sessionID string
		if len(args) > 0 {
			sessionID = args[0]
		} else {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			id, ok, err := store.CurrentSessionID()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no current session - pass a session id")
			}
			sessionID = id
		}

		var sinceTime time.Time
		if since != "" {
			sinceTime, err = time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp format (expected RFC3339): %w", err)
			}
		}

		t, err := loadTranscript(cmd, a, sessionID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		displayTranscriptHeader(out, t)
		messages := filterMessages(t.Messages, sinceTime)
		total := len(messages)
		if limit > 0 && limit < total {
			messages = messages[:limit]
		}
		printMessages(out, messages, internal.IsStdoutTerminal())

		if limit > 0 && limit < total {
			fmt.Fprintln(out, lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true).
				Render(fmt.Sprintf("... (%d more message(s))", total-limit)))
		}
		return nil
	},
}

func loadTranscript(cmd *cobra.Command, a *app, sessionID string) (*internal.Transcript, error) {
	if archived {
		return a.archive.Load(sessionID)
	}

	session, err := a.client.GetSession(commandContext(cmd), sessionID)
	if err != nil {
		t, archiveErr := a.archive.Load(sessionID)
		if archiveErr != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
		}
		internal.LogWarn("Agent server unavailable (%v), showing archived transcript", err)
		return t, nil
	}
	return internal.NewReconstructor().ReconstructTranscript(session)
}

// filterMessages keeps messages at or after since. A zero since keeps all.
func filterMessages(messages []internal.Message, since time.Time) []internal.Message {
	if since.IsZero() {
		return messages
	}
	filtered := make([]internal.Message, 0, len(messages))
	for _, msg := range messages {
		if !msg.Timestamp.Before(since) {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

func displayTranscriptHeader(w io.Writer, t *internal.Transcript) {
	title := t.FirstUserMessage()
	if title == "" {
		title = t.SessionID
	}
	fmt.Fprintln(w, sessionHeaderStyle.Render("💬 "+compact(title, 72)))

	metaParts := []string{
		"Session: " + t.SessionID,
		fmt.Sprintf("Messages: %d", len(t.Messages)),
	}
	if agents := t.Agents(); len(agents) > 0 {
		names := make([]string, len(agents))
		for i, agent := range agents {
			names[i] = internal.AgentDisplayName(agent)
		}
		metaParts = append(metaParts, "Agents: "+strings.Join(names, ", "))
	}
	if !t.ExportedAt.IsZero() {
		metaParts = append(metaParts, "Updated: "+t.ExportedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Fprintln(w)
}

func compact(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
	showCmd.Flags().StringVar(&since, "since", "", "Show messages since timestamp (RFC3339)")
	showCmd.Flags().BoolVar(&archived, "archived", false, "Read the transcript from the local archive")
}

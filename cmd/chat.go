package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chaospilot/incident-console/internal"
	"github.com/spf13/cobra"
)

var (
	chatNew    bool
	chatResume string
)

var promptStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("42")).
	Bold(true)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the agents line by line",
	Long: `Start a line-oriented conversation with the agent backend.

Each line is sent as one operator message; agent replies are printed as
they are ingested. Lines starting with a slash are local commands:

  /new       start a fresh session
  /clear     clear the local conversation
  /status    show phases, workflows and metrics
  /quit      leave (Ctrl+D works too)

The conversation is archived under the data directory on exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		console, err := a.newConsole()
		if err != nil {
			return err
		}

		ctx := commandContext(cmd)
		console.Start(ctx)

		switch {
		case chatResume != "":
			if err := console.Resume(ctx, chatResume); err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), console.Snapshot().Messages, internal.IsStdoutTerminal())
		case chatNew:
			if _, err := console.NewSession(); err != nil {
				return fmt.Errorf("failed to start session: %w", err)
			}
		}
		defer a.saveTranscript(console)

		return chatLoop(cmd, console)
	},
}

func chatLoop(cmd *cobra.Command, console *internal.Console) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	color := internal.IsStdoutTerminal()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, promptStyle.Render("you› "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/new":
			id, err := console.NewSession()
			if err != nil {
				internal.PrintError(err.Error())
				continue
			}
			internal.PrintInfo("New session " + id)
			continue
		case "/clear":
			console.ClearConversation()
			internal.PrintInfo("Conversation cleared")
			continue
		case "/status":
			printStatus(out, console.Snapshot())
			continue
		}

		var appended []internal.Message
		agent := internal.AgentDisplayName(internal.RouteMessage(line))
		_ = internal.ShowProgress(ctx, "Waiting for "+agent, func() error {
			appended = console.SendMessage(ctx, line)
			return nil
		})
		// The first message is the operator's own line.
		if len(appended) > 0 {
			printMessages(out, appended[1:], color)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// printStatus writes phases, workflows and metrics of a snapshot
func printStatus(w io.Writer, snap internal.DashboardSnapshot) {
	fmt.Fprintln(w, headerStyle.Render("Phases"))
	printPhases(w, snap.Phases)
	fmt.Fprintln(w, headerStyle.Render("Workflows"))
	printWorkflows(w, snap.Workflows)

	m := snap.Metrics
	fmt.Fprintln(w, headerStyle.Render("Metrics"))
	fmt.Fprintf(w, "  workflows: %d active, %d resolved, %d monitoring, %d%% success\n",
		m.ActiveWorkflows, m.ResolvedWorkflows, m.MonitoringWorkflows, m.SuccessRate)
	fmt.Fprintf(w, "  insights:  %d total, %d critical, %d actionable\n",
		m.TotalInsights, m.CriticalInsights, m.ActionableInsights)
	fmt.Fprintf(w, "  agents:    %d active, %d completed, %d%% efficiency\n",
		m.ActiveAgents, m.CompletedAgents, m.AgentEfficiency)
	if m.PendingApprovals > 0 {
		fmt.Fprintf(w, "  %d action(s) awaiting approval\n", m.PendingApprovals)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "Start a new session instead of continuing the current one")
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "Resume a session from the agent server and show its history")
}

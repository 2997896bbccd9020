package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chaospilot/incident-console/internal"
	"github.com/spf13/cobra"
)

var (
	sendSession string
	sendJSON    bool
	sendWait    bool
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <message>...",
	Short: "Send one message and print the agents' reply",
	Long: `Send a single operator message to the agent backend and print the
messages it produced. The current session is reused unless --session names
another one. A backend failure is reported and the command exits non-zero.

Agents that complete with data trigger autonomous workflows. Without --wait
the command exits as soon as the reply is printed and abandons them; with
--wait it lets their automated actions finish and prints the dashboard.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return fmt.Errorf("message is empty")
		}

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
		if sendSession != "" {
			if err := console.Resume(ctx, sendSession); err != nil {
				return err
			}
		}

		var appended []internal.Message
		agent := internal.AgentDisplayName(internal.RouteMessage(text))
		_ = internal.ShowProgress(ctx, "Waiting for "+agent, func() error {
			appended = console.SendMessage(ctx, text)
			return nil
		})
		a.saveTranscript(console)

		out := cmd.OutOrStdout()
		if sendJSON {
			data, err := json.MarshalIndent(appended, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal messages: %w", err)
			}
			fmt.Fprintln(out, string(data))
		} else if len(appended) > 0 {
			printMessages(out, appended[1:], internal.IsStdoutTerminal())
		}

		if sendWait {
			console.Engine().Wait()
			if !sendJSON {
				fmt.Fprintln(out)
				printStatus(out, console.Snapshot())
			}
		}

		for _, msg := range appended {
			if msg.Role == internal.RoleError {
				return fmt.Errorf("backend request failed: %s", msg.Content)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendSession, "session", "", "Resume this session before sending")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Print the appended messages as JSON")
	sendCmd.Flags().BoolVar(&sendWait, "wait", false, "Wait for triggered workflows to finish and print the dashboard")
}

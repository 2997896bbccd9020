package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chaospilot/incident-console/internal"
	"github.com/chaospilot/incident-console/internal/tui"
	"github.com/spf13/cobra"
)

var (
	dashboardNew    bool
	dashboardResume string
)

// dashboardCmd represents the dashboard command
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the terminal dashboard",
	Long: `Open a full-screen dashboard with the conversation, agent and phase
status, autonomous workflows and the insight feed.

Logs go to dashboard.log in the data directory while the dashboard is open.
Type /help inside the dashboard for its commands.`,
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

		logPath := filepath.Join(a.paths.BasePath, "dashboard.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return &internal.StorageError{Path: logPath, Op: "write", Err: err}
		}
		internal.SetLogOutput(logFile)
		defer func() {
			internal.SetLogOutput(os.Stderr)
			_ = logFile.Close()
		}()

		ctx := commandContext(cmd)
		switch {
		case dashboardResume != "":
			if err := console.Resume(ctx, dashboardResume); err != nil {
				return err
			}
		case dashboardNew:
			if _, err := console.NewSession(); err != nil {
				return fmt.Errorf("failed to start session: %w", err)
			}
		}
		console.Start(ctx)
		defer a.saveTranscript(console)

		return tui.Run(ctx, console, tui.Options{Color: true})
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().BoolVar(&dashboardNew, "new", false, "Start a fresh session")
	dashboardCmd.Flags().StringVar(&dashboardResume, "resume", "", "Resume this session")
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaospilot/incident-console/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	dataDir    string
	backendURL string
	appName    string
	userID     string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "incident-console",
	Short: "Operator console for a multi-agent incident response backend",
	Long: `An operator console for a multi-agent incident response backend.

Messages are relayed to the agent server, whose detector, planner,
recommender, fixer and notifier agents reply with events. The console
turns those events into a conversation, tracks the six response phases,
runs autonomous workflows for completed analyses and keeps a rolling
feed of operational insights.

Quick Start:
  incident-console chat                       # Talk to the agents
  incident-console send "db latency is up"    # One-shot message
  incident-console dashboard                  # Terminal dashboard
  incident-console serve                      # HTTP, WebSocket and SSE API
  incident-console sessions                   # Sessions on the agent server`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (YAML, JSON or JSONC; default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default $"+internal.DataDirEnv+" or ~/.incident-console)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "Agent server base URL (default "+internal.DefaultBaseURL+")")
	rootCmd.PersistentFlags().StringVar(&appName, "app", "", "Agent app name on the server")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User id for backend sessions")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

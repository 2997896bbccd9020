package cmd

import (
	"github.com/chaospilot/incident-console/internal"
	"github.com/chaospilot/incident-console/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the console over HTTP, WebSocket and SSE",
	Long: `Run the console as a service for web dashboards.

Endpoints:
  GET  /api/snapshot              full dashboard state
  POST /api/messages              send an operator message
  GET  /api/workflows, /api/insights, /api/sessions
  PUT  /api/autonomous, /api/monitoring
  GET  /ws                        snapshots over WebSocket
  GET  /api/events                snapshots as server-sent events
  GET  /metrics                   Prometheus metrics
  GET  /healthz

The server stops gracefully on interrupt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if cmd.Flags().Changed("addr") {
			a.cfg.Server.Addr = serveAddr
		}

		console, err := a.newConsole()
		if err != nil {
			return err
		}

		ctx := commandContext(cmd)
		console.Start(ctx)
		defer a.saveTranscript(console)

		internal.LogInfo("Agent backend: %s (app %s)", a.cfg.Backend.BaseURL, a.cfg.Backend.AppName)
		return server.New(console, a.cfg.Server).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, "+internal.DefaultServerAddr+")")
}

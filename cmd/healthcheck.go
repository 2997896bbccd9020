package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the console can reach its data and the agent server",
	Long: `Check the health of the console by verifying:
  • Data directory resolution
  • Config file loading
  • Local session database access
  • Agent server reachability
  • Agent app registration on the server

Use --verbose for paths and per-step details.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 Incident Console Health Check"))
		fmt.Fprintln(out)

		step(out, 1, "Resolving data directory and config...")
		a, err := loadApp(cmd)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to load configuration:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		defer a.Close()
		fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if verbose {
			fmt.Fprintf(out, "   Data directory: %s\n", a.paths.BasePath)
			if a.paths.ConfigExists() {
				fmt.Fprintf(out, "   Config file: %s\n", a.paths.ConfigPath)
			} else {
				fmt.Fprintf(out, "   Config file: none (defaults)\n")
			}
			fmt.Fprintf(out, "   Backend: %s (app %s, user %s)\n", a.cfg.Backend.BaseURL, a.cfg.Backend.AppName, a.cfg.Backend.UserID)
		}
		fmt.Fprintln(out)

		step(out, 2, "Opening local session database...")
		store, err := a.openStore()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to open database:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render("✅ Session database ready"))
		current, ok, err := store.CurrentSessionID()
		switch {
		case err != nil:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Current session unreadable:"), err)
		case ok:
			fmt.Fprintf(out, "   Current session: %s\n", current)
		case verbose:
			fmt.Fprintln(out, "   No current session")
		}
		if verbose {
			fmt.Fprintf(out, "   Database: %s\n", a.paths.DatabasePath)
			if n, err := a.paths.CountTranscripts(); err == nil {
				fmt.Fprintf(out, "   Archived transcripts: %d\n", n)
			}
		}
		fmt.Fprintln(out)

		ctx := commandContext(cmd)
		step(out, 3, "Contacting agent server...")
		apps, err := a.client.ListApps(ctx)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Agent server unreachable:"), err)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "   Start the agent server or point --backend at it.")
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Agent server reachable (%d app(s))", len(apps))))
		if verbose {
			for i, name := range apps {
				fmt.Fprintf(out, "   [%d] %s\n", i+1, name)
			}
		}
		fmt.Fprintln(out)

		step(out, 4, "Checking agent app registration...")
		if err := a.client.Ping(ctx); err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ "+err.Error()))
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ App %q is registered", a.cfg.Backend.AppName)))
		fmt.Fprintln(out)

		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		return nil
	},
}

func step(w io.Writer, n int, msg string) {
	fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("Step %d: %s", n, msg)))
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}

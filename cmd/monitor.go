package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chaospilot/incident-console/internal"
	"github.com/spf13/cobra"
)

var (
	monitorDuration time.Duration
	monitorJSON     bool
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run monitoring headless and print insights as they appear",
	Long: `Run the console without a UI, with monitoring and pattern analysis on,
and print every new insight and workflow status change.

With --json each event is one JSON object per line. --duration stops the
monitor after the given time; otherwise it runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		a.cfg.Monitoring = true
		console, err := a.newConsole()
		if err != nil {
			return err
		}

		ctx := commandContext(cmd)
		if monitorDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, monitorDuration)
			defer cancel()
		}

		console.Start(ctx)
		return monitorLoop(cmd.OutOrStdout(), console.Watch(ctx), monitorJSON)
	},
}

// monitorEvent is one line of --json output
type monitorEvent struct {
	Kind     string                       `json:"kind"`
	Insight  *internal.Insight            `json:"insight,omitempty"`
	Workflow *internal.AutonomousWorkflow `json:"workflow,omitempty"`
}

// monitorLoop prints what changed between consecutive snapshots until the
// channel closes. The channel closing on cancellation is a normal exit.
func monitorLoop(w io.Writer, snapshots <-chan internal.DashboardSnapshot, asJSON bool) error {
	seenInsights := make(map[string]bool)
	workflowStatus := make(map[string]internal.WorkflowStatus)
	enc := json.NewEncoder(w)

	for snap := range snapshots {
		// the log is newest first
		for i := len(snap.Insights) - 1; i >= 0; i-- {
			in := snap.Insights[i]
			if seenInsights[in.ID] {
				continue
			}
			seenInsights[in.ID] = true
			if asJSON {
				if err := enc.Encode(monitorEvent{Kind: "insight", Insight: &in}); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(w, "%s %s %s: %s\n",
				timestampStyle.Render(in.Timestamp.Local().Format("15:04:05")),
				severityLabel(in.Severity), titleStyle.Render(in.Title), in.Description)
		}

		for _, wf := range snap.Workflows {
			if prev, ok := workflowStatus[wf.ID]; ok && prev == wf.Status {
				continue
			}
			workflowStatus[wf.ID] = wf.Status
			if asJSON {
				if err := enc.Encode(monitorEvent{Kind: "workflow", Workflow: &wf}); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(w, "%s workflow %s %s → %s\n",
				timestampStyle.Render(snap.TakenAt.Local().Format("15:04:05")),
				idStyle.Render(wf.ID), wf.Name, wf.Status)
		}
	}

	return nil
}

func severityLabel(s internal.Severity) string {
	label := fmt.Sprintf("[%s]", s)
	switch s {
	case internal.SeverityCritical, internal.SeverityError:
		return errorStyle.Render(label)
	case internal.SeverityWarning:
		return warningStyle.Render(label)
	}
	return infoStyle.Render(label)
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 0, "Stop after this long (default: until interrupted)")
	monitorCmd.Flags().BoolVar(&monitorJSON, "json", false, "Print events as JSON lines")
}

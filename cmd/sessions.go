package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chaospilot/incident-console/internal"
	"github.com/spf13/cobra"
)

var sessionsLocal bool

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"list"},
	Short:   "List agent sessions",
	Long: `List the sessions the agent server holds for the configured app and
user, most recently updated first. With --local, list the sessions this
machine has used instead, as remembered in the local database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		store, err := a.openStore()
		if err != nil {
			return err
		}
		current, _, err := store.CurrentSessionID()
		if err != nil {
			internal.LogWarn("Failed to read current session: %v", err)
		}

		var sessions []internal.Session
		if sessionsLocal {
			sessions, err = store.RecentSessions()
		} else {
			sessions, err = a.client.ListSessions(commandContext(cmd))
		}
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		displaySessions(cmd.OutOrStdout(), internal.NewDeduplicator().DeduplicateByID(sessions), current)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>...",
	Short: "Delete sessions on the agent server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		store, err := a.openStore()
		if err != nil {
			return err
		}
		current, _, _ := store.CurrentSessionID()

		ctx := commandContext(cmd)
		for _, id := range args {
			if err := a.client.DeleteSession(ctx, id); err != nil {
				return fmt.Errorf("failed to delete session %s: %w", id, err)
			}
			if err := store.Forget(id); err != nil {
				internal.LogWarn("Failed to forget session %s: %v", id, err)
			}
			if id == current {
				if err := store.ClearCurrentSession(); err != nil {
					internal.LogWarn("Failed to clear current session: %v", err)
				}
			}
			internal.PrintSuccess("Deleted " + id)
		}
		return nil
	},
}

func displaySessions(w io.Writer, sessions []internal.Session, current string) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, headerStyle.Render("📋 No sessions found"))
		return
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt().After(sessions[j].UpdatedAt())
	})

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", len(sessions))))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, titleStyle.Render("ID")+"\t"+titleStyle.Render("Events")+"\t"+titleStyle.Render("Updated")+"\t"+titleStyle.Render("App")+"\t")
	_, _ = fmt.Fprintln(tw, strings.Repeat("─", 72))

	for _, s := range sessions {
		id := idStyle.Render(s.ID)
		if s.ID == current {
			id = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true).Render(s.ID + " *")
		}
		events := countStyle.Render(strconv.Itoa(len(s.Events)))
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", id, events, formatUpdated(s.UpdatedAt(), time.Now()), dateStyle.Render(s.AppName))
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(w, idStyle.Render("💡 Tip: ")+"incident-console show "+sessions[0].ID)
}

// formatUpdated renders t relative to now the way a session list reads best
func formatUpdated(t, now time.Time) string {
	if t.IsZero() {
		return dateStyle.Render("—")
	}
	t = t.Local()
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return dateStyle.Render(t.Format("Today 15:04"))
	case diff < 7*24*time.Hour:
		return dateStyle.Render(t.Format("Mon 15:04"))
	case diff < 365*24*time.Hour:
		return dateStyle.Render(t.Format("Jan 02 15:04"))
	default:
		return dateStyle.Render(t.Format("2006-01-02"))
	}
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.Flags().BoolVar(&sessionsLocal, "local", false, "List sessions remembered on this machine")
}

package cmd

import (
	"fmt"
	"os"

	"github.com/chaospilot/incident-console/internal"
	"github.com/chaospilot/incident-console/internal/export"
	"github.com/spf13/cobra"
)

var (
	format       string
	outputDir    string
	sessionID    string
	fromArchive  bool
	fetchWorkers int
	clearArchive bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export session transcripts to files",
	Long: `Export conversation transcripts to various formats (jsonl, md, yaml, json).

By default every session the agent server holds for the configured app and
user is fetched, rebuilt into a transcript and archived locally; unchanged
transcripts are not rewritten in the archive. With --archived only the
local archive is read, so no server is needed.

Use 'incident-console sessions' to see available session IDs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if clearArchive {
			if err := a.archive.Clear(); err != nil {
				internal.LogWarn("Failed to clear archive: %v", err)
			} else {
				internal.LogInfo("Archive cleared")
			}
		}

		ctx := commandContext(cmd)
		var transcripts []*internal.Transcript
		if fromArchive {
			err = internal.ShowProgress(ctx, "Loading archived transcripts", func() error {
				var loadErr error
				transcripts, loadErr = a.archive.LoadAll()
				return loadErr
			})
		} else {
			transcripts, err = fetchTranscripts(cmd, a)
		}
		if err != nil {
			return err
		}

		if sessionID != "" {
			filtered := make([]*internal.Transcript, 0, 1)
			for _, t := range transcripts {
				if t.SessionID == sessionID {
					filtered = append(filtered, t)
					break
				}
			}
			if len(filtered) == 0 {
				return fmt.Errorf("session not found: %s (use 'incident-console sessions' to see available sessions)", sessionID)
			}
			transcripts = filtered
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		exported := 0
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d transcript(s) to %s", len(transcripts), outputDir), func() error {
			for _, t := range transcripts {
				if _, err := exportTranscript(exporter, format, t, outputDir); err != nil {
					internal.LogError("Failed to export session %s: %v", t.SessionID, err)
					continue
				}
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d transcript(s) exported to %s", exported, outputDir))
		return nil
	},
}

// fetchTranscripts pulls sessions from the agent server, rebuilds their
// transcripts and archives them
func fetchTranscripts(cmd *cobra.Command, a *app) ([]*internal.Transcript, error) {
	ctx := commandContext(cmd)

	var ids []string
	var sessions []*internal.Session
	var transcripts []*internal.Transcript

	steps := []internal.ProgressStep{
		{
			Message: "Listing sessions",
			Fn: func() error {
				if sessionID != "" {
					ids = []string{sessionID}
					return nil
				}
				summaries, err := a.client.ListSessions(ctx)
				if err != nil {
					return err
				}
				for _, s := range internal.NewDeduplicator().DeduplicateByID(summaries) {
					ids = append(ids, s.ID)
				}
				return nil
			},
		},
		{
			Message: "Fetching session events",
			Fn: func() error {
				for session := range internal.FetchSessionsAsync(ctx, a.client, ids, fetchWorkers) {
					sessions = append(sessions, session)
				}
				return ctx.Err()
			},
		},
		{
			Message: "Rebuilding transcripts",
			Fn: func() error {
				transcripts = internal.NewReconstructor().ReconstructAll(sessions)
				return nil
			},
		},
		{
			Message: "Archiving transcripts",
			Fn: func() error {
				for _, t := range transcripts {
					if _, err := a.archive.Save(t); err != nil {
						internal.LogWarn("Failed to archive transcript %s: %v", t.SessionID, err)
					}
				}
				return nil
			},
		},
	}

	if err := internal.ShowProgressWithSteps(ctx, steps); err != nil {
		return nil, err
	}
	return transcripts, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringVar(&sessionID, "session-id", "", "Export a specific session by ID")
	exportCmd.Flags().BoolVar(&fromArchive, "archived", false, "Export from the local archive instead of the agent server")
	exportCmd.Flags().IntVar(&fetchWorkers, "workers", 4, "Concurrent session fetches")
	exportCmd.Flags().BoolVar(&clearArchive, "clear-archive", false, "Clear the local archive before running")
}

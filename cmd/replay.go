package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chaospilot/incident-console/internal"
	"github.com/chaospilot/incident-console/internal/export"
	"github.com/spf13/cobra"
)

var (
	replaySession string
	replayScale   time.Duration
	replayFormat  string
	replayOut     string
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <records.json>",
	Short: "Replay recorded backend events through the engine",
	Long: `Replay a file of backend response records (a JSON array, or a single
record) through the console without contacting the agent server.

Agents that complete with structured results trigger autonomous workflows,
which are walked to resolution with one estimated minute lasting
--execution-scale. The resulting conversation, phases and workflows are
printed, or written to --out in the chosen --format.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return &internal.StorageError{Path: args[0], Op: "read", Err: err}
		}
		records, err := internal.ParseResponseRecords(data)
		if err != nil {
			return fmt.Errorf("failed to parse records: %w", err)
		}
		if replayScale <= 0 {
			return fmt.Errorf("--execution-scale must be positive")
		}

		cfg := internal.DefaultConfig()
		cfg.Monitoring = false
		cfg.Workflow.ExecutionScale = internal.Duration(replayScale)
		console := internal.NewConsole(cfg, nil, nil, internal.ConsoleOptions{})

		id := replaySession
		if id == "" {
			id = internal.NewSessionID()
		}
		if err := console.Replay(id, records); err != nil {
			return err
		}

		t := console.Transcript()
		if replayOut != "" {
			return writeTranscript(t, replayFormat, replayOut)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Replayed %d record(s) into %d message(s)", len(records), len(t.Messages))))
		fmt.Fprintln(out)
		printMessages(out, t.Messages, internal.IsStdoutTerminal())
		printStatus(out, console.Snapshot())
		return nil
	},
}

// writeTranscript exports t into dir, named after its session id
func writeTranscript(t *internal.Transcript, format, dir string) error {
	exporter, err := export.NewExporter(format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &internal.StorageError{Path: dir, Op: "write", Err: err}
	}
	path, err := exportTranscript(exporter, format, t, dir)
	if err != nil {
		return err
	}
	internal.PrintSuccess(fmt.Sprintf("Wrote %s", path))
	return nil
}

func exportTranscript(exporter export.Exporter, format string, t *internal.Transcript, dir string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("session_%s.%s", t.SessionID, exporter.Extension()))
	file, err := os.Create(path)
	if err != nil {
		return "", &internal.ExportError{Format: format, Path: path, Err: err}
	}

	if err := exporter.Export(t, file); err != nil {
		_ = file.Close()
		return "", &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return "", &internal.ExportError{Format: format, Path: path, Err: err}
	}
	return path, nil
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replaySession, "session", "", "Session id for the replayed transcript (default: a new id)")
	replayCmd.Flags().DurationVar(&replayScale, "execution-scale", 10*time.Millisecond, "Wall time of one estimated workflow minute")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "md", "Output format with --out (jsonl, md, yaml, json)")
	replayCmd.Flags().StringVarP(&replayOut, "out", "o", "", "Write the transcript to this directory instead of printing it")
}

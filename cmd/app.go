package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chaospilot/incident-console/internal"
	"github.com/chaospilot/incident-console/internal/adk"
	"github.com/spf13/cobra"
)

// app carries what every command needs: the resolved config, data paths
// and a backend client. The session database is opened on demand.
type app struct {
	cfg     internal.Config
	paths   internal.DataPaths
	client  *adk.Client
	archive *internal.Archive

	db    *sql.DB
	store *internal.SessionStore
}

// loadApp resolves the data directory, loads the config file and applies
// the root flag overrides
func loadApp(cmd *cobra.Command) (*app, error) {
	paths, err := internal.DetectDataPaths(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	path := configPath
	if path == "" && paths.ConfigExists() {
		path = paths.ConfigPath
	}
	var cfg internal.Config
	if configPath != "" {
		cfg, err = internal.LoadConfig(path)
	} else {
		cfg, err = internal.LoadConfigOrDefault(path)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend.BaseURL = backendURL
	}
	if flags.Changed("app") {
		cfg.Backend.AppName = appName
	}
	if flags.Changed("user") {
		cfg.Backend.UserID = userID
	}
	if err := cfg.Validate(); err != nil {
		return nil, &internal.ConfigError{Path: path, Err: err}
	}

	if cfg.DataDir != "" && dataDir == "" {
		paths = internal.DataPathsAt(cfg.DataDir)
	}
	cfg.DataDir = paths.BasePath

	if !verbose {
		internal.SetLogLevel(cfg.Level())
	}
	internal.LogDebug("config: backend=%s app=%s user=%s data=%s",
		cfg.Backend.BaseURL, cfg.Backend.AppName, cfg.Backend.UserID, paths.BasePath)

	return &app{
		cfg:     cfg,
		paths:   paths,
		client:  adk.NewClient(cfg.Backend),
		archive: internal.NewArchive(paths.TranscriptsDir),
	}, nil
}

// openStore opens (and creates, if needed) the local session database
func (a *app) openStore() (*internal.SessionStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := a.paths.Ensure(); err != nil {
		return nil, err
	}
	db, err := internal.OpenDatabase(a.paths.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	a.db = db
	a.store = internal.NewSessionStore(db)
	return a.store, nil
}

// newConsole builds a console over the backend client and the local store
func (a *app) newConsole() (*internal.Console, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return internal.NewConsole(a.cfg, a.client, store, internal.ConsoleOptions{}), nil
}

// saveTranscript archives the console conversation if it has any messages
func (a *app) saveTranscript(console *internal.Console) {
	t := console.Transcript()
	if len(t.Messages) == 0 || t.SessionID == "" {
		return
	}
	written, err := a.archive.Save(t)
	if err != nil {
		internal.LogWarn("Failed to archive transcript %s: %v", t.SessionID, err)
		return
	}
	if written {
		internal.LogDebug("Archived transcript %s", t.SessionID)
	}
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// commandContext returns the command's context, or Background when the
// command was run without one
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirEnv overrides the default data directory
const DataDirEnv = "INCIDENT_CONSOLE_HOME"

// DataPaths holds the locations of the console's local state
type DataPaths struct {
	BasePath       string // data directory
	DatabasePath   string // kv session store
	TranscriptsDir string // transcript archive
	ConfigPath     string // default config file
}

// DetectDataPaths resolves the data directory. An explicit override wins,
// then $INCIDENT_CONSOLE_HOME, then ~/.incident-console.
func DetectDataPaths(override string) (DataPaths, error) {
	base := override
	if base == "" {
		base = os.Getenv(DataDirEnv)
	}
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DataPaths{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".incident-console")
	}
	return DataPathsAt(base), nil
}

// DataPathsAt lays out the data paths under base
func DataPathsAt(base string) DataPaths {
	return DataPaths{
		BasePath:       base,
		DatabasePath:   filepath.Join(base, "console.db"),
		TranscriptsDir: filepath.Join(base, "transcripts"),
		ConfigPath:     filepath.Join(base, "config.yaml"),
	}
}

// Ensure creates the data and transcript directories
func (p DataPaths) Ensure() error {
	for _, dir := range []string{p.BasePath, p.TranscriptsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &StorageError{Path: dir, Op: "write", Err: err}
		}
	}
	return nil
}

// DatabaseExists checks if the session database has been created
func (p DataPaths) DatabaseExists() bool {
	_, err := os.Stat(p.DatabasePath)
	return err == nil
}

// ConfigExists checks if the default config file is present
func (p DataPaths) ConfigExists() bool {
	info, err := os.Stat(p.ConfigPath)
	return err == nil && !info.IsDir()
}

// CountTranscripts returns the number of archived transcript files
func (p DataPaths) CountTranscripts() (int, error) {
	matches, err := filepath.Glob(filepath.Join(p.TranscriptsDir, "transcript_*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to scan transcripts directory: %w", err)
	}
	return len(matches), nil
}

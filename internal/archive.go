package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const archiveVersion = "1.0"

// Archive stores conversation transcripts on disk: one JSON file per
// session plus a YAML index
type Archive struct {
	dir string
}

// ArchiveMetadata stores metadata about the archive
type ArchiveMetadata struct {
	Version   string    `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// TranscriptIndexEntry represents one archived transcript in the index
type TranscriptIndexEntry struct {
	SessionID    string    `yaml:"session_id"`
	Title        string    `yaml:"title,omitempty"`
	Agents       []string  `yaml:"agents,omitempty"`
	MessageCount int       `yaml:"message_count"`
	UpdatedAt    time.Time `yaml:"updated_at"`
	ContentHash  string    `yaml:"content_hash"`
}

// TranscriptIndex represents the YAML index of all transcripts
type TranscriptIndex struct {
	Transcripts []TranscriptIndexEntry `yaml:"transcripts"`
	Metadata    ArchiveMetadata        `yaml:"metadata"`
}

// NewArchive creates an archive rooted at dir
func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// Dir returns the archive directory path
func (a *Archive) Dir() string {
	return a.dir
}

// EnsureDir ensures the archive directory exists
func (a *Archive) EnsureDir() error {
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return &StorageError{Path: a.dir, Op: "write", Err: err}
	}
	return nil
}

// IndexPath returns the path to the transcript index YAML file
func (a *Archive) IndexPath() string {
	return filepath.Join(a.dir, "transcripts.yaml")
}

// TranscriptPath returns the path to a session's transcript file
func (a *Archive) TranscriptPath(sessionID string) string {
	return filepath.Join(a.dir, fmt.Sprintf("transcript_%s.json", sessionID))
}

// LoadIndex loads the transcript index. A missing index is an empty one.
func (a *Archive) LoadIndex() (*TranscriptIndex, error) {
	data, err := os.ReadFile(a.IndexPath())
	if errors.Is(err, os.ErrNotExist) {
		return &TranscriptIndex{Transcripts: []TranscriptIndexEntry{}}, nil
	}
	if err != nil {
		return nil, &StorageError{Path: a.IndexPath(), Op: "read", Err: err}
	}

	var index TranscriptIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, &ParseError{Source: "archive", Key: a.IndexPath(), Err: err}
	}
	return &index, nil
}

// SaveIndex saves the transcript index
func (a *Archive) SaveIndex(index *TranscriptIndex) error {
	if err := a.EnsureDir(); err != nil {
		return err
	}

	data, err := yaml.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := os.WriteFile(a.IndexPath(), data, 0644); err != nil {
		return &StorageError{Path: a.IndexPath(), Op: "write", Err: err}
	}
	return nil
}

// Save writes a transcript and updates the index. It reports false when
// the archived copy already has the same content and nothing was written.
func (a *Archive) Save(t *Transcript) (bool, error) {
	if t.SessionID == "" {
		return false, fmt.Errorf("transcript has no session id")
	}

	index, err := a.LoadIndex()
	if err != nil {
		return false, err
	}

	hash := NewDeduplicator().ContentHash(t)
	pos := -1
	for i, entry := range index.Transcripts {
		if entry.SessionID == t.SessionID {
			pos = i
			break
		}
	}
	if pos >= 0 && index.Transcripts[pos].ContentHash == hash {
		if _, err := os.Stat(a.TranscriptPath(t.SessionID)); err == nil {
			LogDebug("transcript %s unchanged, skipping write", t.SessionID)
			return false, nil
		}
	}

	if err := a.writeTranscript(t); err != nil {
		return false, err
	}

	now := time.Now().UTC()
	entry := TranscriptIndexEntry{
		SessionID:    t.SessionID,
		Title:        truncateTitle(t.FirstUserMessage(), 60),
		Agents:       t.Agents(),
		MessageCount: len(t.Messages),
		UpdatedAt:    now,
		ContentHash:  hash,
	}
	if pos >= 0 {
		index.Transcripts[pos] = entry
	} else {
		index.Transcripts = append(index.Transcripts, entry)
	}

	if index.Metadata.CreatedAt.IsZero() {
		index.Metadata.CreatedAt = now
		index.Metadata.Version = archiveVersion
	}
	index.Metadata.UpdatedAt = now

	sort.SliceStable(index.Transcripts, func(i, j int) bool {
		return index.Transcripts[i].UpdatedAt.After(index.Transcripts[j].UpdatedAt)
	})

	return true, a.SaveIndex(index)
}

func (a *Archive) writeTranscript(t *Transcript) error {
	if err := a.EnsureDir(); err != nil {
		return err
	}

	path := a.TranscriptPath(t.SessionID)
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &StorageError{Path: path, Op: "write", Err: err}
	}
	return nil
}

// Load loads a single transcript from its file
func (a *Archive) Load(sessionID string) (*Transcript, error) {
	path := a.TranscriptPath(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "read", Err: err}
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &ParseError{Source: "archive", Key: path, Err: err}
	}
	return &t, nil
}

// LoadAll loads every indexed transcript, most recently updated first.
// Unreadable transcripts are logged and skipped.
func (a *Archive) LoadAll() ([]*Transcript, error) {
	index, err := a.LoadIndex()
	if err != nil {
		return nil, err
	}

	transcripts := make([]*Transcript, 0, len(index.Transcripts))
	for _, entry := range index.Transcripts {
		t, err := a.Load(entry.SessionID)
		if err != nil {
			LogWarn("Failed to load transcript %s: %v", entry.SessionID, err)
			continue
		}
		transcripts = append(transcripts, t)
	}
	return transcripts, nil
}

// Remove deletes one transcript and its index entry
func (a *Archive) Remove(sessionID string) error {
	index, err := a.LoadIndex()
	if err != nil {
		return err
	}

	kept := index.Transcripts[:0]
	for _, entry := range index.Transcripts {
		if entry.SessionID != sessionID {
			kept = append(kept, entry)
		}
	}
	index.Transcripts = kept

	if err := os.Remove(a.TranscriptPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return &StorageError{Path: a.TranscriptPath(sessionID), Op: "write", Err: err}
	}
	return a.SaveIndex(index)
}

// Clear deletes every transcript and the index
func (a *Archive) Clear() error {
	index, err := a.LoadIndex()
	if err == nil {
		for _, entry := range index.Transcripts {
			_ = os.Remove(a.TranscriptPath(entry.SessionID))
		}
	}

	if err := os.Remove(a.IndexPath()); err != nil && !os.IsNotExist(err) {
		return &StorageError{Path: a.IndexPath(), Op: "write", Err: err}
	}
	return nil
}

func truncateTitle(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

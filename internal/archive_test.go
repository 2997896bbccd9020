package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chaospilot/incident-console/testutil"
)

func sampleTranscript(id string) *Transcript {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Transcript{
		SessionID: id,
		AppName:   "agent_manager",
		Messages: []Message{
			{ID: "m1", Role: RoleUser, Content: "payments api is   throwing 500s", Timestamp: at},
			{ID: "m2", Role: RoleAssistant, Agent: "detector", Content: "found anomalies", Timestamp: at.Add(time.Second)},
			{ID: "m3", Role: RoleAssistant, Agent: "planner", Content: "plan ready", Timestamp: at.Add(2 * time.Second)},
		},
		Phases:     DefaultPhases(),
		ExportedAt: at,
	}
}

func TestArchive_Paths(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	a := NewArchive(dir)

	if got, want := a.IndexPath(), filepath.Join(dir, "transcripts.yaml"); got != want {
		t.Errorf("IndexPath() = %q, want %q", got, want)
	}
	if got, want := a.TranscriptPath("sess-1"), filepath.Join(dir, "transcript_sess-1.json"); got != want {
		t.Errorf("TranscriptPath() = %q, want %q", got, want)
	}
}

func TestArchive_SaveAndLoad(t *testing.T) {
	a := NewArchive(filepath.Join(testutil.CreateTempDir(t), "transcripts"))

	index, err := a.LoadIndex()
	if err != nil || len(index.Transcripts) != 0 {
		t.Fatalf("LoadIndex() on empty archive = %v, %v", index, err)
	}

	written, err := a.Save(sampleTranscript("sess-1"))
	if err != nil || !written {
		t.Fatalf("Save() = %v, %v", written, err)
	}

	got, err := a.Load("sess-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Messages) != 3 || got.Messages[1].Agent != "detector" {
		t.Errorf("Load() messages = %+v", got.Messages)
	}

	index, _ = a.LoadIndex()
	if len(index.Transcripts) != 1 {
		t.Fatalf("index has %d entries", len(index.Transcripts))
	}
	entry := index.Transcripts[0]
	if entry.Title != "payments api is throwing 500s" {
		t.Errorf("Title = %q", entry.Title)
	}
	if strings.Join(entry.Agents, ",") != "detector,planner" {
		t.Errorf("Agents = %v", entry.Agents)
	}
	if entry.MessageCount != 3 || entry.ContentHash == "" {
		t.Errorf("entry = %+v", entry)
	}
	if index.Metadata.Version != archiveVersion {
		t.Errorf("Version = %q", index.Metadata.Version)
	}
}

func TestArchive_SaveSkipsUnchanged(t *testing.T) {
	a := NewArchive(testutil.CreateTempDir(t))
	if _, err := a.Save(sampleTranscript("sess-1")); err != nil {
		t.Fatal(err)
	}

	again := sampleTranscript("sess-1")
	again.ExportedAt = again.ExportedAt.Add(time.Hour)
	written, err := a.Save(again)
	if err != nil || written {
		t.Errorf("Save() of unchanged content = %v, %v; want false, nil", written, err)
	}

	grown := sampleTranscript("sess-1")
	grown.Messages = append(grown.Messages, Message{Role: RoleAssistant, Agent: "fixer", Content: "applied"})
	written, err = a.Save(grown)
	if err != nil || !written {
		t.Errorf("Save() of changed content = %v, %v; want true, nil", written, err)
	}

	index, _ := a.LoadIndex()
	if len(index.Transcripts) != 1 || index.Transcripts[0].MessageCount != 4 {
		t.Errorf("index after update = %+v", index.Transcripts)
	}
}

func TestArchive_LoadAllRemoveClear(t *testing.T) {
	a := NewArchive(testutil.CreateTempDir(t))
	for _, id := range []string{"sess-1", "sess-2", "sess-3"} {
		if _, err := a.Save(sampleTranscript(id)); err != nil {
			t.Fatal(err)
		}
	}

	// A transcript file that went missing is skipped, not fatal.
	if err := os.Remove(a.TranscriptPath("sess-2")); err != nil {
		t.Fatal(err)
	}
	all, err := a.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("LoadAll() = %d transcripts, want 2", len(all))
	}

	if err := a.Remove("sess-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	index, _ := a.LoadIndex()
	if len(index.Transcripts) != 2 {
		t.Errorf("index after Remove() = %d entries", len(index.Transcripts))
	}

	if err := a.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(a.IndexPath()); !os.IsNotExist(err) {
		t.Error("index survived Clear()")
	}
}

func TestArchive_Errors(t *testing.T) {
	a := NewArchive(testutil.CreateTempDir(t))

	if _, err := a.Save(&Transcript{}); err == nil {
		t.Error("Save() accepted a transcript without session id")
	}

	var storageErr *StorageError
	if _, err := a.Load("missing"); !errors.As(err, &storageErr) {
		t.Errorf("Load(missing) error = %v, want *StorageError", err)
	}

	testutil.WriteFile(t, a.Dir(), "transcripts.yaml", []byte("transcripts: [unclosed"))
	var parseErr *ParseError
	if _, err := a.LoadIndex(); !errors.As(err, &parseErr) {
		t.Errorf("LoadIndex() on corrupt file error = %v, want *ParseError", err)
	}
}

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"  spaced\n out ", 20, "spaced out"},
		{"abcdefghijkl", 8, "abcde..."},
	}
	for _, tt := range tests {
		if got := truncateTitle(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateTitle(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

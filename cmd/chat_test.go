package cmd

import (
	"strings"
	"testing"

	"github.com/chaospilot/incident-console/internal"
	"github.com/chaospilot/incident-console/testutil"
)

func TestChatCommand(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		args     []string
		want     []string
		archived int
	}{
		{
			name:     "message then quit",
			stdin:    "latency is up\n/quit\n",
			want:     []string{"you›", "Intelligent Detector", "Analysis complete."},
			archived: 1,
		},
		{
			name:  "status before any message",
			stdin: "/status\n",
			want:  []string{"Phases", "1. Analyze", "Workflows", "Proactive System Monitoring", "Metrics"},
		},
		{
			name:  "clear drops the conversation",
			stdin: "latency is up\n/clear\n",
			want:  []string{"Analysis complete."},
		},
		{
			name:     "resume prints history",
			stdin:    "",
			args:     []string{"--resume", "sess-old"},
			want:     []string{"Analysis complete."},
			archived: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := testutil.NewADKServer(t, testutil.DetectorRecords)
			backend.AddSession(t, "agent_manager", "chaospilot_user", "sess-old", testutil.DetectorRecords)
			dir := t.TempDir()

			args := append([]string{"chat", "--backend", backend.URL, "--data-dir", dir}, tt.args...)
			out, err := runCommand(t, tt.stdin, args...)
			if err != nil {
				t.Fatalf("chat failed: %v\n%s", err, out)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			if n, _ := internal.DataPathsAt(dir).CountTranscripts(); n != tt.archived {
				t.Errorf("archived %d transcript(s), want %d", n, tt.archived)
			}
		})
	}
}

func TestChatCommand_NewSession(t *testing.T) {
	backend := testutil.NewADKServer(t, testutil.DetectorRecords)
	dir := t.TempDir()

	if _, err := runCommand(t, "first\n", "chat", "--backend", backend.URL, "--data-dir", dir); err != nil {
		t.Fatal(err)
	}
	if _, err := runCommand(t, "second\n", "chat", "--new", "--backend", backend.URL, "--data-dir", dir); err != nil {
		t.Fatal(err)
	}

	runs := backend.Runs()
	if len(runs) != 2 {
		t.Fatalf("server saw %d runs, want 2", len(runs))
	}
	if runs[0]["sessionId"] == runs[1]["sessionId"] {
		t.Errorf("--new reused session %v", runs[0]["sessionId"])
	}
}

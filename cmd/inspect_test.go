package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaospilot/incident-console/testutil"
)

func TestInspectCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "console.db")
	testutil.CreateSQLiteFixture(t, dbPath)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    []string
	}{
		{
			name: "text report",
			args: []string{dbPath},
			want: []string{"Found 1 table(s)", "Table: kv", "key: TEXT [PRIMARY KEY]", "value: sess-fixture"},
		},
		{
			name: "no sample rows",
			args: []string{dbPath, "--sample", "0"},
			want: []string{"Rows: 1"},
		},
		{
			name:    "invalid format",
			args:    []string{dbPath, "--format", "xml"},
			wantErr: true,
		},
		{
			name:    "no database in data dir",
			args:    []string{"--data-dir", t.TempDir()},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCommand(t, "", append([]string{"inspect"}, tt.args...)...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("inspect error = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestInspectCommand_JSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "console.db")
	testutil.CreateSQLiteFixture(t, dbPath)

	out, err := runCommand(t, "", "inspect", dbPath, "--format", "json")
	if err != nil {
		t.Fatalf("inspect --format json failed: %v", err)
	}

	var report databaseReport
	testutil.JSONUnmarshal(t, []byte(out), &report)
	if len(report.Tables) != 1 || report.Tables[0].Name != "kv" || report.Tables[0].Rows != 1 {
		t.Fatalf("tables = %+v", report.Tables)
	}
	if got := report.Tables[0].Sample[0]["key"]; got != "adk_session_id" {
		t.Errorf("sample key = %q, want adk_session_id", got)
	}
}

func TestPrintValue(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"plain", "sess-1", "    value: sess-1\n"},
		{"json document", `[{"id":"sess-1"}]`, "(JSON):"},
		{"multi-line", "first\nsecond", "    value: first...\n"},
		{"long", strings.Repeat("x", 250), strings.Repeat("x", 200) + "...\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			printValue(&buf, "value", tt.value)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("printValue() = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

package cmd

import (
	"strings"
	"testing"

	"github.com/chaospilot/incident-console/testutil"
)

func TestHealthcheckCommand(t *testing.T) {
	backend := testutil.NewADKServer(t, "")

	closed := testutil.NewADKServer(t, "")
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    []string
	}{
		{
			name: "healthy",
			args: []string{"--backend", backend.URL},
			want: []string{"Configuration loaded", "Session database ready", "Agent server reachable (1 app(s))", "Health check passed"},
		},
		{
			name: "verbose lists details",
			args: []string{"--backend", backend.URL, "--verbose"},
			want: []string{"Data directory:", "Config file: none (defaults)", "[1] agent_manager"},
		},
		{
			name:    "unknown app",
			args:    []string{"--backend", backend.URL, "--app", "other_app"},
			wantErr: true,
			want:    []string{`app "other_app" not found`},
		},
		{
			name:    "server down",
			args:    []string{"--backend", closedURL},
			wantErr: true,
			want:    []string{"Agent server unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"healthcheck", "--data-dir", t.TempDir()}, tt.args...)
			out, err := runCommand(t, "", args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("healthcheck error = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

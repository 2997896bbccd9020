package adk

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chaospilot/incident-console/internal"
	"github.com/chaospilot/incident-console/testutil"
)

func newTestClient(t *testing.T, srv *testutil.ADKServer, streaming bool) *Client {
	t.Helper()
	cfg := internal.DefaultConfig().Backend
	cfg.BaseURL = srv.URL + "/"
	cfg.Streaming = streaming
	cfg.Timeout = internal.Duration(5 * time.Second)
	return NewClient(cfg)
}

func TestClient_CreateOrResumeSession(t *testing.T) {
	srv := testutil.NewADKServer(t, "")
	c := newTestClient(t, srv, false)
	ctx := context.Background()

	created, err := c.CreateOrResumeSession(ctx, "sess-1", map[string]any{"team": "payments"})
	if err != nil {
		t.Fatalf("CreateOrResumeSession() error = %v", err)
	}
	if created.ID != "sess-1" || created.AppName != internal.DefaultAppName || created.State["team"] != "payments" {
		t.Errorf("created = %+v", created)
	}

	// A second create hits "Session already exists" and resumes.
	resumed, err := c.CreateOrResumeSession(ctx, "sess-1", nil)
	if err != nil {
		t.Fatalf("CreateOrResumeSession() on existing id error = %v", err)
	}
	if resumed.ID != "sess-1" || resumed.State["team"] != "payments" {
		t.Errorf("resumed = %+v", resumed)
	}
}

func TestClient_SendMessage(t *testing.T) {
	for _, streaming := range []bool{false, true} {
		name := "json"
		if streaming {
			name = "event stream"
		}
		t.Run(name, func(t *testing.T) {
			srv := testutil.NewADKServer(t, testutil.DetectorRecords)
			c := newTestClient(t, srv, streaming)
			ctx := context.Background()

			if _, err := c.CreateOrResumeSession(ctx, "sess-1", nil); err != nil {
				t.Fatal(err)
			}
			records, err := c.SendMessage(ctx, "sess-1", internal.NewTextContent("check the logs"))
			if err != nil {
				t.Fatalf("SendMessage() error = %v", err)
			}
			if len(records) != 3 || records[2].Author != "detector" {
				t.Fatalf("records = %+v", records)
			}

			runs := srv.Runs()
			if len(runs) != 1 {
				t.Fatalf("server saw %d runs", len(runs))
			}
			if runs[0]["appName"] != internal.DefaultAppName || runs[0]["sessionId"] != "sess-1" {
				t.Errorf("run body = %v", runs[0])
			}
			if got, _ := runs[0]["streaming"].(bool); got != streaming {
				t.Errorf("streaming flag = %v, want %v", got, streaming)
			}

			session, err := c.GetSession(ctx, "sess-1")
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}
			if len(session.Events) != 4 || session.Events[0].Author != "user" {
				t.Errorf("session has %d events, want the operator event and 3 replies", len(session.Events))
			}
		})
	}
}

func TestClient_Errors(t *testing.T) {
	srv := testutil.NewADKServer(t, testutil.PlannerRecords)
	c := newTestClient(t, srv, false)
	ctx := context.Background()

	_, err := c.GetSession(ctx, "missing")
	var terr *internal.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("GetSession(missing) error = %v, want *TransportError", err)
	}
	if terr.StatusCode != http.StatusNotFound || terr.Op != "get_session" || terr.Err.Error() != "Session not found" {
		t.Errorf("TransportError = %+v", terr)
	}

	if _, err := c.CreateOrResumeSession(ctx, "sess-1", nil); err != nil {
		t.Fatal(err)
	}
	srv.FailRuns(1)
	_, err = c.SendMessage(ctx, "sess-1", internal.NewTextContent("hello"))
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusInternalServerError {
		t.Errorf("SendMessage() error = %v, want http 500", err)
	}

	unreachable := NewClient(internal.BackendConfig{BaseURL: "http://127.0.0.1:1", AppName: "a", UserID: "u", Timeout: internal.Duration(time.Second)})
	if err := unreachable.Ping(ctx); !errors.As(err, &terr) || terr.StatusCode != 0 {
		t.Errorf("Ping() on closed port error = %v", err)
	}
}

func TestClient_ListAndDelete(t *testing.T) {
	srv := testutil.NewADKServer(t, "")
	srv.AddSession(t, "agent_manager", "chaospilot_user", "sess-a", testutil.DetectorRecords)
	srv.AddSession(t, "agent_manager", "chaospilot_user", "sess-b", "")
	c := newTestClient(t, srv, false)
	ctx := context.Background()

	sessions, err := c.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("ListSessions() = %d sessions, want 2", len(sessions))
	}
	for _, s := range sessions {
		if len(s.Events) != 0 {
			t.Errorf("list entry %s carried events", s.ID)
		}
	}

	if err := c.DeleteSession(ctx, "sess-a"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if srv.HasSession("sess-a") {
		t.Error("session still on server after DeleteSession()")
	}
}

func TestClient_Ping(t *testing.T) {
	srv := testutil.NewADKServer(t, "")
	ctx := context.Background()

	if err := newTestClient(t, srv, false).Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	other := newTestClient(t, srv, false)
	other.appName = "billing"
	if err := other.Ping(ctx); err == nil || !strings.Contains(err.Error(), "billing") {
		t.Errorf("Ping() for unknown app error = %v", err)
	}
}

func TestErrorDetail(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"string detail", `{"detail": "Session already exists: x"}`, "Session already exists: x"},
		{"structured detail", `{"detail": [{"msg": "field required"}]}`, `[{"msg":"field required"}]`},
		{"plain body", "Internal\n  Server Error", "Internal Server Error"},
		{"empty", "", "empty response"},
		{"long body", strings.Repeat("x", 300), strings.Repeat("x", maxErrorBody) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorDetail([]byte(tt.payload)); got != tt.want {
				t.Errorf("errorDetail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseEventStream(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"id":"e1","author":"detector","timestamp":1,"content":{"parts":[{"text":"Anal"}]}}`,
		``,
		`: keep-alive`,
		`data: {"id":"e1","author":"detector","timestamp":1,"content":{"parts":[{"text":"Analysis done"}]}}`,
		``,
		`data: {"id":"e2","author":"planner","timestamp":2,"content":{"parts":[{"text":"Plan"}]}}`,
		`data: [DONE]`,
	}, "\n")

	records, err := parseEventStream([]byte(stream))
	if err != nil {
		t.Fatalf("parseEventStream() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Content.Parts[0].Text != "Analysis done" {
		t.Errorf("partial event not replaced: %q", records[0].Content.Parts[0].Text)
	}

	if _, err := parseEventStream([]byte("data: {broken")); err == nil {
		t.Error("parseEventStream() accepted broken json")
	}
}

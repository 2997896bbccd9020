package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chaospilot/incident-console/internal"
	"github.com/chaospilot/incident-console/internal/adk"
	"github.com/chaospilot/incident-console/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type calmSampler struct{}

func (calmSampler) Sample() internal.Signals {
	return internal.Signals{HealthScore: 0.95, ResponseTimeMs: 120, SecurityScore: 0.99, CPU: 20, Memory: 30}
}

func newTestServer(t *testing.T) (*Server, *testutil.ADKServer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := testutil.NewADKServer(t, testutil.DetectorRecords)
	cfg := internal.DefaultConfig()
	cfg.Backend.BaseURL = backend.URL
	cfg.Monitoring = false
	cfg.Server.PushInterval = internal.Duration(10 * time.Millisecond)
	cfg.Server.AllowedOrigins = []string{"http://dashboard.local"}

	sessions := internal.NewSessionStore(testutil.CreateInMemoryDB(t))
	console := internal.NewConsole(cfg, adk.NewClient(cfg.Backend), sessions, internal.ConsoleOptions{Sampler: calmSampler{}})
	return New(console, cfg.Server), backend
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Snapshot(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snap internal.DashboardSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.True(t, snap.Autonomous)
	require.False(t, snap.Monitoring)
	require.Len(t, snap.Workflows, 2)
	require.Len(t, snap.Insights, 2)
	require.Len(t, snap.Phases, 6)
	require.Equal(t, 2, snap.Metrics.MonitoringWorkflows)
}

func TestServer_SendMessage(t *testing.T) {
	srv, backend := newTestServer(t)
	h := srv.Handler()

	t.Run("relays and ingests", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/api/messages", map[string]string{"text": "check the payment logs"})
		require.Equal(t, http.StatusCreated, w.Code)

		var resp struct {
			Messages []internal.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Messages, 4)
		require.Equal(t, internal.RoleUser, resp.Messages[0].Role)
		require.Equal(t, "detector", resp.Messages[3].Agent)
		require.Len(t, backend.Runs(), 1)

		w = doJSON(t, h, http.MethodGet, "/api/agents", nil)
		var agents []internal.AgentState
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agents))
		require.NotEmpty(t, agents)
		require.Equal(t, "detector", agents[0].ID)
		require.Equal(t, internal.AgentCompleted, agents[0].Status)
	})

	t.Run("backend failure is part of the conversation", func(t *testing.T) {
		backend.FailRuns(1)
		w := doJSON(t, h, http.MethodPost, "/api/messages", map[string]string{"text": "again"})
		require.Equal(t, http.StatusCreated, w.Code)
		require.Contains(t, w.Body.String(), `"role":"error"`)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/api/messages", map[string]string{"text": "  "})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sessions listed from backend", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/sessions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var sessions []internal.Session
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
		require.Len(t, sessions, 1)
	})

	t.Run("clear", func(t *testing.T) {
		w := doJSON(t, h, http.MethodDelete, "/api/messages", nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(t, h, http.MethodGet, "/api/messages", nil)
		require.JSONEq(t, "[]", w.Body.String())
	})
}

func TestServer_Sessions(t *testing.T) {
	srv, backend := newTestServer(t)
	backend.AddSession(t, "agent_manager", "chaospilot_user", "sess-old", testutil.DetectorRecords)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/sessions/sess-old/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap internal.DashboardSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Equal(t, "sess-old", snap.SessionID)
	require.Len(t, snap.Messages, 3)

	w = doJSON(t, h, http.MethodPost, "/api/sessions/sess-missing/resume", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)

	w = doJSON(t, h, http.MethodDelete, "/api/sessions/current", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.False(t, backend.HasSession("sess-old"))

	w = doJSON(t, h, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), `"session_id":"sess-`)
}

func TestServer_Toggles(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPut, "/api/autonomous", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, h, http.MethodPut, "/api/monitoring", map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/healthz", nil)
	require.JSONEq(t, `{"status":"ok","session_id":"","autonomous":false,"monitoring":true}`, w.Body.String())

	w = doJSON(t, h, http.MethodPut, "/api/autonomous", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Workflows(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/workflows?status=monitoring", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var workflows []internal.AutonomousWorkflow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &workflows))
	require.Len(t, workflows, 2)

	w = doJSON(t, h, http.MethodGet, "/api/workflows/auto-security-001", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/workflows/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_MetricsAndCORS(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/insights", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "http://dashboard.local", w.Header().Get("Access-Control-Allow-Origin"))

	w = doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `incident_console_workflows{status="monitoring"} 2`)
	require.Contains(t, body, `incident_console_insights{type="recommendation"} 1`)
	require.Contains(t, body, `incident_console_http_requests_total{method="GET",route="/api/insights",status="200"} 1`)
}

func TestServer_EventStream(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var sawEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event:snapshot" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data:") {
			var snap internal.DashboardSnapshot
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &snap))
			require.Len(t, snap.Workflows, 2)
			return
		}
	}
	t.Fatalf("no snapshot event received: %v", scanner.Err())
}

func TestServer_WebSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	var first internal.DashboardSnapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	require.Empty(t, first.Messages)

	resp, err := http.Post(ts.URL+"/api/messages", "application/json", strings.NewReader(`{"text":"status?"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	for {
		var snap internal.DashboardSnapshot
		require.NoError(t, conn.ReadJSON(&snap))
		if len(snap.Messages) == 4 {
			return
		}
	}
}

func TestServer_WebSocketOrigin(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ADKServer is an in-process stand-in for the agent server. It keeps
// sessions in memory and answers every run with the same canned records.
type ADKServer struct {
	*httptest.Server

	mu       sync.Mutex
	sessions map[string]map[string]any
	reply    []map[string]any
	apps     []string
	runs     []map[string]any
	failRun  int
}

// NewADKServer starts a fake agent server answering runs with reply, a
// JSON array of records. It is closed when the test ends.
func NewADKServer(t *testing.T, reply string) *ADKServer {
	t.Helper()

	s := &ADKServer{
		sessions: make(map[string]map[string]any),
		apps:     []string{"agent_manager"},
	}
	if reply != "" {
		if err := json.Unmarshal([]byte(reply), &s.reply); err != nil {
			t.Fatalf("invalid reply fixture: %v", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /list-apps", s.listApps)
	mux.HandleFunc("GET /apps/{app}/users/{user}/sessions", s.listSessions)
	mux.HandleFunc("POST /apps/{app}/users/{user}/sessions/{id}", s.createSession)
	mux.HandleFunc("GET /apps/{app}/users/{user}/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /apps/{app}/users/{user}/sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /run", s.run)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// AddSession seeds a session holding events, a JSON array of records
func (s *ADKServer) AddSession(t *testing.T, app, user, id, events string) {
	t.Helper()
	var parsed []map[string]any
	if events != "" {
		if err := json.Unmarshal([]byte(events), &parsed); err != nil {
			t.Fatalf("invalid events fixture: %v", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = map[string]any{
		"id":             id,
		"appName":        app,
		"userId":         user,
		"state":          map[string]any{},
		"events":         toAny(parsed),
		"lastUpdateTime": 1700000000.0,
	}
}

// AddApp registers another agent app name
func (s *ADKServer) AddApp(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps = append(s.apps, name)
}

// FailRuns makes the next n runs answer 500
func (s *ADKServer) FailRuns(n int) {
	s.mu.Lock()
	s.failRun = n
	s.mu.Unlock()
}

// Runs returns the bodies posted to /run
func (s *ADKServer) Runs() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.runs...)
}

// HasSession reports whether the server knows the session id
func (s *ADKServer) HasSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *ADKServer) listApps(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	apps := append([]string(nil), s.apps...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, apps)
}

func (s *ADKServer) listSessions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []map[string]any{}
	for _, session := range s.sessions {
		summary := make(map[string]any, len(session))
		for k, v := range session {
			if k != "events" {
				summary[k] = v
			}
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *ADKServer) createSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		State map[string]any `json:"state"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": fmt.Sprintf("Session already exists: %s", id)})
		return
	}
	if body.State == nil {
		body.State = map[string]any{}
	}
	session := map[string]any{
		"id":             id,
		"appName":        r.PathValue("app"),
		"userId":         r.PathValue("user"),
		"state":          body.State,
		"events":         []any{},
		"lastUpdateTime": 1700000000.0,
	}
	s.sessions[id] = session
	writeJSON(w, http.StatusOK, session)
}

func (s *ADKServer) getSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Session not found"})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *ADKServer) deleteSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, r.PathValue("id"))
	w.WriteHeader(http.StatusOK)
}

func (s *ADKServer) run(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	s.runs = append(s.runs, body)
	if s.failRun > 0 {
		s.failRun--
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "agent crashed"})
		return
	}
	id, _ := body["sessionId"].(string)
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Session not found"})
		return
	}
	// the server records the operator message ahead of the agents' reply
	events, _ := session["events"].([]any)
	events = append(events, map[string]any{
		"id":           fmt.Sprintf("evt-user-%d", len(s.runs)),
		"invocationId": fmt.Sprintf("inv-user-%d", len(s.runs)),
		"author":       "user",
		"timestamp":    1699999999.0,
		"content":      body["newMessage"],
	})
	session["events"] = append(events, toAny(s.reply)...)
	reply := s.reply
	s.mu.Unlock()

	if streaming, _ := body["streaming"].(bool); streaming {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, record := range reply {
			data, _ := json.Marshal(record)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		}
		return
	}
	if reply == nil {
		reply = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, reply)
}

func toAny(records []map[string]any) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

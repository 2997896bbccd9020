// Package adk talks to the agent server over its REST API.
package adk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chaospilot/incident-console/internal"
)

// sessionExists is the detail the server returns when creating a session
// whose id is taken.
const sessionExists = "Session already exists"

// maxErrorBody caps how much of an error response ends up in messages
const maxErrorBody = 240

// Client implements internal.Transport against the agent server
type Client struct {
	baseURL   string
	appName   string
	userID    string
	streaming bool
	http      *http.Client
}

// NewClient creates a client from the backend configuration
func NewClient(cfg internal.BackendConfig) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		appName:   cfg.AppName,
		userID:    cfg.UserID,
		streaming: cfg.Streaming,
		http:      &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying http client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// BaseURL returns the server root the client talks to
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) sessionsURL() string {
	return fmt.Sprintf("%s/apps/%s/users/%s/sessions", c.baseURL, url.PathEscape(c.appName), url.PathEscape(c.userID))
}

func (c *Client) sessionURL(id string) string {
	return c.sessionsURL() + "/" + url.PathEscape(id)
}

// CreateOrResumeSession creates the session with the given id. If the
// server already has it, the existing session is fetched and returned.
func (c *Client) CreateOrResumeSession(ctx context.Context, sessionID string, state map[string]any) (*internal.Session, error) {
	if state == nil {
		state = map[string]any{}
	}
	endpoint := c.sessionURL(sessionID)

	var session internal.Session
	err := c.do(ctx, "create_session", http.MethodPost, endpoint, map[string]any{"state": state}, &session)
	if err == nil {
		return &session, nil
	}

	var terr *internal.TransportError
	if errors.As(err, &terr) && terr.StatusCode == http.StatusBadRequest && strings.Contains(terr.Err.Error(), sessionExists) {
		internal.LogDebug("[adk] session %s exists, resuming", sessionID)
		return c.GetSession(ctx, sessionID)
	}
	return nil, err
}

// SendMessage posts one operator message and returns the records of the
// whole exchange
func (c *Client) SendMessage(ctx context.Context, sessionID string, content internal.Content) ([]internal.ResponseRecord, error) {
	req := internal.RunRequest{
		AppName:    c.appName,
		UserID:     c.userID,
		SessionID:  sessionID,
		NewMessage: content,
		Streaming:  c.streaming,
	}

	endpoint := c.baseURL + "/run"
	resp, err := c.send(ctx, "run", http.MethodPost, endpoint, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &internal.TransportError{Op: "run", URL: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	var records []internal.ResponseRecord
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		records, err = parseEventStream(payload)
	} else {
		records, err = parseRunResponse(payload)
	}
	if err != nil {
		return nil, &internal.ParseError{Source: "record", Key: endpoint, Err: err}
	}

	internal.LogDebug("[adk] run on %s returned %d record(s)", sessionID, len(records))
	return records, nil
}

// GetSession fetches a session with its full event history
func (c *Client) GetSession(ctx context.Context, sessionID string) (*internal.Session, error) {
	var session internal.Session
	if err := c.do(ctx, "get_session", http.MethodGet, c.sessionURL(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions lists the user's sessions. Events are usually omitted by
// the server.
func (c *Client) ListSessions(ctx context.Context) ([]internal.Session, error) {
	var sessions []internal.Session
	if err := c.do(ctx, "list_sessions", http.MethodGet, c.sessionsURL(), nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes a session from the server
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, "delete_session", http.MethodDelete, c.sessionURL(sessionID), nil, nil)
}

// ListApps returns the agent apps the server hosts. It doubles as a
// reachability check.
func (c *Client) ListApps(ctx context.Context) ([]string, error) {
	var apps []string
	if err := c.do(ctx, "list_apps", http.MethodGet, c.baseURL+"/list-apps", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// Ping checks that the server answers and hosts the configured app
func (c *Client) Ping(ctx context.Context) error {
	apps, err := c.ListApps(ctx)
	if err != nil {
		return err
	}
	for _, app := range apps {
		if app == c.appName {
			return nil
		}
	}
	return fmt.Errorf("app %q not found on %s (available: %s)", c.appName, c.baseURL, strings.Join(apps, ", "))
}

// do sends a request and decodes a JSON response into out, if set
func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	resp, err := c.send(ctx, op, method, endpoint, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &internal.ParseError{Source: "response", Key: endpoint, Err: err}
	}
	return nil
}

// send performs the request and turns non-2xx statuses into a
// TransportError carrying the server's detail
func (c *Client) send(ctx context.Context, op, method, endpoint string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, &internal.TransportError{Op: op, URL: endpoint, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &internal.TransportError{Op: op, URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	internal.LogDebug("[adk] %s %s", method, endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &internal.TransportError{Op: op, URL: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &internal.TransportError{
			Op:         op,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Err:        errors.New(errorDetail(payload)),
		}
	}
	return resp, nil
}

// errorDetail extracts the "detail" field servers put in error bodies,
// falling back to the compacted raw body
func errorDetail(payload []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(body.Detail); err == nil {
			return string(b)
		}
	}
	text := strings.Join(strings.Fields(string(payload)), " ")
	if text == "" {
		return "empty response"
	}
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	return text
}

// parseRunResponse accepts either an array of records or a single record
func parseRunResponse(payload []byte) ([]internal.ResponseRecord, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, nil
	}
	return internal.ParseResponseRecords(trimmed)
}

// parseEventStream collects the JSON records carried by "data:" lines of
// a server-sent event stream. Partial records for the same event id are
// replaced by the last one seen.
func parseEventStream(payload []byte) ([]internal.ResponseRecord, error) {
	var records []internal.ResponseRecord
	index := make(map[string]int)

	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var record internal.ResponseRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("failed to decode stream event: %w", err)
		}
		if i, ok := index[record.ID]; ok && record.ID != "" {
			records[i] = record
			continue
		}
		if record.ID != "" {
			index[record.ID] = len(records)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}
	return records, nil
}

var _ internal.Transport = (*Client)(nil)

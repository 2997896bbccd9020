package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

// Part is one typed element of a backend message. At most one of Text,
// FunctionCall and FunctionResponse is normally set; anything else the
// backend sends is preserved in Extra.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// FunctionCall is a tool invocation emitted by an agent
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse is the result of a tool invocation
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// Content is an ordered list of parts with a role ("user" or "model")
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// EventActions carries the side-channel actions attached to a record
type EventActions struct {
	StateDelta           map[string]any `json:"stateDelta,omitempty"`
	ArtifactDelta        map[string]any `json:"artifactDelta,omitempty"`
	RequestedAuthConfigs map[string]any `json:"requestedAuthConfigs,omitempty"`
	TransferToAgent      string         `json:"transferToAgent,omitempty"`
}

// ResponseRecord is one event returned by the agent backend
type ResponseRecord struct {
	ID                 string        `json:"id,omitempty"`
	InvocationID       string        `json:"invocationId,omitempty"`
	Author             string        `json:"author"`
	Timestamp          float64       `json:"timestamp"` // seconds since epoch
	Content            *Content      `json:"content,omitempty"`
	Actions            *EventActions `json:"actions,omitempty"`
	LongRunningToolIDs []string      `json:"longRunningToolIds,omitempty"`
}

// RunRequest is the body posted to the backend's run endpoint
type RunRequest struct {
	AppName    string  `json:"appName"`
	UserID     string  `json:"userId"`
	SessionID  string  `json:"sessionId"`
	NewMessage Content `json:"newMessage"`
	Streaming  bool    `json:"streaming,omitempty"`
}

var knownPartFields = []string{"text", "functionCall", "functionResponse"}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (p *Part) UnmarshalJSON(data []byte) error {
	type plain Part
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, key := range knownPartFields {
		delete(fields, key)
	}

	*p = Part(decoded)
	if len(fields) > 0 {
		p.Extra = fields
	}
	return nil
}

// MarshalJSON writes the known fields merged with Extra.
func (p Part) MarshalJSON() ([]byte, error) {
	type plain Part
	known, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(p.Extra)+3)
	for k, v := range p.Extra {
		merged[k] = v
	}
	var knownFields map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownFields); err != nil {
		return nil, err
	}
	for k, v := range knownFields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// IsEmpty reports whether the part carries nothing at all.
func (p Part) IsEmpty() bool {
	return p.Text == "" && p.FunctionCall == nil && p.FunctionResponse == nil && len(p.Extra) == 0
}

// Tree returns the part as a generic JSON tree.
func (p Part) Tree() any {
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil
	}
	return tree
}

// ResultString returns the response's "result" field when it is a string.
func (r *FunctionResponse) ResultString() (string, bool) {
	if r == nil || r.Response == nil {
		return "", false
	}
	s, ok := r.Response["result"].(string)
	return s, ok
}

// Time converts the record's fractional-second timestamp.
func (r ResponseRecord) Time() time.Time {
	if r.Timestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(r.Timestamp * 1000))
}

// Parts returns the record's parts, tolerating a missing content block.
func (r ResponseRecord) Parts() []Part {
	if r.Content == nil {
		return nil
	}
	return r.Content.Parts
}

// NewTextContent builds a user message with a single text part.
func NewTextContent(text string) Content {
	return Content{Role: "user", Parts: []Part{{Text: text}}}
}

// ParseResponseRecords parses a JSON array of records. A single object is
// accepted too, since recorded fixtures often hold one event.
func ParseResponseRecords(data []byte) ([]ResponseRecord, error) {
	var records []ResponseRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var single ResponseRecord
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse response records: %w", err)
	}
	return []ResponseRecord{single}, nil
}

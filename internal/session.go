package internal

import (
	"time"
)

// Session is a backend conversation session as returned by the agent server
type Session struct {
	ID             string           `json:"id"`
	AppName        string           `json:"appName"`
	UserID         string           `json:"userId"`
	State          map[string]any   `json:"state,omitempty"`
	Events         []ResponseRecord `json:"events,omitempty"`
	LastUpdateTime float64          `json:"lastUpdateTime,omitempty"` // seconds
}

// UpdatedAt converts LastUpdateTime to a time.Time
func (s Session) UpdatedAt() time.Time {
	if s.LastUpdateTime == 0 {
		return time.Time{}
	}
	sec := int64(s.LastUpdateTime)
	nsec := int64((s.LastUpdateTime - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// Transcript is the exportable record of one conversation
type Transcript struct {
	SessionID  string               `json:"sessionId" yaml:"session_id"`
	AppName    string               `json:"appName,omitempty" yaml:"app_name,omitempty"`
	UserID     string               `json:"userId,omitempty" yaml:"user_id,omitempty"`
	Messages   []Message            `json:"messages" yaml:"messages"`
	Phases     []WorkflowPhase      `json:"phases,omitempty" yaml:"phases,omitempty"`
	Workflows  []AutonomousWorkflow `json:"workflows,omitempty" yaml:"workflows,omitempty"`
	ExportedAt time.Time            `json:"exportedAt" yaml:"exported_at"`
}

// Agents lists the distinct agents that authored messages, in order of
// first appearance.
func (t *Transcript) Agents() []string {
	seen := make(map[string]bool)
	var agents []string
	for _, msg := range t.Messages {
		if msg.Agent == "" || seen[msg.Agent] {
			continue
		}
		seen[msg.Agent] = true
		agents = append(agents, msg.Agent)
	}
	return agents
}

// FirstUserMessage returns the operator's opening message, used as a title
func (t *Transcript) FirstUserMessage() string {
	for _, msg := range t.Messages {
		if msg.Role == RoleUser {
			return msg.Content
		}
	}
	return ""
}

package internal

import (
	"fmt"
	"sync"
	"time"

	"github.com/chaospilot/incident-console/internal/clock"
	"github.com/google/uuid"
)

// Role is the conversational role of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleThinking  Role = "thinking"
	RoleTransfer  Role = "transfer"
	RoleError     Role = "error"
)

// Message is one entry of the conversation. Messages are never modified
// after they are appended.
type Message struct {
	ID             string    `json:"id" yaml:"id"`
	Role           Role      `json:"role" yaml:"role"`
	Content        string    `json:"content" yaml:"content"`
	Agent          string    `json:"agent,omitempty" yaml:"agent,omitempty"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	StructuredData any       `json:"structuredData,omitempty" yaml:"structuredData,omitempty"`
	Confidence     *float64  `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	ToolsUsed      []string  `json:"toolsUsed,omitempty" yaml:"toolsUsed,omitempty"`
}

// ConversationLog is the append-only, ordered message list. It is the
// only owner of message identity; readers get copies.
type ConversationLog struct {
	mu       sync.Mutex
	messages []Message
	clock    clock.Clock
	feed     *Feed[[]Message]
}

// NewConversationLog creates an empty log
func NewConversationLog(clk clock.Clock) *ConversationLog {
	if clk == nil {
		clk = clock.Real()
	}
	return &ConversationLog{clock: clk, feed: NewFeed[[]Message]()}
}

// Append converts a fact into a message and appends it.
func (l *ConversationLog) Append(fact Fact, agent string) Message {
	msg := Message{Agent: agent, Timestamp: fact.Timestamp}

	switch fact.Kind {
	case FactText:
		msg.Role = RoleAssistant
		msg.Content = fact.Content
		msg.StructuredData = fact.Payload
	case FactTransferStart:
		msg.Role = RoleTransfer
		msg.Content = fmt.Sprintf("Transferring to %s...", fact.Agent)
		if fact.Tool != "" {
			msg.ToolsUsed = []string{fact.Tool}
		}
	case FactTransferComplete:
		msg.Role = RoleTransfer
		msg.Content = fmt.Sprintf("Transfer to %s complete.", fact.Agent)
	case FactStructuredResult:
		msg.Role = RoleAssistant
		msg.StructuredData = fact.Payload
	}
	msg.Confidence = payloadConfidence(msg.StructuredData)

	return l.push(msg)
}

// AppendUser appends an operator message.
func (l *ConversationLog) AppendUser(content string) Message {
	return l.push(Message{Role: RoleUser, Content: content})
}

// AppendThinking appends a transient reasoning note for an agent.
func (l *ConversationLog) AppendThinking(agent, content string) Message {
	return l.push(Message{Role: RoleThinking, Agent: agent, Content: content})
}

// AppendError records an upstream failure as a single error message.
func (l *ConversationLog) AppendError(err error) Message {
	return l.push(Message{Role: RoleError, Content: fmt.Sprintf("Error: %v", err)})
}

func (l *ConversationLog) push(msg Message) Message {
	l.mu.Lock()
	msg.ID = uuid.NewString()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.clock.Now()
	}
	l.messages = append(l.messages, copyMessage(msg))
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.feed.Publish(snapshot)
	return copyMessage(msg)
}

// Messages returns a copy of the ordered message list.
func (l *ConversationLog) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Len returns the number of messages.
func (l *ConversationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Clear empties the log.
func (l *ConversationLog) Clear() {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()

	l.feed.Publish([]Message{})
}

// Subscribe streams the full message list after every change.
func (l *ConversationLog) Subscribe() (<-chan []Message, func()) {
	return l.feed.Subscribe(l.Messages())
}

func (l *ConversationLog) snapshotLocked() []Message {
	out := make([]Message, len(l.messages))
	for i, msg := range l.messages {
		out[i] = copyMessage(msg)
	}
	return out
}

// copyMessage detaches msg from every reference type it holds.
func copyMessage(msg Message) Message {
	msg.StructuredData = cloneTree(msg.StructuredData)
	if msg.Confidence != nil {
		c := *msg.Confidence
		msg.Confidence = &c
	}
	if msg.ToolsUsed != nil {
		msg.ToolsUsed = append([]string(nil), msg.ToolsUsed...)
	}
	return msg
}

// cloneTree deep-copies a decoded JSON value. Maps and slices are copied
// recursively; scalars are returned as is.
func cloneTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneTree(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneTree(child)
		}
		return out
	default:
		return v
	}
}

// payloadConfidence reads confidence_score, then confidence, from an
// object payload. Values outside [0,1] are ignored.
func payloadConfidence(payload any) *float64 {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range []string{"confidence_score", "confidence"} {
		if v, ok := obj[key].(float64); ok && v >= 0 && v <= 1 {
			return &v
		}
	}
	return nil
}

package internal

import (
	"time"
)

// CreateTestTranscript creates a transcript with a short detector exchange
func CreateTestTranscript(id string) *Transcript {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	confidence := 0.9
	messages := []Message{
		{ID: id + "-1", Role: RoleUser, Content: "Why is checkout failing?", Timestamp: at},
		{ID: id + "-2", Role: RoleTransfer, Agent: "agent_manager", Content: "Transferring to detector...", ToolsUsed: []string{"transfer_to_detector"}, Timestamp: at.Add(time.Second)},
		{
			ID:             id + "-3",
			Role:           RoleAssistant,
			Agent:          "detector",
			Content:        "Found 12 errors in the checkout service.",
			StructuredData: map[string]any{"total_error_logs": 12.0, "confidence_score": confidence},
			Confidence:     &confidence,
			Timestamp:      at.Add(2 * time.Second),
		},
	}
	return &Transcript{
		SessionID:  id,
		AppName:    DefaultAppName,
		UserID:     DefaultUserID,
		Messages:   messages,
		Phases:     ComputePhases(messages),
		ExportedAt: at.Add(time.Minute),
	}
}

// CreateTestTranscriptWithMessages creates a transcript with custom messages
func CreateTestTranscriptWithMessages(id string, messages []Message) *Transcript {
	return &Transcript{
		SessionID:  id,
		AppName:    DefaultAppName,
		Messages:   messages,
		Phases:     ComputePhases(messages),
		ExportedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// CreateTestSession creates a backend session holding the given events
func CreateTestSession(id string, events []ResponseRecord) *Session {
	return &Session{
		ID:             id,
		AppName:        DefaultAppName,
		UserID:         DefaultUserID,
		State:          map[string]any{},
		Events:         events,
		LastUpdateTime: 1772366400,
	}
}

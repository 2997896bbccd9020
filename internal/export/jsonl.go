package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chaospilot/incident-console/internal"
)

// JSONLExporter exports transcripts in JSONL format (one message per line)
type JSONLExporter struct{}

// Export writes each message as a single JSON line
func (e *JSONLExporter) Export(transcript *internal.Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range transcript.Messages {
		obj := map[string]interface{}{
			"session": transcript.SessionID,
			"role":    msg.Role,
			"content": msg.Content,
		}
		if msg.Agent != "" {
			obj["agent"] = msg.Agent
		}
		if !msg.Timestamp.IsZero() {
			obj["timestamp"] = msg.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		if msg.StructuredData != nil {
			obj["structuredData"] = msg.StructuredData
		}
		if msg.Confidence != nil {
			obj["confidence"] = *msg.Confidence
		}

		if err := enc.Encode(obj); err != nil {
			return &internal.ExportError{Format: "jsonl", Err: fmt.Errorf("failed to encode message %s: %w", msg.ID, err)}
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}

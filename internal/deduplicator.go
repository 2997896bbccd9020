package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Deduplicator removes duplicate sessions and detects unchanged transcripts
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// DeduplicateByID keeps the first occurrence of each session id,
// preserving order
func (d *Deduplicator) DeduplicateByID(sessions []Session) []Session {
	seen := make(map[string]bool)
	unique := make([]Session, 0, len(sessions))

	for _, session := range sessions {
		if session.ID == "" || seen[session.ID] {
			continue
		}
		seen[session.ID] = true
		unique = append(unique, session)
	}

	return unique
}

// ContentHash creates a content-based hash for a transcript's messages.
// Message ids and export time are excluded, so replaying the same
// conversation produces the same hash.
func (d *Deduplicator) ContentHash(t *Transcript) string {
	h := sha256.New()

	for _, msg := range t.Messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Agent))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(msg.Timestamp.UnixMilli(), 10)))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

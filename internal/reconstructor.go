package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chaospilot/incident-console/internal/clock"
)

// Reconstructor rebuilds transcripts from the event history of recorded
// backend sessions
type Reconstructor struct {
	normalizer *Normalizer
}

// NewReconstructor creates a new Reconstructor
func NewReconstructor() *Reconstructor {
	return &Reconstructor{normalizer: NewNormalizer()}
}

// ReconstructTranscript replays a session's events into a transcript with
// its messages and phase states
func (r *Reconstructor) ReconstructTranscript(session *Session) (*Transcript, error) {
	if session == nil {
		return nil, fmt.Errorf("session is nil")
	}

	exportedAt := session.UpdatedAt()
	if exportedAt.IsZero() {
		exportedAt = time.Now().UTC()
	}

	log := NewConversationLog(clock.Fake(exportedAt))
	replayRecords(r.normalizer, log, session.Events, nil)
	messages := log.Messages()

	return &Transcript{
		SessionID:  session.ID,
		AppName:    session.AppName,
		UserID:     session.UserID,
		Messages:   messages,
		Phases:     ComputePhases(messages),
		ExportedAt: exportedAt,
	}, nil
}

// ReconstructAll reconstructs every session, dropping those without messages
func (r *Reconstructor) ReconstructAll(sessions []*Session) []*Transcript {
	var transcripts []*Transcript
	for _, session := range sessions {
		t, err := r.ReconstructTranscript(session)
		if err != nil {
			LogDebug("Failed to reconstruct session: %v", err)
			continue
		}
		if len(t.Messages) > 0 {
			transcripts = append(transcripts, t)
		}
	}
	return transcripts
}

// replayRecords normalizes records in order and appends their facts to
// log. Events authored by the operator become user messages. visit, if
// set, sees every agent-authored fact after it is appended.
func replayRecords(n *Normalizer, log *ConversationLog, records []ResponseRecord, visit func(author string, fact Fact)) {
	for _, record := range records {
		for _, fact := range n.Normalize(record) {
			if record.Author == "user" {
				if fact.Kind == FactText {
					log.push(Message{Role: RoleUser, Content: fact.Content, Timestamp: fact.Timestamp})
				}
				continue
			}
			log.Append(fact, record.Author)
			if visit != nil {
				visit(record.Author, fact)
			}
		}
	}
}

// FetchSessionsAsync loads full sessions from the backend with a bounded
// number of concurrent requests. Results arrive in completion order; the
// channel closes once every id has been tried. Failures are logged and
// skipped.
func FetchSessionsAsync(ctx context.Context, transport Transport, ids []string, workers int) <-chan *Session {
	if workers <= 0 {
		workers = 4
	}
	out := make(chan *Session, len(ids))
	jobs := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				session, err := transport.GetSession(ctx, id)
				if err != nil {
					LogWarn("Failed to fetch session %s: %v", id, err)
					continue
				}
				out <- session
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

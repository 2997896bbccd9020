package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Fixed keys in the kv table
const (
	KeySessionID = "adk_session_id"
	KeySessions  = "adk_sessions"
)

// SessionStore persists the current backend session id and the list of
// recently used sessions
type SessionStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSessionStore creates a new SessionStore over an open database
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// NewSessionID generates an id in the sess-<random> form
func NewSessionID() string {
	return "sess-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// CurrentSessionID returns the stored session id, if any
func (s *SessionStore) CurrentSessionID() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := GetValue(s.db, KeySessionID)
	if err != nil {
		return "", false, &StorageError{Path: KeySessionID, Op: "read", Err: err}
	}
	return id, ok && id != "", nil
}

// EnsureSessionID returns the stored session id, generating and storing a
// new one when none exists
func (s *SessionStore) EnsureSessionID() (string, error) {
	id, ok, err := s.CurrentSessionID()
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	id = NewSessionID()
	if err := s.SetCurrentSessionID(id); err != nil {
		return "", err
	}
	return id, nil
}

// SetCurrentSessionID stores id as the current session
func (s *SessionStore) SetCurrentSessionID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := SetValue(s.db, KeySessionID, id); err != nil {
		return &StorageError{Path: KeySessionID, Op: "write", Err: err}
	}
	return nil
}

// ClearCurrentSession forgets the current session id
func (s *SessionStore) ClearCurrentSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := DeleteValue(s.db, KeySessionID); err != nil {
		return &StorageError{Path: KeySessionID, Op: "write", Err: err}
	}
	return nil
}

// RecentSessions loads the remembered sessions, most recent first
func (s *SessionStore) RecentSessions() ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Remember moves session to the front of the recent list. The stored copy
// drops events; the backend stays the source of truth for history.
func (s *SessionStore) Remember(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked()
	if err != nil {
		return err
	}

	session.Events = nil
	sessions = NewDeduplicator().DeduplicateByID(append([]Session{session}, sessions...))
	return s.saveLocked(sessions)
}

// Forget removes a session from the recent list
func (s *SessionStore) Forget(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked()
	if err != nil {
		return err
	}

	kept := sessions[:0]
	for _, sess := range sessions {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	return s.saveLocked(kept)
}

func (s *SessionStore) loadLocked() ([]Session, error) {
	raw, ok, err := GetValue(s.db, KeySessions)
	if err != nil {
		return nil, &StorageError{Path: KeySessions, Op: "read", Err: err}
	}
	if !ok || raw == "" {
		return []Session{}, nil
	}

	var sessions []Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, &ParseError{Source: "kv", Key: KeySessions, Err: err}
	}
	return sessions, nil
}

func (s *SessionStore) saveLocked(sessions []Session) error {
	if sessions == nil {
		sessions = []Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	if err := SetValue(s.db, KeySessions, string(data)); err != nil {
		return &StorageError{Path: KeySessions, Op: "write", Err: err}
	}
	return nil
}

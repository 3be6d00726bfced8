package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// DefaultMaxSessions bounds the history kept on disk.
const DefaultMaxSessions = 50

// SessionHistory is the file contents.
type SessionHistory struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Sessions are ordered oldest first.
	Sessions []SessionRecord `json:"sessions,omitempty"`
}

// SessionRecord describes one provisioning session.
type SessionRecord struct {
	// ID is the session UUID.
	ID string `json:"id"`

	StartedAt time.Time `json:"started_at"`

	// EndedAt is zero while the session is active.
	EndedAt time.Time `json:"ended_at,omitempty"`

	// Networks is the number of records captured by the entry scan.
	Networks int `json:"networks"`

	// ScanError is set when the entry scan failed.
	ScanError string `json:"scan_error,omitempty"`

	// Attempts are the connect attempts made during the session.
	Attempts []AttemptRecord `json:"attempts,omitempty"`

	// Outcome is how the session ended, e.g. CONNECTED or EXITED.
	Outcome string `json:"outcome,omitempty"`
}

// AttemptRecord is one connect attempt. It carries the SSID only.
type AttemptRecord struct {
	SSID      string        `json:"ssid"`
	Outcome   string        `json:"outcome"`
	Reason    string        `json:"reason,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// SessionStore manages persistence of session history to a JSON file.
type SessionStore struct {
	mu          sync.Mutex
	path        string
	maxSessions int
}

// NewSessionStore creates a store. maxSessions <= 0 selects
// DefaultMaxSessions.
func NewSessionStore(path string, maxSessions int) *SessionStore {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &SessionStore{path: path, maxSessions: maxSessions}
}

// Path returns the file path.
func (s *SessionStore) Path() string { return s.path }

// Save persists the history to disk.
func (s *SessionStore) Save(h *SessionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(h)
}

func (s *SessionStore) save(h *SessionHistory) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	h.Version = StateVersion
	h.SavedAt = time.Now()

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}

	// Write and rename so a crash never leaves a truncated file.
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Load reads the history from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *SessionStore) Load() (*SessionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *SessionStore) load() (*SessionHistory, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	h := &SessionHistory{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Put inserts rec, replacing a stored record with the same ID, and trims
// the oldest sessions beyond the limit.
func (s *SessionStore) Put(rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.load()
	if err != nil {
		return err
	}
	if h == nil {
		h = &SessionHistory{}
	}

	replaced := false
	for i := range h.Sessions {
		if h.Sessions[i].ID == rec.ID {
			h.Sessions[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		h.Sessions = append(h.Sessions, rec)
	}
	if n := len(h.Sessions) - s.maxSessions; n > 0 {
		h.Sessions = h.Sessions[n:]
	}
	return s.save(h)
}

// Last returns the most recent session, or nil when there is none.
func (s *SessionStore) Last() (*SessionRecord, error) {
	h, err := s.Load()
	if err != nil || h == nil || len(h.Sessions) == 0 {
		return nil, err
	}
	rec := h.Sessions[len(h.Sessions)-1]
	return &rec, nil
}

// Clear removes the state file.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Package cache holds the scan results captured when a provisioning session
// starts. The radio cannot scan while it serves the access point, so every
// Scan during the session is answered from this snapshot.
package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// ErrPopulated is returned when a session's snapshot is written twice.
var ErrPopulated = errors.New("cache: session already populated")

// Snapshot is an immutable scan result.
type Snapshot struct {
	sessionID string
	captured  time.Time
	records   []supplicant.NetworkRecord
}

// SessionID returns the session the snapshot belongs to.
func (s *Snapshot) SessionID() string { return s.sessionID }

// Captured returns when the snapshot was taken.
func (s *Snapshot) Captured() time.Time { return s.captured }

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.records) }

// Records returns a copy of the records in scan order.
func (s *Snapshot) Records() []supplicant.NetworkRecord {
	return cloneRecords(s.records)
}

// Cache is safe for concurrent use. The zero value is empty and ready.
type Cache struct {
	mu   sync.RWMutex
	snap *Snapshot
	now  func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{}
}

// Populate stores records for sessionID. Only the first call per session
// succeeds; the input is copied.
func (c *Cache) Populate(sessionID string, records []supplicant.NetworkRecord) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap != nil {
		return nil, ErrPopulated
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	c.snap = &Snapshot{
		sessionID: sessionID,
		captured:  now(),
		records:   cloneRecords(records),
	}
	return c.snap, nil
}

// Snapshot returns the current snapshot, or nil before Populate.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Reset discards the snapshot so the next session can populate.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

func cloneRecords(in []supplicant.NetworkRecord) []supplicant.NetworkRecord {
	out := make([]supplicant.NetworkRecord, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

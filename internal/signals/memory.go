package signals

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/identity-guardian/guardian/internal/models"
)

// MemoryStore is an in-memory signal log for tests and standalone mode.
type MemoryStore struct {
	mu      sync.RWMutex
	logs    map[string][]models.Signal
	horizon time.Duration
}

// NewMemoryStore creates an in-memory signal log with the given retention
// horizon.
func NewMemoryStore(horizon time.Duration) *MemoryStore {
	return &MemoryStore{
		logs:    make(map[string][]models.Signal),
		horizon: horizon,
	}
}

// Append records a signal in the subject's log.
func (s *MemoryStore) Append(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.logs[sig.SubjectID], sig)
	sort.Slice(log, func(i, j int) bool {
		return log[i].ObservedAt.Before(log[j].ObservedAt)
	})

	// Evict entries past the horizon
	cutoff := time.Now().Add(-s.horizon)
	trimmed := log[:0]
	for _, entry := range log {
		if !entry.ObservedAt.Before(cutoff) {
			trimmed = append(trimmed, entry)
		}
	}
	s.logs[sig.SubjectID] = trimmed

	return nil
}

// Window returns signals observed within [from, to], ascending.
func (s *MemoryStore) Window(_ context.Context, subjectID string, from, to time.Time) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Signal
	for _, sig := range s.logs[subjectID] {
		if sig.ObservedAt.Before(from) || sig.ObservedAt.After(to) {
			continue
		}
		out = append(out, sig)
	}

	return out, nil
}

// Snapshot returns every unexpired signal for the subject, ascending.
func (s *MemoryStore) Snapshot(ctx context.Context, subjectID string) ([]models.Signal, error) {
	now := time.Now()
	return s.Window(ctx, subjectID, now.Add(-s.horizon), now)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

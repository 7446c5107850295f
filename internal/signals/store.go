// Package signals normalizes heterogeneous monitoring inputs into Signal
// records and keeps them in a per-subject, time-ordered, append-only log
// bounded by the retention horizon.
package signals

import (
	"context"
	"time"

	"github.com/identity-guardian/guardian/internal/models"
)

// Store is the per-subject signal log. Appends are concurrent across
// subjects; reads see a point-in-time snapshot of the log. Signals older
// than the retention horizon are evictable and must not affect scoring.
type Store interface {
	// Append records a signal in the subject's log.
	Append(ctx context.Context, sig models.Signal) error

	// Window returns the subject's signals with ObservedAt in [from, to],
	// ordered by ObservedAt ascending.
	Window(ctx context.Context, subjectID string, from, to time.Time) ([]models.Signal, error)

	// Snapshot returns all unexpired signals for a subject, ordered by
	// ObservedAt ascending.
	Snapshot(ctx context.Context, subjectID string) ([]models.Signal, error)

	// Close releases store resources.
	Close() error
}

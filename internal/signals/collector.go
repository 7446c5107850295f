package signals

import (
	"context"
	"time"

	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/models"
)

// RawEvent is an unprocessed monitoring event as delivered by a feed or the
// ingest API.
type RawEvent map[string]interface{}

// Collector validates raw monitoring events and appends the normalized
// signal to the per-subject log.
type Collector struct {
	store Store
}

// NewCollector creates a collector writing to the given signal log.
func NewCollector(store Store) *Collector {
	return &Collector{store: store}
}

// Ingest normalizes a raw event into a Signal and appends it to the log.
// It rejects events without a subject, with an unknown kind, or with a
// severity outside [0, 1].
func (c *Collector) Ingest(ctx context.Context, raw RawEvent) (models.Signal, error) {
	sig, err := c.Normalize(raw)
	if err != nil {
		return models.Signal{}, err
	}

	if err := c.store.Append(ctx, sig); err != nil {
		return models.Signal{}, err
	}

	return sig, nil
}

// Normalize validates a raw event and converts it to a Signal without
// touching the log. Batch callers normalize every event up front so a bad
// entry rejects the batch before anything is appended.
func (c *Collector) Normalize(raw RawEvent) (models.Signal, error) {
	subjectID, _ := raw["subject_id"].(string)
	if subjectID == "" {
		return models.Signal{}, faults.Validation("subject_id", "is required")
	}

	kindStr, _ := raw["kind"].(string)
	kind := models.SignalKind(kindStr)
	if !kind.IsValid() {
		return models.Signal{}, faults.Validation("kind", "unknown signal kind: "+kindStr)
	}

	severity, ok := toFloat(raw["severity"])
	if !ok {
		return models.Signal{}, faults.Validation("severity", "is required")
	}
	if severity < 0 || severity > 1 {
		return models.Signal{}, faults.Validation("severity", "must be within [0, 1]")
	}

	observedAt := time.Now()
	switch v := raw["observed_at"].(type) {
	case time.Time:
		observedAt = v
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return models.Signal{}, faults.Validation("observed_at", "must be RFC3339")
		}
		observedAt = parsed
	}

	source, _ := raw["source"].(string)
	detail, _ := raw["detail"].(map[string]interface{})

	return models.Signal{
		SubjectID:  subjectID,
		Kind:       kind,
		Severity:   severity,
		ObservedAt: observedAt,
		Source:     source,
		Detail:     detail,
	}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

package workflows

import (
	"context"
	"time"

	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/signals"
)

// AnalyzeBehavior ingests a batch of raw monitoring events for one subject
// and immediately re-runs the risk pipeline. Events that fail validation
// reject the whole batch before any state changes.
func (s *Service) AnalyzeBehavior(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	subjectID, _ := payload["subject_id"].(string)
	if subjectID == "" {
		return nil, faults.Validation("subject_id", "is required")
	}

	rawEvents, err := eventBatch(payload)
	if err != nil {
		return nil, err
	}

	// Normalize the whole batch first: one bad event rejects everything
	// before a single signal reaches the log.
	batch := make([]models.Signal, 0, len(rawEvents))
	for _, raw := range rawEvents {
		if _, ok := raw["subject_id"]; !ok {
			raw["subject_id"] = subjectID
		}
		sig, err := s.collector.Normalize(raw)
		if err != nil {
			return nil, err
		}
		batch = append(batch, sig)
	}

	var ingested []models.Signal
	for _, sig := range batch {
		if err := s.store.Append(ctx, sig); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.SignalsIngested.WithLabelValues(string(sig.Kind)).Inc()
		}
		ingested = append(ingested, sig)
	}

	assessment, c, err := s.assessSubject(ctx, subjectID)
	result := map[string]interface{}{
		"ingested":   len(ingested),
		"assessment": assessment,
	}
	if c != nil {
		result["case"] = c
	}
	return result, err
}

// eventBatch extracts the events list from an analyze_behavior payload.
// A single "event" object is accepted as a batch of one.
func eventBatch(payload map[string]interface{}) ([]signals.RawEvent, error) {
	if single, ok := payload["event"].(map[string]interface{}); ok {
		return []signals.RawEvent{signals.RawEvent(single)}, nil
	}

	list, ok := payload["events"].([]interface{})
	if !ok {
		return nil, faults.Validation("events", "is required")
	}
	if len(list) == 0 {
		return nil, faults.Validation("events", "must not be empty")
	}

	out := make([]signals.RawEvent, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, faults.Validation("events", "entries must be objects")
		}
		out = append(out, signals.RawEvent(m))
	}
	return out, nil
}

// DormantAccount reports one account flagged by the dormancy scan.
type DormantAccount struct {
	SubjectID string     `json:"subject_id"`
	Username  string     `json:"username"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	IdleDays  int        `json:"idle_days"`
}

// DetectDormantAccounts scans the directory for accounts idle beyond the
// dormancy period and records a dormant signal for each. Severity grows with
// idle time, capped at 1.
func (s *Service) DetectDormantAccounts(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	users, err := s.dir.ListUsers(ctx, map[string]string{"status": "active"})
	if err != nil {
		return nil, faults.External("list_users", err)
	}

	now := time.Now()
	var dormant []DormantAccount

	for _, u := range users {
		var idle time.Duration
		if u.LastLogin == nil {
			idle = s.opts.DormantAfter * 2
		} else {
			idle = now.Sub(*u.LastLogin)
		}
		if idle < s.opts.DormantAfter {
			continue
		}

		dormant = append(dormant, DormantAccount{
			SubjectID: u.ID,
			Username:  u.Username,
			LastLogin: u.LastLogin,
			IdleDays:  int(idle.Hours() / 24),
		})

		severity := 0.5 + 0.5*float64(idle-s.opts.DormantAfter)/float64(s.opts.DormantAfter)
		if severity > 1 {
			severity = 1
		}

		if _, err := s.ingest(ctx, signals.RawEvent{
			"subject_id":  u.ID,
			"kind":        string(models.KindDormant),
			"severity":    severity,
			"observed_at": now,
			"source":      "dormancy_scan",
			"detail": map[string]interface{}{
				"idle_days": int(idle.Hours() / 24),
			},
		}); err != nil {
			s.logger.Error("failed to record dormant signal",
				"subject_id", u.ID, "error", err)
		}
	}

	s.logger.Info("dormancy scan complete", "users", len(users), "dormant", len(dormant))
	return map[string]interface{}{
		"scanned": len(users),
		"dormant": dormant,
	}, nil
}

// OrphanedAccount reports one account with no responsible manager.
type OrphanedAccount struct {
	SubjectID  string `json:"subject_id"`
	Username   string `json:"username"`
	Department string `json:"department,omitempty"`
}

// DetectOrphanedAccounts scans the directory for active accounts that have
// no manager on record and raises a policy violation signal for each. An
// account nobody answers for cannot be certified in a review.
func (s *Service) DetectOrphanedAccounts(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	users, err := s.dir.ListUsers(ctx, map[string]string{"status": "active"})
	if err != nil {
		return nil, faults.External("list_users", err)
	}

	now := time.Now()
	var orphaned []OrphanedAccount

	for _, u := range users {
		if u.ManagerID != "" {
			continue
		}

		orphaned = append(orphaned, OrphanedAccount{
			SubjectID:  u.ID,
			Username:   u.Username,
			Department: u.Department,
		})

		if _, err := s.ingest(ctx, signals.RawEvent{
			"subject_id":  u.ID,
			"kind":        string(models.KindPolicyViolation),
			"severity":    0.5,
			"observed_at": now,
			"source":      "orphan_scan",
			"detail": map[string]interface{}{
				"reason": "no manager on record",
			},
		}); err != nil {
			s.logger.Error("failed to record orphan signal",
				"subject_id", u.ID, "error", err)
		}
	}

	s.logger.Info("orphan scan complete", "users", len(users), "orphaned", len(orphaned))
	return map[string]interface{}{
		"scanned":  len(users),
		"orphaned": orphaned,
	}, nil
}

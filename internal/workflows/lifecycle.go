package workflows

import (
	"context"
	"errors"
	"time"

	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/repository"
	"github.com/identity-guardian/guardian/internal/signals"
)

// Joiner acknowledges a new hire and takes a baseline risk assessment so the
// subject enters the system with an explicit posture record.
func (s *Service) Joiner(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	subjectID, _ := payload["subject_id"].(string)
	if subjectID == "" {
		return nil, faults.Validation("subject_id", "is required")
	}

	user, err := s.dir.GetUser(ctx, subjectID)
	if err != nil {
		return nil, faults.Validation("subject_id", "unknown subject: "+subjectID)
	}

	assessment, _, err := s.assessSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("joiner processed",
		"subject_id", subjectID, "department", user.Department, "score", assessment.Score)

	return map[string]interface{}{
		"user":       user,
		"assessment": assessment,
	}, nil
}

// Mover re-evaluates a subject after a role or department change. The old
// role set may now conflict with the new one, so the mover path re-runs the
// separation-of-duties check for just this subject before reassessing.
func (s *Service) Mover(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	subjectID, _ := payload["subject_id"].(string)
	if subjectID == "" {
		return nil, faults.Validation("subject_id", "is required")
	}

	user, err := s.dir.GetUser(ctx, subjectID)
	if err != nil {
		return nil, faults.Validation("subject_id", "unknown subject: "+subjectID)
	}

	held := make(map[string]bool, len(user.Roles))
	for _, r := range user.Roles {
		held[r] = true
	}

	now := time.Now()
	var conflicts [][]string
	for _, conflict := range s.opts.SoDConflicts {
		var matched []string
		for _, role := range conflict {
			if held[role] {
				matched = append(matched, role)
			}
		}
		if len(matched) < 2 {
			continue
		}
		conflicts = append(conflicts, matched)

		if _, err := s.ingest(ctx, signals.RawEvent{
			"subject_id":  subjectID,
			"kind":        string(models.KindSoDViolation),
			"severity":    0.8,
			"observed_at": now,
			"source":      "mover_check",
			"detail": map[string]interface{}{
				"conflicting_roles": matched,
			},
		}); err != nil {
			s.logger.Error("failed to record sod violation signal",
				"subject_id", subjectID, "error", err)
		}
	}

	assessment, c, err := s.assessSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"user":       user,
		"conflicts":  conflicts,
		"assessment": assessment,
	}
	if c != nil {
		result["case"] = c
	}
	return result, nil
}

// Leaver handles offboarding. An open remediation case for a departing
// subject is surfaced, not silently closed: the block outlives the account
// until an operator restores or the account is deprovisioned upstream.
func (s *Service) Leaver(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	subjectID, _ := payload["subject_id"].(string)
	if subjectID == "" {
		return nil, faults.Validation("subject_id", "is required")
	}

	result := map[string]interface{}{
		"subject_id": subjectID,
	}

	open, err := s.repo.GetOpenCaseBySubject(ctx, subjectID)
	switch {
	case err == nil:
		result["open_case"] = open
		s.logger.Warn("leaver has an open remediation case",
			"subject_id", subjectID, "case_id", open.ID, "state", open.State)
		if aerr := s.repo.AppendAudit(ctx, open.ID, models.AuditEntry{
			Timestamp: time.Now(),
			Actor:     "system",
			Action:    "subject_departed",
			Note:      "leaver processed while case open",
		}); aerr != nil {
			s.logger.Error("failed to record departure audit",
				"case_id", open.ID, "error", aerr)
		}
	case errors.Is(err, repository.ErrCaseNotFound):
		// nothing to surface
	default:
		return nil, err
	}

	if user, uerr := s.dir.GetUser(ctx, subjectID); uerr == nil {
		result["user"] = user
	}

	s.logger.Info("leaver processed", "subject_id", subjectID)
	return result, nil
}

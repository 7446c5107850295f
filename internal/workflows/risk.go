package workflows

import (
	"context"
	"time"

	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/signals"
)

// RiskResult is the calculate_risk response.
type RiskResult struct {
	Assessment *models.RiskAssessment  `json:"assessment"`
	Case       *models.RemediationCase `json:"case,omitempty"`
}

// CalculateRisk runs the full pipeline for one subject and returns the
// assessment plus any remediation case it produced or joined.
func (s *Service) CalculateRisk(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	subjectID, _ := payload["subject_id"].(string)
	if subjectID == "" {
		return nil, faults.Validation("subject_id", "is required")
	}

	assessment, c, err := s.assessSubject(ctx, subjectID)
	if err != nil {
		return &RiskResult{Assessment: assessment, Case: c}, err
	}
	return &RiskResult{Assessment: assessment, Case: c}, nil
}

// SoDViolation reports one user holding conflicting roles.
type SoDViolation struct {
	SubjectID string   `json:"subject_id"`
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
}

// DetectSoDViolations scans the directory for users holding two or more
// roles from the same configured conflict set. Each violation is recorded as
// a sod_violation signal on the subject's log.
func (s *Service) DetectSoDViolations(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	users, err := s.dir.ListUsers(ctx, nil)
	if err != nil {
		return nil, faults.External("list_users", err)
	}

	var violations []SoDViolation
	now := time.Now()

	for _, u := range users {
		held := make(map[string]bool, len(u.Roles))
		for _, r := range u.Roles {
			held[r] = true
		}

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

			violations = append(violations, SoDViolation{
				SubjectID: u.ID,
				Username:  u.Username,
				Roles:     matched,
			})

			if _, err := s.ingest(ctx, signals.RawEvent{
				"subject_id":  u.ID,
				"kind":        string(models.KindSoDViolation),
				"severity":    0.8,
				"observed_at": now,
				"source":      "sod_scan",
				"detail": map[string]interface{}{
					"conflicting_roles": matched,
				},
			}); err != nil {
				s.logger.Error("failed to record sod violation signal",
					"subject_id", u.ID, "error", err)
			}
		}
	}

	s.logger.Info("sod scan complete", "users", len(users), "violations", len(violations))
	return map[string]interface{}{
		"scanned":    len(users),
		"violations": violations,
	}, nil
}

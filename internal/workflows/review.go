package workflows

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/signals"
)

// ReviewItem is one subject-role assignment under review in a campaign.
type ReviewItem struct {
	SubjectID string     `json:"subject_id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	Decision  string     `json:"decision,omitempty"` // certify or revoke
	Reviewer  string     `json:"reviewer,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// ReviewCampaign is an access certification campaign over a department's
// role assignments.
type ReviewCampaign struct {
	ID        string        `json:"campaign_id"`
	Name      string        `json:"name"`
	Scope     string        `json:"scope"`
	Items     []*ReviewItem `json:"items"`
	CreatedAt time.Time     `json:"created_at"`
}

// CreateReviewCampaign builds a certification campaign covering every
// role assignment in the scoped department.
func (s *Service) CreateReviewCampaign(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	name, _ := payload["name"].(string)
	if name == "" {
		return nil, faults.Validation("name", "is required")
	}
	department, _ := payload["department"].(string)

	filter := map[string]string{}
	if department != "" {
		filter["department"] = department
	}
	users, err := s.dir.ListUsers(ctx, filter)
	if err != nil {
		return nil, faults.External("list_users", err)
	}

	id, _ := uuid.NewV7()
	campaign := &ReviewCampaign{
		ID:        id.String(),
		Name:      name,
		Scope:     department,
		CreatedAt: time.Now(),
	}
	for _, u := range users {
		for _, role := range u.Roles {
			campaign.Items = append(campaign.Items, &ReviewItem{
				SubjectID: u.ID,
				Username:  u.Username,
				Role:      role,
			})
		}
	}

	s.mu.Lock()
	s.campaigns[campaign.ID] = campaign
	s.mu.Unlock()

	s.logger.Info("review campaign created",
		"campaign_id", campaign.ID, "name", name, "items", len(campaign.Items))

	return campaign, nil
}

// ReviewDecision records a reviewer's certify/revoke decision on one campaign
// item. A revoke decision raises a policy_violation signal on the subject.
func (s *Service) ReviewDecision(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	campaignID, _ := payload["campaign_id"].(string)
	if campaignID == "" {
		return nil, faults.Validation("campaign_id", "is required")
	}
	subjectID, _ := payload["subject_id"].(string)
	if subjectID == "" {
		return nil, faults.Validation("subject_id", "is required")
	}
	role, _ := payload["role"].(string)
	if role == "" {
		return nil, faults.Validation("role", "is required")
	}
	reviewer, _ := payload["reviewer"].(string)
	if reviewer == "" {
		return nil, faults.Validation("reviewer", "is required")
	}
	decision, _ := payload["decision"].(string)
	if decision != "certify" && decision != "revoke" {
		return nil, faults.Validation("decision", "must be certify or revoke")
	}

	s.mu.Lock()
	campaign, ok := s.campaigns[campaignID]
	if !ok {
		s.mu.Unlock()
		return nil, faults.Validation("campaign_id", "unknown campaign: "+campaignID)
	}

	var item *ReviewItem
	for _, it := range campaign.Items {
		if it.SubjectID == subjectID && it.Role == role {
			item = it
			break
		}
	}
	if item == nil {
		s.mu.Unlock()
		return nil, faults.Validation("subject_id", "no matching item in campaign")
	}
	if item.Decision != "" {
		s.mu.Unlock()
		return nil, faults.Validation("subject_id", "item already decided: "+item.Decision)
	}

	now := time.Now()
	item.Decision = decision
	item.Reviewer = reviewer
	item.DecidedAt = &now
	s.mu.Unlock()

	if decision == "revoke" {
		if _, err := s.ingest(ctx, signals.RawEvent{
			"subject_id":  subjectID,
			"kind":        string(models.KindPolicyViolation),
			"severity":    0.6,
			"observed_at": now,
			"source":      "access_review",
			"detail": map[string]interface{}{
				"campaign_id": campaignID,
				"role":        role,
			},
		}); err != nil {
			s.logger.Error("failed to record revoke signal",
				"subject_id", subjectID, "error", err)
		}
	}

	s.logger.Info("review decision recorded",
		"campaign_id", campaignID, "subject_id", subjectID,
		"role", role, "decision", decision, "reviewer", reviewer)

	return item, nil
}

// ComplianceReport summarizes open remediation cases and campaign progress.
func (s *Service) ComplianceReport(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	openCases, total, err := s.repo.ListCases(ctx, &models.ListCasesRequest{
		Page:  1,
		Limit: 100,
	})
	if err != nil {
		return nil, err
	}

	byState := make(map[string]int)
	for _, c := range openCases {
		byState[string(c.State)]++
	}

	s.mu.Lock()
	campaigns := make([]map[string]interface{}, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		decided := 0
		revoked := 0
		for _, it := range c.Items {
			if it.Decision != "" {
				decided++
			}
			if it.Decision == "revoke" {
				revoked++
			}
		}
		campaigns = append(campaigns, map[string]interface{}{
			"campaign_id": c.ID,
			"name":        c.Name,
			"items":       len(c.Items),
			"decided":     decided,
			"revoked":     revoked,
		})
	}
	s.mu.Unlock()

	return map[string]interface{}{
		"generated_at":   time.Now(),
		"total_cases":    total,
		"cases_by_state": byState,
		"campaigns":      campaigns,
	}, nil
}

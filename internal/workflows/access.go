package workflows

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/models"
)

// Access request status values.
const (
	RequestPending      = "pending"
	RequestAutoApproved = "auto_approved"
	RequestApproved     = "approved"
	RequestDenied       = "denied"
)

// AccessRequest is a pending or decided request for access to a resource.
// Requests are transient working state; only the assessment they trigger is
// durable.
type AccessRequest struct {
	ID            string           `json:"request_id"`
	SubjectID     string           `json:"subject_id"`
	Resource      string           `json:"resource"`
	Justification string           `json:"justification,omitempty"`
	Status        string           `json:"status"`
	RiskScore     float64          `json:"risk_score"`
	RiskLevel     models.RiskLevel `json:"risk_level"`
	CreatedAt     time.Time        `json:"created_at"`
	DecidedAt     *time.Time       `json:"decided_at,omitempty"`
	DecidedBy     string           `json:"decided_by,omitempty"`
}

// AccessRequestIntent scores the requesting subject before any approval is
// possible. Low-risk requests are auto-approved; everything else waits for
// an approver.
func (s *Service) AccessRequestIntent(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	subjectID, _ := payload["subject_id"].(string)
	if subjectID == "" {
		return nil, faults.Validation("subject_id", "is required")
	}
	resource, _ := payload["resource"].(string)
	if resource == "" {
		return nil, faults.Validation("resource", "is required")
	}
	justification, _ := payload["justification"].(string)

	if _, err := s.dir.GetUser(ctx, subjectID); err != nil {
		return nil, faults.Validation("subject_id", "unknown subject: "+subjectID)
	}

	assessment, c, err := s.assessSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if c != nil && c.State.IsOpen() {
		return nil, faults.Validation("subject_id", "subject has an open remediation case")
	}

	id, _ := uuid.NewV7()
	req := &AccessRequest{
		ID:            id.String(),
		SubjectID:     subjectID,
		Resource:      resource,
		Justification: justification,
		Status:        RequestPending,
		RiskScore:     assessment.Score,
		RiskLevel:     assessment.Level,
		CreatedAt:     time.Now(),
	}

	if assessment.Level == models.LevelLow {
		now := time.Now()
		req.Status = RequestAutoApproved
		req.DecidedAt = &now
		req.DecidedBy = "system"
	}

	s.mu.Lock()
	s.requests[req.ID] = req
	s.mu.Unlock()

	s.logger.Info("access request recorded",
		"request_id", req.ID,
		"subject_id", subjectID,
		"resource", resource,
		"status", req.Status,
		"risk_level", assessment.Level)

	return req, nil
}

// ApproveRequest records an approver's decision on a pending request.
func (s *Service) ApproveRequest(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	requestID, _ := payload["request_id"].(string)
	if requestID == "" {
		return nil, faults.Validation("request_id", "is required")
	}
	approver, _ := payload["approver"].(string)
	if approver == "" {
		return nil, faults.Validation("approver", "is required")
	}
	decision, _ := payload["decision"].(string)
	if decision != "approve" && decision != "deny" {
		return nil, faults.Validation("decision", "must be approve or deny")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, faults.Validation("request_id", "unknown request: "+requestID)
	}
	if req.Status != RequestPending {
		return nil, faults.Validation("request_id", "request already decided: "+req.Status)
	}

	now := time.Now()
	if decision == "approve" {
		req.Status = RequestApproved
	} else {
		req.Status = RequestDenied
	}
	req.DecidedAt = &now
	req.DecidedBy = approver

	s.logger.Info("access request decided",
		"request_id", req.ID, "status", req.Status, "approver", approver)

	return req, nil
}

package models

import "time"

// CaseState represents the remediation lifecycle state of a case
type CaseState string

const (
	// StateBlocking means a block was triggered and the external block call
	// is in flight or pending reconciliation.
	StateBlocking CaseState = "blocking"
	// StateBlocked means the access block is active on the directory side.
	StateBlocked CaseState = "blocked"
	// StateRestoring means an operator-initiated restore is in flight.
	StateRestoring CaseState = "restoring"
	// StateClosed means access was restored; terminal.
	StateClosed CaseState = "closed"
	// StateFailed means the block could not be applied and the subject was
	// left unblocked; terminal.
	StateFailed CaseState = "failed"
)

// IsValid checks if the case state is valid
func (s CaseState) IsValid() bool {
	switch s {
	case StateBlocking, StateBlocked, StateRestoring, StateClosed, StateFailed:
		return true
	default:
		return false
	}
}

// IsOpen reports whether a case in this state still holds the per-subject
// open-case slot. At most one open case may exist per subject at any time.
func (s CaseState) IsOpen() bool {
	switch s {
	case StateBlocking, StateBlocked, StateRestoring:
		return true
	default:
		return false
	}
}

// AuditEntry is one line of a case's append-only audit trail
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Note      string    `json:"note,omitempty"`
}

// RemediationCase is the lifecycle record for an automated block/restore
// action on one subject. Owned exclusively by the remediation engine; mutated
// only through its defined transitions.
type RemediationCase struct {
	ID                     string       `json:"case_id"`
	SubjectID              string       `json:"subject_id"`
	State                  CaseState    `json:"state"`
	TriggeringAssessmentID string       `json:"triggering_assessment_id"`
	EnforcementRef         string       `json:"enforcement_ref,omitempty"`
	OpenedAt               time.Time    `json:"opened_at"`
	ClosedAt               *time.Time   `json:"closed_at,omitempty"`
	AuditLog               []AuditEntry `json:"audit_log"`
}

// ListCasesRequest represents query parameters for listing cases
type ListCasesRequest struct {
	Page      int
	Limit     int
	SubjectID string
	State     string
}

// ListCasesResponse represents the response for listing cases
type ListCasesResponse struct {
	Cases      []*RemediationCase `json:"cases"`
	Pagination Pagination         `json:"pagination"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

package repository

import (
	"context"
	"errors"

	"github.com/identity-guardian/guardian/internal/models"
)

var (
	ErrCaseNotFound       = errors.New("case not found")
	ErrOpenCaseExists     = errors.New("an open case already exists for subject")
	ErrAssessmentNotFound = errors.New("assessment not found")
)

// Repository defines the interface for case and assessment persistence
type Repository interface {
	// Case operations. CreateCase fails with ErrOpenCaseExists if the
	// subject already holds an open case.
	CreateCase(ctx context.Context, c *models.RemediationCase) error
	GetCaseByID(ctx context.Context, id string) (*models.RemediationCase, error)
	GetOpenCaseBySubject(ctx context.Context, subjectID string) (*models.RemediationCase, error)
	UpdateCase(ctx context.Context, c *models.RemediationCase) error
	AppendAudit(ctx context.Context, caseID string, entry models.AuditEntry) error
	ListCases(ctx context.Context, req *models.ListCasesRequest) ([]*models.RemediationCase, int, error)

	// Assessment operations
	SaveAssessment(ctx context.Context, a *models.RiskAssessment) error
	GetLatestAssessment(ctx context.Context, subjectID string) (*models.RiskAssessment, error)

	// Utility
	Close() error
}

package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/identity-guardian/guardian/internal/models"
)

// MemoryRepository is an in-memory Repository for tests and standalone mode.
// It enforces the same one-open-case-per-subject constraint the Postgres
// partial unique index provides.
type MemoryRepository struct {
	mu          sync.Mutex
	cases       map[string]*models.RemediationCase
	assessments map[string][]*models.RiskAssessment
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		cases:       make(map[string]*models.RemediationCase),
		assessments: make(map[string][]*models.RiskAssessment),
	}
}

// CreateCase creates a new case, rejecting a second open case per subject.
func (r *MemoryRepository) CreateCase(_ context.Context, c *models.RemediationCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.cases {
		if existing.SubjectID == c.SubjectID && existing.State.IsOpen() {
			return ErrOpenCaseExists
		}
	}

	r.cases[c.ID] = cloneCase(c)
	return nil
}

// GetCaseByID retrieves a case by id.
func (r *MemoryRepository) GetCaseByID(_ context.Context, id string) (*models.RemediationCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return cloneCase(c), nil
}

// GetOpenCaseBySubject returns the subject's open case, or ErrCaseNotFound.
func (r *MemoryRepository) GetOpenCaseBySubject(_ context.Context, subjectID string) (*models.RemediationCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.cases {
		if c.SubjectID == subjectID && c.State.IsOpen() {
			return cloneCase(c), nil
		}
	}
	return nil, ErrCaseNotFound
}

// UpdateCase persists the case's state, enforcement ref, and closed_at.
func (r *MemoryRepository) UpdateCase(_ context.Context, c *models.RemediationCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.cases[c.ID]
	if !ok {
		return ErrCaseNotFound
	}
	existing.State = c.State
	existing.EnforcementRef = c.EnforcementRef
	existing.ClosedAt = c.ClosedAt
	return nil
}

// AppendAudit appends one audit trail entry to a case.
func (r *MemoryRepository) AppendAudit(_ context.Context, caseID string, entry models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[caseID]
	if !ok {
		return ErrCaseNotFound
	}
	c.AuditLog = append(c.AuditLog, entry)
	return nil
}

// ListCases retrieves a paginated list of cases.
func (r *MemoryRepository) ListCases(_ context.Context, req *models.ListCasesRequest) ([]*models.RemediationCase, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var filtered []*models.RemediationCase
	for _, c := range r.cases {
		if req.SubjectID != "" && c.SubjectID != req.SubjectID {
			continue
		}
		if req.State != "" && string(c.State) != req.State {
			continue
		}
		filtered = append(filtered, cloneCase(c))
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].OpenedAt.After(filtered[j].OpenedAt)
	})

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 50
	}

	total := len(filtered)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return filtered[start:end], total, nil
}

// SaveAssessment persists an immutable assessment snapshot.
func (r *MemoryRepository) SaveAssessment(_ context.Context, a *models.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *a
	copied.Factors = append([]models.Factor(nil), a.Factors...)
	r.assessments[a.SubjectID] = append(r.assessments[a.SubjectID], &copied)
	return nil
}

// GetLatestAssessment returns the newest assessment for a subject.
func (r *MemoryRepository) GetLatestAssessment(_ context.Context, subjectID string) (*models.RiskAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.assessments[subjectID]
	if len(history) == 0 {
		return nil, ErrAssessmentNotFound
	}

	latest := history[0]
	for _, a := range history[1:] {
		if a.AssessedAt.After(latest.AssessedAt) {
			latest = a
		}
	}

	copied := *latest
	copied.Factors = append([]models.Factor(nil), latest.Factors...)
	return &copied, nil
}

// Close is a no-op for the in-memory repository.
func (r *MemoryRepository) Close() error {
	return nil
}

func cloneCase(c *models.RemediationCase) *models.RemediationCase {
	copied := *c
	copied.AuditLog = append([]models.AuditEntry(nil), c.AuditLog...)
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		copied.ClosedAt = &t
	}
	return &copied
}

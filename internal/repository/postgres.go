package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/identity-guardian/guardian/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// CreateCase creates a new case. The partial unique index on open states
// turns a lost race into ErrOpenCaseExists instead of a second open case.
func (r *PostgresRepository) CreateCase(ctx context.Context, c *models.RemediationCase) error {
	query := `
		INSERT INTO cases (id, subject_id, state, triggering_assessment_id, enforcement_ref, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.SubjectID, string(c.State), c.TriggeringAssessmentID,
		nullable(c.EnforcementRef), c.OpenedAt, c.ClosedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrOpenCaseExists
		}
		return fmt.Errorf("failed to create case: %w", err)
	}

	for _, entry := range c.AuditLog {
		if err := r.AppendAudit(ctx, c.ID, entry); err != nil {
			return err
		}
	}

	return nil
}

// GetCaseByID retrieves a case with its audit trail
func (r *PostgresRepository) GetCaseByID(ctx context.Context, id string) (*models.RemediationCase, error) {
	query := `
		SELECT id, subject_id, state, triggering_assessment_id,
		       COALESCE(enforcement_ref, ''), opened_at, closed_at
		FROM cases
		WHERE id = $1
	`

	c := &models.RemediationCase{}
	var state string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.SubjectID, &state, &c.TriggeringAssessmentID,
		&c.EnforcementRef, &c.OpenedAt, &c.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	c.State = models.CaseState(state)

	audit, err := r.caseAudit(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.AuditLog = audit

	return c, nil
}

// GetOpenCaseBySubject returns the subject's open case, or ErrCaseNotFound.
func (r *PostgresRepository) GetOpenCaseBySubject(ctx context.Context, subjectID string) (*models.RemediationCase, error) {
	query := `
		SELECT id
		FROM cases
		WHERE subject_id = $1 AND state IN ('blocking', 'blocked', 'restoring')
	`

	var id string
	err := r.pool.QueryRow(ctx, query, subjectID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to get open case: %w", err)
	}

	return r.GetCaseByID(ctx, id)
}

// UpdateCase persists the case's state, enforcement ref, and closed_at
func (r *PostgresRepository) UpdateCase(ctx context.Context, c *models.RemediationCase) error {
	query := `
		UPDATE cases
		SET state = $1, enforcement_ref = $2, closed_at = $3
		WHERE id = $4
	`

	result, err := r.pool.Exec(ctx, query,
		string(c.State), nullable(c.EnforcementRef), c.ClosedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCaseNotFound
	}

	return nil
}

// AppendAudit inserts one audit trail entry for a case
func (r *PostgresRepository) AppendAudit(ctx context.Context, caseID string, entry models.AuditEntry) error {
	query := `
		INSERT INTO case_audit (case_id, ts, actor, action, note)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query, caseID, entry.Timestamp, entry.Actor, entry.Action, entry.Note)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListCases retrieves a paginated list of cases
func (r *PostgresRepository) ListCases(ctx context.Context, req *models.ListCasesRequest) ([]*models.RemediationCase, int, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.SubjectID != "" {
		whereClause += fmt.Sprintf(" AND subject_id = $%d", argPos)
		args = append(args, req.SubjectID)
		argPos++
	}
	if req.State != "" {
		whereClause += fmt.Sprintf(" AND state = $%d", argPos)
		args = append(args, req.State)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM cases %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cases: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	args = append(args, req.Limit, offset)

	query := fmt.Sprintf(`
		SELECT id, subject_id, state, triggering_assessment_id,
		       COALESCE(enforcement_ref, ''), opened_at, closed_at
		FROM cases
		%s
		ORDER BY opened_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	cases := []*models.RemediationCase{}
	for rows.Next() {
		c := &models.RemediationCase{}
		var state string
		if err := rows.Scan(
			&c.ID, &c.SubjectID, &state, &c.TriggeringAssessmentID,
			&c.EnforcementRef, &c.OpenedAt, &c.ClosedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan case: %w", err)
		}
		c.State = models.CaseState(state)
		cases = append(cases, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	return cases, total, nil
}

// SaveAssessment persists an immutable assessment snapshot
func (r *PostgresRepository) SaveAssessment(ctx context.Context, a *models.RiskAssessment) error {
	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}

	query := `
		INSERT INTO assessments (id, subject_id, score, level, factors, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := r.pool.Exec(ctx, query,
		a.ID, a.SubjectID, a.Score, string(a.Level), factors, a.AssessedAt,
	); err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}
	return nil
}

// GetLatestAssessment returns the newest assessment for a subject
func (r *PostgresRepository) GetLatestAssessment(ctx context.Context, subjectID string) (*models.RiskAssessment, error) {
	query := `
		SELECT id, subject_id, score, level, factors, assessed_at
		FROM assessments
		WHERE subject_id = $1
		ORDER BY assessed_at DESC
		LIMIT 1
	`

	a := &models.RiskAssessment{}
	var level string
	var factors []byte
	err := r.pool.QueryRow(ctx, query, subjectID).Scan(
		&a.ID, &a.SubjectID, &a.Score, &level, &factors, &a.AssessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	a.Level = models.RiskLevel(level)

	if err := json.Unmarshal(factors, &a.Factors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal factors: %w", err)
	}

	return a, nil
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) caseAudit(ctx context.Context, caseID string) ([]models.AuditEntry, error) {
	query := `
		SELECT ts, actor, action, COALESCE(note, '')
		FROM case_audit
		WHERE case_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get case audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.Timestamp, &e.Actor, &e.Action, &e.Note); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

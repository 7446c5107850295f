// Package remediation owns the per-identity enforcement lifecycle. It is the
// only component permitted to trigger or reverse the external block action,
// and it guarantees at most one open case per subject.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/identity-guardian/guardian/internal/directory"
	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/logging"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/notify"
	"github.com/identity-guardian/guardian/internal/repository"
	"github.com/identity-guardian/guardian/internal/telemetry"
)

// ActorSystem is the audit actor recorded for automated transitions.
const ActorSystem = "system"

// Config holds the engine's remediation settings.
type Config struct {
	// AutoBlockThreshold is the score at or above which an assessment
	// triggers an automatic block.
	AutoBlockThreshold float64

	// BlockTemplateRef identifies the directory-side block policy template
	// cloned per subject.
	BlockTemplateRef string

	// CallTimeout bounds each external directory call.
	CallTimeout time.Duration
}

// Engine is the remediation state machine:
// Normal -> Blocking -> Blocked -> Restoring -> Closed.
type Engine struct {
	cfg      Config
	repo     repository.Repository
	dir      directory.Directory
	notifier notify.Notifier
	locks    *subjectLocks
	logger   *logging.Logger
	metrics  *telemetry.Metrics
}

// NewEngine creates a remediation engine.
func NewEngine(cfg Config, repo repository.Repository, dir directory.Directory, notifier notify.Notifier, logger *logging.Logger, metrics *telemetry.Metrics) *Engine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		cfg:      cfg,
		repo:     repo,
		dir:      dir,
		notifier: notifier,
		locks:    newSubjectLocks(),
		logger:   logger,
		metrics:  metrics,
	}
}

// HandleAssessment applies the auto-block decision for an assessment. Below
// the threshold, or while the subject already holds an open case, it is a
// no-op. Otherwise it opens a case and drives Blocking -> Blocked, reverting
// to Normal (case failed) if the external block call fails.
//
// Returns the subject's case (existing or new) when one is involved, nil
// when no remediation applies.
func (e *Engine) HandleAssessment(ctx context.Context, a models.RiskAssessment) (*models.RemediationCase, error) {
	if a.Score < e.cfg.AutoBlockThreshold {
		return nil, nil
	}

	lock := e.locks.Lock(a.SubjectID)
	defer lock.Unlock()

	// Idempotency: a subject with an open case is never re-blocked.
	open, err := e.repo.GetOpenCaseBySubject(ctx, a.SubjectID)
	if err == nil {
		return open, nil
	}
	if !errors.Is(err, repository.ErrCaseNotFound) {
		return nil, err
	}

	id, _ := uuid.NewV7()
	c := &models.RemediationCase{
		ID:                     id.String(),
		SubjectID:              a.SubjectID,
		State:                  models.StateBlocking,
		TriggeringAssessmentID: a.ID,
		OpenedAt:               time.Now(),
	}
	c.AuditLog = append(c.AuditLog, models.AuditEntry{
		Timestamp: time.Now(),
		Actor:     ActorSystem,
		Action:    "auto_block_triggered",
		Note:      fmt.Sprintf("score %.1f >= threshold %.1f", a.Score, e.cfg.AutoBlockThreshold),
	})

	if err := e.repo.CreateCase(ctx, c); err != nil {
		if errors.Is(err, repository.ErrOpenCaseExists) {
			// Lost a race that the per-subject lock should have prevented.
			iv := &faults.InvariantViolation{
				SubjectID: a.SubjectID,
				Detail:    "attempted to open a second remediation case",
			}
			e.logger.Error("remediation invariant violated",
				"subject_id", a.SubjectID, "assessment_id", a.ID)
			return nil, iv
		}
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	ref, err := e.dir.ApplyAccessBlock(callCtx, a.SubjectID, e.cfg.BlockTemplateRef)
	if err != nil {
		if ctx.Err() != nil {
			// Abandoned mid-flight: the case stays in Blocking for manual
			// reconciliation rather than being assumed complete.
			e.audit(context.Background(), c, ActorSystem, "block_interrupted",
				"request cancelled during external block call")
			e.logger.Warn("block call abandoned, case left pending reconciliation",
				"case_id", c.ID, "subject_id", c.SubjectID)
			return c, faults.External("apply_access_block", ctx.Err())
		}

		// Block failed: revert to Normal. Leaving the identity unblocked is
		// preferable to a half-applied state.
		c.State = models.StateFailed
		now := time.Now()
		c.ClosedAt = &now
		if uerr := e.repo.UpdateCase(ctx, c); uerr != nil {
			e.logger.Error("failed to persist reverted case", "case_id", c.ID, "error", uerr)
		}
		e.audit(ctx, c, ActorSystem, "block_failed", err.Error())
		if e.metrics != nil {
			e.metrics.BlockFailures.Inc()
		}
		e.logger.Error("access block failed, subject left unblocked",
			"case_id", c.ID, "subject_id", c.SubjectID, "error", err)

		if faults.IsExternal(err) {
			return c, err
		}
		return c, faults.External("apply_access_block", err)
	}

	c.State = models.StateBlocked
	c.EnforcementRef = ref
	if err := e.repo.UpdateCase(ctx, c); err != nil {
		return c, err
	}
	e.audit(ctx, c, ActorSystem, "block_applied", fmt.Sprintf("enforcement_ref=%s", ref))
	if e.metrics != nil {
		e.metrics.BlocksApplied.Inc()
	}
	e.logger.Info("access block applied",
		"case_id", c.ID, "subject_id", c.SubjectID, "enforcement_ref", ref)

	e.notifyAsync(c, e.notifier.PostInvestigationCard, "investigation card")

	return c, nil
}

// Restore drives Blocked -> Restoring -> Closed for an explicit operator
// action. A failed external call returns the case to Blocked; the case is
// never silently marked closed.
func (e *Engine) Restore(ctx context.Context, caseID, actor string) (*models.RemediationCase, error) {
	c, err := e.repo.GetCaseByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	lock := e.locks.Lock(c.SubjectID)
	defer lock.Unlock()

	// Re-read under the lock; another transition may have won.
	c, err = e.repo.GetCaseByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if c.State != models.StateBlocked {
		return nil, faults.Validation("state",
			fmt.Sprintf("case %s is %s, restore requires blocked", caseID, c.State))
	}

	c.State = models.StateRestoring
	if err := e.repo.UpdateCase(ctx, c); err != nil {
		return nil, err
	}
	e.audit(ctx, c, actor, "restore_started", "")

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	if err := e.dir.RemoveAccessBlock(callCtx, c.EnforcementRef); err != nil {
		if ctx.Err() != nil {
			e.audit(context.Background(), c, actor, "restore_interrupted",
				"request cancelled during external restore call")
			e.logger.Warn("restore call abandoned, case left pending reconciliation",
				"case_id", c.ID, "subject_id", c.SubjectID)
			return c, faults.External("remove_access_block", ctx.Err())
		}

		// Restoration did not happen: back to Blocked.
		c.State = models.StateBlocked
		if uerr := e.repo.UpdateCase(ctx, c); uerr != nil {
			e.logger.Error("failed to persist reverted case", "case_id", c.ID, "error", uerr)
		}
		e.audit(ctx, c, actor, "restore_failed", err.Error())
		if e.metrics != nil {
			e.metrics.RestoreFailures.Inc()
		}
		e.logger.Error("access restore failed, case remains blocked",
			"case_id", c.ID, "subject_id", c.SubjectID, "error", err)

		if faults.IsExternal(err) {
			return c, err
		}
		return c, faults.External("remove_access_block", err)
	}

	now := time.Now()
	c.State = models.StateClosed
	c.ClosedAt = &now
	c.EnforcementRef = ""
	if err := e.repo.UpdateCase(ctx, c); err != nil {
		return c, err
	}
	e.audit(ctx, c, actor, "restored", "access block removed")
	if e.metrics != nil {
		e.metrics.RestoresCompleted.Inc()
	}
	e.logger.Info("access restored", "case_id", c.ID, "subject_id", c.SubjectID)

	e.notifyAsync(c, e.notifier.PostRestorationNotice, "restoration notice")

	return c, nil
}

// audit appends an audit entry to the case, both in memory and in the store.
func (e *Engine) audit(ctx context.Context, c *models.RemediationCase, actor, action, note string) {
	entry := models.AuditEntry{
		Timestamp: time.Now(),
		Actor:     actor,
		Action:    action,
		Note:      note,
	}
	c.AuditLog = append(c.AuditLog, entry)
	if err := e.repo.AppendAudit(ctx, c.ID, entry); err != nil {
		e.logger.Error("failed to persist audit entry",
			"case_id", c.ID, "action", action, "error", err)
	}
}

// notifyAsync delivers a notification without blocking the transition.
// Failures are logged only.
func (e *Engine) notifyAsync(c *models.RemediationCase, post func(context.Context, *models.RemediationCase) error, what string) {
	snapshot := *c
	snapshot.AuditLog = append([]models.AuditEntry(nil), c.AuditLog...)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
		defer cancel()
		if err := post(ctx, &snapshot); err != nil {
			e.logger.Warn("notification failed",
				"case_id", snapshot.ID, "kind", what, "error", err)
		}
	}()
}

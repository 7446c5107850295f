package remediation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identity-guardian/guardian/internal/directory"
	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/repository"
)

func testEngine(t *testing.T) (*Engine, *directory.Mock, repository.Repository) {
	t.Helper()

	repo := repository.NewMemoryRepository()
	dir := directory.NewMock()
	engine := NewEngine(Config{
		AutoBlockThreshold: 90,
		BlockTemplateRef:   "ca-block-template",
		CallTimeout:        5 * time.Second,
	}, repo, dir, nil, nil, nil)

	return engine, dir, repo
}

func assessment(subjectID string, score float64) models.RiskAssessment {
	id, _ := uuid.NewV7()
	return models.RiskAssessment{
		ID:         id.String(),
		SubjectID:  subjectID,
		Score:      score,
		Level:      models.LevelCritical,
		AssessedAt: time.Now(),
	}
}

func TestEngine_BelowThresholdNoCase(t *testing.T) {
	engine, dir, _ := testEngine(t)

	c, err := engine.HandleAssessment(context.Background(), assessment("u-1", 89.9))
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.False(t, dir.Blocked("u-1"))
}

func TestEngine_ExactThresholdTriggers(t *testing.T) {
	engine, dir, _ := testEngine(t)

	c, err := engine.HandleAssessment(context.Background(), assessment("u-1", 90))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, models.StateBlocked, c.State)
	assert.True(t, dir.Blocked("u-1"))
}

func TestEngine_AutoBlock(t *testing.T) {
	engine, dir, repo := testEngine(t)

	c, err := engine.HandleAssessment(context.Background(), assessment("u-1", 95))
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, models.StateBlocked, c.State)
	assert.NotEmpty(t, c.EnforcementRef)
	assert.Nil(t, c.ClosedAt)
	assert.True(t, dir.Blocked("u-1"))

	// Audit trail records trigger and application
	stored, err := repo.GetCaseByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, stored.AuditLog, 2)
	assert.Equal(t, "auto_block_triggered", stored.AuditLog[0].Action)
	assert.Equal(t, "block_applied", stored.AuditLog[1].Action)
}

func TestEngine_RepeatedAssessmentIsIdempotent(t *testing.T) {
	engine, _, _ := testEngine(t)
	ctx := context.Background()

	first, err := engine.HandleAssessment(ctx, assessment("u-1", 95))
	require.NoError(t, err)

	second, err := engine.HandleAssessment(ctx, assessment("u-1", 99))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestEngine_BlockFailureLeavesSubjectUnblocked(t *testing.T) {
	engine, dir, _ := testEngine(t)
	dir.FailApply = true

	c, err := engine.HandleAssessment(context.Background(), assessment("u-1", 95))
	require.Error(t, err)
	assert.True(t, faults.IsExternal(err))
	require.NotNil(t, c)

	assert.Equal(t, models.StateFailed, c.State)
	assert.Empty(t, c.EnforcementRef)
	assert.NotNil(t, c.ClosedAt)
	assert.False(t, dir.Blocked("u-1"))

	// The failed case is terminal; a later assessment opens a fresh one
	next, err := engine.HandleAssessment(context.Background(), assessment("u-1", 95))
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, next.ID)
	assert.Equal(t, models.StateBlocked, next.State)
	assert.True(t, dir.Blocked("u-1"))
}

func TestEngine_RestoreRoundTrip(t *testing.T) {
	engine, dir, _ := testEngine(t)
	ctx := context.Background()

	c, err := engine.HandleAssessment(ctx, assessment("u-1", 95))
	require.NoError(t, err)

	restored, err := engine.Restore(ctx, c.ID, "alice")
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, restored.State)
	assert.Empty(t, restored.EnforcementRef)
	require.NotNil(t, restored.ClosedAt)
	assert.False(t, dir.Blocked("u-1"))

	// Actor is recorded in the audit trail
	actions := map[string]string{}
	for _, e := range restored.AuditLog {
		actions[e.Action] = e.Actor
	}
	assert.Equal(t, "alice", actions["restore_started"])
	assert.Equal(t, "alice", actions["restored"])

	// Closed case can be restored only once
	_, err = engine.Restore(ctx, c.ID, "alice")
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestEngine_RestoreFailureRevertsToBlocked(t *testing.T) {
	engine, dir, _ := testEngine(t)
	ctx := context.Background()

	c, err := engine.HandleAssessment(ctx, assessment("u-1", 95))
	require.NoError(t, err)

	dir.FailRemove = true
	failed, err := engine.Restore(ctx, c.ID, "alice")
	require.Error(t, err)
	assert.True(t, faults.IsExternal(err))

	assert.Equal(t, models.StateBlocked, failed.State)
	assert.Nil(t, failed.ClosedAt)
	assert.True(t, dir.Blocked("u-1"))

	// Retry succeeds once the provider recovers
	restored, err := engine.Restore(ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StateClosed, restored.State)
	assert.False(t, dir.Blocked("u-1"))
}

func TestEngine_RestoreUnknownCase(t *testing.T) {
	engine, _, _ := testEngine(t)

	_, err := engine.Restore(context.Background(), "no-such-case", "alice")
	assert.ErrorIs(t, err, repository.ErrCaseNotFound)
}

func TestEngine_ConcurrentTriggersOpenOneCase(t *testing.T) {
	engine, _, repo := testEngine(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	ids := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := engine.HandleAssessment(ctx, assessment("u-1", 95))
			if err == nil && c != nil {
				ids <- c.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)

	// Exactly one open case in the repository
	cases, _, err := repo.ListCases(ctx, &models.ListCasesRequest{Page: 1, Limit: 100, SubjectID: "u-1"})
	require.NoError(t, err)
	open := 0
	for _, c := range cases {
		if c.State.IsOpen() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestEngine_NewCaseAfterRestore(t *testing.T) {
	engine, dir, _ := testEngine(t)
	ctx := context.Background()

	first, err := engine.HandleAssessment(ctx, assessment("u-1", 95))
	require.NoError(t, err)

	_, err = engine.Restore(ctx, first.ID, "alice")
	require.NoError(t, err)

	second, err := engine.HandleAssessment(ctx, assessment("u-1", 95))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.StateBlocked, second.State)
	assert.True(t, dir.Blocked("u-1"))
}

package workflows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identity-guardian/guardian/internal/correlation"
	"github.com/identity-guardian/guardian/internal/directory"
	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/remediation"
	"github.com/identity-guardian/guardian/internal/repository"
	"github.com/identity-guardian/guardian/internal/risk"
	"github.com/identity-guardian/guardian/internal/signals"
)

func newTestService(t *testing.T) (*Service, *directory.Mock, *repository.MemoryRepository, signals.Store) {
	t.Helper()

	store := signals.NewMemoryStore(24 * time.Hour)
	repo := repository.NewMemoryRepository()
	dir := directory.NewMock()

	collector := signals.NewCollector(store)
	correlator := correlation.NewCorrelator([]correlation.Pair{{
		Kinds:  []models.SignalKind{models.KindRiskySignin, models.KindPrivEscalation},
		Window: 24 * time.Hour,
	}})
	scorer := risk.NewScorer(risk.Config{
		Weights: map[models.SignalKind]float64{
			models.KindBehavioral:      15,
			models.KindDormant:         10,
			models.KindPrivEscalation:  30,
			models.KindRiskySignin:     20,
			models.KindSoDViolation:    25,
			models.KindPolicyViolation: 15,
		},
		CorrelationMultiplier: 1.5,
		MediumThreshold:       40,
		HighThreshold:         70,
		CriticalThreshold:     90,
	})
	engine := remediation.NewEngine(remediation.Config{
		AutoBlockThreshold: 90,
		BlockTemplateRef:   "ca-block-template",
		CallTimeout:        5 * time.Second,
	}, repo, dir, nil, nil, nil)

	svc := NewService(Options{
		RetentionHorizon: 24 * time.Hour,
		DormantAfter:     90 * 24 * time.Hour,
		SoDConflicts: [][]string{
			{"payments-approver", "payments-initiator"},
		},
	}, store, collector, correlator, scorer, engine, repo, dir, nil, nil)

	return svc, dir, repo, store
}

func TestCalculateRisk_RequiresSubject(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.CalculateRisk(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestCalculateRisk_PersistsAssessment(t *testing.T) {
	svc, _, repo, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, models.Signal{
		SubjectID: "u-1", Kind: models.KindDormant, Severity: 0.3, ObservedAt: time.Now(),
	}))

	out, err := svc.CalculateRisk(ctx, map[string]interface{}{"subject_id": "u-1"})
	require.NoError(t, err)

	result := out.(*RiskResult)
	require.NotNil(t, result.Assessment)
	assert.InDelta(t, 3.0, result.Assessment.Score, 1e-9)
	assert.Equal(t, models.LevelLow, result.Assessment.Level)
	assert.Nil(t, result.Case)

	saved, err := repo.GetLatestAssessment(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, result.Assessment.ID, saved.ID)
}

func TestAnalyzeBehavior_CorrelatedEventsTriggerBlock(t *testing.T) {
	svc, dir, _, _ := newTestService(t)
	ctx := context.Background()

	now := time.Now()
	out, err := svc.AnalyzeBehavior(ctx, map[string]interface{}{
		"subject_id": "u-1",
		"events": []interface{}{
			map[string]interface{}{
				"kind":        "risky_signin",
				"severity":    0.8,
				"observed_at": now.Add(-2 * time.Hour).Format(time.RFC3339),
			},
			map[string]interface{}{
				"kind":        "privilege_escalation",
				"severity":    0.9,
				"observed_at": now.Add(-time.Hour).Format(time.RFC3339),
			},
		},
	})
	require.NoError(t, err)

	result := out.(map[string]interface{})
	assert.Equal(t, 2, result["ingested"])

	a := result["assessment"].(*models.RiskAssessment)
	assert.Equal(t, models.LevelCritical, a.Level)

	c := result["case"].(*models.RemediationCase)
	assert.Equal(t, models.StateBlocked, c.State)
	assert.True(t, dir.Blocked("u-1"))
}

func TestAnalyzeBehavior_RejectsInvalidBatch(t *testing.T) {
	svc, _, _, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.AnalyzeBehavior(ctx, map[string]interface{}{
		"subject_id": "u-1",
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	_, err = svc.AnalyzeBehavior(ctx, map[string]interface{}{
		"subject_id": "u-1",
		"events": []interface{}{
			map[string]interface{}{"kind": "made_up", "severity": 0.5},
		},
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	// A valid event in a rejected batch must not reach the log either
	_, err = svc.AnalyzeBehavior(ctx, map[string]interface{}{
		"subject_id": "u-1",
		"events": []interface{}{
			map[string]interface{}{"kind": "risky_signin", "severity": 0.8},
			map[string]interface{}{"kind": "made_up", "severity": 0.5},
		},
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	log, err := store.Snapshot(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestAccessRequest_AutoApprovesLowRisk(t *testing.T) {
	svc, dir, _, _ := newTestService(t)
	dir.AddUser(&directory.User{ID: "u-1", Username: "alice", Status: "active"})

	out, err := svc.AccessRequestIntent(context.Background(), map[string]interface{}{
		"subject_id": "u-1",
		"resource":   "finance-db",
	})
	require.NoError(t, err)

	req := out.(*AccessRequest)
	assert.Equal(t, RequestAutoApproved, req.Status)
	assert.Equal(t, models.LevelLow, req.RiskLevel)
	assert.NotNil(t, req.DecidedAt)
}

func TestAccessRequest_ElevatedRiskWaitsForApproval(t *testing.T) {
	svc, dir, _, store := newTestService(t)
	ctx := context.Background()
	dir.AddUser(&directory.User{ID: "u-1", Username: "alice", Status: "active"})

	// Enough signal weight for medium risk without tripping auto-block
	require.NoError(t, store.Append(ctx, models.Signal{
		SubjectID: "u-1", Kind: models.KindSoDViolation, Severity: 1.0, ObservedAt: time.Now(),
	}))
	require.NoError(t, store.Append(ctx, models.Signal{
		SubjectID: "u-1", Kind: models.KindBehavioral, Severity: 1.0, ObservedAt: time.Now(),
	}))

	out, err := svc.AccessRequestIntent(ctx, map[string]interface{}{
		"subject_id": "u-1",
		"resource":   "finance-db",
	})
	require.NoError(t, err)

	req := out.(*AccessRequest)
	assert.Equal(t, RequestPending, req.Status)
	assert.Equal(t, models.LevelMedium, req.RiskLevel)

	// Approver decides
	decided, err := svc.ApproveRequest(ctx, map[string]interface{}{
		"request_id": req.ID,
		"approver":   "bob",
		"decision":   "approve",
	})
	require.NoError(t, err)
	assert.Equal(t, RequestApproved, decided.(*AccessRequest).Status)

	// A decided request cannot be decided again
	_, err = svc.ApproveRequest(ctx, map[string]interface{}{
		"request_id": req.ID,
		"approver":   "bob",
		"decision":   "deny",
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestAccessRequest_UnknownSubject(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.AccessRequestIntent(context.Background(), map[string]interface{}{
		"subject_id": "ghost",
		"resource":   "finance-db",
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestDetectSoDViolations(t *testing.T) {
	svc, dir, _, store := newTestService(t)
	ctx := context.Background()

	dir.AddUser(&directory.User{
		ID: "u-1", Username: "alice", Status: "active",
		Roles: []string{"payments-approver", "payments-initiator"},
	})
	dir.AddUser(&directory.User{
		ID: "u-2", Username: "bob", Status: "active",
		Roles: []string{"payments-approver"},
	})

	out, err := svc.DetectSoDViolations(ctx, nil)
	require.NoError(t, err)

	result := out.(map[string]interface{})
	violations := result["violations"].([]SoDViolation)
	require.Len(t, violations, 1)
	assert.Equal(t, "u-1", violations[0].SubjectID)

	// The violation landed on the subject's signal log
	log, err := store.Snapshot(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.KindSoDViolation, log[0].Kind)

	clean, err := store.Snapshot(ctx, "u-2")
	require.NoError(t, err)
	assert.Empty(t, clean)
}

func TestDetectDormantAccounts(t *testing.T) {
	svc, dir, _, store := newTestService(t)
	ctx := context.Background()

	stale := time.Now().Add(-120 * 24 * time.Hour)
	fresh := time.Now().Add(-time.Hour)
	dir.AddUser(&directory.User{ID: "u-1", Username: "alice", Status: "active", LastLogin: &stale})
	dir.AddUser(&directory.User{ID: "u-2", Username: "bob", Status: "active", LastLogin: &fresh})
	dir.AddUser(&directory.User{ID: "u-3", Username: "carol", Status: "active"})

	out, err := svc.DetectDormantAccounts(ctx, nil)
	require.NoError(t, err)

	result := out.(map[string]interface{})
	dormant := result["dormant"].([]DormantAccount)
	require.Len(t, dormant, 2)

	flagged := map[string]bool{}
	for _, d := range dormant {
		flagged[d.SubjectID] = true
	}
	assert.True(t, flagged["u-1"])
	assert.True(t, flagged["u-3"])
	assert.False(t, flagged["u-2"])

	log, err := store.Snapshot(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.KindDormant, log[0].Kind)
	assert.LessOrEqual(t, log[0].Severity, 1.0)
}

func TestDetectOrphanedAccounts(t *testing.T) {
	svc, dir, _, store := newTestService(t)
	ctx := context.Background()

	dir.AddUser(&directory.User{ID: "u-1", Username: "alice", Status: "active"})
	dir.AddUser(&directory.User{ID: "u-2", Username: "bob", Status: "active", ManagerID: "u-9"})
	dir.AddUser(&directory.User{ID: "u-3", Username: "carol", Status: "disabled"})

	out, err := svc.DetectOrphanedAccounts(ctx, nil)
	require.NoError(t, err)

	result := out.(map[string]interface{})
	orphaned := result["orphaned"].([]OrphanedAccount)
	require.Len(t, orphaned, 1)
	assert.Equal(t, "u-1", orphaned[0].SubjectID)

	log, err := store.Snapshot(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.KindPolicyViolation, log[0].Kind)
	assert.Equal(t, "orphan_scan", log[0].Source)

	// Managed accounts raise nothing
	log, err = store.Snapshot(ctx, "u-2")
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestReviewCampaignLifecycle(t *testing.T) {
	svc, dir, _, store := newTestService(t)
	ctx := context.Background()

	dir.AddUser(&directory.User{
		ID: "u-1", Username: "alice", Status: "active",
		Department: "finance", Roles: []string{"payments-approver", "reader"},
	})
	dir.AddUser(&directory.User{
		ID: "u-2", Username: "carol", Status: "active",
		Department: "engineering", Roles: []string{"deployer"},
	})

	out, err := svc.CreateReviewCampaign(ctx, map[string]interface{}{
		"name":       "Q1 finance review",
		"department": "finance",
	})
	require.NoError(t, err)

	// Scoped to finance: engineering's assignments stay out
	campaign := out.(*ReviewCampaign)
	require.Len(t, campaign.Items, 2)
	for _, item := range campaign.Items {
		assert.Equal(t, "u-1", item.SubjectID)
	}

	// Revoke one role
	decided, err := svc.ReviewDecision(ctx, map[string]interface{}{
		"campaign_id": campaign.ID,
		"subject_id":  "u-1",
		"role":        "payments-approver",
		"reviewer":    "bob",
		"decision":    "revoke",
	})
	require.NoError(t, err)
	assert.Equal(t, "revoke", decided.(*ReviewItem).Decision)

	// Revoke raises a policy violation signal
	log, err := store.Snapshot(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.KindPolicyViolation, log[0].Kind)

	// Already-decided items are rejected
	_, err = svc.ReviewDecision(ctx, map[string]interface{}{
		"campaign_id": campaign.ID,
		"subject_id":  "u-1",
		"role":        "payments-approver",
		"reviewer":    "bob",
		"decision":    "certify",
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	// Report reflects progress
	rep, err := svc.ComplianceReport(ctx, nil)
	require.NoError(t, err)
	report := rep.(map[string]interface{})
	campaigns := report["campaigns"].([]map[string]interface{})
	require.Len(t, campaigns, 1)
	assert.Equal(t, 1, campaigns[0]["decided"])
	assert.Equal(t, 1, campaigns[0]["revoked"])
}

func TestLifecycle_JoinerMoverLeaver(t *testing.T) {
	svc, dir, repo, _ := newTestService(t)
	ctx := context.Background()

	dir.AddUser(&directory.User{
		ID: "u-1", Username: "alice", Status: "active", Department: "finance",
		Roles: []string{"payments-approver", "payments-initiator"},
	})

	// Joiner takes a baseline assessment
	out, err := svc.Joiner(ctx, map[string]interface{}{"subject_id": "u-1"})
	require.NoError(t, err)
	joined := out.(map[string]interface{})
	assert.NotNil(t, joined["assessment"])

	// Mover detects the conflicting role pair
	out, err = svc.Mover(ctx, map[string]interface{}{"subject_id": "u-1"})
	require.NoError(t, err)
	moved := out.(map[string]interface{})
	conflicts := moved["conflicts"].([][]string)
	require.Len(t, conflicts, 1)

	// Leaver surfaces any open case
	c := &models.RemediationCase{
		ID: "case-1", SubjectID: "u-1", State: models.StateBlocked, OpenedAt: time.Now(),
	}
	require.NoError(t, repo.CreateCase(ctx, c))

	out, err = svc.Leaver(ctx, map[string]interface{}{"subject_id": "u-1"})
	require.NoError(t, err)
	left := out.(map[string]interface{})
	openCase := left["open_case"].(*models.RemediationCase)
	assert.Equal(t, "case-1", openCase.ID)

	// Departure is recorded on the case, which stays open
	stored, err := repo.GetCaseByID(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateBlocked, stored.State)
	require.NotEmpty(t, stored.AuditLog)
	assert.Equal(t, "subject_departed", stored.AuditLog[len(stored.AuditLog)-1].Action)
}

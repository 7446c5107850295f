package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identity-guardian/guardian/internal/models"
)

func testConfig() Config {
	return Config{
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
	}
}

func TestScorer_CorrelatedPairGoesCritical(t *testing.T) {
	s := NewScorer(testConfig())
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	signin := models.Signal{SubjectID: "u-1", Kind: models.KindRiskySignin, Severity: 0.8, ObservedAt: base}
	escalation := models.Signal{SubjectID: "u-1", Kind: models.KindPrivEscalation, Severity: 0.9, ObservedAt: base.Add(2 * time.Hour)}

	finding := models.CorrelatedFinding{
		SubjectID:   "u-1",
		Signals:     []models.Signal{signin, escalation},
		WindowStart: signin.ObservedAt,
		WindowEnd:   escalation.ObservedAt,
		Kind:        "privilege_escalation+risky_signin",
	}

	a := s.Assess("u-1", []models.Signal{signin, escalation}, []models.CorrelatedFinding{finding})

	// Base 16 + 27 = 43, correlation bonus 1.5 x 43 = 64.5, clamped at 100
	assert.Equal(t, 100.0, a.Score)
	assert.Equal(t, models.LevelCritical, a.Level)
	require.Len(t, a.Factors, 3)
	assert.Equal(t, "correlation:privilege_escalation+risky_signin", a.Factors[2].Factor)
	assert.InDelta(t, 64.5, a.Factors[2].Points, 1e-9)
}

func TestScorer_SingleWeakSignalStaysLow(t *testing.T) {
	s := NewScorer(testConfig())

	sig := models.Signal{SubjectID: "u-1", Kind: models.KindDormant, Severity: 0.3, ObservedAt: time.Now()}
	a := s.Assess("u-1", []models.Signal{sig}, nil)

	assert.InDelta(t, 3.0, a.Score, 1e-9)
	assert.Equal(t, models.LevelLow, a.Level)
	require.Len(t, a.Factors, 1)
	assert.Equal(t, "dormant", a.Factors[0].Factor)
}

func TestScorer_Deterministic(t *testing.T) {
	s := NewScorer(testConfig())
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	log := []models.Signal{
		{SubjectID: "u-1", Kind: models.KindBehavioral, Severity: 0.5, ObservedAt: base},
		{SubjectID: "u-1", Kind: models.KindSoDViolation, Severity: 0.7, ObservedAt: base.Add(time.Hour)},
	}

	first := s.Assess("u-1", log, nil)
	second := s.Assess("u-1", log, nil)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.Factors, second.Factors)
	// Each assessment is a distinct immutable record
	assert.NotEqual(t, first.ID, second.ID)
}

func TestScorer_EmptyLog(t *testing.T) {
	s := NewScorer(testConfig())

	a := s.Assess("u-1", nil, nil)
	assert.Equal(t, 0.0, a.Score)
	assert.Equal(t, models.LevelLow, a.Level)
	assert.Empty(t, a.Factors)
}

func TestScorer_UnknownKindScoresZero(t *testing.T) {
	cfg := testConfig()
	delete(cfg.Weights, models.KindPolicyViolation)
	s := NewScorer(cfg)

	sig := models.Signal{SubjectID: "u-1", Kind: models.KindPolicyViolation, Severity: 1.0, ObservedAt: time.Now()}
	a := s.Assess("u-1", []models.Signal{sig}, nil)

	assert.Equal(t, 0.0, a.Score)
}

func TestScorer_LevelThresholds(t *testing.T) {
	s := NewScorer(testConfig())

	tests := []struct {
		score    float64
		expected models.RiskLevel
	}{
		{0, models.LevelLow},
		{39.9, models.LevelLow},
		{40, models.LevelMedium},
		{69.9, models.LevelMedium},
		{70, models.LevelHigh},
		{89.9, models.LevelHigh},
		{90, models.LevelCritical},
		{100, models.LevelCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, s.Level(tt.score), "score %.1f", tt.score)
	}
}

func TestScorer_ClampsToHundred(t *testing.T) {
	s := NewScorer(testConfig())

	var log []models.Signal
	for i := 0; i < 10; i++ {
		log = append(log, models.Signal{
			SubjectID:  "u-1",
			Kind:       models.KindPrivEscalation,
			Severity:   1.0,
			ObservedAt: time.Now(),
		})
	}

	a := s.Assess("u-1", log, nil)
	assert.Equal(t, 100.0, a.Score)
}

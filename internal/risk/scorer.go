// Package risk computes composite risk scores. Scoring is deterministic for
// a given signal log snapshot and configuration: no external calls, no
// randomness, no clock reads in the arithmetic.
package risk

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/identity-guardian/guardian/internal/models"
)

// Config holds the scoring model: per-kind weights, the correlated-finding
// multiplier, and the monotonic level threshold table.
type Config struct {
	Weights               map[models.SignalKind]float64
	CorrelationMultiplier float64
	MediumThreshold       float64
	HighThreshold         float64
	CriticalThreshold     float64
}

// Scorer combines signals and correlated findings into a weighted composite
// score clamped to [0, 100] and a discrete risk level.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Assess produces an immutable RiskAssessment for the subject from the given
// log snapshot and findings. Persistence is the caller's responsibility.
func (s *Scorer) Assess(subjectID string, log []models.Signal, findings []models.CorrelatedFinding) models.RiskAssessment {
	var score float64
	var factors []models.Factor

	for _, sig := range log {
		weight := s.cfg.Weights[sig.Kind]
		points := weight * sig.Severity
		score += points
		factors = append(factors, models.Factor{
			Factor: string(sig.Kind),
			Weight: weight,
			Points: points,
		})
	}

	// A correlated finding adds multiplier x the sum of its constituents'
	// base contribution on top of the base, reflecting elevated confidence.
	for _, f := range findings {
		var base float64
		for _, sig := range f.Signals {
			base += s.cfg.Weights[sig.Kind] * sig.Severity
		}
		points := s.cfg.CorrelationMultiplier * base
		score += points
		factors = append(factors, models.Factor{
			Factor: fmt.Sprintf("correlation:%s", f.Kind),
			Weight: s.cfg.CorrelationMultiplier,
			Points: points,
		})
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	id, _ := uuid.NewV7()
	return models.RiskAssessment{
		ID:         id.String(),
		SubjectID:  subjectID,
		Score:      score,
		Level:      s.Level(score),
		Factors:    factors,
		AssessedAt: time.Now(),
	}
}

// Level maps a score to its discrete risk level using the configured
// monotonic threshold table.
func (s *Scorer) Level(score float64) models.RiskLevel {
	switch {
	case score >= s.cfg.CriticalThreshold:
		return models.LevelCritical
	case score >= s.cfg.HighThreshold:
		return models.LevelHigh
	case score >= s.cfg.MediumThreshold:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

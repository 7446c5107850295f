package models

import "time"

// RiskLevel is the discrete risk level derived from a composite score
type RiskLevel string

const (
	LevelLow      RiskLevel = "low"
	LevelMedium   RiskLevel = "medium"
	LevelHigh     RiskLevel = "high"
	LevelCritical RiskLevel = "critical"
)

// IsValid checks if the risk level is valid
func (l RiskLevel) IsValid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return true
	default:
		return false
	}
}

// Factor records one contribution to a composite score. Annotation is opaque
// operator-facing text and never feeds the scoring arithmetic.
type Factor struct {
	Factor     string  `json:"factor"`
	Weight     float64 `json:"weight"`
	Points     float64 `json:"points"`
	Annotation string  `json:"annotation,omitempty"`
}

// RiskAssessment is an immutable snapshot of a subject's composite risk.
// Assessments are never mutated, only superseded by a newer assessment for
// the same subject.
type RiskAssessment struct {
	ID         string    `json:"assessment_id"`
	SubjectID  string    `json:"subject_id"`
	Score      float64   `json:"score"` // 0 - 100
	Level      RiskLevel `json:"level"`
	Factors    []Factor  `json:"contributing_factors"`
	AssessedAt time.Time `json:"assessed_at"`
}

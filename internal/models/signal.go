package models

import "time"

// SignalKind represents the category of a monitoring signal
type SignalKind string

const (
	KindBehavioral      SignalKind = "behavioral"
	KindDormant         SignalKind = "dormant"
	KindPrivEscalation  SignalKind = "privilege_escalation"
	KindRiskySignin     SignalKind = "risky_signin"
	KindSoDViolation    SignalKind = "sod_violation"
	KindPolicyViolation SignalKind = "policy_violation"
)

// IsValid checks if the signal kind is valid
func (k SignalKind) IsValid() bool {
	switch k {
	case KindBehavioral, KindDormant, KindPrivEscalation,
		KindRiskySignin, KindSoDViolation, KindPolicyViolation:
		return true
	default:
		return false
	}
}

// Signal is a single normalized observation about a subject's security posture.
// Signals are immutable once recorded.
type Signal struct {
	SubjectID  string                 `json:"subject_id"`
	Kind       SignalKind             `json:"kind"`
	Severity   float64                `json:"severity"` // 0.0 - 1.0
	ObservedAt time.Time              `json:"observed_at"`
	Source     string                 `json:"source"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
}

// CorrelatedFinding links two or more signals of distinguishable kinds that
// overlap temporally, raising confidence beyond the sum of parts. All
// referenced signals share the same subject and fall within the window.
type CorrelatedFinding struct {
	SubjectID   string    `json:"subject_id"`
	Signals     []Signal  `json:"signals"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Kind        string    `json:"correlation_kind"`
}

package workflows

import (
	"github.com/identity-guardian/guardian/internal/dispatch"
)

// Intent names served by the dispatcher. The table is static; adding an
// intent means adding a handler here.
const (
	IntentAccessRequest          = "access_request"
	IntentApproveRequest         = "approve_request"
	IntentCreateReviewCampaign   = "create_review_campaign"
	IntentReviewDecision         = "review_decision"
	IntentJoiner                 = "joiner"
	IntentMover                  = "mover"
	IntentLeaver                 = "leaver"
	IntentAnalyzeBehavior        = "analyze_behavior"
	IntentDetectDormantAccounts  = "detect_dormant_accounts"
	IntentDetectOrphanedAccounts = "detect_orphaned_accounts"
	IntentCalculateRisk          = "calculate_risk"
	IntentDetectSoDViolations    = "detect_sod_violations"
	IntentComplianceReport       = "compliance_report"
)

// Register binds every workflow intent to the dispatcher.
func (s *Service) Register(d *dispatch.Dispatcher) {
	d.Register(IntentAccessRequest, s.AccessRequestIntent)
	d.Register(IntentApproveRequest, s.ApproveRequest)
	d.Register(IntentCreateReviewCampaign, s.CreateReviewCampaign)
	d.Register(IntentReviewDecision, s.ReviewDecision)
	d.Register(IntentJoiner, s.Joiner)
	d.Register(IntentMover, s.Mover)
	d.Register(IntentLeaver, s.Leaver)
	d.Register(IntentAnalyzeBehavior, s.AnalyzeBehavior)
	d.Register(IntentDetectDormantAccounts, s.DetectDormantAccounts)
	d.Register(IntentDetectOrphanedAccounts, s.DetectOrphanedAccounts)
	d.Register(IntentCalculateRisk, s.CalculateRisk)
	d.Register(IntentDetectSoDViolations, s.DetectSoDViolations)
	d.Register(IntentComplianceReport, s.ComplianceReport)
}

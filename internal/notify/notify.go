// Package notify delivers operator notifications for case transitions.
// Delivery is fire-and-forget: a failed notification is logged, never
// allowed to block or revert a remediation transition.
package notify

import (
	"context"

	"github.com/identity-guardian/guardian/internal/models"
)

// Subject constants for the guardian message bus.
// Follow the pattern: {domain}.{resource}.{event}
const (
	SubjectCaseBlocked  = "guardian.cases.blocked"
	SubjectCaseRestored = "guardian.cases.restored"
)

// Notifier posts case notifications to operators.
type Notifier interface {
	// PostInvestigationCard announces a freshly applied block.
	PostInvestigationCard(ctx context.Context, c *models.RemediationCase) error

	// PostRestorationNotice announces a completed restore.
	PostRestorationNotice(ctx context.Context, c *models.RemediationCase) error
}

// Noop discards all notifications.
type Noop struct{}

// PostInvestigationCard implements Notifier.
func (Noop) PostInvestigationCard(context.Context, *models.RemediationCase) error { return nil }

// PostRestorationNotice implements Notifier.
func (Noop) PostRestorationNotice(context.Context, *models.RemediationCase) error { return nil }

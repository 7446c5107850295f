// Package directory defines the identity-directory boundary: user lookup and
// the reversible, subject-scoped access block. Wire formats of the actual
// provider are the integration's concern.
package directory

import (
	"context"
	"time"
)

// User is the directory's view of an identity.
type User struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Department string     `json:"department,omitempty"`
	ManagerID  string     `json:"manager_id,omitempty"`
	Roles      []string   `json:"roles,omitempty"`
	Status     string     `json:"status"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}

// Directory is the identity-provider interface consumed by the engine.
// ApplyAccessBlock must be idempotent from the caller's perspective: a second
// call for a subject with an active block is rejected or returns the
// existing enforcement ref.
type Directory interface {
	GetUser(ctx context.Context, subjectID string) (*User, error)
	ListUsers(ctx context.Context, filter map[string]string) ([]*User, error)

	// ApplyAccessBlock clones the block policy template scoped to the
	// subject, enables it, and returns the enforcement ref.
	ApplyAccessBlock(ctx context.Context, subjectID, templateRef string) (string, error)

	// RemoveAccessBlock deletes the scoped block policy.
	RemoveAccessBlock(ctx context.Context, enforcementRef string) error
}

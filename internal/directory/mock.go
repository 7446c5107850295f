package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/identity-guardian/guardian/internal/faults"
)

// Mock is an in-memory Directory for tests and standalone mode. Blocks are
// idempotent per subject: a second ApplyAccessBlock while one is active
// returns the existing ref.
type Mock struct {
	mu     sync.Mutex
	users  map[string]*User
	blocks map[string]string // subjectID -> enforcementRef

	// FailApply and FailRemove make the next respective call fail, for
	// exercising the reverting transitions.
	FailApply  bool
	FailRemove bool
}

// NewMock creates an empty mock directory.
func NewMock() *Mock {
	return &Mock{
		users:  make(map[string]*User),
		blocks: make(map[string]string),
	}
}

// AddUser seeds a user into the mock directory.
func (m *Mock) AddUser(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// GetUser returns the seeded user or an error if unknown.
func (m *Mock) GetUser(_ context.Context, subjectID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[subjectID]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", subjectID)
	}
	return u, nil
}

// ListUsers returns seeded users matching every provided filter key.
func (m *Mock) ListUsers(_ context.Context, filter map[string]string) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*User
	for _, u := range m.users {
		if matchesFilter(u, filter) {
			out = append(out, u)
		}
	}
	return out, nil
}

func matchesFilter(u *User, filter map[string]string) bool {
	for key, want := range filter {
		if want == "" {
			continue
		}
		switch key {
		case "status":
			if u.Status != want {
				return false
			}
		case "department":
			if u.Department != want {
				return false
			}
		case "manager_id":
			if u.ManagerID != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ApplyAccessBlock records a block for the subject.
func (m *Mock) ApplyAccessBlock(_ context.Context, subjectID, templateRef string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailApply {
		m.FailApply = false
		return "", faults.External("apply_access_block", fmt.Errorf("provider unavailable"))
	}

	if ref, ok := m.blocks[subjectID]; ok {
		return ref, nil
	}

	ref := fmt.Sprintf("%s-%s", templateRef, uuid.New().String())
	m.blocks[subjectID] = ref
	return ref, nil
}

// RemoveAccessBlock deletes the block holding the given ref.
func (m *Mock) RemoveAccessBlock(_ context.Context, enforcementRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRemove {
		m.FailRemove = false
		return faults.External("remove_access_block", fmt.Errorf("provider unavailable"))
	}

	for subject, ref := range m.blocks {
		if ref == enforcementRef {
			delete(m.blocks, subject)
			return nil
		}
	}
	return faults.External("remove_access_block", fmt.Errorf("enforcement ref not found: %s", enforcementRef))
}

// Blocked reports whether the subject currently has an active block.
func (m *Mock) Blocked(subjectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocks[subjectID]
	return ok
}

package remediation

import "sync"

// subjectLocks serializes case transitions per subject. The check-then-act
// sequence (read case state, decide, write transition) must be atomic with
// respect to other assessments for the same subject.
type subjectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-subject mutex, creating it on first use. Locks are
// never removed: the subject population is bounded by the directory.
func (s *subjectLocks) Lock(subjectID string) *sync.Mutex {
	s.mu.Lock()
	l, ok := s.locks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[subjectID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l
}

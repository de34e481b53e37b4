package turn

import (
	"sync"

	"github.com/agentserver/agentserver/internal/apierror"
)

// branchLocks enforces the per-branch single-writer rule from §5: at
// most one Turn engine call may be in flight on a branch at a time.
// A second concurrent attempt gets a conflict error rather than
// blocking, since callers (HTTP handlers) need to turn that into a
// 409 immediately rather than queue behind an in-progress LLM call.
type branchLocks struct {
	mu      sync.Mutex
	holders map[string]struct{}
}

func newBranchLocks() *branchLocks {
	return &branchLocks{holders: make(map[string]struct{})}
}

// tryAcquire claims the lock for branchID, returning a release func.
// Returns a conflict error if the branch is already locked.
func (b *branchLocks) tryAcquire(branchID string) (release func(), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, held := b.holders[branchID]; held {
		return nil, apierror.Conflict("branch %q already has a turn in flight", branchID)
	}
	b.holders[branchID] = struct{}{}

	var once sync.Once
	release = func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.holders, branchID)
			b.mu.Unlock()
		})
	}
	return release, nil
}

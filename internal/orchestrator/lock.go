package orchestrator

import (
	"sync"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

// lockKey identifies one pipeline slot. Only one run may hold a given
// (project, task type) slot at a time.
type lockKey struct {
	projectID string
	taskType  types.TaskType
}

// keyedLock provides non-blocking try-lock semantics per pipeline slot.
type keyedLock struct {
	mu   sync.Mutex
	held map[lockKey]bool
}

func newKeyedLock() *keyedLock {
	return &keyedLock{held: make(map[lockKey]bool)}
}

// TryAcquire attempts to acquire the slot without blocking.
// Returns true if the slot was successfully acquired, false otherwise.
func (l *keyedLock) TryAcquire(key lockKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

// Release releases the slot. Must only be called by the goroutine that
// successfully acquired it.
func (l *keyedLock) Release(key lockKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

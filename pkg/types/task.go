package types

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of an indexing task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskStarted   TaskStatus = "STARTED"
	TaskProgress  TaskStatus = "PROGRESS"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// Terminal reports whether the status accepts no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskType identifies what kind of pipeline run a task tracks.
type TaskType string

const (
	TaskFullIndex     TaskType = "full_index"
	TaskRelationships TaskType = "relationship_discovery"
)

// TaskResult summarizes what a completed run produced.
type TaskResult struct {
	ChunksCreated        int
	EntitiesExtracted    int
	RelationshipsFound   int
	LinesIndexed         int
	ScenesDetected       int
	SkippedUnits         int // Units skipped due to per-item failures
	FailureDetail        string
}

// TaskProgressInfo carries the current/total counters and a human-readable
// message, always available mid-run.
type TaskProgressInfo struct {
	Current int
	Total   int
	Message string
}

// IndexingTask tracks the lifecycle of a single pipeline run. Transitions are
// append-only status updates; records are never silently deleted, and
// cancellation is a status transition, not a removal.
type IndexingTask struct {
	ID        string
	ProjectID string
	FileID    string
	Type      TaskType

	Status   TaskStatus
	Progress TaskProgressInfo
	Result   *TaskResult
	Error    string
	Metadata map[string]string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Start transitions PENDING -> STARTED.
func (t *IndexingTask) Start(now time.Time) error {
	if t.Status != TaskPending {
		return fmt.Errorf("%w: cannot start task in status %s", ErrInconsistentState, t.Status)
	}
	t.Status = TaskStarted
	t.StartedAt = &now
	return nil
}

// UpdateProgress records a PROGRESS transition. Rejected after any terminal
// status; no transition ever re-enters PENDING.
func (t *IndexingTask) UpdateProgress(current, total int, message string) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", ErrInconsistentState, t.ID, t.Status)
	}
	if t.Status == TaskPending {
		return fmt.Errorf("%w: task %s has not started", ErrInconsistentState, t.ID)
	}
	t.Status = TaskProgress
	t.Progress = TaskProgressInfo{Current: current, Total: total, Message: message}
	return nil
}

// Complete transitions to COMPLETED with a result summary.
func (t *IndexingTask) Complete(result TaskResult, now time.Time) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", ErrInconsistentState, t.ID, t.Status)
	}
	t.Status = TaskCompleted
	t.Result = &result
	t.CompletedAt = &now
	return nil
}

// Fail transitions to FAILED with an error description.
func (t *IndexingTask) Fail(reason string, now time.Time) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", ErrInconsistentState, t.ID, t.Status)
	}
	t.Status = TaskFailed
	t.Error = reason
	t.CompletedAt = &now
	return nil
}

// Cancel transitions to CANCELLED. Only valid from a non-terminal state.
func (t *IndexingTask) Cancel(now time.Time) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", ErrInconsistentState, t.ID, t.Status)
	}
	t.Status = TaskCancelled
	t.CompletedAt = &now
	return nil
}

// Duration measures STARTED to the terminal transition. Tasks that never
// reached STARTED have no defined duration.
func (t *IndexingTask) Duration() (time.Duration, bool) {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0, false
	}
	return t.CompletedAt.Sub(*t.StartedAt), true
}

// Stalled reports whether a non-terminal task has outlived maxAge since it
// started, for statistics and reporting only.
func (t *IndexingTask) Stalled(now time.Time, maxAge time.Duration) bool {
	if t.Status.Terminal() || t.StartedAt == nil {
		return false
	}
	return now.Sub(*t.StartedAt) > maxAge
}

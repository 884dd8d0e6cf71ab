package types

import "errors"

// Error taxonomy shared across the engine.
// InvalidInput fails fast and is never retried. DependencyUnavailable is
// retried with backoff by the orchestrator. InconsistentState is logged,
// the offending unit skipped and counted, but the run continues.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrInconsistentState     = errors.New("inconsistent state")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrTaskConflict          = errors.New("task already active for project and type")

	// Search result errors
	ErrInvalidChunkID        = errors.New("invalid chunk ID")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrEmptyContent          = errors.New("content cannot be empty")
)

// Package orchestrator coordinates the end-to-end indexing pipeline for
// narrative manuscripts.
//
// The orchestrator runs segmentation, embedding, entity extraction, and
// relationship discovery as one tracked background run per file, recording
// progress and the terminal outcome on an IndexingTask.
//
// # Basic Usage
//
//	orch := orchestrator.New(store, embed, orchestrator.Config{})
//
//	task, err := orch.IndexFile(ctx, "novel-draft", "chapter-01", text)
//	// task.ID can be polled via orch.GetTask until the status is terminal.
//
// # Pipeline Stages
//
//  1. Segmentation: chunking runs in parallel with scene detection, and the
//     position index is rebuilt at the next version using the scene map
//  2. Embedding: chunk content embedded in batches, vectors persisted
//  3. Extraction: entities detected per chunk; individual chunk failures are
//     tolerated and counted, failing the task only past a policy threshold
//  4. Discovery: entity co-occurrence folded into relationship strengths
//
// Progress is persisted after every stage, so an external poller always sees
// the current stage counters. Cancellation is checked between stages; a
// cancelled run transitions its task to CANCELLED and keeps the record.
//
// # Concurrency Control
//
// One run may be active per (project, task type). A second start while the
// slot is held returns ErrTaskConflict, and the persisted task table is
// consulted as well so the rule survives process restarts. Transient
// dependency outages (ErrDependencyUnavailable) are retried with exponential
// backoff up to a bounded attempt budget before the task fails.
package orchestrator

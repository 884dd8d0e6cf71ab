// Package types provides shared type definitions for the narrative indexing
// engine.
//
// This package defines the domain types used across components: chunks,
// position-index entries, scene boundaries, entities with mention tracking,
// typed relationships, indexing tasks, and search results.
//
// # Core Types
//
// Chunk is an offset-addressed window of manuscript text, the unit of
// embedding and retrieval:
//
//	chunk := &types.Chunk{
//	    ProjectID: "p1",
//	    FileID:    "f1",
//	    Index:     0,
//	    Content:   "Alice met Bob by the river.",
//	    StartPos:  0,
//	    EndPos:    27,
//	}
//	chunk.ComputeContentHash()
//
// Entity is a recognized character, location, or theme, deduplicated by
// (project, type, canonical name) with alias folding. New evidence is folded
// in with a pure reducer that keeps confidence monotone:
//
//	entity.FoldMentions(mentions)
//
// Relationship strength follows the same reducer pattern: ComputeStrength is
// a pure function of the full evidence set, so re-running discovery on the
// same evidence is idempotent.
//
// IndexingTask enforces its own state machine: PENDING -> STARTED ->
// PROGRESS* -> {COMPLETED | FAILED | CANCELLED}. Terminal states accept no
// further updates, and nothing transitions back into PENDING.
//
// # Validation
//
// Domain types implement Validate methods to ensure data integrity before
// persistence:
//
//	if err := chunk.Validate(); err != nil {
//	    return err
//	}
package types

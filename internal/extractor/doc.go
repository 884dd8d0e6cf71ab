// Package extractor detects character and location entities in manuscript
// chunks.
//
// The pipeline runs a named-entity model over each chunk to get raw candidate
// spans, then applies type-specific validators expressed as tables of pure
// predicates in fixed priority order: rejects first, then strong accepts,
// with everything else kept at reduced confidence. Heuristic filtering is
// tuned for prose narrative, not exhaustive linguistic correctness.
//
// Candidates deduplicate case-insensitively with alias folding, and a name
// only materializes as an entity once its mention count across the supplied
// chunk set clears a minimum threshold. Callers pass the full current chunk
// set: existing entities keep their identity and aliases, but their mention
// aggregates are rebuilt from that set through Entity.ResetEvidence and
// Entity.FoldMentions, so re-running extraction over unchanged text is
// idempotent.
//
//	model := extractor.NewHeuristicModel()
//	ex := extractor.New(model, extractor.Config{
//	    AliasGroups: map[string][]string{"John": {"Johnny"}},
//	})
//	result, err := ex.ExtractFromChunks(ctx, projectID, chunks, existing)
package extractor

// Package retrieval executes search over the indexed narrative: semantic,
// keyword, and hybrid chunk retrieval, entity-name autocomplete, nearest
// neighbor lookup, and context assembly for downstream prompting.
//
// # Search Modes
//
// Semantic mode embeds the query and ranks chunks by cosine similarity.
// Keyword mode scans chunk content for exact/substring occurrences. Hybrid
// mode (the default) runs both backends concurrently and blends per-chunk
// scores with the semantic side dominant:
//
//	relevance = 0.7 * (cosine+1)/2 + 0.3 * keyword_score
//
// Chunks found only by keyword match keep the keyword term alone, so a
// literal match boosts ranking without outranking strong semantic hits.
//
// # Basic Usage
//
//	engine := retrieval.NewEngine(store, embed)
//
//	resp, err := engine.Search(ctx, retrieval.SearchRequest{
//	    ProjectIDs: []string{"novel-draft"},
//	    Query:      "the argument at the harbor",
//	    Mode:       retrieval.SearchModeHybrid,
//	    Limit:      10,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %.2f %s#%d\n", r.Rank, r.RelevanceScore, r.FileID, r.Index)
//	}
//
// # Pagination
//
// Results are ordered by descending relevance with ties broken by ascending
// chunk ID, so Offset/Limit paging is deterministic across repeated calls.
//
// # Caching
//
// Responses are cached in an LRU keyed by a hash of the full request when
// UseCache is set. Entries expire after CacheTTL (default one hour).
//
// # Other Operations
//
// Autocomplete suggests entity names for a partial input, prefix matches
// first, ranked by mention count. FindSimilar returns the nearest neighbors
// of a reference chunk above a similarity threshold, excluding the reference.
// AssembleContext packages the top passages for a query together with the
// entities those passages mention.
package retrieval

package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/storyloom/narrative-mcp/internal/embedder"
	"github.com/storyloom/narrative-mcp/internal/storage"
	"github.com/storyloom/narrative-mcp/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic" // Vector similarity only
	SearchModeKeyword  SearchMode = "keyword"  // Exact/substring match only
	SearchModeHybrid   SearchMode = "hybrid"   // Weighted blend, semantic dominant
)

const (
	// DefaultLimit is applied when a request does not specify one.
	DefaultLimit = 10
	// MaxLimit caps the page size of any single request.
	MaxLimit = 100
	// DefaultCacheTTL is applied to cached responses when the request does
	// not specify a TTL.
	DefaultCacheTTL = time.Hour
	// DefaultCacheSize is the number of query responses kept in the LRU.
	DefaultCacheSize = 1000

	// Hybrid blend weights. Semantic similarity dominates; a keyword match
	// boosts the ranking of chunks that literally contain the query.
	semanticWeight = 0.7
	keywordWeight  = 0.3
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	ProjectIDs []string
	Query      string
	Mode       SearchMode

	// Pagination. Results are ordered by descending relevance, ties broken
	// by ascending chunk ID, so repeated requests page deterministically.
	Limit  int
	Offset int

	// Optional filters
	FileID       string
	MinRelevance float64

	UseCache bool
	CacheTTL time.Duration
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Mode         SearchMode
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Engine executes semantic, keyword, and hybrid search over the stored
// embedding and chunk indexes.
type Engine struct {
	store    storage.Store
	embedder embedder.Embedder

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewEngine creates a retrieval engine backed by the given store and embedder.
func NewEngine(store storage.Store, embed embedder.Embedder) *Engine {
	cache, _ := lru.New[[32]byte, *cacheEntry](DefaultCacheSize)
	return &Engine{
		store:    store,
		embedder: embed,
		cache:    cache,
	}
}

// candidate accumulates per-chunk scores from the vector and keyword backends
// before blending.
type candidate struct {
	chunkID      int64
	similarity   float64
	keywordScore float64
	hasSemantic  bool
	hasKeyword   bool
}

// Search executes a search request and returns ranked results.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	if err := e.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached, err := e.checkCache(req); err == nil {
			cached.CacheHit = true
			return cached, nil
		}
	}

	// Candidate IDs are fetched uncapped (limit 0) so TotalResults reports
	// the true match count; scoring and ranking happen in-process and only
	// the requested page is fully loaded.
	var candidates map[int64]*candidate
	var err error

	switch req.Mode {
	case SearchModeSemantic:
		candidates, err = e.semanticCandidates(ctx, req, 0)
	case SearchModeKeyword:
		candidates, err = e.keywordCandidates(ctx, req, 0)
	case SearchModeHybrid:
		candidates, err = e.hybridCandidates(ctx, req, 0)
	default:
		return nil, fmt.Errorf("%w: unknown search mode %q", types.ErrInvalidInput, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	ranked := rankCandidates(candidates, req.Mode, req.MinRelevance)

	results, err := e.fetchResults(ctx, ranked, req.Offset, req.Limit)
	if err != nil {
		return nil, err
	}

	response := &SearchResponse{
		Results:      results,
		TotalResults: len(ranked),
		Mode:         req.Mode,
		Duration:     time.Since(start),
	}

	if req.UseCache {
		e.storeInCache(req, response)
	}

	return response, nil
}

// validateRequest applies defaults and rejects malformed requests.
func (e *Engine) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", types.ErrInvalidInput)
	}
	if len(req.ProjectIDs) == 0 {
		return fmt.Errorf("%w: at least one project ID required", types.ErrInvalidInput)
	}
	if req.Offset < 0 {
		return fmt.Errorf("%w: offset cannot be negative", types.ErrInvalidInput)
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// semanticCandidates embeds the query and collects vector matches across the
// requested projects.
func (e *Engine) semanticCandidates(ctx context.Context, req SearchRequest, limit int) (map[int64]*candidate, error) {
	queryEmb, err := e.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filters := &storage.SearchFilters{FileID: req.FileID}
	candidates := make(map[int64]*candidate)
	for _, projectID := range req.ProjectIDs {
		matches, err := e.store.SearchVector(ctx, projectID, queryEmb.Vector, limit, filters)
		if err != nil {
			return nil, fmt.Errorf("vector search in %s: %w", projectID, err)
		}
		for _, m := range matches {
			c := candidates[m.ChunkID]
			if c == nil {
				c = &candidate{chunkID: m.ChunkID}
				candidates[m.ChunkID] = c
			}
			c.similarity = m.SimilarityScore
			c.hasSemantic = true
		}
	}
	return candidates, nil
}

// keywordCandidates collects substring matches across the requested projects.
func (e *Engine) keywordCandidates(ctx context.Context, req SearchRequest, limit int) (map[int64]*candidate, error) {
	filters := &storage.SearchFilters{FileID: req.FileID}
	candidates := make(map[int64]*candidate)
	for _, projectID := range req.ProjectIDs {
		matches, err := e.store.SearchKeyword(ctx, projectID, req.Query, limit, filters)
		if err != nil {
			return nil, fmt.Errorf("keyword search in %s: %w", projectID, err)
		}
		for _, m := range matches {
			c := candidates[m.ChunkID]
			if c == nil {
				c = &candidate{chunkID: m.ChunkID}
				candidates[m.ChunkID] = c
			}
			c.keywordScore = m.Score
			c.hasKeyword = true
		}
	}
	return candidates, nil
}

// hybridCandidates runs both backends concurrently and merges per-chunk
// scores. One backend may fail as long as the other returns results.
func (e *Engine) hybridCandidates(ctx context.Context, req SearchRequest, limit int) (map[int64]*candidate, error) {
	type backendResult struct {
		candidates map[int64]*candidate
		err        error
	}

	semanticCh := make(chan backendResult, 1)
	keywordCh := make(chan backendResult, 1)

	go func() {
		c, err := e.semanticCandidates(ctx, req, limit)
		semanticCh <- backendResult{candidates: c, err: err}
	}()
	go func() {
		c, err := e.keywordCandidates(ctx, req, limit)
		keywordCh <- backendResult{candidates: c, err: err}
	}()

	semantic := <-semanticCh
	keyword := <-keywordCh

	if semantic.err != nil && keyword.err != nil {
		return nil, fmt.Errorf("hybrid search failed: semantic: %v; keyword: %v", semantic.err, keyword.err)
	}

	merged := semantic.candidates
	if merged == nil {
		merged = make(map[int64]*candidate)
	}
	for chunkID, kc := range keyword.candidates {
		c := merged[chunkID]
		if c == nil {
			c = &candidate{chunkID: chunkID}
			merged[chunkID] = c
		}
		c.keywordScore = kc.keywordScore
		c.hasKeyword = true
	}
	return merged, nil
}

// relevanceFor derives a [0,1] relevance score for a candidate under the
// given mode. Cosine similarity is shifted from [-1,1] into [0,1] so that
// keyword and semantic contributions compose on the same scale.
func relevanceFor(c *candidate, mode SearchMode) float64 {
	semRelevance := clamp01((c.similarity + 1) / 2)

	var score float64
	switch mode {
	case SearchModeSemantic:
		score = semRelevance
	case SearchModeKeyword:
		score = c.keywordScore
	default:
		score = semanticWeight * semRelevance
		if c.hasKeyword {
			score += keywordWeight * c.keywordScore
		}
		// Keyword-only hits keep their boost but never outrank a decent
		// semantic match.
		if !c.hasSemantic {
			score = keywordWeight * c.keywordScore
		}
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// rankedCandidate pairs a candidate with its derived relevance.
type rankedCandidate struct {
	candidate *candidate
	relevance float64
}

// rankCandidates scores, filters, and deterministically orders candidates.
func rankCandidates(candidates map[int64]*candidate, mode SearchMode, minRelevance float64) []rankedCandidate {
	ranked := make([]rankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		rel := relevanceFor(c, mode)
		if rel < minRelevance {
			continue
		}
		ranked = append(ranked, rankedCandidate{candidate: c, relevance: rel})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].relevance != ranked[j].relevance {
			return ranked[i].relevance > ranked[j].relevance
		}
		return ranked[i].candidate.chunkID < ranked[j].candidate.chunkID
	})
	return ranked
}

// fetchResults loads chunk content for the requested page. Chunks that can
// no longer be loaded are skipped rather than failing the search.
func (e *Engine) fetchResults(ctx context.Context, ranked []rankedCandidate, offset, limit int) ([]types.SearchResult, error) {
	if offset >= len(ranked) {
		return []types.SearchResult{}, nil
	}
	end := offset + limit
	if end > len(ranked) {
		end = len(ranked)
	}

	results := make([]types.SearchResult, 0, end-offset)
	for i, rc := range ranked[offset:end] {
		chunk, err := e.store.GetChunk(ctx, rc.candidate.chunkID)
		if err != nil {
			continue
		}
		sim := rc.candidate.similarity
		if !rc.candidate.hasSemantic {
			sim = 0
		}
		results = append(results, types.SearchResult{
			ChunkID:         chunk.ID,
			Rank:            offset + i + 1,
			SimilarityScore: sim,
			RelevanceScore:  rc.relevance,
			ProjectID:       chunk.ProjectID,
			FileID:          chunk.FileID,
			Index:           chunk.Index,
			Content:         chunk.Content,
		})
	}
	return results, nil
}

// checkCache returns a cached response for the request if present and fresh.
func (e *Engine) checkCache(req SearchRequest) (*SearchResponse, error) {
	hash := computeQueryHash(req)

	e.cacheMu.RLock()
	entry, ok := e.cache.Get(hash)
	if !ok {
		e.cacheMu.RUnlock()
		return nil, fmt.Errorf("cache miss")
	}

	if time.Now().After(entry.expiresAt) {
		e.cacheMu.RUnlock()
		e.cacheMu.Lock()
		e.cache.Remove(hash)
		e.cacheMu.Unlock()
		return nil, fmt.Errorf("cache expired")
	}

	// Return a deep copy while still holding the read lock so the entry
	// cannot change underneath the copy.
	response := copySearchResponse(entry.response)
	e.cacheMu.RUnlock()

	return response, nil
}

// storeInCache saves a response under the request's hash.
func (e *Engine) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	e.cacheMu.Lock()
	e.cache.Add(computeQueryHash(req), entry)
	e.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse.
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := &SearchResponse{
		TotalResults: src.TotalResults,
		Mode:         src.Mode,
		Duration:     src.Duration,
		CacheHit:     src.CacheHit,
		Results:      make([]types.SearchResult, len(src.Results)),
	}
	copy(dst.Results, src.Results)
	return dst
}

// computeQueryHash computes a stable hash identifying a search request.
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(strings.Join(req.ProjectIDs, ","))
	data.WriteString("|")
	data.WriteString(req.FileID)
	data.WriteString("|")
	fmt.Fprintf(&data, "%d|%d|%g", req.Limit, req.Offset, req.MinRelevance)
	return sha256.Sum256([]byte(data.String()))
}

package retrieval

import (
	"context"
	"fmt"

	"github.com/storyloom/narrative-mcp/internal/storage"
	"github.com/storyloom/narrative-mcp/pkg/types"
)

// DefaultSimilarityThreshold filters out weakly related neighbors when a
// FindSimilar request does not specify a threshold.
const DefaultSimilarityThreshold = 0.5

// FindSimilar returns chunks whose embeddings are nearest to the reference
// chunk's embedding, excluding the reference itself. Only neighbors with
// cosine similarity at or above the threshold are returned.
func (e *Engine) FindSimilar(ctx context.Context, chunkID int64, limit int, threshold float64) ([]types.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}

	ref, err := e.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, fmt.Errorf("load reference chunk %d: %w", chunkID, err)
	}

	emb, err := e.store.GetEmbedding(ctx, chunkID)
	if err != nil {
		return nil, fmt.Errorf("load reference embedding for chunk %d: %w", chunkID, err)
	}
	vector := storage.DeserializeVector(emb.Vector)

	// Fetch one extra so excluding the reference still yields a full page.
	matches, err := e.store.SearchVector(ctx, ref.ProjectID, vector, limit+1, &storage.SearchFilters{
		MinRelevance: threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]types.SearchResult, 0, limit)
	for _, m := range matches {
		if m.ChunkID == chunkID {
			continue
		}
		if len(results) >= limit {
			break
		}
		chunk, err := e.store.GetChunk(ctx, m.ChunkID)
		if err != nil {
			continue
		}
		results = append(results, types.SearchResult{
			ChunkID:         chunk.ID,
			Rank:            len(results) + 1,
			SimilarityScore: m.SimilarityScore,
			RelevanceScore:  clamp01((m.SimilarityScore + 1) / 2),
			ProjectID:       chunk.ProjectID,
			FileID:          chunk.FileID,
			Index:           chunk.Index,
			Content:         chunk.Content,
		})
	}
	return results, nil
}

package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

const (
	// DefaultContextChunks bounds the passage budget of an assembled context.
	DefaultContextChunks = 8
	// DefaultContextEntities bounds the entity summary of an assembled context.
	DefaultContextEntities = 12
)

// ContextRequest describes what to assemble context for.
type ContextRequest struct {
	ProjectIDs  []string
	Query       string
	MaxChunks   int
	MaxEntities int
}

// AssembledContext is the retrieval payload handed to an external prompting
// layer: passages ranked by relevance to the query, plus the entities those
// passages mention ordered by how central they are to the project.
type AssembledContext struct {
	Chunks   []types.SearchResult
	Entities []*types.Entity
}

// AssembleContext runs a hybrid search for the query and gathers the
// entities mentioned by the returned passages.
func (e *Engine) AssembleContext(ctx context.Context, req ContextRequest) (*AssembledContext, error) {
	if req.MaxChunks <= 0 {
		req.MaxChunks = DefaultContextChunks
	}
	if req.MaxEntities <= 0 {
		req.MaxEntities = DefaultContextEntities
	}

	response, err := e.Search(ctx, SearchRequest{
		ProjectIDs: req.ProjectIDs,
		Query:      req.Query,
		Mode:       SearchModeHybrid,
		Limit:      req.MaxChunks,
	})
	if err != nil {
		return nil, fmt.Errorf("context search: %w", err)
	}

	entities, err := e.contextEntities(ctx, response.Results, req.MaxEntities)
	if err != nil {
		return nil, err
	}

	return &AssembledContext{
		Chunks:   response.Results,
		Entities: entities,
	}, nil
}

// contextEntities resolves the distinct entities mentioned by the given
// results, ordered by mention count then name.
func (e *Engine) contextEntities(ctx context.Context, results []types.SearchResult, limit int) ([]*types.Entity, error) {
	seen := make(map[string]bool)
	var entities []*types.Entity
	for _, res := range results {
		chunk, err := e.store.GetChunk(ctx, res.ChunkID)
		if err != nil {
			continue
		}
		for _, entityID := range chunk.EntityIDs {
			if seen[entityID] {
				continue
			}
			seen[entityID] = true
			ent, err := e.store.GetEntity(ctx, entityID)
			if err != nil {
				// Entity links can lag a re-index; skip dangling IDs.
				continue
			}
			entities = append(entities, ent)
		}
	}

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].MentionCount != entities[j].MentionCount {
			return entities[i].MentionCount > entities[j].MentionCount
		}
		return entities[i].Name < entities[j].Name
	})
	if len(entities) > limit {
		entities = entities[:limit]
	}
	return entities, nil
}

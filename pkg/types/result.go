package types

// SearchResult represents a single retrieval hit with relevance information.
type SearchResult struct {
	ChunkID int64
	Rank    int // Position in result set (1-based)

	SimilarityScore float64 // Raw cosine similarity in [-1,1]; 0 for keyword-only hits
	RelevanceScore  float64 // Derived combined score in [0,1]

	ProjectID string
	FileID    string
	Index     int
	Content   string
}

// Validate checks if the search result is valid.
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == 0 {
		return ErrInvalidChunkID
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.RelevanceScore < 0 || sr.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}
	if sr.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// NetworkNode is an entity in a relationship-network view, annotated with its
// BFS traversal depth from the origin entity.
type NetworkNode struct {
	EntityID string
	Name     string
	Type     EntityType
	Depth    int
}

// NetworkEdge is a relationship edge in a network view.
type NetworkEdge struct {
	SourceEntityID string
	TargetEntityID string
	Type           RelationshipType
	Strength       float64
}

// EntityNetwork is the bounded-depth traversal result around one entity.
type EntityNetwork struct {
	Nodes []NetworkNode
	Edges []NetworkEdge
}

package storage

import (
	"context"
	"time"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

// Store defines the interface for persisting and querying indexed narrative
// data. All methods are safe for concurrent use.
type Store interface {
	// Project operations
	UpsertProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)

	// Chunk operations
	UpsertChunk(ctx context.Context, chunk *types.Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*types.Chunk, error)
	ListChunksByFile(ctx context.Context, projectID, fileID string) ([]*types.Chunk, error)
	ListChunksByProject(ctx context.Context, projectID string) ([]*types.Chunk, error)
	DeleteChunksByFile(ctx context.Context, projectID, fileID string) error
	SetChunkEntities(ctx context.Context, chunkID int64, entityIDs []string) error

	// Position index operations. Entries for a (file, version) are written
	// as a unit and supersede any prior entries for the same version.
	ReplacePositionIndex(ctx context.Context, projectID, fileID string, version int, entries []*types.PositionIndexEntry) error
	GetLineEntry(ctx context.Context, projectID, fileID string, version, lineNo int) (*types.PositionIndexEntry, error)
	ListPositionEntries(ctx context.Context, projectID, fileID string, version int) ([]*types.PositionIndexEntry, error)
	LatestIndexVersion(ctx context.Context, projectID, fileID string) (int, error)

	// Scene operations
	ReplaceSceneBoundaries(ctx context.Context, projectID, fileID string, boundaries []types.SceneBoundary) error
	ListSceneBoundaries(ctx context.Context, projectID, fileID string) ([]types.SceneBoundary, error)

	// Entity operations
	UpsertEntity(ctx context.Context, entity *types.Entity) error
	GetEntity(ctx context.Context, entityID string) (*types.Entity, error)
	GetEntityByName(ctx context.Context, projectID string, entityType types.EntityType, name string) (*types.Entity, error)
	ListEntities(ctx context.Context, projectID string, filter *EntityFilter) ([]*types.Entity, error)

	// Relationship operations
	UpsertRelationship(ctx context.Context, rel *types.Relationship) error
	GetRelationship(ctx context.Context, sourceEntityID, targetEntityID string) (*types.Relationship, error)
	ListRelationshipsByEntity(ctx context.Context, entityID string, minStrength float64) ([]*types.Relationship, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error)

	// Search operations
	SearchVector(ctx context.Context, projectID string, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchKeyword(ctx context.Context, projectID string, query string, limit int, filters *SearchFilters) ([]KeywordResult, error)

	// Task operations
	CreateTask(ctx context.Context, task *types.IndexingTask) error
	UpdateTask(ctx context.Context, task *types.IndexingTask) error
	GetTask(ctx context.Context, taskID string) (*types.IndexingTask, error)
	ListTasks(ctx context.Context, projectID string, statuses []types.TaskStatus) ([]*types.IndexingTask, error)
	ActiveTask(ctx context.Context, projectID string, taskType types.TaskType) (*types.IndexingTask, error)

	// Status operations
	GetCounts(ctx context.Context, projectID string) (*ProjectCounts, error)

	// Database operations
	Close() error
}

// Project represents an indexed manuscript project. The ID is caller-supplied
// and stable across re-indexing.
type Project struct {
	ID            string
	Name          string
	TotalFiles    int
	TotalChunks   int
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Embedding represents a stored vector embedding for a chunk
type Embedding struct {
	ID        int64
	ChunkID   int64
	Vector    []byte // Serialized float32 array, little-endian
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// SearchFilters narrows search results
type SearchFilters struct {
	FileID       string  // Restrict to one file
	MinRelevance float64 // Minimum score threshold
}

// EntityFilter narrows entity listings
type EntityFilter struct {
	Type        types.EntityType // Empty matches all types
	NamePattern string           // Substring match against name and aliases, case-insensitive
	MinMentions int
	Limit       int
	Offset      int
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID         int64
	SimilarityScore float64
}

// KeywordResult represents a result from substring keyword search
type KeywordResult struct {
	ChunkID     int64
	Occurrences int
	Score       float64
}

// ProjectCounts contains index statistics for a project
type ProjectCounts struct {
	Project            *Project
	FilesCount         int
	ChunksCount        int
	LinesCount         int
	ScenesCount        int
	EntitiesCount      int
	RelationshipsCount int
	EmbeddingsCount    int
	IndexSizeMB        float64
}

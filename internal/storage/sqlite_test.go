package storage

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NotNil(t, store)
	return store
}

func makeChunk(projectID, fileID string, index, start int, content string) *types.Chunk {
	c := &types.Chunk{
		ProjectID: projectID,
		FileID:    fileID,
		Index:     index,
		Content:   content,
		StartPos:  start,
		EndPos:    start + len([]rune(content)),
	}
	c.ComputeContentHash()
	c.ComputeWordCount()
	return c
}

func TestNewSQLiteStore(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	assert.NotNil(t, store.db)
}

func TestUpsertProject(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	project := &Project{ID: "proj-1", Name: "Harborlight"}
	require.NoError(t, store.UpsertProject(ctx, project))

	retrieved, err := store.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "Harborlight", retrieved.Name)

	// Upsert updates in place
	project.Name = "Harborlight (rev 2)"
	project.TotalChunks = 12
	require.NoError(t, store.UpsertProject(ctx, project))

	retrieved, err = store.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "Harborlight (rev 2)", retrieved.Name)
	assert.Equal(t, 12, retrieved.TotalChunks)
}

func TestGetProject_NotFound(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	_, err := store.GetProject(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUpsertChunk_ReplacesSameSlot(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	chunk := makeChunk("p1", "ch01", 0, 0, "Kira crossed the bridge at dawn.")
	require.NoError(t, store.UpsertChunk(ctx, chunk))
	assert.Greater(t, chunk.ID, int64(0))
	firstID := chunk.ID

	// Re-indexing the same (file, index) slot replaces content, same row id
	revised := makeChunk("p1", "ch01", 0, 0, "Kira crossed the bridge at dusk.")
	require.NoError(t, store.UpsertChunk(ctx, revised))
	assert.Equal(t, firstID, revised.ID)

	loaded, err := store.GetChunk(ctx, firstID)
	require.NoError(t, err)
	assert.Contains(t, loaded.Content, "dusk")

	chunks, err := store.ListChunksByFile(ctx, "p1", "ch01")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestUpsertChunk_Invalid(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	err := store.UpsertChunk(context.Background(), &types.Chunk{FileID: "f", ProjectID: "p"})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestSetChunkEntities(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	chunk := makeChunk("p1", "ch01", 0, 0, "Kira and Mara argued in the market.")
	require.NoError(t, store.UpsertChunk(ctx, chunk))

	require.NoError(t, store.SetChunkEntities(ctx, chunk.ID, []string{"e-kira", "e-mara"}))

	loaded, err := store.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e-kira", "e-mara"}, loaded.EntityIDs)

	// Replacing the set drops stale links
	require.NoError(t, store.SetChunkEntities(ctx, chunk.ID, []string{"e-kira"}))
	loaded, err = store.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"e-kira"}, loaded.EntityIDs)
}

func TestReplacePositionIndex_Supersedes(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	sceneNo := 1
	entries := []*types.PositionIndexEntry{
		{ProjectID: "p1", FileID: "ch01", Version: 1, LineNo: 1, StartCharPos: 0, EndCharPos: 5, ParagraphNo: 1, LineContent: "Hello", SceneNo: &sceneNo},
		{ProjectID: "p1", FileID: "ch01", Version: 1, LineNo: 2, StartCharPos: 6, EndCharPos: 6, ParagraphNo: 1, LineContent: "", IsEmpty: true},
	}
	require.NoError(t, store.ReplacePositionIndex(ctx, "p1", "ch01", 1, entries))

	entry, err := store.GetLineEntry(ctx, "p1", "ch01", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "Hello", entry.LineContent)
	require.NotNil(t, entry.SceneNo)
	assert.Equal(t, 1, *entry.SceneNo)

	// Rewriting the same version replaces the rows
	replacement := []*types.PositionIndexEntry{
		{ProjectID: "p1", FileID: "ch01", Version: 1, LineNo: 1, StartCharPos: 0, EndCharPos: 7, ParagraphNo: 1, LineContent: "Goodbye"},
	}
	require.NoError(t, store.ReplacePositionIndex(ctx, "p1", "ch01", 1, replacement))

	listed, err := store.ListPositionEntries(ctx, "p1", "ch01", 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "Goodbye", listed[0].LineContent)
	assert.Nil(t, listed[0].SceneNo)
}

func TestLatestIndexVersion(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	v, err := store.LatestIndexVersion(ctx, "p1", "ch01")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	for _, version := range []int{1, 3, 2} {
		entries := []*types.PositionIndexEntry{
			{ProjectID: "p1", FileID: "ch01", Version: version, LineNo: 1, StartCharPos: 0, EndCharPos: 2, ParagraphNo: 1, LineContent: "Hi"},
		}
		require.NoError(t, store.ReplacePositionIndex(ctx, "p1", "ch01", version, entries))
	}

	v, err = store.LatestIndexVersion(ctx, "p1", "ch01")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestReplaceSceneBoundaries(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	boundaries := []types.SceneBoundary{
		{ProjectID: "p1", FileID: "ch01", SceneNo: 1, ChapterNo: 1, StartPos: 0, EndPos: 100},
		{ProjectID: "p1", FileID: "ch01", SceneNo: 2, ChapterNo: 1, StartPos: 100, EndPos: 240},
	}
	require.NoError(t, store.ReplaceSceneBoundaries(ctx, "p1", "ch01", boundaries))

	loaded, err := store.ListSceneBoundaries(ctx, "p1", "ch01")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 1, loaded[0].SceneNo)
	assert.Equal(t, 100, loaded[1].StartPos)
}

func TestReplaceSceneBoundaries_RejectsOverlap(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	overlapping := []types.SceneBoundary{
		{ProjectID: "p1", FileID: "ch01", SceneNo: 1, ChapterNo: 1, StartPos: 0, EndPos: 120},
		{ProjectID: "p1", FileID: "ch01", SceneNo: 2, ChapterNo: 1, StartPos: 100, EndPos: 240},
	}
	err := store.ReplaceSceneBoundaries(context.Background(), "p1", "ch01", overlapping)
	assert.ErrorIs(t, err, types.ErrInconsistentState)
}

func TestUpsertEntity_CanonicalKey(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	entity := &types.Entity{
		ID:           uuid.NewString(),
		ProjectID:    "p1",
		Type:         types.EntityCharacter,
		Name:         "Kira",
		Aliases:      []string{"the smuggler"},
		Confidence:   0.8,
		MentionCount: 3,
		FirstMention: &types.Mention{FileID: "ch01", CharPos: 10, Snippet: "Kira looked up", Confidence: 0.9},
	}
	require.NoError(t, store.UpsertEntity(ctx, entity))
	originalID := entity.ID

	// Same canonical name, different surface casing: folds into the same row
	// and hands back the stored id.
	dup := &types.Entity{
		ID:           uuid.NewString(),
		ProjectID:    "p1",
		Type:         types.EntityCharacter,
		Name:         "KIRA",
		Confidence:   0.9,
		MentionCount: 5,
	}
	require.NoError(t, store.UpsertEntity(ctx, dup))
	assert.Equal(t, originalID, dup.ID)

	loaded, err := store.GetEntityByName(ctx, "p1", types.EntityCharacter, "kira")
	require.NoError(t, err)
	assert.Equal(t, originalID, loaded.ID)
	assert.Equal(t, 5, loaded.MentionCount)

	// Same name with a different type is a separate entity
	place := &types.Entity{
		ID:         uuid.NewString(),
		ProjectID:  "p1",
		Type:       types.EntityLocation,
		Name:       "Kira",
		Confidence: 0.6,
	}
	require.NoError(t, store.UpsertEntity(ctx, place))
	assert.NotEqual(t, originalID, place.ID)
}

func TestGetEntity_RoundTripsMentions(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	entity := &types.Entity{
		ID:           uuid.NewString(),
		ProjectID:    "p1",
		Type:         types.EntityLocation,
		Name:         "Dunmar Reach",
		Aliases:      []string{"the Reach"},
		Confidence:   0.75,
		MentionCount: 4,
		FirstMention: &types.Mention{FileID: "ch01", CharPos: 42, Snippet: "beyond Dunmar Reach", Confidence: 0.7},
		LastMention:  &types.Mention{FileID: "ch03", CharPos: 990, Snippet: "returned to Dunmar Reach", Confidence: 0.85},
	}
	require.NoError(t, store.UpsertEntity(ctx, entity))

	loaded, err := store.GetEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"the Reach"}, loaded.Aliases)
	require.NotNil(t, loaded.FirstMention)
	assert.Equal(t, 42, loaded.FirstMention.CharPos)
	require.NotNil(t, loaded.LastMention)
	assert.Equal(t, "ch03", loaded.LastMention.FileID)
}

func TestListEntities_RankedAndFiltered(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	seed := []struct {
		name     string
		typ      types.EntityType
		mentions int
	}{
		{"Kira", types.EntityCharacter, 12},
		{"Mara", types.EntityCharacter, 7},
		{"Marlow", types.EntityCharacter, 3},
		{"Dunmar Reach", types.EntityLocation, 5},
	}
	for _, s := range seed {
		require.NoError(t, store.UpsertEntity(ctx, &types.Entity{
			ID: uuid.NewString(), ProjectID: "p1", Type: s.typ,
			Name: s.name, Confidence: 0.8, MentionCount: s.mentions,
		}))
	}

	// Ranked by mention count
	all, err := store.ListEntities(ctx, "p1", nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Kira", all[0].Name)

	// Substring filter matches Mara and Marlow, and Dunmar via "mar"
	matched, err := store.ListEntities(ctx, "p1", &EntityFilter{NamePattern: "mar"})
	require.NoError(t, err)
	assert.Len(t, matched, 3)

	// Type + pattern
	chars, err := store.ListEntities(ctx, "p1", &EntityFilter{Type: types.EntityCharacter, NamePattern: "mar"})
	require.NoError(t, err)
	require.Len(t, chars, 2)
	assert.Equal(t, "Mara", chars[0].Name)

	// Pagination
	page, err := store.ListEntities(ctx, "p1", &EntityFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Mara", page[0].Name)
}

func seedEntityPair(t *testing.T, store *SQLiteStore) (string, string) {
	t.Helper()
	ctx := context.Background()
	src := &types.Entity{ID: uuid.NewString(), ProjectID: "p1", Type: types.EntityCharacter, Name: "Kira", Confidence: 0.9}
	dst := &types.Entity{ID: uuid.NewString(), ProjectID: "p1", Type: types.EntityCharacter, Name: "Mara", Confidence: 0.9}
	require.NoError(t, store.UpsertEntity(ctx, src))
	require.NoError(t, store.UpsertEntity(ctx, dst))
	return src.ID, dst.ID
}

func TestUpsertRelationship_OverwritesOnRerun(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	srcID, dstID := seedEntityPair(t, store)

	rel := &types.Relationship{
		ID: uuid.NewString(), ProjectID: "p1",
		SourceEntityID: srcID, TargetEntityID: dstID,
		Type: types.RelInteractsWith, Strength: 0.4, CooccurrenceCnt: 2,
		ContextSnippets: []string{"Kira nodded at Mara."},
	}
	require.NoError(t, store.UpsertRelationship(ctx, rel))
	firstID := rel.ID

	// A discovery re-run recomputes from full evidence; the stored row is
	// overwritten, not incremented.
	rerun := &types.Relationship{
		ID: uuid.NewString(), ProjectID: "p1",
		SourceEntityID: srcID, TargetEntityID: dstID,
		Type: types.RelInteractsWith, Strength: 0.62, CooccurrenceCnt: 5,
	}
	require.NoError(t, store.UpsertRelationship(ctx, rerun))
	assert.Equal(t, firstID, rerun.ID)

	loaded, err := store.GetRelationship(ctx, srcID, dstID)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.CooccurrenceCnt)
	assert.InDelta(t, 0.62, loaded.Strength, 1e-9)
}

func TestListRelationshipsByEntity_MinStrength(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	srcID, dstID := seedEntityPair(t, store)
	third := &types.Entity{ID: uuid.NewString(), ProjectID: "p1", Type: types.EntityLocation, Name: "Harbor", Confidence: 0.7}
	require.NoError(t, store.UpsertEntity(ctx, third))

	require.NoError(t, store.UpsertRelationship(ctx, &types.Relationship{
		ID: uuid.NewString(), ProjectID: "p1",
		SourceEntityID: srcID, TargetEntityID: dstID,
		Type: types.RelInteractsWith, Strength: 0.8, CooccurrenceCnt: 6,
	}))
	require.NoError(t, store.UpsertRelationship(ctx, &types.Relationship{
		ID: uuid.NewString(), ProjectID: "p1",
		SourceEntityID: srcID, TargetEntityID: third.ID,
		Type: types.RelLocatedIn, Strength: 0.2, CooccurrenceCnt: 1,
	}))

	rels, err := store.ListRelationshipsByEntity(ctx, srcID, 0)
	require.NoError(t, err)
	assert.Len(t, rels, 2)

	strong, err := store.ListRelationshipsByEntity(ctx, srcID, 0.5)
	require.NoError(t, err)
	require.Len(t, strong, 1)
	assert.Equal(t, dstID, strong[0].TargetEntityID)

	// Edge is reachable from either endpoint
	incoming, err := store.ListRelationshipsByEntity(ctx, dstID, 0)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)
}

func TestEmbeddingUpsertAndGet(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	chunk := makeChunk("p1", "ch01", 0, 0, "The tide turned before midnight.")
	require.NoError(t, store.UpsertChunk(ctx, chunk))

	vector := []float32{0.1, -0.4, 0.9}
	emb := &Embedding{
		ChunkID:   chunk.ID,
		Vector:    SerializeVector(vector),
		Dimension: 3,
		Provider:  "local",
		Model:     "local-deterministic",
	}
	require.NoError(t, store.UpsertEmbedding(ctx, emb))

	loaded, err := store.GetEmbedding(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, vector, DeserializeVector(loaded.Vector))
	assert.Equal(t, "local", loaded.Provider)

	// Replacing the embedding keeps the chunk_id unique
	emb2 := &Embedding{
		ChunkID:   chunk.ID,
		Vector:    SerializeVector([]float32{1, 0, 0}),
		Dimension: 3,
		Provider:  "openai",
		Model:     "text-embedding-3-small",
	}
	require.NoError(t, store.UpsertEmbedding(ctx, emb2))

	loaded, err = store.GetEmbedding(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, "openai", loaded.Provider)
}

func TestSearchVector_OrdersBySimilarity(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	vectors := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	var chunkIDs []int64
	for i, v := range vectors {
		chunk := makeChunk("p1", "ch01", i, i*100, "passage number content here")
		require.NoError(t, store.UpsertChunk(ctx, chunk))
		require.NoError(t, store.UpsertEmbedding(ctx, &Embedding{
			ChunkID: chunk.ID, Vector: SerializeVector(v), Dimension: 3,
			Provider: "local", Model: "m",
		}))
		chunkIDs = append(chunkIDs, chunk.ID)
	}

	results, err := store.SearchVector(ctx, "p1", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, chunkIDs[0], results[0].ChunkID)
	assert.Equal(t, chunkIDs[1], results[1].ChunkID)
	assert.Greater(t, results[0].SimilarityScore, results[1].SimilarityScore)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
}

func TestSearchKeyword_OccurrenceScoring(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	contents := []string{
		"The harbor was empty. The harbor lights went out. The HARBOR waited.",
		"One mention of the harbor and nothing else.",
		"Nothing relevant in this passage at all.",
	}
	var chunkIDs []int64
	for i, content := range contents {
		chunk := makeChunk("p1", "ch01", i, i*200, content)
		require.NoError(t, store.UpsertChunk(ctx, chunk))
		chunkIDs = append(chunkIDs, chunk.ID)
	}

	results, err := store.SearchKeyword(ctx, "p1", "harbor", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, chunkIDs[0], results[0].ChunkID)
	assert.Equal(t, 3, results[0].Occurrences)
	assert.Equal(t, chunkIDs[1], results[1].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchKeyword_EscapesWildcards(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	chunk := makeChunk("p1", "ch01", 0, 0, "He wrote 100% of the letter himself.")
	require.NoError(t, store.UpsertChunk(ctx, chunk))
	other := makeChunk("p1", "ch01", 1, 200, "She wrote 100 letters that winter.")
	require.NoError(t, store.UpsertChunk(ctx, other))

	results, err := store.SearchKeyword(ctx, "p1", "100%", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunk.ID, results[0].ChunkID)
}

func TestTaskRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	task := &types.IndexingTask{
		ID:        uuid.NewString(),
		ProjectID: "p1",
		FileID:    "ch01",
		Type:      types.TaskFullIndex,
		Status:    types.TaskPending,
		Metadata:  map[string]string{"source": "upload"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.CreateTask(ctx, task))

	now := time.Now().UTC()
	require.NoError(t, task.Start(now))
	require.NoError(t, task.UpdateProgress(3, 10, "embedding chunks"))
	require.NoError(t, store.UpdateTask(ctx, task))

	loaded, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskProgress, loaded.Status)
	assert.Equal(t, 3, loaded.Progress.Current)
	assert.Equal(t, "embedding chunks", loaded.Progress.Message)
	assert.Equal(t, "upload", loaded.Metadata["source"])
	require.NotNil(t, loaded.StartedAt)

	require.NoError(t, task.Complete(types.TaskResult{ChunksCreated: 10, EntitiesExtracted: 4}, time.Now().UTC()))
	require.NoError(t, store.UpdateTask(ctx, task))

	loaded, err = store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, loaded.Status)
	require.NotNil(t, loaded.Result)
	assert.Equal(t, 10, loaded.Result.ChunksCreated)
	require.NotNil(t, loaded.CompletedAt)
}

func TestActiveTask(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()

	_, err := store.ActiveTask(ctx, "p1", types.TaskFullIndex)
	assert.ErrorIs(t, err, types.ErrNotFound)

	done := &types.IndexingTask{
		ID: uuid.NewString(), ProjectID: "p1", Type: types.TaskFullIndex,
		Status: types.TaskCompleted, CreatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.CreateTask(ctx, done))

	running := &types.IndexingTask{
		ID: uuid.NewString(), ProjectID: "p1", Type: types.TaskFullIndex,
		Status: types.TaskStarted, CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateTask(ctx, running))

	active, err := store.ActiveTask(ctx, "p1", types.TaskFullIndex)
	require.NoError(t, err)
	assert.Equal(t, running.ID, active.ID)

	// A different task type has no active run
	_, err = store.ActiveTask(ctx, "p1", types.TaskRelationships)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestGetCounts(t *testing.T) {
	store := setupTestDB(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.UpsertProject(ctx, &Project{ID: "p1", Name: "Harborlight"}))

	chunk := makeChunk("p1", "ch01", 0, 0, "The tide turned before midnight.")
	require.NoError(t, store.UpsertChunk(ctx, chunk))
	require.NoError(t, store.UpsertEmbedding(ctx, &Embedding{
		ChunkID: chunk.ID, Vector: SerializeVector([]float32{1, 0}), Dimension: 2,
		Provider: "local", Model: "m",
	}))
	require.NoError(t, store.UpsertEntity(ctx, &types.Entity{
		ID: uuid.NewString(), ProjectID: "p1", Type: types.EntityCharacter, Name: "Kira", Confidence: 0.9,
	}))

	second := makeChunk("p1", "ch02", 0, 0, "Dawn broke over the breakwater.")
	require.NoError(t, store.UpsertChunk(ctx, second))

	counts, err := store.GetCounts(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.FilesCount)
	assert.Equal(t, 2, counts.ChunksCount)
	assert.Equal(t, 1, counts.EmbeddingsCount)
	assert.Equal(t, 1, counts.EntitiesCount)
	assert.Equal(t, 0, counts.RelationshipsCount)
}

func TestVectorSerializationRoundTrip(t *testing.T) {
	vector := []float32{0.5, -1.25, 3.75, 0}
	blob := SerializeVector(vector)
	assert.Len(t, blob, len(vector)*4)
	assert.Equal(t, vector, DeserializeVector(blob))
}

func TestContentHashMatchesSha256(t *testing.T) {
	chunk := makeChunk("p1", "ch01", 0, 0, "hello")
	assert.Equal(t, sha256.Sum256([]byte("hello")), chunk.ContentHash)
}

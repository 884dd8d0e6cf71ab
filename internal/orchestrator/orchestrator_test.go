package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/narrative-mcp/internal/embedder"
	"github.com/storyloom/narrative-mcp/internal/storage"
	"github.com/storyloom/narrative-mcp/pkg/types"
)

const testManuscript = `The morning mist rolled over the harbor while Alice watched from the pier.
Later that day, Alice met Bob beside the old lighthouse.
It was Bob who spoke first, and Alice listened quietly.
They said Bob had sailed from the northern coast in spring.
By evening Alice and Bob walked back along the quay together.
`

// mockEmbedder implements embedder.Embedder for testing, with optional
// failure injection.
type mockEmbedder struct {
	mu        sync.Mutex
	dimension int
	failures  int // Batch calls that fail with a dependency error before succeeding
	failAll   bool
	blockCtx  bool // Block until the context is cancelled
	calls     int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dimension: 8}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	resp, err := m.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if m.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	m.calls++
	shouldFail := m.failAll || m.failures > 0
	if m.failures > 0 {
		m.failures--
	}
	m.mu.Unlock()

	if shouldFail {
		return nil, fmt.Errorf("%w: embedding backend offline", types.ErrDependencyUnavailable)
	}

	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		vector := make([]float32, m.dimension)
		vector[i%m.dimension] = 1
		embeddings[i] = &embedder.Embedding{
			Vector:    vector,
			Dimension: m.dimension,
			Provider:  "mock",
			Model:     "test-v1",
			Hash:      embedder.ComputeHash(text),
		}
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: embeddings, Provider: "mock", Model: "test-v1"}, nil
}

func (m *mockEmbedder) Dimension() int   { return m.dimension }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "test-v1" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func setupOrchestrator(t *testing.T, embed embedder.Embedder, cfg Config) (*Orchestrator, storage.Store) {
	t.Helper()

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return New(store, embed, cfg), store
}

// waitForTerminal polls the task record until it reaches a terminal status.
func waitForTerminal(t *testing.T, store storage.Store, taskID string) *types.IndexingTask {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if task.Status.Terminal() {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state", taskID)
	return nil
}

func TestIndexFileLifecycle(t *testing.T) {
	orch, store := setupOrchestrator(t, newMockEmbedder(), Config{})
	ctx := context.Background()

	task, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	final := waitForTerminal(t, store, task.ID)
	require.Equal(t, types.TaskCompleted, final.Status, "error: %s", final.Error)
	require.NotNil(t, final.Result)

	assert.Greater(t, final.Result.ChunksCreated, 0)
	assert.Greater(t, final.Result.LinesIndexed, 0)
	assert.Greater(t, final.Result.ScenesDetected, 0)
	assert.GreaterOrEqual(t, final.Result.EntitiesExtracted, 2, "Alice and Bob should both clear the mention threshold")
	assert.Greater(t, final.Result.RelationshipsFound, 0)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)

	// Stored artifacts line up with the reported counts.
	chunks, err := store.ListChunksByFile(ctx, "p1", "ch1")
	require.NoError(t, err)
	assert.Len(t, chunks, final.Result.ChunksCreated)
	for _, chunk := range chunks {
		emb, err := store.GetEmbedding(ctx, chunk.ID)
		require.NoError(t, err, "every chunk should carry an embedding")
		assert.Equal(t, 8, emb.Dimension)
	}

	version, err := store.LatestIndexVersion(ctx, "p1", "ch1")
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	alice, err := store.GetEntityByName(ctx, "p1", types.EntityCharacter, "Alice")
	require.NoError(t, err)
	rels, err := store.ListRelationshipsByEntity(ctx, alice.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, rels)

	project, err := store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, project.TotalFiles)
	assert.Equal(t, len(chunks), project.TotalChunks)
	assert.False(t, project.LastIndexedAt.IsZero())
}

func TestIndexFileReturnsDetachedRecord(t *testing.T) {
	orch, store := setupOrchestrator(t, newMockEmbedder(), Config{})

	task, err := orch.IndexFile(context.Background(), "p1", "ch1", testManuscript)
	require.NoError(t, err)

	// The returned record is a copy taken before the pipeline goroutine
	// starts, so reading it while the run progresses is safe and its status
	// stays at the value observed at start time.
	for i := 0; i < 25; i++ {
		assert.Equal(t, types.TaskPending, task.Status)
		_ = task.Progress.Current
		time.Sleep(time.Millisecond)
	}

	final := waitForTerminal(t, store, task.ID)
	assert.Equal(t, types.TaskCompleted, final.Status, "error: %s", final.Error)
}

func TestIndexFileConflict(t *testing.T) {
	embed := newMockEmbedder()
	embed.blockCtx = false
	orch, store := setupOrchestrator(t, embed, Config{})
	ctx := context.Background()

	// A large manuscript keeps the first run busy long enough for the
	// back-to-back start to observe the held slot.
	busy := strings.Repeat(testManuscript, 200)
	first, err := orch.IndexFile(ctx, "p1", "ch1", busy)
	require.NoError(t, err)

	// A back-to-back start for the same project must conflict, not create a
	// second active task.
	_, err = orch.IndexFile(ctx, "p1", "ch1", busy)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTaskConflict)

	waitForTerminal(t, store, first.ID)

	tasks, err := store.ListTasks(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "the conflicting start must not leave a task record")

	// The slot frees up once the run finishes.
	second, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)
	waitForTerminal(t, store, second.ID)
}

func TestConflictScopedToProjectAndType(t *testing.T) {
	embed := newMockEmbedder()
	orch, store := setupOrchestrator(t, embed, Config{})
	ctx := context.Background()

	first, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)

	// A different project indexes concurrently.
	other, err := orch.IndexFile(ctx, "p2", "ch1", testManuscript)
	require.NoError(t, err)

	waitForTerminal(t, store, first.ID)
	waitForTerminal(t, store, other.ID)
}

func TestReindexBumpsVersionWithoutDuplicates(t *testing.T) {
	orch, store := setupOrchestrator(t, newMockEmbedder(), Config{})
	ctx := context.Background()

	task1, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)
	waitForTerminal(t, store, task1.ID)

	task2, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)
	final := waitForTerminal(t, store, task2.ID)
	require.Equal(t, types.TaskCompleted, final.Status, "error: %s", final.Error)

	version, err := store.LatestIndexVersion(ctx, "p1", "ch1")
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	chunks, err := store.ListChunksByFile(ctx, "p1", "ch1")
	require.NoError(t, err)
	assert.Len(t, chunks, final.Result.ChunksCreated, "re-indexing must replace chunks, not accumulate them")
}

func TestReindexKeepsMentionCountsStable(t *testing.T) {
	orch, store := setupOrchestrator(t, newMockEmbedder(), Config{})
	ctx := context.Background()

	task1, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)
	waitForTerminal(t, store, task1.ID)

	before, err := store.GetEntityByName(ctx, "p1", types.EntityCharacter, "Alice")
	require.NoError(t, err)

	task2, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)
	final := waitForTerminal(t, store, task2.ID)
	require.Equal(t, types.TaskCompleted, final.Status, "error: %s", final.Error)

	// Identical text carries identical evidence, so a re-run must not
	// inflate mention counts or confidence.
	after, err := store.GetEntityByName(ctx, "p1", types.EntityCharacter, "Alice")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.MentionCount, after.MentionCount)
	assert.InDelta(t, before.Confidence, after.Confidence, 1e-9)
}

const secondManuscript = `At dawn Alice found Bob waiting by the harbor gate.
A letter from Bob had reached Alice during the night.
Without a word Alice handed Bob the folded chart.
`

func TestSecondFilePreservesCrossFileEvidence(t *testing.T) {
	orch, store := setupOrchestrator(t, newMockEmbedder(), Config{})
	ctx := context.Background()

	task1, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)
	first := waitForTerminal(t, store, task1.ID)
	require.Equal(t, types.TaskCompleted, first.Status, "error: %s", first.Error)

	alice, err := store.GetEntityByName(ctx, "p1", types.EntityCharacter, "Alice")
	require.NoError(t, err)
	before := strongestRelationship(t, store, alice.ID)

	task2, err := orch.IndexFile(ctx, "p1", "ch2", secondManuscript)
	require.NoError(t, err)
	second := waitForTerminal(t, store, task2.ID)
	require.Equal(t, types.TaskCompleted, second.Status, "error: %s", second.Error)

	// Relationship strength is recomputed from both files' chunks, so the
	// second file adds evidence rather than replacing the first file's.
	after := strongestRelationship(t, store, alice.ID)
	assert.GreaterOrEqual(t, after.CooccurrenceCnt, before.CooccurrenceCnt,
		"co-occurrence count must not shrink when another file is indexed")
	assert.GreaterOrEqual(t, after.Strength, before.Strength,
		"strength must not shrink when another file is indexed")

	// Mentions accumulate across both files.
	aliceAfter, err := store.GetEntityByName(ctx, "p1", types.EntityCharacter, "Alice")
	require.NoError(t, err)
	assert.Greater(t, aliceAfter.MentionCount, alice.MentionCount)

	project, err := store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, project.TotalFiles)
}

func strongestRelationship(t *testing.T, store storage.Store, entityID string) *types.Relationship {
	t.Helper()
	rels, err := store.ListRelationshipsByEntity(context.Background(), entityID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, rels)
	best := rels[0]
	for _, r := range rels[1:] {
		if r.Strength > best.Strength {
			best = r
		}
	}
	return best
}

func TestIndexFileInvalidInput(t *testing.T) {
	orch, _ := setupOrchestrator(t, newMockEmbedder(), Config{})
	ctx := context.Background()

	_, err := orch.IndexFile(ctx, "", "ch1", testManuscript)
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = orch.IndexFile(ctx, "p1", "", testManuscript)
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = orch.IndexFile(ctx, "p1", "ch1", "   \n  ")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestDependencyOutageFailsTask(t *testing.T) {
	embed := newMockEmbedder()
	embed.failAll = true
	orch, store := setupOrchestrator(t, embed, Config{MaxAttempts: 2})
	ctx := context.Background()

	task, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)

	final := waitForTerminal(t, store, task.ID)
	assert.Equal(t, types.TaskFailed, final.Status)
	assert.Contains(t, final.Error, "attempts")
	assert.GreaterOrEqual(t, embed.callCount(), 2, "outage should be retried before failing")
}

func TestTransientOutageRecovers(t *testing.T) {
	embed := newMockEmbedder()
	embed.failures = 1
	orch, store := setupOrchestrator(t, embed, Config{MaxAttempts: 3})
	ctx := context.Background()

	task, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)

	final := waitForTerminal(t, store, task.ID)
	assert.Equal(t, types.TaskCompleted, final.Status, "error: %s", final.Error)
}

func TestCancelProject(t *testing.T) {
	embed := newMockEmbedder()
	embed.blockCtx = true
	orch, store := setupOrchestrator(t, embed, Config{})
	ctx := context.Background()

	task, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)

	// Give the pipeline time to reach the blocking embedding stage.
	time.Sleep(50 * time.Millisecond)

	cancelled := orch.CancelProject("p1")
	assert.Equal(t, 1, cancelled)

	final := waitForTerminal(t, store, task.ID)
	assert.Equal(t, types.TaskCancelled, final.Status)
	assert.NotNil(t, final.CompletedAt, "cancellation is a recorded transition, not a deletion")
}

func TestCancelProjectNoRuns(t *testing.T) {
	orch, _ := setupOrchestrator(t, newMockEmbedder(), Config{})
	assert.Equal(t, 0, orch.CancelProject("p1"))
}

func TestDiscoverRelationshipsTask(t *testing.T) {
	orch, store := setupOrchestrator(t, newMockEmbedder(), Config{})
	ctx := context.Background()

	indexTask, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)
	waitForTerminal(t, store, indexTask.ID)

	task, err := orch.DiscoverRelationships(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskRelationships, task.Type)

	final := waitForTerminal(t, store, task.ID)
	require.Equal(t, types.TaskCompleted, final.Status, "error: %s", final.Error)
	assert.Greater(t, final.Result.RelationshipsFound, 0)
}

func TestProjectStatistics(t *testing.T) {
	orch, store := setupOrchestrator(t, newMockEmbedder(), Config{})
	ctx := context.Background()

	task, err := orch.IndexFile(ctx, "p1", "ch1", testManuscript)
	require.NoError(t, err)
	waitForTerminal(t, store, task.ID)

	stats, err := orch.ProjectStatistics(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TasksByStatus[types.TaskCompleted])
	assert.Equal(t, 0, stats.StalledTasks)
	assert.Greater(t, stats.Counts.ChunksCount, 0)
	assert.Greater(t, stats.Counts.EmbeddingsCount, 0)
	assert.GreaterOrEqual(t, stats.AvgCompletedDuration, time.Duration(0))
}

func TestRetryDependencyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	_, err := retryDependency(context.Background(), 3, func() (int, error) {
		calls++
		return 0, errors.New("schema violation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-dependency errors must not be retried")
}

func TestKeyedLock(t *testing.T) {
	locks := newKeyedLock()
	key := lockKey{projectID: "p1", taskType: types.TaskFullIndex}
	other := lockKey{projectID: "p1", taskType: types.TaskRelationships}

	assert.True(t, locks.TryAcquire(key))
	assert.False(t, locks.TryAcquire(key))
	assert.True(t, locks.TryAcquire(other), "different task types hold independent slots")

	locks.Release(key)
	assert.True(t, locks.TryAcquire(key))
}

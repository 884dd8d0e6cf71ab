package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/storyloom/narrative-mcp/internal/embedder"
	"github.com/storyloom/narrative-mcp/internal/extractor"
	"github.com/storyloom/narrative-mcp/internal/graph"
	"github.com/storyloom/narrative-mcp/internal/segment"
	"github.com/storyloom/narrative-mcp/internal/storage"
	"github.com/storyloom/narrative-mcp/pkg/types"
)

// Config contains configuration for the orchestrator.
type Config struct {
	EmbedBatchSize   int              // Chunks per embedding call (default: embedder.DefaultBatchSize)
	MaxAttempts      int              // Attempts per dependency call before the task fails (default: 3)
	FailureThreshold float64          // Fraction of per-chunk failures that fails a task (default: 0.5)
	StalledAfter     time.Duration    // Non-terminal task age considered stalled (default: 10m)
	Model            extractor.Model  // Entity model (default: heuristic)
	Extraction       extractor.Config // Extractor tuning (alias groups, mention threshold)
}

// Statistics is the aggregate project view returned by ProjectStatistics.
type Statistics struct {
	Counts               *storage.ProjectCounts
	TasksByStatus        map[types.TaskStatus]int
	AvgCompletedDuration time.Duration
	StalledTasks         int
}

// Orchestrator coordinates the indexing pipeline:
// segment -> embed -> extract -> discover, tracked by an IndexingTask.
type Orchestrator struct {
	store      storage.Store
	embedder   embedder.Embedder
	chunker    *segment.Chunker
	positions  *segment.PositionIndexer
	scenes     *segment.SceneDetector
	extractor  *extractor.Extractor
	discoverer *graph.Discoverer
	locks      *keyedLock
	config     Config

	mu      sync.Mutex
	running map[lockKey]context.CancelFunc
}

// New creates an Orchestrator over the given store and embedder.
func New(store storage.Store, embed embedder.Embedder, cfg Config) *Orchestrator {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = embedder.DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}
	if cfg.StalledAfter <= 0 {
		cfg.StalledAfter = 10 * time.Minute
	}
	model := cfg.Model
	if model == nil {
		model = extractor.NewHeuristicModel()
	}

	return &Orchestrator{
		store:      store,
		embedder:   embed,
		chunker:    segment.New(),
		positions:  segment.NewPositionIndexer(),
		scenes:     segment.NewSceneDetector(),
		extractor:  extractor.New(model, cfg.Extraction),
		discoverer: graph.NewDiscoverer(store),
		locks:      newKeyedLock(),
		config:     cfg,
		running:    make(map[lockKey]context.CancelFunc),
	}
}

// IndexFile starts the full pipeline for one manuscript file and returns the
// tracking task immediately. The pipeline runs in the background; progress
// and the terminal state are persisted on the task record. A second start
// for the same project while a run is active returns ErrTaskConflict.
func (o *Orchestrator) IndexFile(ctx context.Context, projectID, fileID, text string) (*types.IndexingTask, error) {
	if projectID == "" || fileID == "" {
		return nil, fmt.Errorf("%w: project ID and file ID are required", types.ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", types.ErrInvalidInput)
	}

	task, runCtx, err := o.startTask(ctx, projectID, fileID, types.TaskFullIndex)
	if err != nil {
		return nil, err
	}

	// Snapshot before the pipeline goroutine starts mutating the task.
	snapshot := *task
	go o.runIndexFile(runCtx, task, text)

	return &snapshot, nil
}

// DiscoverRelationships starts a project-wide relationship rediscovery run
// over all stored chunks and entities.
func (o *Orchestrator) DiscoverRelationships(ctx context.Context, projectID string) (*types.IndexingTask, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", types.ErrInvalidInput)
	}

	task, runCtx, err := o.startTask(ctx, projectID, "", types.TaskRelationships)
	if err != nil {
		return nil, err
	}

	snapshot := *task
	go o.runDiscovery(runCtx, task)

	return &snapshot, nil
}

// startTask acquires the pipeline slot for (project, type), verifies no
// persisted active task exists, and creates the PENDING task record.
func (o *Orchestrator) startTask(ctx context.Context, projectID, fileID string, taskType types.TaskType) (*types.IndexingTask, context.Context, error) {
	key := lockKey{projectID: projectID, taskType: taskType}
	if !o.locks.TryAcquire(key) {
		return nil, nil, fmt.Errorf("%w: %s already running for project %s", types.ErrTaskConflict, taskType, projectID)
	}

	// A prior process may have left an active task behind; the persisted
	// state is authoritative across restarts.
	active, err := o.store.ActiveTask(ctx, projectID, taskType)
	if err == nil && active != nil {
		o.locks.Release(key)
		return nil, nil, fmt.Errorf("%w: task %s is %s", types.ErrTaskConflict, active.ID, active.Status)
	}
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		o.locks.Release(key)
		return nil, nil, err
	}

	task := &types.IndexingTask{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		FileID:    fileID,
		Type:      taskType,
		Status:    types.TaskPending,
		CreatedAt: time.Now(),
	}
	if err := o.store.CreateTask(ctx, task); err != nil {
		o.locks.Release(key)
		return nil, nil, fmt.Errorf("create task: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.running[key] = cancel
	o.mu.Unlock()

	return task, runCtx, nil
}

// finishTask releases the pipeline slot and the cancellation handle.
func (o *Orchestrator) finishTask(key lockKey) {
	o.mu.Lock()
	if cancel, ok := o.running[key]; ok {
		cancel()
		delete(o.running, key)
	}
	o.mu.Unlock()
	o.locks.Release(key)
}

// CancelProject cancels all running pipelines for the project. The running
// goroutines observe the cancellation and transition their tasks to
// CANCELLED; the records remain queryable.
func (o *Orchestrator) CancelProject(projectID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cancelled := 0
	for key, cancel := range o.running {
		if key.projectID == projectID {
			cancel()
			cancelled++
		}
	}
	return cancelled
}

// runIndexFile executes the full pipeline for one file.
func (o *Orchestrator) runIndexFile(ctx context.Context, task *types.IndexingTask, text string) {
	key := lockKey{projectID: task.ProjectID, taskType: task.Type}
	defer o.finishTask(key)

	start := time.Now()
	if err := task.Start(start); err != nil {
		log.Printf("task %s: %v", task.ID, err)
		return
	}
	o.persistTask(task)

	result, err := o.indexStages(ctx, task, text)
	o.settle(ctx, task, result, err)

	if task.Status == types.TaskCompleted {
		log.Printf("indexed %s/%s: %d chunks, %d entities, %d relationships in %v",
			task.ProjectID, task.FileID, result.ChunksCreated, result.EntitiesExtracted,
			result.RelationshipsFound, time.Since(start))
	}
}

// settle drives the task to its terminal state based on the pipeline outcome.
func (o *Orchestrator) settle(ctx context.Context, task *types.IndexingTask, result *types.TaskResult, err error) {
	now := time.Now()
	switch {
	case err == nil:
		if terr := task.Complete(*result, now); terr != nil {
			log.Printf("task %s: %v", task.ID, terr)
		}
	case ctx.Err() != nil:
		if terr := task.Cancel(now); terr != nil {
			log.Printf("task %s: %v", task.ID, terr)
		}
	default:
		if terr := task.Fail(err.Error(), now); terr != nil {
			log.Printf("task %s: %v", task.ID, terr)
		}
	}
	o.persistTask(task)
}

// indexStages runs segmentation, embedding, extraction, and discovery,
// persisting progress after each stage.
func (o *Orchestrator) indexStages(ctx context.Context, task *types.IndexingTask, text string) (*types.TaskResult, error) {
	result := &types.TaskResult{}
	projectID, fileID := task.ProjectID, task.FileID

	if err := o.ensureProject(ctx, projectID); err != nil {
		return result, err
	}

	// Stage 1: segmentation. Chunking is independent of scene detection;
	// the position index needs scene boundaries, so those two run in
	// sequence on the second goroutine.
	version, err := o.nextVersion(ctx, projectID, fileID)
	if err != nil {
		return result, err
	}

	var chunks []*types.Chunk
	var boundaries []types.SceneBoundary
	var entries []*types.PositionIndexEntry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		chunks = o.chunker.ChunkText(projectID, fileID, text)
		return gctx.Err()
	})
	g.Go(func() error {
		var serr error
		boundaries, serr = o.scenes.DetectScenes(projectID, fileID, text)
		if serr != nil {
			return serr
		}
		entries = o.positions.IndexText(projectID, fileID, version, text, boundaries)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return result, err
	}

	if err := o.persistSegments(ctx, projectID, fileID, version, chunks, boundaries, entries); err != nil {
		return result, err
	}
	result.ChunksCreated = len(chunks)
	result.ScenesDetected = len(boundaries)
	result.LinesIndexed = len(entries)
	o.progress(task, 1, 4, fmt.Sprintf("segmented into %d chunks, %d scenes", len(chunks), len(boundaries)))

	if err := o.checkCancelled(ctx); err != nil {
		return result, err
	}

	// Stage 2: embedding in batches.
	if err := o.embedChunks(ctx, task, chunks); err != nil {
		return result, err
	}
	o.progress(task, 2, 4, fmt.Sprintf("embedded %d chunks", len(chunks)))

	if err := o.checkCancelled(ctx); err != nil {
		return result, err
	}

	// Stages 3 and 4 recompute derived state from the project's full chunk
	// set, not just the file being indexed. Mention counts and relationship
	// strengths come out the same no matter which file triggered the run,
	// and re-indexing one file never shrinks evidence gathered from the
	// others.
	allChunks, err := o.store.ListChunksByProject(ctx, projectID)
	if err != nil {
		return result, err
	}

	// Stage 3: entity extraction. Per-chunk model failures are tolerated
	// and counted; the task only fails past the policy threshold.
	existing, err := o.store.ListEntities(ctx, projectID, nil)
	if err != nil {
		return result, err
	}
	extracted, err := o.extractor.ExtractFromChunks(ctx, projectID, allChunks, existing)
	if err != nil {
		return result, err
	}
	if len(allChunks) > 0 && float64(extracted.FailedChunks) > o.config.FailureThreshold*float64(len(allChunks)) {
		return result, fmt.Errorf("entity extraction failed for %d of %d chunks", extracted.FailedChunks, len(allChunks))
	}
	for _, ent := range extracted.Entities {
		if err := o.store.UpsertEntity(ctx, ent); err != nil {
			return result, fmt.Errorf("store entity %s: %w", ent.Name, err)
		}
	}
	result.EntitiesExtracted = len(extracted.Entities)
	result.SkippedUnits = extracted.FailedChunks
	o.progress(task, 3, 4, fmt.Sprintf("extracted %d entities", len(extracted.Entities)))

	if err := o.checkCancelled(ctx); err != nil {
		return result, err
	}

	// Stage 4: relationship discovery over the project's full chunk and
	// entity sets. UpsertRelationship replaces by (source, target), so the
	// strength written here must reflect every file's co-occurrences.
	entities, err := o.store.ListEntities(ctx, projectID, nil)
	if err != nil {
		return result, err
	}
	discovered, err := o.discoverer.Discover(ctx, projectID, allChunks, entities)
	if err != nil {
		return result, err
	}
	for chunkID, entityIDs := range discovered.ChunkEntities {
		if err := o.store.SetChunkEntities(ctx, chunkID, entityIDs); err != nil {
			return result, fmt.Errorf("link chunk %d entities: %w", chunkID, err)
		}
	}
	result.RelationshipsFound = discovered.RelationshipsUpserted
	o.progress(task, 4, 4, fmt.Sprintf("discovered %d relationships", discovered.RelationshipsUpserted))

	if err := o.updateProjectStats(ctx, projectID); err != nil {
		return result, err
	}
	return result, nil
}

// runDiscovery executes a standalone rediscovery pass over stored chunks.
func (o *Orchestrator) runDiscovery(ctx context.Context, task *types.IndexingTask) {
	key := lockKey{projectID: task.ProjectID, taskType: task.Type}
	defer o.finishTask(key)

	if err := task.Start(time.Now()); err != nil {
		log.Printf("task %s: %v", task.ID, err)
		return
	}
	o.persistTask(task)

	result := &types.TaskResult{}
	err := func() error {
		chunks, err := o.store.ListChunksByProject(ctx, task.ProjectID)
		if err != nil {
			return err
		}
		entities, err := o.store.ListEntities(ctx, task.ProjectID, nil)
		if err != nil {
			return err
		}
		o.progress(task, 1, 2, fmt.Sprintf("rediscovering over %d chunks", len(chunks)))

		discovered, err := o.discoverer.Discover(ctx, task.ProjectID, chunks, entities)
		if err != nil {
			return err
		}
		for chunkID, entityIDs := range discovered.ChunkEntities {
			if err := o.store.SetChunkEntities(ctx, chunkID, entityIDs); err != nil {
				return err
			}
		}
		result.RelationshipsFound = discovered.RelationshipsUpserted
		o.progress(task, 2, 2, fmt.Sprintf("upserted %d relationships", discovered.RelationshipsUpserted))
		return nil
	}()

	o.settle(ctx, task, result, err)
}

// embedChunks generates embeddings in batches and stores them. Dependency
// failures are retried with backoff up to the configured attempt budget.
func (o *Orchestrator) embedChunks(ctx context.Context, task *types.IndexingTask, chunks []*types.Chunk) error {
	batchSize := o.config.EmbedBatchSize
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		resp, err := retryDependency(ctx, o.config.MaxAttempts, func() (*embedder.BatchEmbeddingResponse, error) {
			return o.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		})
		if err != nil {
			return fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return fmt.Errorf("%w: embedding batch returned %d vectors for %d chunks",
				types.ErrInconsistentState, len(resp.Embeddings), len(batch))
		}

		for i, emb := range resp.Embeddings {
			batch[i].Embedding = emb.Vector
			stored := &storage.Embedding{
				ChunkID:   batch[i].ID,
				Vector:    storage.SerializeVector(emb.Vector),
				Dimension: emb.Dimension,
				Provider:  emb.Provider,
				Model:     emb.Model,
			}
			if err := o.store.UpsertEmbedding(ctx, stored); err != nil {
				return fmt.Errorf("store embedding for chunk %d: %w", batch[i].ID, err)
			}
		}

		o.progress(task, start+len(batch), len(chunks),
			fmt.Sprintf("embedded %d/%d chunks", start+len(batch), len(chunks)))
	}
	return nil
}

// retryDependency retries fn with exponential backoff, but only while the
// failure is a dependency outage. Other errors surface immediately.
func retryDependency[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := 200 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, types.ErrDependencyUnavailable) {
			return zero, err
		}
		lastErr = err

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > 5*time.Second {
				delay = 5 * time.Second
			}
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

// persistSegments writes the segmentation output in storage order: chunks
// replace the file's prior chunk set, scenes and the position index replace
// their prior versions wholesale.
func (o *Orchestrator) persistSegments(ctx context.Context, projectID, fileID string, version int,
	chunks []*types.Chunk, boundaries []types.SceneBoundary, entries []*types.PositionIndexEntry) error {

	if err := o.store.DeleteChunksByFile(ctx, projectID, fileID); err != nil {
		return fmt.Errorf("clear prior chunks: %w", err)
	}
	for _, chunk := range chunks {
		if err := o.store.UpsertChunk(ctx, chunk); err != nil {
			return fmt.Errorf("store chunk %d: %w", chunk.Index, err)
		}
	}
	if err := o.store.ReplaceSceneBoundaries(ctx, projectID, fileID, boundaries); err != nil {
		return fmt.Errorf("store scenes: %w", err)
	}
	if err := o.store.ReplacePositionIndex(ctx, projectID, fileID, version, entries); err != nil {
		return fmt.Errorf("store position index: %w", err)
	}
	return nil
}

// ensureProject creates the project record on first contact.
func (o *Orchestrator) ensureProject(ctx context.Context, projectID string) error {
	_, err := o.store.GetProject(ctx, projectID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return err
	}
	return o.store.UpsertProject(ctx, &storage.Project{ID: projectID, Name: projectID})
}

// nextVersion returns the next position-index version for the file.
func (o *Orchestrator) nextVersion(ctx context.Context, projectID, fileID string) (int, error) {
	latest, err := o.store.LatestIndexVersion(ctx, projectID, fileID)
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

// updateProjectStats refreshes the project's denormalized counters.
func (o *Orchestrator) updateProjectStats(ctx context.Context, projectID string) error {
	counts, err := o.store.GetCounts(ctx, projectID)
	if err != nil {
		return err
	}
	project := counts.Project
	if project == nil {
		project = &storage.Project{ID: projectID, Name: projectID}
	}
	project.TotalFiles = counts.FilesCount
	project.TotalChunks = counts.ChunksCount
	project.LastIndexedAt = time.Now()
	return o.store.UpsertProject(ctx, project)
}

// progress records a PROGRESS transition and persists it.
func (o *Orchestrator) progress(task *types.IndexingTask, current, total int, message string) {
	if err := task.UpdateProgress(current, total, message); err != nil {
		log.Printf("task %s: %v", task.ID, err)
		return
	}
	o.persistTask(task)
}

// persistTask writes the task record, logging rather than failing the
// pipeline on a bookkeeping error.
func (o *Orchestrator) persistTask(task *types.IndexingTask) {
	// Use a detached context so a cancelled pipeline can still record its
	// CANCELLED transition.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.UpdateTask(ctx, task); err != nil {
		log.Printf("persist task %s: %v", task.ID, err)
	}
}

// checkCancelled surfaces pipeline cancellation between stages.
func (o *Orchestrator) checkCancelled(ctx context.Context) error {
	return ctx.Err()
}

// GetTask returns the persisted state of a task.
func (o *Orchestrator) GetTask(ctx context.Context, taskID string) (*types.IndexingTask, error) {
	return o.store.GetTask(ctx, taskID)
}

// ProjectStatistics aggregates index counts and task history for a project.
func (o *Orchestrator) ProjectStatistics(ctx context.Context, projectID string) (*Statistics, error) {
	counts, err := o.store.GetCounts(ctx, projectID)
	if err != nil {
		return nil, err
	}

	tasks, err := o.store.ListTasks(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		Counts:        counts,
		TasksByStatus: make(map[types.TaskStatus]int),
	}

	now := time.Now()
	var completed int
	var totalDuration time.Duration
	for _, task := range tasks {
		stats.TasksByStatus[task.Status]++
		if task.Status == types.TaskCompleted {
			if d, ok := task.Duration(); ok {
				completed++
				totalDuration += d
			}
		}
		if task.Stalled(now, o.config.StalledAfter) {
			stats.StalledTasks++
		}
	}
	if completed > 0 {
		stats.AvgCompletedDuration = totalDuration / time.Duration(completed)
	}
	return stats, nil
}

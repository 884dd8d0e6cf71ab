package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance and applies pending
// migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Project operations

func (s *SQLiteStore) UpsertProject(ctx context.Context, project *Project) error {
	query := `
		INSERT INTO projects (id, name, total_files, total_chunks, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			total_files = excluded.total_files,
			total_chunks = excluded.total_chunks,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	var lastIndexed interface{}
	if !project.LastIndexedAt.IsZero() {
		lastIndexed = project.LastIndexedAt
	}
	_, err := s.db.ExecContext(ctx, query,
		project.ID, project.Name, project.TotalFiles, project.TotalChunks,
		lastIndexed, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (*Project, error) {
	query := `
		SELECT id, name, total_files, total_chunks, last_indexed_at, created_at, updated_at
		FROM projects
		WHERE id = ?
	`
	var project Project
	var lastIndexedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(
		&project.ID, &project.Name, &project.TotalFiles, &project.TotalChunks,
		&lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: project %s", types.ErrNotFound, projectID)
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}
	return &project, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	query := `
		SELECT id, name, total_files, total_chunks, last_indexed_at, created_at, updated_at
		FROM projects
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	projects := make([]*Project, 0)
	for rows.Next() {
		var project Project
		var lastIndexedAt sql.NullTime
		if err := rows.Scan(
			&project.ID, &project.Name, &project.TotalFiles, &project.TotalChunks,
			&lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if lastIndexedAt.Valid {
			project.LastIndexedAt = lastIndexedAt.Time
		}
		projects = append(projects, &project)
	}
	return projects, rows.Err()
}

// Chunk operations

func (s *SQLiteStore) UpsertChunk(ctx context.Context, chunk *types.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}

	// Atomic INSERT ... ON CONFLICT: re-indexing the same (file, index) slot
	// replaces content in place and keeps the row id stable.
	query := `
		INSERT INTO chunks (
			project_id, file_id, chunk_index, content, content_hash,
			start_pos, end_pos, word_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, chunk_index)
		DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			start_pos = excluded.start_pos,
			end_pos = excluded.end_pos,
			word_count = excluded.word_count,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		chunk.ProjectID, chunk.FileID, chunk.Index, chunk.Content, chunk.ContentHash[:],
		chunk.StartPos, chunk.EndPos, chunk.WordCount, now, now,
	).Scan(&chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChunk(ctx context.Context, chunkID int64) (*types.Chunk, error) {
	query := `
		SELECT id, project_id, file_id, chunk_index, content, content_hash,
		       start_pos, end_pos, word_count
		FROM chunks
		WHERE id = ?
	`
	var chunk types.Chunk
	var hash []byte
	err := s.db.QueryRowContext(ctx, query, chunkID).Scan(
		&chunk.ID, &chunk.ProjectID, &chunk.FileID, &chunk.Index,
		&chunk.Content, &hash, &chunk.StartPos, &chunk.EndPos, &chunk.WordCount,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: chunk %d", types.ErrNotFound, chunkID)
	}
	if err != nil {
		return nil, err
	}
	copy(chunk.ContentHash[:], hash)

	entityIDs, err := s.listChunkEntities(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	chunk.EntityIDs = entityIDs

	if emb, err := s.GetEmbedding(ctx, chunkID); err == nil {
		chunk.Embedding = deserializeVector(emb.Vector)
	}

	return &chunk, nil
}

func (s *SQLiteStore) ListChunksByFile(ctx context.Context, projectID, fileID string) ([]*types.Chunk, error) {
	query := `
		SELECT id, project_id, file_id, chunk_index, content, content_hash,
		       start_pos, end_pos, word_count
		FROM chunks
		WHERE project_id = ? AND file_id = ?
		ORDER BY chunk_index
	`
	rows, err := s.db.QueryContext(ctx, query, projectID, fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.Chunk, 0)
	for rows.Next() {
		var chunk types.Chunk
		var hash []byte
		if err := rows.Scan(
			&chunk.ID, &chunk.ProjectID, &chunk.FileID, &chunk.Index,
			&chunk.Content, &hash, &chunk.StartPos, &chunk.EndPos, &chunk.WordCount,
		); err != nil {
			return nil, err
		}
		copy(chunk.ContentHash[:], hash)
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) ListChunksByProject(ctx context.Context, projectID string) ([]*types.Chunk, error) {
	query := `
		SELECT id, project_id, file_id, chunk_index, content, content_hash,
		       start_pos, end_pos, word_count
		FROM chunks
		WHERE project_id = ?
		ORDER BY file_id, chunk_index
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.Chunk, 0)
	for rows.Next() {
		var chunk types.Chunk
		var hash []byte
		if err := rows.Scan(
			&chunk.ID, &chunk.ProjectID, &chunk.FileID, &chunk.Index,
			&chunk.Content, &hash, &chunk.StartPos, &chunk.EndPos, &chunk.WordCount,
		); err != nil {
			return nil, err
		}
		copy(chunk.ContentHash[:], hash)
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, projectID, fileID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE project_id = ? AND file_id = ?`, projectID, fileID)
	return err
}

func (s *SQLiteStore) SetChunkEntities(ctx context.Context, chunkID int64, entityIDs []string) error {
	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM chunk_entities WHERE chunk_id = ?`, chunkID); err != nil {
			return err
		}
		for _, entityID := range entityIDs {
			if _, err := q.ExecContext(ctx,
				`INSERT OR IGNORE INTO chunk_entities (chunk_id, entity_id) VALUES (?, ?)`,
				chunkID, entityID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) listChunkEntities(ctx context.Context, chunkID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id FROM chunk_entities WHERE chunk_id = ? ORDER BY entity_id`, chunkID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Position index operations

func (s *SQLiteStore) ReplacePositionIndex(ctx context.Context, projectID, fileID string, version int, entries []*types.PositionIndexEntry) error {
	for _, e := range entries {
		if !e.IsEmpty {
			if err := e.Validate(); err != nil {
				return err
			}
		}
	}

	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM position_entries WHERE project_id = ? AND file_id = ? AND version = ?`,
			projectID, fileID, version); err != nil {
			return err
		}

		query := `
			INSERT INTO position_entries (
				project_id, file_id, version, line_no, start_char_pos, end_char_pos,
				paragraph_no, scene_no, chapter_no, line_content, is_empty, is_dialogue
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		for _, e := range entries {
			result, err := q.ExecContext(ctx, query,
				projectID, fileID, version, e.LineNo, e.StartCharPos, e.EndCharPos,
				e.ParagraphNo, nullableInt(e.SceneNo), nullableInt(e.ChapterNo),
				e.LineContent, e.IsEmpty, e.IsDialogue)
			if err != nil {
				return fmt.Errorf("failed to insert position entry for line %d: %w", e.LineNo, err)
			}
			if id, err := result.LastInsertId(); err == nil {
				e.ID = id
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetLineEntry(ctx context.Context, projectID, fileID string, version, lineNo int) (*types.PositionIndexEntry, error) {
	query := `
		SELECT id, project_id, file_id, version, line_no, start_char_pos, end_char_pos,
		       paragraph_no, scene_no, chapter_no, line_content, is_empty, is_dialogue
		FROM position_entries
		WHERE project_id = ? AND file_id = ? AND version = ? AND line_no = ?
	`
	entry, err := scanPositionEntry(s.db.QueryRowContext(ctx, query, projectID, fileID, version, lineNo))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: line %d of %s at version %d", types.ErrNotFound, lineNo, fileID, version)
	}
	return entry, err
}

func (s *SQLiteStore) ListPositionEntries(ctx context.Context, projectID, fileID string, version int) ([]*types.PositionIndexEntry, error) {
	query := `
		SELECT id, project_id, file_id, version, line_no, start_char_pos, end_char_pos,
		       paragraph_no, scene_no, chapter_no, line_content, is_empty, is_dialogue
		FROM position_entries
		WHERE project_id = ? AND file_id = ? AND version = ?
		ORDER BY line_no
	`
	rows, err := s.db.QueryContext(ctx, query, projectID, fileID, version)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*types.PositionIndexEntry, 0)
	for rows.Next() {
		entry, err := scanPositionEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) LatestIndexVersion(ctx context.Context, projectID, fileID string) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM position_entries WHERE project_id = ? AND file_id = ?`,
		projectID, fileID).Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPositionEntry(row rowScanner) (*types.PositionIndexEntry, error) {
	var e types.PositionIndexEntry
	var sceneNo, chapterNo sql.NullInt64
	err := row.Scan(
		&e.ID, &e.ProjectID, &e.FileID, &e.Version, &e.LineNo,
		&e.StartCharPos, &e.EndCharPos, &e.ParagraphNo,
		&sceneNo, &chapterNo, &e.LineContent, &e.IsEmpty, &e.IsDialogue,
	)
	if err != nil {
		return nil, err
	}
	if sceneNo.Valid {
		n := int(sceneNo.Int64)
		e.SceneNo = &n
	}
	if chapterNo.Valid {
		n := int(chapterNo.Int64)
		e.ChapterNo = &n
	}
	return &e, nil
}

func nullableInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// Scene operations

func (s *SQLiteStore) ReplaceSceneBoundaries(ctx context.Context, projectID, fileID string, boundaries []types.SceneBoundary) error {
	if err := types.ValidateBoundaries(boundaries); err != nil {
		return err
	}

	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM scenes WHERE project_id = ? AND file_id = ?`, projectID, fileID); err != nil {
			return err
		}
		query := `
			INSERT INTO scenes (project_id, file_id, scene_no, chapter_no, start_pos, end_pos)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		for i := range boundaries {
			b := &boundaries[i]
			result, err := q.ExecContext(ctx, query,
				projectID, fileID, b.SceneNo, b.ChapterNo, b.StartPos, b.EndPos)
			if err != nil {
				return fmt.Errorf("failed to insert scene %d: %w", b.SceneNo, err)
			}
			if id, err := result.LastInsertId(); err == nil {
				b.ID = id
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListSceneBoundaries(ctx context.Context, projectID, fileID string) ([]types.SceneBoundary, error) {
	query := `
		SELECT id, project_id, file_id, scene_no, chapter_no, start_pos, end_pos
		FROM scenes
		WHERE project_id = ? AND file_id = ?
		ORDER BY start_pos
	`
	rows, err := s.db.QueryContext(ctx, query, projectID, fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	boundaries := make([]types.SceneBoundary, 0)
	for rows.Next() {
		var b types.SceneBoundary
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.FileID, &b.SceneNo, &b.ChapterNo, &b.StartPos, &b.EndPos); err != nil {
			return nil, err
		}
		boundaries = append(boundaries, b)
	}
	return boundaries, rows.Err()
}

// Entity operations

func (s *SQLiteStore) UpsertEntity(ctx context.Context, entity *types.Entity) error {
	if err := entity.Validate(); err != nil {
		return err
	}

	aliases, err := json.Marshal(entity.Aliases)
	if err != nil {
		return fmt.Errorf("failed to marshal aliases: %w", err)
	}

	// On conflict the existing row keeps its id; RETURNING hands it back so
	// the caller's in-memory entity converges on the stored identity.
	query := `
		INSERT INTO entities (
			id, project_id, type, name, canonical_name, aliases,
			confidence, mention_count,
			first_mention_file, first_mention_pos, first_mention_snippet, first_mention_confidence,
			last_mention_file, last_mention_pos, last_mention_snippet, last_mention_confidence,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, type, canonical_name)
		DO UPDATE SET
			name = excluded.name,
			aliases = excluded.aliases,
			confidence = excluded.confidence,
			mention_count = excluded.mention_count,
			first_mention_file = excluded.first_mention_file,
			first_mention_pos = excluded.first_mention_pos,
			first_mention_snippet = excluded.first_mention_snippet,
			first_mention_confidence = excluded.first_mention_confidence,
			last_mention_file = excluded.last_mention_file,
			last_mention_pos = excluded.last_mention_pos,
			last_mention_snippet = excluded.last_mention_snippet,
			last_mention_confidence = excluded.last_mention_confidence,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	firstFile, firstPos, firstSnippet, firstConf := mentionColumns(entity.FirstMention)
	lastFile, lastPos, lastSnippet, lastConf := mentionColumns(entity.LastMention)

	var storedID string
	err = s.db.QueryRowContext(ctx, query,
		entity.ID, entity.ProjectID, string(entity.Type), entity.Name,
		types.CanonicalKey(entity.Name), string(aliases),
		entity.Confidence, entity.MentionCount,
		firstFile, firstPos, firstSnippet, firstConf,
		lastFile, lastPos, lastSnippet, lastConf,
		now, now,
	).Scan(&storedID)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	entity.ID = storedID
	return nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, entityID string) (*types.Entity, error) {
	entity, err := s.queryEntity(ctx, `WHERE id = ?`, entityID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: entity %s", types.ErrNotFound, entityID)
	}
	return entity, err
}

func (s *SQLiteStore) GetEntityByName(ctx context.Context, projectID string, entityType types.EntityType, name string) (*types.Entity, error) {
	entity, err := s.queryEntity(ctx,
		`WHERE project_id = ? AND type = ? AND canonical_name = ?`,
		projectID, string(entityType), types.CanonicalKey(name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s %q in project %s", types.ErrNotFound, entityType, name, projectID)
	}
	return entity, err
}

const entitySelect = `
	SELECT id, project_id, type, name, aliases, confidence, mention_count,
	       first_mention_file, first_mention_pos, first_mention_snippet, first_mention_confidence,
	       last_mention_file, last_mention_pos, last_mention_snippet, last_mention_confidence
	FROM entities
`

func (s *SQLiteStore) queryEntity(ctx context.Context, where string, args ...interface{}) (*types.Entity, error) {
	return scanEntity(s.db.QueryRowContext(ctx, entitySelect+where, args...))
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var e types.Entity
	var aliases sql.NullString
	var firstFile, firstSnippet, lastFile, lastSnippet sql.NullString
	var firstPos, lastPos sql.NullInt64
	var firstConf, lastConf sql.NullFloat64
	var entityType string

	err := row.Scan(
		&e.ID, &e.ProjectID, &entityType, &e.Name, &aliases,
		&e.Confidence, &e.MentionCount,
		&firstFile, &firstPos, &firstSnippet, &firstConf,
		&lastFile, &lastPos, &lastSnippet, &lastConf,
	)
	if err != nil {
		return nil, err
	}
	e.Type = types.EntityType(entityType)

	if aliases.Valid && aliases.String != "" {
		if err := json.Unmarshal([]byte(aliases.String), &e.Aliases); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aliases for entity %s: %w", e.ID, err)
		}
	}
	if firstFile.Valid {
		e.FirstMention = &types.Mention{
			FileID:     firstFile.String,
			CharPos:    int(firstPos.Int64),
			Snippet:    firstSnippet.String,
			Confidence: firstConf.Float64,
		}
	}
	if lastFile.Valid {
		e.LastMention = &types.Mention{
			FileID:     lastFile.String,
			CharPos:    int(lastPos.Int64),
			Snippet:    lastSnippet.String,
			Confidence: lastConf.Float64,
		}
	}
	return &e, nil
}

func mentionColumns(m *types.Mention) (interface{}, interface{}, interface{}, interface{}) {
	if m == nil {
		return nil, nil, nil, nil
	}
	return m.FileID, m.CharPos, m.Snippet, m.Confidence
}

func (s *SQLiteStore) ListEntities(ctx context.Context, projectID string, filter *EntityFilter) ([]*types.Entity, error) {
	query := entitySelect + `WHERE project_id = ?`
	args := []interface{}{projectID}

	if filter != nil {
		if filter.Type != "" {
			query += ` AND type = ?`
			args = append(args, string(filter.Type))
		}
		if filter.NamePattern != "" {
			pattern := "%" + escapeLike(types.CanonicalKey(filter.NamePattern)) + "%"
			query += ` AND (canonical_name LIKE ? ESCAPE '\' OR lower(aliases) LIKE ? ESCAPE '\')`
			args = append(args, pattern, pattern)
		}
		if filter.MinMentions > 0 {
			query += ` AND mention_count >= ?`
			args = append(args, filter.MinMentions)
		}
	}

	// Mention count ranks prominence; name breaks ties deterministically.
	query += ` ORDER BY mention_count DESC, canonical_name ASC`

	if filter != nil && filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entities := make([]*types.Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

// Relationship operations

func (s *SQLiteStore) UpsertRelationship(ctx context.Context, rel *types.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}

	snippets, err := json.Marshal(rel.ContextSnippets)
	if err != nil {
		return fmt.Errorf("failed to marshal context snippets: %w", err)
	}

	// Full overwrite on conflict: strength is always recomputed from the
	// complete evidence set, so stale values must never survive.
	query := `
		INSERT INTO relationships (
			id, project_id, source_entity_id, target_entity_id, type,
			strength, cooccurrence_cnt, context_snippets, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_entity_id, target_entity_id)
		DO UPDATE SET
			type = excluded.type,
			strength = excluded.strength,
			cooccurrence_cnt = excluded.cooccurrence_cnt,
			context_snippets = excluded.context_snippets,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	var storedID string
	err = s.db.QueryRowContext(ctx, query,
		rel.ID, rel.ProjectID, rel.SourceEntityID, rel.TargetEntityID, string(rel.Type),
		rel.Strength, rel.CooccurrenceCnt, string(snippets), now, now,
	).Scan(&storedID)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	rel.ID = storedID
	return nil
}

const relationshipSelect = `
	SELECT id, project_id, source_entity_id, target_entity_id, type,
	       strength, cooccurrence_cnt, context_snippets
	FROM relationships
`

func (s *SQLiteStore) GetRelationship(ctx context.Context, sourceEntityID, targetEntityID string) (*types.Relationship, error) {
	rel, err := scanRelationship(s.db.QueryRowContext(ctx,
		relationshipSelect+`WHERE source_entity_id = ? AND target_entity_id = ?`,
		sourceEntityID, targetEntityID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: relationship %s -> %s", types.ErrNotFound, sourceEntityID, targetEntityID)
	}
	return rel, err
}

func scanRelationship(row rowScanner) (*types.Relationship, error) {
	var r types.Relationship
	var relType string
	var snippets sql.NullString
	err := row.Scan(
		&r.ID, &r.ProjectID, &r.SourceEntityID, &r.TargetEntityID, &relType,
		&r.Strength, &r.CooccurrenceCnt, &snippets,
	)
	if err != nil {
		return nil, err
	}
	r.Type = types.RelationshipType(relType)
	if snippets.Valid && snippets.String != "" {
		if err := json.Unmarshal([]byte(snippets.String), &r.ContextSnippets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snippets for relationship %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func (s *SQLiteStore) ListRelationshipsByEntity(ctx context.Context, entityID string, minStrength float64) ([]*types.Relationship, error) {
	query := relationshipSelect + `
		WHERE (source_entity_id = ? OR target_entity_id = ?) AND strength >= ?
		ORDER BY strength DESC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, entityID, entityID, minStrength)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	rels := make([]*types.Relationship, 0)
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// Embedding operations

func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		embedding.ChunkID, embedding.Vector, embedding.Dimension,
		embedding.Provider, embedding.Model, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	if embedding.ID == 0 {
		if id, err := result.LastInsertId(); err == nil {
			embedding.ID = id
		}
	}
	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStore) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	query := `
		SELECT id, chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var embedding Embedding
	err := s.db.QueryRowContext(ctx, query, chunkID).Scan(
		&embedding.ID, &embedding.ChunkID, &embedding.Vector,
		&embedding.Dimension, &embedding.Provider, &embedding.Model,
		&embedding.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: embedding for chunk %d", types.ErrNotFound, chunkID)
	}
	if err != nil {
		return nil, err
	}
	return &embedding, nil
}

// Search operations

func (s *SQLiteStore) SearchVector(ctx context.Context, projectID string, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.db, projectID, vector, limit, filters)
}

func (s *SQLiteStore) SearchKeyword(ctx context.Context, projectID string, query string, limit int, filters *SearchFilters) ([]KeywordResult, error) {
	return searchKeyword(ctx, s.db, projectID, query, limit, filters)
}

// Task operations

func (s *SQLiteStore) CreateTask(ctx context.Context, task *types.IndexingTask) error {
	metadata, result, err := marshalTaskBlobs(task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (
			id, project_id, file_id, task_type, status,
			progress_current, progress_total, progress_message,
			result, error, metadata, created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID, task.ProjectID, task.FileID, string(task.Type), string(task.Status),
		task.Progress.Current, task.Progress.Total, task.Progress.Message,
		result, task.Error, metadata, task.CreatedAt,
		nullableTime(task.StartedAt), nullableTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, task *types.IndexingTask) error {
	metadata, result, err := marshalTaskBlobs(task)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks SET
			status = ?,
			progress_current = ?, progress_total = ?, progress_message = ?,
			result = ?, error = ?, metadata = ?,
			started_at = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(task.Status),
		task.Progress.Current, task.Progress.Total, task.Progress.Message,
		result, task.Error, metadata,
		nullableTime(task.StartedAt), nullableTime(task.CompletedAt),
		task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: task %s", types.ErrNotFound, task.ID)
	}
	return nil
}

const taskSelect = `
	SELECT id, project_id, file_id, task_type, status,
	       progress_current, progress_total, progress_message,
	       result, error, metadata, created_at, started_at, completed_at
	FROM tasks
`

func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*types.IndexingTask, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+`WHERE id = ?`, taskID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: task %s", types.ErrNotFound, taskID)
	}
	return task, err
}

func (s *SQLiteStore) ListTasks(ctx context.Context, projectID string, statuses []types.TaskStatus) ([]*types.IndexingTask, error) {
	query := taskSelect + `WHERE project_id = ?`
	args := []interface{}{projectID}

	if len(statuses) > 0 {
		query += ` AND status IN (`
		for i, st := range statuses {
			if i > 0 {
				query += `,`
			}
			query += `?`
			args = append(args, string(st))
		}
		query += `)`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*types.IndexingTask, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) ActiveTask(ctx context.Context, projectID string, taskType types.TaskType) (*types.IndexingTask, error) {
	query := taskSelect + `
		WHERE project_id = ? AND task_type = ? AND status IN (?, ?, ?)
		ORDER BY created_at DESC
		LIMIT 1
	`
	task, err := scanTask(s.db.QueryRowContext(ctx, query,
		projectID, string(taskType),
		string(types.TaskPending), string(types.TaskStarted), string(types.TaskProgress)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no active %s task for project %s", types.ErrNotFound, taskType, projectID)
	}
	return task, err
}

func scanTask(row rowScanner) (*types.IndexingTask, error) {
	var t types.IndexingTask
	var fileID, progressMessage, result, taskErr, metadata sql.NullString
	var taskType, status string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.ProjectID, &fileID, &taskType, &status,
		&t.Progress.Current, &t.Progress.Total, &progressMessage,
		&result, &taskErr, &metadata, &t.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.FileID = fileID.String
	t.Type = types.TaskType(taskType)
	t.Status = types.TaskStatus(status)
	t.Progress.Message = progressMessage.String
	t.Error = taskErr.String

	if result.Valid && result.String != "" {
		var r types.TaskResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result for task %s: %w", t.ID, err)
		}
		t.Result = &r
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for task %s: %w", t.ID, err)
		}
	}
	if startedAt.Valid {
		st := startedAt.Time
		t.StartedAt = &st
	}
	if completedAt.Valid {
		ct := completedAt.Time
		t.CompletedAt = &ct
	}
	return &t, nil
}

func marshalTaskBlobs(task *types.IndexingTask) (metadata, result interface{}, err error) {
	if task.Metadata != nil {
		b, err := json.Marshal(task.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal task metadata: %w", err)
		}
		metadata = string(b)
	}
	if task.Result != nil {
		b, err := json.Marshal(task.Result)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal task result: %w", err)
		}
		result = string(b)
	}
	return metadata, result, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// Status operations

func (s *SQLiteStore) GetCounts(ctx context.Context, projectID string) (*ProjectCounts, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	counts := &ProjectCounts{Project: project}

	singleCounts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(DISTINCT file_id) FROM chunks WHERE project_id = ?`, &counts.FilesCount},
		{`SELECT COUNT(*) FROM chunks WHERE project_id = ?`, &counts.ChunksCount},
		{`SELECT COUNT(*) FROM position_entries WHERE project_id = ?`, &counts.LinesCount},
		{`SELECT COUNT(*) FROM scenes WHERE project_id = ?`, &counts.ScenesCount},
		{`SELECT COUNT(*) FROM entities WHERE project_id = ?`, &counts.EntitiesCount},
		{`SELECT COUNT(*) FROM relationships WHERE project_id = ?`, &counts.RelationshipsCount},
		{`SELECT COUNT(*) FROM embeddings e JOIN chunks c ON e.chunk_id = c.id WHERE c.project_id = ?`, &counts.EmbeddingsCount},
	}
	for _, c := range singleCounts {
		if err := s.db.QueryRowContext(ctx, c.query, projectID).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		counts.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return counts, nil
}

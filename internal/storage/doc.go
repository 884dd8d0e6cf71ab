// Package storage persists indexed narrative data in SQLite.
//
// The store holds everything the pipeline produces: chunks, position index
// entries, scene boundaries, entities, relationships, embeddings, and task
// records, all scoped by a caller-supplied project id.
//
// # Drivers
//
// Two SQLite drivers are supported via build tags:
//
//   - default: modernc.org/sqlite (pure Go, no C compiler needed)
//   - sqlite_cgo: github.com/mattn/go-sqlite3 (CGO, faster queries)
//
// Both run the same schema and the same queries; vector similarity is always
// computed in Go over the stored blobs, so search behaves identically across
// drivers.
//
// # Uniqueness keys
//
// Upserts are atomic INSERT ... ON CONFLICT statements keyed by the domain's
// natural identities:
//
//   - chunks: (file_id, chunk_index)
//   - entities: (project_id, type, canonical_name)
//   - relationships: (source_entity_id, target_entity_id)
//   - position entries: (project_id, file_id, version, line_no)
//
// Re-indexing therefore replaces rows in place instead of accumulating
// duplicates.
//
// # Versioned position index
//
// Position entries carry an index version. ReplacePositionIndex writes a
// whole version transactionally; older versions remain queryable until a
// caller decides to drop them, so a reader mid-query never sees a
// half-written line table.
//
// # Migrations
//
// Schema changes are semver-ordered migrations applied at open. The schema
// version is tracked in the schema_version table.
//
// # Usage
//
//	store, err := storage.NewSQLiteStore("narrative.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.UpsertChunk(ctx, chunk)
//	results, err := store.SearchVector(ctx, projectID, queryVec, 10, nil)
package storage

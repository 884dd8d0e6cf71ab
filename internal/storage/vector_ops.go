package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// searchVector performs vector similarity search by scanning stored
// embeddings and computing cosine similarity in Go. The corpus for a single
// project fits comfortably in memory, and the scan works identically across
// both SQLite drivers.
func searchVector(ctx context.Context, db *sql.DB, projectID string, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `
		SELECT c.id, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		WHERE c.project_id = ?
	`
	args := []interface{}{projectID}

	if filters != nil && filters.FileID != "" {
		query += ` AND c.file_id = ?`
		args = append(args, filters.FileID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]candidate, 0, 256)
	for rows.Next() {
		var chunkID int64
		var vectorBlob []byte
		if err := rows.Scan(&chunkID, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		similarity := cosineSimilarity(queryVector, vector)
		if filters != nil && filters.MinRelevance > 0 && similarity < filters.MinRelevance {
			continue
		}

		candidates = append(candidates, candidate{chunkID: chunkID, score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)

	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results, nil
}

// searchKeyword performs case-insensitive substring search over chunk
// content. Scoring saturates with the occurrence count, so a chunk that
// repeats the query many times scores high but never unboundedly so.
func searchKeyword(ctx context.Context, db *sql.DB, projectID string, keyword string, limit int, filters *SearchFilters) ([]KeywordResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("empty search query")
	}

	query := `
		SELECT id, content
		FROM chunks
		WHERE project_id = ? AND content LIKE ? ESCAPE '\'
	`
	args := []interface{}{projectID, "%" + escapeLike(keyword) + "%"}

	if filters != nil && filters.FileID != "" {
		query += ` AND file_id = ?`
		args = append(args, filters.FileID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute keyword search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	lowered := strings.ToLower(keyword)
	results := make([]KeywordResult, 0)
	for rows.Next() {
		var chunkID int64
		var content string
		if err := rows.Scan(&chunkID, &content); err != nil {
			return nil, err
		}

		// SQLite LIKE is only case-insensitive for ASCII; recheck in Go so
		// non-ASCII queries behave consistently.
		occurrences := strings.Count(strings.ToLower(content), lowered)
		if occurrences == 0 {
			continue
		}

		score := float64(occurrences) / float64(occurrences+2)
		if filters != nil && filters.MinRelevance > 0 && score < filters.MinRelevance {
			continue
		}

		results = append(results, KeywordResult{
			ChunkID:     chunkID,
			Occurrences: occurrences,
			Score:       score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// escapeLike escapes LIKE wildcards in a user-supplied pattern.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`%`, `\%`,
		`_`, `\_`,
	)
	return replacer.Replace(s)
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a chunk with its similarity score
type candidate struct {
	chunkID int64
	score   float64
}

// sortCandidates sorts candidates by score descending, chunk id ascending on
// ties, so result order is deterministic.
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

// SerializeVector is an exported helper for callers that store embeddings
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for callers that load embeddings
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

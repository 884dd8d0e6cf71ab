package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

// Embedding represents a vector embedding with metadata.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Normalized-content hash used as the cache key
}

// EmbeddingRequest represents a request to generate a single embedding.
type EmbeddingRequest struct {
	Text string
}

// BatchEmbeddingRequest represents a batch request. Output order matches
// input order.
type BatchEmbeddingRequest struct {
	Texts []string
}

// BatchEmbeddingResponse represents a batch response.
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder generates fixed-dimension normalized vectors for text. The
// dimension is a property of the underlying model; callers must not assume a
// specific value beyond what Dimension reports.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch generates embeddings for multiple texts in one model
	// invocation where the provider supports it, preserving input order.
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// Cache provides in-memory LRU caching of embeddings by content hash.
// Identical input text always yields a bit-identical cached vector, so
// last-writer-wins on concurrent fills is harmless.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// DefaultCacheSize is the default number of cached embeddings.
const DefaultCacheSize = 10000

// NewCache creates a new embedding cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of an embedding from cache. Copying prevents
// caller mutations from corrupting cached values.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}, true
}

// Set stores an embedding in cache with automatic LRU eviction.
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size.
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.cache.Purge()
}

// NormalizeText collapses whitespace so that formatting-only variants of the
// same text share a cache entry.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ComputeHash computes the SHA-256 cache key of the normalized text.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(h[:])
}

// ValidateRequest validates a single embedding request. Empty input fails
// before any model call.
func ValidateRequest(req EmbeddingRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: text cannot be empty", types.ErrInvalidInput)
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request.
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", types.ErrInvalidInput)
	}
	for i, text := range req.Texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text at index %d is empty", types.ErrInvalidInput, i)
		}
	}
	return nil
}

// CosineSimilarity returns the cosine of the angle between two vectors, in
// [-1,1]. A vector compared with itself yields ~1.0. Mismatched dimensions
// are an InvalidInput error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: vectors must be non-empty and same dimension", types.ErrInvalidInput)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// BatchSimilarity scores one query vector against many candidates, returning
// scores in candidate order.
func BatchSimilarity(query []float32, candidates [][]float32) ([]float64, error) {
	scores := make([]float64, len(candidates))
	for i, cand := range candidates {
		score, err := CosineSimilarity(query, cand)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		scores[i] = score
	}
	return scores, nil
}

// NormalizeVector normalizes a vector to unit length.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

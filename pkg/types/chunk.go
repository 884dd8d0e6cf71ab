package types

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Chunk represents an offset-addressed window of manuscript text used as the
// unit of embedding and retrieval. Identity is (FileID, Index). A chunk is
// immutable once created except for Embedding, which is populated after the
// embedding stage runs.
type Chunk struct {
	// Identification
	ID        int64
	ProjectID string
	FileID    string
	Index     int // Sequential position within the file

	// Content
	Content     string
	ContentHash [32]byte // SHA-256 of content, for embedding cache reuse
	StartPos    int      // Rune offset into the original text, inclusive
	EndPos      int      // Rune offset, exclusive
	WordCount   int

	// Populated by later pipeline stages
	EntityIDs []string
	Embedding []float32 // Nil until the embedding stage completes
}

// ComputeWordCount counts whitespace-separated words in the chunk content.
func (c *Chunk) ComputeWordCount() int {
	c.WordCount = len(strings.Fields(c.Content))
	return c.WordCount
}

// ComputeContentHash computes the SHA-256 hash of the chunk content.
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// Validate performs comprehensive validation of the chunk.
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return fmt.Errorf("%w: chunk content cannot be empty", ErrInvalidInput)
	}

	if c.FileID == "" {
		return fmt.Errorf("%w: file ID is required", ErrInvalidInput)
	}

	if c.ProjectID == "" {
		return fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}

	if c.Index < 0 {
		return fmt.Errorf("%w: chunk index must be non-negative", ErrInvalidInput)
	}

	if c.StartPos < 0 || c.EndPos <= c.StartPos {
		return fmt.Errorf("%w: chunk offsets [%d,%d) are not a valid span", ErrInvalidInput, c.StartPos, c.EndPos)
	}

	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return fmt.Errorf("%w: content hash must be computed", ErrInvalidInput)
	}

	return nil
}

// Span returns the length of the chunk in runes of the original text.
func (c *Chunk) Span() int {
	return c.EndPos - c.StartPos
}

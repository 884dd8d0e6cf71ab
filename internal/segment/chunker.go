package segment

import (
	"strings"
	"unicode"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

const (
	// DefaultChunkSize is the target chunk length in runes, sized for
	// embedding-model input limits.
	DefaultChunkSize = 1200

	// DefaultOverlap is the fraction of each chunk repeated at the start of
	// the next one.
	DefaultOverlap = 0.15

	// boundaryWindow is how far back from the target cut the chunker searches
	// for a sentence or paragraph boundary before giving up and cutting at
	// the target.
	boundaryWindow = 240
)

// Chunker splits raw manuscript text into overlapping windows with exact rune
// offsets into the original text, preferring sentence and paragraph
// boundaries over mid-sentence cuts.
type Chunker struct {
	targetSize int
	overlap    float64
}

// New creates a Chunker with default sizing.
func New() *Chunker {
	return &Chunker{targetSize: DefaultChunkSize, overlap: DefaultOverlap}
}

// NewWithConfig creates a Chunker with explicit sizing. Out-of-range values
// fall back to the defaults.
func NewWithConfig(targetSize int, overlap float64) *Chunker {
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= 0.5 {
		overlap = DefaultOverlap
	}
	return &Chunker{targetSize: targetSize, overlap: overlap}
}

// ChunkText splits text into ordered, unsaved chunks. Consecutive chunks
// overlap by the configured fraction; the first chunk starts at offset 0 and
// the last ends at the end of the text, so the chunk set covers the full
// span. Empty or whitespace-only text yields an empty list, not an error.
func (c *Chunker) ChunkText(projectID, fileID, text string) []*types.Chunk {
	if strings.TrimSpace(text) == "" {
		return []*types.Chunk{}
	}

	runes := []rune(text)
	chunks := make([]*types.Chunk, 0, len(runes)/c.targetSize+1)

	pos := 0
	index := 0
	for pos < len(runes) {
		end := pos + c.targetSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.snapToBoundary(runes, pos, end)
		}

		chunk := &types.Chunk{
			ProjectID: projectID,
			FileID:    fileID,
			Index:     index,
			Content:   string(runes[pos:end]),
			StartPos:  pos,
			EndPos:    end,
		}
		chunk.ComputeWordCount()
		chunk.ComputeContentHash()
		chunks = append(chunks, chunk)

		if end == len(runes) {
			break
		}

		step := (end - pos) - int(float64(end-pos)*c.overlap)
		if step <= 0 {
			step = end - pos
		}
		pos += step
		index++
	}

	return chunks
}

// snapToBoundary moves the cut point at end back to the nearest paragraph
// break, or failing that the nearest sentence end, within boundaryWindow
// runes. Returns end unchanged when no boundary is close enough.
func (c *Chunker) snapToBoundary(runes []rune, start, end int) int {
	low := end - boundaryWindow
	if low <= start {
		low = start + 1
	}

	// Paragraph break first: cut just after a blank-line run.
	for i := end; i > low; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}

	// Then a sentence terminator followed by whitespace.
	for i := end; i > low; i-- {
		if isSentenceEnd(runes[i-1]) && i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

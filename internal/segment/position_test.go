package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

func TestIndexText_ParagraphNumbering(t *testing.T) {
	// Three lines, blank line ends paragraph 1.
	text := "Alice met Bob.\n\nThey talked."

	p := NewPositionIndexer()
	entries := p.IndexText("p1", "f1", 1, text, nil)
	require.Len(t, entries, 3)

	assert.Equal(t, 1, entries[0].ParagraphNo)
	assert.Equal(t, 1, entries[1].ParagraphNo)
	assert.Equal(t, 2, entries[2].ParagraphNo)

	assert.False(t, entries[0].IsDialogue)
	assert.False(t, entries[1].IsDialogue)
	assert.False(t, entries[2].IsDialogue)

	assert.True(t, entries[1].IsEmpty)
	assert.False(t, entries[0].IsEmpty)
}

func TestIndexText_OffsetsContiguous(t *testing.T) {
	text := "First line here.\nSecond, a bit longer line.\n\nFourth line."

	p := NewPositionIndexer()
	entries := p.IndexText("p1", "f1", 1, text, nil)
	require.Len(t, entries, 4)

	for i, e := range entries {
		assert.Equal(t, i+1, e.LineNo)
		assert.Equal(t, len([]rune(e.LineContent)), e.EndCharPos-e.StartCharPos)
		require.NoError(t, e.Validate())
		if i > 0 {
			// Strictly increasing, contiguous across the newline.
			assert.Equal(t, entries[i-1].EndCharPos+1, e.StartCharPos)
		}
	}
	assert.Equal(t, 0, entries[0].StartCharPos)
}

func TestIndexText_DialogueDetection(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"straight quotes", `"Run," she said.`, true},
		{"curly opening", "“Where?” he asked.", true},
		{"curly closing only", "so it ended.”", true},
		{"apostrophe is not dialogue", "It was Bob's idea.", false},
		{"plain narration", "The rain kept falling.", false},
	}

	p := NewPositionIndexer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := p.IndexText("p1", "f1", 1, tt.line, nil)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.want, entries[0].IsDialogue)
		})
	}
}

func TestIndexText_SceneResolution(t *testing.T) {
	text := "Scene one prose.\n\nStill scene one.\nScene two starts here."
	scenes := []types.SceneBoundary{
		{SceneNo: 1, ChapterNo: 1, StartPos: 0, EndPos: 34},
		{SceneNo: 2, ChapterNo: 1, StartPos: 35, EndPos: 60},
	}

	p := NewPositionIndexer()
	entries := p.IndexText("p1", "f1", 1, text, scenes)
	require.Len(t, entries, 4)

	require.NotNil(t, entries[0].SceneNo)
	assert.Equal(t, 1, *entries[0].SceneNo)
	require.NotNil(t, entries[3].SceneNo)
	assert.Equal(t, 2, *entries[3].SceneNo)
	require.NotNil(t, entries[3].ChapterNo)
	assert.Equal(t, 1, *entries[3].ChapterNo)
}

func TestIndexText_Empty(t *testing.T) {
	p := NewPositionIndexer()
	assert.Empty(t, p.IndexText("p1", "f1", 1, "", nil))
}

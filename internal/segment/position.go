package segment

import (
	"strings"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

// PositionIndexer walks a file's text once and produces one
// PositionIndexEntry per line, tracking rune offsets, paragraph boundaries,
// scene/chapter resolution, and dialogue detection.
type PositionIndexer struct{}

// NewPositionIndexer creates a PositionIndexer.
func NewPositionIndexer() *PositionIndexer {
	return &PositionIndexer{}
}

// IndexText builds the per-line structural index for one file version.
// Paragraph numbers increment when a non-blank run ends: a blank line still
// belongs to the paragraph it terminates, and the next non-blank line starts
// the new one. Scene and chapter numbers resolve against the given boundary
// set, which must already be ordered and non-overlapping.
func (p *PositionIndexer) IndexText(projectID, fileID string, version int, text string, scenes []types.SceneBoundary) []*types.PositionIndexEntry {
	if text == "" {
		return []*types.PositionIndexEntry{}
	}

	lines := strings.Split(text, "\n")
	entries := make([]*types.PositionIndexEntry, 0, len(lines))

	offset := 0
	paragraphNo := 1
	sawBlank := false
	sawContent := false

	for i, line := range lines {
		lineRunes := len([]rune(line))
		isEmpty := strings.TrimSpace(line) == ""

		if !isEmpty {
			if sawContent && sawBlank {
				paragraphNo++
			}
			sawContent = true
			sawBlank = false
		} else if sawContent {
			sawBlank = true
		}

		entry := &types.PositionIndexEntry{
			ProjectID:    projectID,
			FileID:       fileID,
			Version:      version,
			LineNo:       i + 1,
			StartCharPos: offset,
			EndCharPos:   offset + lineRunes,
			ParagraphNo:  paragraphNo,
			LineContent:  line,
			IsEmpty:      isEmpty,
			IsDialogue:   containsQuote(line),
		}

		if scene := types.ResolveScene(scenes, offset); scene != nil {
			sceneNo := scene.SceneNo
			chapterNo := scene.ChapterNo
			entry.SceneNo = &sceneNo
			entry.ChapterNo = &chapterNo
		}

		entries = append(entries, entry)
		offset += lineRunes + 1 // account for the newline
	}

	return entries
}

// containsQuote reports whether the line carries a quotation mark, straight
// or curly, opening or closing.
func containsQuote(line string) bool {
	return strings.ContainsAny(line, `"`+"“”")
}

package types

import (
	"fmt"
	"sort"
)

// PositionIndexEntry describes one source line of a file version: its exact
// character span, paragraph number, resolved scene/chapter, and derived
// flags. Entries are created once per file version and superseded, never
// mutated, on re-indexing.
type PositionIndexEntry struct {
	ID        int64
	ProjectID string
	FileID    string
	Version   int // Index version this entry belongs to

	LineNo       int // 1-based
	StartCharPos int // Rune offset of the first rune of the line
	EndCharPos   int // Rune offset one past the last rune, excluding the newline
	ParagraphNo  int // 1-based, increments on blank-line boundaries

	SceneNo   *int // Nil when the line falls outside any detected scene
	ChapterNo *int

	LineContent string
	IsEmpty     bool
	IsDialogue  bool
}

// Validate checks the entry's internal consistency.
func (p *PositionIndexEntry) Validate() error {
	if p.LineNo < 1 {
		return fmt.Errorf("%w: line number must be >= 1", ErrInvalidInput)
	}
	if p.EndCharPos-p.StartCharPos != len([]rune(p.LineContent)) {
		return fmt.Errorf("%w: line span [%d,%d) does not match content length %d",
			ErrInvalidInput, p.StartCharPos, p.EndCharPos, len([]rune(p.LineContent)))
	}
	if p.ParagraphNo < 1 {
		return fmt.Errorf("%w: paragraph number must be >= 1", ErrInvalidInput)
	}
	return nil
}

// SceneBoundary marks a contiguous scene within a file. Boundaries for a file
// are ordered by StartPos and never overlap; any character position maps to at
// most one scene.
type SceneBoundary struct {
	ID        int64
	ProjectID string
	FileID    string

	SceneNo   int
	ChapterNo int
	StartPos  int // Rune offset, inclusive
	EndPos    int // Rune offset, exclusive
}

// Contains reports whether the given rune offset falls inside the scene.
func (s *SceneBoundary) Contains(pos int) bool {
	return pos >= s.StartPos && pos < s.EndPos
}

// ValidateBoundaries checks that a boundary set is ordered by start offset and
// non-overlapping. Detector implementations must guarantee this before
// returning; consumers may use it as a defensive check on loaded data.
func ValidateBoundaries(boundaries []SceneBoundary) error {
	if !sort.SliceIsSorted(boundaries, func(i, j int) bool {
		return boundaries[i].StartPos < boundaries[j].StartPos
	}) {
		return fmt.Errorf("%w: scene boundaries are not ordered by start offset", ErrInconsistentState)
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i].StartPos < boundaries[i-1].EndPos {
			return fmt.Errorf("%w: scenes %d and %d overlap", ErrInconsistentState,
				boundaries[i-1].SceneNo, boundaries[i].SceneNo)
		}
	}
	return nil
}

// ResolveScene finds the scene containing pos using binary search over an
// ordered boundary set. Returns nil when pos falls between scenes.
func ResolveScene(boundaries []SceneBoundary, pos int) *SceneBoundary {
	idx := sort.Search(len(boundaries), func(i int) bool {
		return boundaries[i].EndPos > pos
	})
	if idx < len(boundaries) && boundaries[idx].Contains(pos) {
		return &boundaries[idx]
	}
	return nil
}

package segment

import (
	"regexp"
	"sort"
	"strings"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

// blankRunBreak is the number of consecutive blank lines treated as a scene
// break even without an explicit marker.
const blankRunBreak = 3

var (
	chapterHeadingRe = regexp.MustCompile(`(?i)^\s*(chapter\s+[\dIVXLC]+|prologue|epilogue)\b`)
	sceneBreakRe     = regexp.MustCompile(`^\s*(\*\s*){3,}\s*$|^\s*#\s*#\s*#?\s*$|^\s*-{3,}\s*$|^\s*⁂\s*$`)
)

// SceneDetector determines scene boundaries from heuristic markers: chapter
// headings, explicit scene-break glyphs, and long blank-line runs.
type SceneDetector struct{}

// NewSceneDetector creates a SceneDetector.
func NewSceneDetector() *SceneDetector {
	return &SceneDetector{}
}

// DetectScenes scans text and returns scene boundaries ordered by start
// offset. The ordered/non-overlapping post-condition is enforced before
// returning regardless of what the marker scan produced.
func (d *SceneDetector) DetectScenes(projectID, fileID, text string) ([]types.SceneBoundary, error) {
	if strings.TrimSpace(text) == "" {
		return []types.SceneBoundary{}, nil
	}

	lines := strings.Split(text, "\n")

	var boundaries []types.SceneBoundary
	sceneNo := 0
	chapterNo := 1
	headingSeen := false
	blankRun := 0

	sceneStart := -1 // -1 while no scene is open
	offset := 0

	closeScene := func(end int) {
		if sceneStart < 0 || end <= sceneStart {
			return
		}
		sceneNo++
		boundaries = append(boundaries, types.SceneBoundary{
			ProjectID: projectID,
			FileID:    fileID,
			SceneNo:   sceneNo,
			ChapterNo: chapterNo,
			StartPos:  sceneStart,
			EndPos:    end,
		})
		sceneStart = -1
	}

	for _, line := range lines {
		lineRunes := len([]rune(line))
		blank := strings.TrimSpace(line) == ""

		switch {
		case chapterHeadingRe.MatchString(line):
			closeScene(offset)
			if headingSeen {
				chapterNo++
			} else {
				// The first heading opens chapter 1 even when front
				// matter precedes it.
				headingSeen = true
			}
			blankRun = 0

		case sceneBreakRe.MatchString(line):
			closeScene(offset)
			blankRun = 0

		case blank:
			blankRun++
			if blankRun >= blankRunBreak {
				closeScene(offset)
			}

		default:
			if sceneStart < 0 {
				sceneStart = offset
			}
			blankRun = 0
		}

		offset += lineRunes + 1
	}

	totalRunes := len([]rune(text))
	closeScene(totalRunes)

	enforceOrdering(boundaries)
	if err := types.ValidateBoundaries(boundaries); err != nil {
		return nil, err
	}
	return boundaries, nil
}

// enforceOrdering sorts boundaries by start offset and clamps any overlap so
// each character position maps to at most one scene.
func enforceOrdering(boundaries []types.SceneBoundary) {
	sort.Slice(boundaries, func(i, j int) bool {
		return boundaries[i].StartPos < boundaries[j].StartPos
	})
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i].StartPos < boundaries[i-1].EndPos {
			boundaries[i-1].EndPos = boundaries[i].StartPos
		}
	}
}

var (
	flashbackMarkers = []string{"had been", "remembered", "recalled", "years ago", "back then", "once, long ago"}
	presentMarkers   = []string{"now", "today", "at this moment", "tonight"}
)

// FlashbackScore scores a scene's text for flashback framing by keyword-count
// difference. Only the sign is meaningful: positive suggests a flashback,
// negative suggests present-time narration. The magnitude carries no defined
// confidence.
func FlashbackScore(text string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, m := range flashbackMarkers {
		score += strings.Count(lower, m)
	}
	for _, m := range presentMarkers {
		score -= strings.Count(lower, m)
	}
	return score
}

package extractor

import (
	"context"
	"regexp"
	"strings"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

// Span labels
const (
	LabelPerson   = "PERSON"
	LabelLocation = "LOC"
)

// Span is a raw candidate produced by a named-entity model: a label, the
// matched text, and its rune offset into the input.
type Span struct {
	Label    string
	Text     string
	StartPos int
}

// Model is the pretrained named-entity model dependency. Implementations may
// call out to an inference service; the engine only relies on this contract.
type Model interface {
	// ExtractEntities returns raw candidate spans for the given text.
	ExtractEntities(ctx context.Context, text string) ([]Span, error)
}

// capitalizedRun matches runs of capitalized tokens, optionally joined by
// "of"/"the", e.g. "Lady Margaret", "Kingdom of Ash".
var capitalizedRun = regexp.MustCompile(`\p{Lu}[\p{L}']*(?:\s+(?:of|the|\p{Lu}[\p{L}']*))*`)

// locationCue are prepositions that suggest the following span names a place.
var locationCue = map[string]bool{
	"in": true, "at": true, "near": true, "toward": true, "towards": true,
	"from": true, "to": true, "across": true, "beyond": true,
}

// HeuristicModel is the offline default Model: it proposes capitalized token
// runs as candidate spans and guesses labels from surrounding prepositions
// and place-word cues. It exists so the pipeline runs without an inference
// dependency; validators downstream do the real filtering.
type HeuristicModel struct{}

// NewHeuristicModel creates the offline candidate model.
func NewHeuristicModel() *HeuristicModel {
	return &HeuristicModel{}
}

// ExtractEntities proposes capitalized spans with guessed labels. It never
// fails; the error return satisfies the Model contract.
func (m *HeuristicModel) ExtractEntities(ctx context.Context, text string) ([]Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.ErrInvalidInput
	}

	runes := []rune(text)
	var spans []Span

	for _, loc := range capitalizedRun.FindAllStringIndex(text, -1) {
		start := len([]rune(text[:loc[0]]))
		surface := text[loc[0]:loc[1]]

		// Discard sentence-initial single words that are capitalized only by
		// position; multi-token runs keep their capitalization signal.
		if start == 0 || (start >= 2 && isSentenceStart(runes, start)) {
			if !strings.Contains(surface, " ") {
				continue
			}
		}

		label := LabelPerson
		if m.looksLikePlace(text, loc[0], surface) {
			label = LabelLocation
		}

		spans = append(spans, Span{Label: label, Text: surface, StartPos: start})
	}

	return spans, nil
}

func isSentenceStart(runes []rune, start int) bool {
	i := start - 1
	for i >= 0 && (runes[i] == ' ' || runes[i] == '\n' || runes[i] == '"' || runes[i] == '“') {
		i--
	}
	if i < 0 {
		return true
	}
	switch runes[i] {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func (m *HeuristicModel) looksLikePlace(text string, byteStart int, surface string) bool {
	if containsPlaceWord(surface) {
		return true
	}
	before := strings.Fields(strings.ToLower(text[:byteStart]))
	if len(before) == 0 {
		return false
	}
	return locationCue[strings.Trim(before[len(before)-1], ",;:")]
}

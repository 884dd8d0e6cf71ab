package graph

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/storyloom/narrative-mcp/internal/storage"
	"github.com/storyloom/narrative-mcp/pkg/types"
)

// Context quality tiers by how far apart two mentions sit within a chunk.
const (
	closeMentionSpan = 150 // Roughly the same sentence
	nearMentionSpan  = 400 // Same beat, a sentence or two apart

	closeQuality = 1.0
	nearQuality  = 0.8
	farQuality   = 0.6

	// maxSnippetRunes bounds each stored evidence snippet.
	maxSnippetRunes = 200
)

// negationCues downgrade a character pairing from interaction to a bare
// mention when the connecting text denies the contact.
var negationCues = []string{
	"never",
	"not ",
	"n't ",
	"without",
	"refused",
	"avoided",
	"absence",
}

// Discoverer infers typed relationships between known entities from their
// co-occurrence within chunks.
type Discoverer struct {
	store storage.Store
}

// NewDiscoverer creates a relationship discoverer backed by the given store.
func NewDiscoverer(store storage.Store) *Discoverer {
	return &Discoverer{store: store}
}

// Result summarizes one discovery run.
type Result struct {
	RelationshipsUpserted int
	PairsObserved         int
	// ChunkEntities maps each chunk row id to the entity ids found in it,
	// for the caller to persist as chunk links.
	ChunkEntities map[int64][]string
}

// occurrence is one located appearance of an entity inside a chunk.
type occurrence struct {
	entity *types.Entity
	pos    int // Rune offset within the chunk content
}

// pairEvidence accumulates the full evidence set for one entity pair across
// a run. Strength is computed from it at the end, never incremented.
type pairEvidence struct {
	source    *types.Entity
	target    *types.Entity
	count     int
	qualities []float64
	snippets  []string
	relType   types.RelationshipType
}

// Discover scans the given chunks for co-occurrences of the known entities
// and upserts one relationship per observed pair. Running it twice over the
// same chunks produces identical stored relationships: evidence is rebuilt
// from scratch and the upsert overwrites by (source, target).
func (d *Discoverer) Discover(ctx context.Context, projectID string, chunks []*types.Chunk, entities []*types.Entity) (*Result, error) {
	result := &Result{ChunkEntities: make(map[int64][]string)}
	if len(entities) < 1 {
		return result, nil
	}

	pairs := make(map[string]*pairEvidence)

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		occurrences := findOccurrences(chunk.Content, entities)
		if len(occurrences) == 0 {
			continue
		}

		result.ChunkEntities[chunk.ID] = entityIDs(occurrences)
		if len(occurrences) < 2 {
			continue
		}

		collectPairs(pairs, chunk.Content, occurrences)
	}

	result.PairsObserved = len(pairs)

	// Deterministic upsert order keeps logs and generated ids stable.
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ev := pairs[key]
		strength := types.ComputeStrength(types.RelationshipEvidence{
			CooccurrenceCnt: ev.count,
			ContextQuality:  meanQuality(ev.qualities),
			Type:            ev.relType,
		})

		rel := &types.Relationship{
			ID:              uuid.NewString(),
			ProjectID:       projectID,
			SourceEntityID:  ev.source.ID,
			TargetEntityID:  ev.target.ID,
			Type:            ev.relType,
			Strength:        strength,
			CooccurrenceCnt: ev.count,
		}
		for _, s := range ev.snippets {
			rel.AddSnippet(s)
		}

		if err := d.store.UpsertRelationship(ctx, rel); err != nil {
			return nil, fmt.Errorf("failed to store relationship %s -> %s: %w",
				ev.source.Name, ev.target.Name, err)
		}
		result.RelationshipsUpserted++
	}

	if result.RelationshipsUpserted > 0 {
		log.Printf("discovered %d relationships from %d pairs in project %s",
			result.RelationshipsUpserted, result.PairsObserved, projectID)
	}
	return result, nil
}

// findOccurrences locates each entity's first appearance in the chunk by
// case-insensitive match on the canonical name or any alias. Word boundaries
// are enforced so "Mara" does not fire inside "marmalade".
func findOccurrences(content string, entities []*types.Entity) []occurrence {
	lowered := strings.ToLower(content)
	loweredRunes := []rune(lowered)

	var found []occurrence
	for _, entity := range entities {
		surfaces := append([]string{entity.Name}, entity.Aliases...)
		best := -1
		for _, surface := range surfaces {
			pos := findWord(loweredRunes, types.CanonicalKey(surface))
			if pos >= 0 && (best < 0 || pos < best) {
				best = pos
			}
		}
		if best >= 0 {
			found = append(found, occurrence{entity: entity, pos: best})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	return found
}

// findWord returns the rune offset of the first whole-word occurrence of
// needle in haystack, or -1.
func findWord(haystack []rune, needle string) int {
	needleRunes := []rune(needle)
	if len(needleRunes) == 0 || len(needleRunes) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needleRunes) <= len(haystack); i++ {
		if string(haystack[i:i+len(needleRunes)]) != needle {
			continue
		}
		if i > 0 && isWordRune(haystack[i-1]) {
			continue
		}
		end := i + len(needleRunes)
		if end < len(haystack) && isWordRune(haystack[end]) {
			continue
		}
		return i
	}
	return -1
}

func isWordRune(r rune) bool {
	return r == '\'' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// collectPairs folds every unordered entity pair in one chunk into the
// running evidence map.
func collectPairs(pairs map[string]*pairEvidence, content string, occurrences []occurrence) {
	runes := []rune(content)

	for i := 0; i < len(occurrences); i++ {
		for j := i + 1; j < len(occurrences); j++ {
			a, b := occurrences[i], occurrences[j]
			if a.entity.ID == b.entity.ID {
				continue
			}

			between := betweenText(runes, a.pos, b.pos)
			relType, source, target := classifyPair(a.entity, b.entity, between)

			key := source.ID + "\x00" + target.ID
			ev, ok := pairs[key]
			if !ok {
				ev = &pairEvidence{source: source, target: target, relType: relType}
				pairs[key] = ev
			}
			ev.count++
			ev.qualities = append(ev.qualities, mentionQuality(a.pos, b.pos))
			if len(ev.snippets) < types.MaxContextSnippets {
				ev.snippets = append(ev.snippets, spanningSnippet(runes, a.pos, b.pos))
			}
			// Interaction evidence outweighs an earlier bare-mention read of
			// the same pair.
			if relType == types.RelInteractsWith {
				ev.relType = relType
			}
		}
	}
}

// classifyPair decides the relationship type and edge direction for a pair.
//
//   - character + location: the character is LOCATED_IN the location
//   - character + character: INTERACTS_WITH, unless the connecting text
//     denies contact, then MENTIONS
//   - anything involving a theme, or two locations: MENTIONS
//
// Same-type pairs are ordered by canonical name so the edge key is stable
// across runs.
func classifyPair(a, b *types.Entity, between string) (types.RelationshipType, *types.Entity, *types.Entity) {
	aChar := a.Type == types.EntityCharacter
	bChar := b.Type == types.EntityCharacter
	aLoc := a.Type == types.EntityLocation
	bLoc := b.Type == types.EntityLocation

	switch {
	case aChar && bLoc:
		return types.RelLocatedIn, a, b
	case bChar && aLoc:
		return types.RelLocatedIn, b, a
	case aChar && bChar:
		src, dst := orderByName(a, b)
		if containsNegation(between) {
			return types.RelMentions, src, dst
		}
		return types.RelInteractsWith, src, dst
	default:
		src, dst := orderByName(a, b)
		return types.RelMentions, src, dst
	}
}

func orderByName(a, b *types.Entity) (*types.Entity, *types.Entity) {
	if types.CanonicalKey(a.Name) <= types.CanonicalKey(b.Name) {
		return a, b
	}
	return b, a
}

func containsNegation(between string) bool {
	lowered := strings.ToLower(between)
	for _, cue := range negationCues {
		if strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}

// betweenText returns the text connecting two mention offsets.
func betweenText(runes []rune, a, b int) string {
	if a > b {
		a, b = b, a
	}
	if b > len(runes) {
		b = len(runes)
	}
	return string(runes[a:b])
}

// mentionQuality scores how tightly two mentions are coupled by distance.
func mentionQuality(a, b int) float64 {
	dist := b - a
	if dist < 0 {
		dist = -dist
	}
	switch {
	case dist <= closeMentionSpan:
		return closeQuality
	case dist <= nearMentionSpan:
		return nearQuality
	default:
		return farQuality
	}
}

func meanQuality(qualities []float64) float64 {
	if len(qualities) == 0 {
		return 1
	}
	var sum float64
	for _, q := range qualities {
		sum += q
	}
	return sum / float64(len(qualities))
}

// spanningSnippet extracts a snippet covering both mentions, trimmed to the
// snippet bound around their midpoint when the span is too wide.
func spanningSnippet(runes []rune, a, b int) string {
	if a > b {
		a, b = b, a
	}
	start, end := a, b
	if end-start < maxSnippetRunes {
		pad := (maxSnippetRunes - (end - start)) / 2
		start -= pad
		end += pad
	} else {
		mid := (a + b) / 2
		start = mid - maxSnippetRunes/2
		end = mid + maxSnippetRunes/2
	}
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	return strings.TrimSpace(string(runes[start:end]))
}

func entityIDs(occurrences []occurrence) []string {
	ids := make([]string, 0, len(occurrences))
	for _, o := range occurrences {
		ids = append(ids, o.entity.ID)
	}
	return ids
}

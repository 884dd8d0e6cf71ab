package extractor

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

const (
	// DefaultMinMentions is how many times a candidate must appear across a
	// project before it materializes as an entity. Defensive against one-off
	// false positives.
	DefaultMinMentions = 2

	// snippetRadius is the rune radius of the context window recorded with
	// each mention.
	snippetRadius = 40

	confidenceAccept = 0.85
	confidenceWeak   = 0.55
)

// Config tunes the extractor.
type Config struct {
	MinMentions int
	// AliasGroups maps a canonical name to its configured alternate surface
	// forms, e.g. "John" -> ["Johnny", "Johnny Boy"]. Mentions of an alias
	// fold into the canonical entity instead of creating a new one.
	AliasGroups map[string][]string
}

// Result reports what one extraction run produced.
type Result struct {
	Entities       []*types.Entity // New and updated entities, folded
	Candidates     int             // Raw spans seen
	Rejected       int             // Spans discarded by validators
	BelowThreshold int             // Distinct names seen but under MinMentions
	FailedChunks   int             // Chunks whose model call failed
}

// Extractor detects character and location entities in chunk content using a
// named-entity model plus rule-based validators, deduplicating by canonical
// name with alias folding.
type Extractor struct {
	model       Model
	minMentions int
	aliases     map[string]string // canonical-key of alias -> canonical name
}

// New creates an Extractor around the given model.
func New(model Model, cfg Config) *Extractor {
	min := cfg.MinMentions
	if min <= 0 {
		min = DefaultMinMentions
	}

	aliases := make(map[string]string)
	for canonical, forms := range cfg.AliasGroups {
		for _, form := range forms {
			aliases[types.CanonicalKey(form)] = canonical
		}
	}

	return &Extractor{model: model, minMentions: min, aliases: aliases}
}

// candidate accumulates evidence for one canonical name before the mention
// threshold is met.
type candidate struct {
	name     string
	typ      types.EntityType
	mentions []types.Mention
}

// ExtractFromChunks runs the model over each chunk, validates and folds the
// candidates, and returns updated entities. The chunk set is treated as the
// full current evidence for the project: existing entities keep their ID and
// aliases but have their mention aggregates recomputed from it, so passing an
// unchanged set yields unchanged aggregates. A single chunk's model failure
// does not abort extraction for the remaining chunks; it is counted in the
// result.
func (e *Extractor) ExtractFromChunks(ctx context.Context, projectID string, chunks []*types.Chunk, existing []*types.Entity) (*Result, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is required", types.ErrInvalidInput)
	}

	res := &Result{}
	byKey := make(map[string]*types.Entity)
	for _, ent := range existing {
		byKey[entityKey(ent.Type, ent.Name)] = ent
	}

	pending := make(map[string]*candidate)
	newMentions := make(map[string][]types.Mention) // entityKey -> batch for existing entities

	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		spans, err := e.model.ExtractEntities(ctx, chunk.Content)
		if err != nil {
			res.FailedChunks++
			log.Printf("entity extraction failed for chunk %s/%d: %v", chunk.FileID, chunk.Index, err)
			continue
		}

		for _, span := range spans {
			res.Candidates++

			typ, conf, ok := e.validate(span)
			if !ok {
				res.Rejected++
				continue
			}

			canonical := e.resolveAlias(span.Text)
			mention := types.Mention{
				FileID:     chunk.FileID,
				CharPos:    chunk.StartPos + span.StartPos,
				Snippet:    snippet(chunk.Content, span.StartPos),
				Confidence: conf,
			}

			key := entityKey(typ, canonical)
			if ent, found := byKey[key]; found && ent.KnownAs(canonical) {
				newMentions[key] = append(newMentions[key], mention)
				continue
			}

			c, found := pending[key]
			if !found {
				c = &candidate{name: canonical, typ: typ}
				pending[key] = c
			}
			c.mentions = append(c.mentions, mention)
		}
	}

	// The chunk set is the full current evidence, so existing aggregates are
	// rebuilt from it rather than folded onto. Entities that produced no
	// spans this pass (a failed chunk, say) keep their prior state.
	for key, batch := range newMentions {
		ent := byKey[key]
		ent.ResetEvidence()
		ent.FoldMentions(batch)
		res.Entities = append(res.Entities, ent)
	}

	// Materialize candidates that cleared the mention threshold.
	for key, c := range pending {
		if len(c.mentions) < e.minMentions {
			res.BelowThreshold++
			continue
		}
		ent := &types.Entity{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Type:      c.typ,
			Name:      c.name,
			Aliases:   e.aliasesFor(c.name),
		}
		ent.FoldMentions(c.mentions)
		byKey[key] = ent
		res.Entities = append(res.Entities, ent)
	}

	return res, nil
}

// validate routes a span through the type-appropriate rule table and returns
// the resolved entity type and per-mention confidence.
func (e *Extractor) validate(span Span) (types.EntityType, float64, bool) {
	switch span.Label {
	case LabelLocation:
		switch ValidateLocationName(span.Text) {
		case verdictAccept:
			return types.EntityLocation, confidenceAccept, true
		case verdictWeak:
			return types.EntityLocation, confidenceWeak, true
		}
	default:
		switch ValidateCharacterName(span.Text) {
		case verdictAccept:
			return types.EntityCharacter, confidenceAccept, true
		case verdictWeak:
			return types.EntityCharacter, confidenceWeak, true
		}
	}
	return "", 0, false
}

// resolveAlias maps a surface form to its configured canonical name, or
// returns the trimmed surface itself.
func (e *Extractor) resolveAlias(surface string) string {
	if canonical, ok := e.aliases[types.CanonicalKey(surface)]; ok {
		return canonical
	}
	return surface
}

// aliasesFor returns the configured alias set for a canonical name.
func (e *Extractor) aliasesFor(canonical string) []string {
	var out []string
	for aliasKey, name := range e.aliases {
		if name == canonical {
			out = append(out, aliasKey)
		}
	}
	return out
}

func entityKey(typ types.EntityType, name string) string {
	return string(typ) + "\x00" + types.CanonicalKey(name)
}

// snippet extracts a short context window around a rune offset.
func snippet(content string, pos int) string {
	runes := []rune(content)
	start := pos - snippetRadius
	if start < 0 {
		start = 0
	}
	end := pos + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end])
}

package types

import (
	"fmt"
	"math"
)

// RelationshipType classifies a directed edge between two entities.
type RelationshipType string

const (
	RelInteractsWith RelationshipType = "INTERACTS_WITH"
	RelLocatedIn     RelationshipType = "LOCATED_IN"
	RelMentions      RelationshipType = "MENTIONS"
)

// MaxContextSnippets bounds the number of evidence snippets retained per
// relationship.
const MaxContextSnippets = 5

// Relationship is a typed, scored, directed edge between two entities,
// inferred from co-occurrence. Uniqueness key: (SourceEntityID,
// TargetEntityID). Strength is recomputed from the full evidence set, never
// incremented on top of a stale value.
type Relationship struct {
	ID             string
	ProjectID      string
	SourceEntityID string
	TargetEntityID string

	Type            RelationshipType
	Strength        float64 // Clamped to [0,1]
	CooccurrenceCnt int
	ContextSnippets []string // Bounded by MaxContextSnippets
}

// RelationshipEvidence is the full current evidence set for one entity pair.
// ComputeStrength is a pure function of it, which makes discovery re-runs
// idempotent: the same evidence always produces the same strength.
type RelationshipEvidence struct {
	CooccurrenceCnt int
	ContextQuality  float64 // Mean per-snippet quality multiplier, >= 0
	Type            RelationshipType
}

// typeFactor orders relationship types by how much signal a co-occurrence of
// that kind carries: INTERACTS_WITH > LOCATED_IN > MENTIONS.
func typeFactor(t RelationshipType) float64 {
	switch t {
	case RelInteractsWith:
		return 1.0
	case RelLocatedIn:
		return 0.85
	default:
		return 0.6
	}
}

// ComputeStrength derives relationship strength from evidence:
// a saturating (sub-linear, capped) function of co-occurrence count, scaled by
// the context-quality multiplier and the relationship-type factor. Holding
// quality fixed, strength is monotone non-decreasing in the count. The result
// is clamped to [0,1].
func ComputeStrength(ev RelationshipEvidence) float64 {
	if ev.CooccurrenceCnt <= 0 {
		return 0
	}

	// 1 co-occurrence ~0.26, 5 ~0.66, 20 ~0.92; asymptote 1.
	base := 1 - math.Exp(-0.3*float64(ev.CooccurrenceCnt))

	quality := ev.ContextQuality
	if quality <= 0 {
		quality = 1
	}

	strength := base * quality * typeFactor(ev.Type)
	if strength > 1 {
		strength = 1
	}
	if strength < 0 {
		strength = 0
	}
	return strength
}

// AddSnippet appends a context snippet, dropping it once the bound is hit.
func (r *Relationship) AddSnippet(snippet string) {
	if len(r.ContextSnippets) >= MaxContextSnippets {
		return
	}
	r.ContextSnippets = append(r.ContextSnippets, snippet)
}

// Validate checks relationship invariants.
func (r *Relationship) Validate() error {
	if r.SourceEntityID == "" || r.TargetEntityID == "" {
		return fmt.Errorf("%w: relationship endpoints are required", ErrInvalidInput)
	}
	if r.SourceEntityID == r.TargetEntityID {
		return fmt.Errorf("%w: self-relationship not allowed", ErrInvalidInput)
	}
	if r.Strength < 0 || r.Strength > 1 {
		return fmt.Errorf("%w: strength %f outside [0,1]", ErrInvalidInput, r.Strength)
	}
	switch r.Type {
	case RelInteractsWith, RelLocatedIn, RelMentions:
	default:
		return fmt.Errorf("%w: unknown relationship type %q", ErrInvalidInput, r.Type)
	}
	return nil
}

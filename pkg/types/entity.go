package types

import (
	"fmt"
	"strings"
)

// EntityType classifies a recognized narrative entity.
type EntityType string

const (
	EntityCharacter EntityType = "CHARACTER"
	EntityLocation  EntityType = "LOCATION"
	EntityTheme     EntityType = "THEME"
)

// ValidEntityType reports whether t is a known entity type.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityCharacter, EntityLocation, EntityTheme:
		return true
	}
	return false
}

// Mention is a single occurrence of an entity at a specific file position.
type Mention struct {
	FileID     string
	CharPos    int
	Snippet    string  // Short context window around the occurrence
	Confidence float64 // Per-mention confidence in [0,1]
}

// Entity is a project-scoped named character, location, or theme.
// Uniqueness key: (ProjectID, Type, canonical Name). MentionCount and
// Confidence only move forward as new evidence is folded in; confidence never
// drops below prior evidence without explicit re-extraction.
type Entity struct {
	ID        string
	ProjectID string
	Type      EntityType
	Name      string   // Canonical name
	Aliases   []string // Alternate surface forms, canonical name excluded

	Confidence   float64 // Aggregate confidence in [0,1]
	MentionCount int
	FirstMention *Mention
	LastMention  *Mention
}

// CanonicalKey returns the case-insensitive dedup key for the entity name.
func CanonicalKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// KnownAs reports whether surface matches the canonical name or any alias,
// case-insensitively.
func (e *Entity) KnownAs(surface string) bool {
	key := CanonicalKey(surface)
	if CanonicalKey(e.Name) == key {
		return true
	}
	for _, a := range e.Aliases {
		if CanonicalKey(a) == key {
			return true
		}
	}
	return false
}

// FoldMentions folds a batch of new mentions into the entity's aggregate
// state. It is a pure reducer over (existing, batch): prior mentions are never
// discarded and aggregate confidence is monotone non-decreasing, computed from
// the running mention count and the running mean of per-mention confidence.
func (e *Entity) FoldMentions(batch []Mention) {
	if len(batch) == 0 {
		return
	}

	// Running mean over all evidence seen so far.
	total := e.Confidence * float64(e.MentionCount)
	for i := range batch {
		m := batch[i]
		total += m.Confidence
		e.MentionCount++
		if e.FirstMention == nil {
			first := m
			e.FirstMention = &first
		}
		last := m
		e.LastMention = &last
	}

	mean := total / float64(e.MentionCount)

	// More mentions mean more certainty: scale the mean toward 1 as the count
	// grows, saturating at 10 mentions.
	countFactor := float64(e.MentionCount) / 10.0
	if countFactor > 1 {
		countFactor = 1
	}
	aggregate := mean * (0.7 + 0.3*countFactor)
	if aggregate > 1 {
		aggregate = 1
	}
	if aggregate > e.Confidence {
		e.Confidence = aggregate
	}
}

// ResetEvidence clears the aggregate mention state ahead of a full
// re-extraction. Folding the complete evidence set into a reset entity yields
// the same aggregates no matter how many passes produced that evidence, so
// re-runs over unchanged text are idempotent.
func (e *Entity) ResetEvidence() {
	e.Confidence = 0
	e.MentionCount = 0
	e.FirstMention = nil
	e.LastMention = nil
}

// Validate checks entity invariants.
func (e *Entity) Validate() error {
	if e.ProjectID == "" {
		return fmt.Errorf("%w: project ID is required", ErrInvalidInput)
	}
	if e.Name == "" {
		return fmt.Errorf("%w: entity name cannot be empty", ErrInvalidInput)
	}
	if !ValidEntityType(e.Type) {
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, e.Type)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: confidence %f outside [0,1]", ErrInvalidInput, e.Confidence)
	}
	return nil
}

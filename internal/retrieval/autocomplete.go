package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/storyloom/narrative-mcp/internal/storage"
	"github.com/storyloom/narrative-mcp/pkg/types"
)

// DefaultSuggestionLimit is the number of autocomplete suggestions returned
// when a request does not specify a limit.
const DefaultSuggestionLimit = 10

// Suggestion is a single autocomplete candidate.
type Suggestion struct {
	EntityID     string
	Name         string
	Type         types.EntityType
	MentionCount int
}

// Autocomplete returns entity-name suggestions matching the given partial
// input. Names whose canonical form or alias starts with the input rank
// before bare substring matches; within each group suggestions are ordered
// by mention count, then name.
func (e *Engine) Autocomplete(ctx context.Context, projectID, partial string, limit int) ([]Suggestion, error) {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return nil, fmt.Errorf("%w: autocomplete input cannot be empty", types.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	// Over-fetch so prefix matches buried behind high-mention substring
	// matches still surface.
	entities, err := e.store.ListEntities(ctx, projectID, &storage.EntityFilter{
		NamePattern: partial,
		Limit:       limit * 4,
	})
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	lowered := strings.ToLower(partial)
	type scored struct {
		suggestion Suggestion
		prefix     bool
	}
	matches := make([]scored, 0, len(entities))
	for _, ent := range entities {
		matches = append(matches, scored{
			suggestion: Suggestion{
				EntityID:     ent.ID,
				Name:         ent.Name,
				Type:         ent.Type,
				MentionCount: ent.MentionCount,
			},
			prefix: hasPrefixMatch(ent, lowered),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].prefix != matches[j].prefix {
			return matches[i].prefix
		}
		if matches[i].suggestion.MentionCount != matches[j].suggestion.MentionCount {
			return matches[i].suggestion.MentionCount > matches[j].suggestion.MentionCount
		}
		return matches[i].suggestion.Name < matches[j].suggestion.Name
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	suggestions := make([]Suggestion, len(matches))
	for i, m := range matches {
		suggestions[i] = m.suggestion
	}
	return suggestions, nil
}

// hasPrefixMatch reports whether the entity's canonical name or any alias
// starts with the lowercased partial input.
func hasPrefixMatch(ent *types.Entity, lowered string) bool {
	if strings.HasPrefix(strings.ToLower(ent.Name), lowered) {
		return true
	}
	for _, alias := range ent.Aliases {
		if strings.HasPrefix(strings.ToLower(alias), lowered) {
			return true
		}
	}
	return false
}

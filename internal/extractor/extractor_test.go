package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/narrative-mcp/pkg/types"
)

// scriptedModel returns canned spans per call, or an error for designated
// chunks.
type scriptedModel struct {
	spans   map[string][]Span // keyed by chunk content
	failOn string
}

func (m *scriptedModel) ExtractEntities(_ context.Context, text string) ([]Span, error) {
	if m.failOn != "" && text == m.failOn {
		return nil, errors.New("model unavailable")
	}
	return m.spans[text], nil
}

func chunkOf(fileID string, index, start int, content string) *types.Chunk {
	c := &types.Chunk{
		ProjectID: "p1",
		FileID:    fileID,
		Index:     index,
		Content:   content,
		StartPos:  start,
		EndPos:    start + len([]rune(content)),
	}
	c.ComputeWordCount()
	c.ComputeContentHash()
	return c
}

func TestExtractFromChunks_ThresholdAndDedup(t *testing.T) {
	c1 := chunkOf("f1", 0, 0, "Alice walked north. Alice sang.")
	c2 := chunkOf("f1", 1, 100, "Ghost appeared once.")

	model := &scriptedModel{spans: map[string][]Span{
		c1.Content: {
			{Label: LabelPerson, Text: "Alice", StartPos: 0},
			{Label: LabelPerson, Text: "alice", StartPos: 20},
		},
		c2.Content: {
			{Label: LabelPerson, Text: "Ghost", StartPos: 0},
		},
	}}

	ex := New(model, Config{MinMentions: 2})
	res, err := ex.ExtractFromChunks(context.Background(), "p1", []*types.Chunk{c1, c2}, nil)
	require.NoError(t, err)

	// "Alice" has two case-insensitive mentions and materializes; "Ghost"
	// stays below the threshold.
	require.Len(t, res.Entities, 1)
	ent := res.Entities[0]
	assert.Equal(t, "Alice", ent.Name)
	assert.Equal(t, types.EntityCharacter, ent.Type)
	assert.Equal(t, 2, ent.MentionCount)
	assert.Equal(t, 1, res.BelowThreshold)
	require.NotNil(t, ent.FirstMention)
	assert.Equal(t, 0, ent.FirstMention.CharPos)
	assert.Equal(t, 20, ent.LastMention.CharPos)
}

func TestExtractFromChunks_AliasFolding(t *testing.T) {
	c1 := chunkOf("f1", 0, 0, "John slept. Johnny woke.")

	model := &scriptedModel{spans: map[string][]Span{
		c1.Content: {
			{Label: LabelPerson, Text: "John", StartPos: 0},
			{Label: LabelPerson, Text: "Johnny", StartPos: 12},
		},
	}}

	ex := New(model, Config{
		MinMentions: 2,
		AliasGroups: map[string][]string{"John": {"Johnny"}},
	})
	res, err := ex.ExtractFromChunks(context.Background(), "p1", []*types.Chunk{c1}, nil)
	require.NoError(t, err)

	// Both mentions fold into one entity, never two records.
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "John", res.Entities[0].Name)
	assert.Equal(t, 2, res.Entities[0].MentionCount)
}

func TestExtractFromChunks_RebuildsExistingAggregates(t *testing.T) {
	existing := &types.Entity{
		ID: "e1", ProjectID: "p1", Type: types.EntityCharacter, Name: "Alice",
		Confidence: 0.6, MentionCount: 3,
		FirstMention: &types.Mention{FileID: "f0", CharPos: 5, Confidence: 0.6},
	}

	c1 := chunkOf("f2", 0, 50, "Alice returned at last.")
	model := &scriptedModel{spans: map[string][]Span{
		c1.Content: {{Label: LabelPerson, Text: "Alice", StartPos: 0}},
	}}

	ex := New(model, Config{MinMentions: 2})
	res, err := ex.ExtractFromChunks(context.Background(), "p1", []*types.Chunk{c1}, []*types.Entity{existing})
	require.NoError(t, err)

	// The chunk set is the full current evidence. The existing entity keeps
	// its identity but its aggregates are rebuilt from the one mention the
	// set actually contains, even though that alone is under the
	// materialization threshold.
	require.Len(t, res.Entities, 1)
	ent := res.Entities[0]
	assert.Equal(t, "e1", ent.ID)
	assert.Equal(t, 1, ent.MentionCount)
	assert.Equal(t, "f2", ent.FirstMention.FileID)
}

func TestExtractFromChunks_RepeatRunsIdempotent(t *testing.T) {
	c1 := chunkOf("f1", 0, 0, "Alice spoke. Alice left. Alice slept.")
	model := &scriptedModel{spans: map[string][]Span{
		c1.Content: {
			{Label: LabelPerson, Text: "Alice", StartPos: 0},
			{Label: LabelPerson, Text: "Alice", StartPos: 13},
			{Label: LabelPerson, Text: "Alice", StartPos: 25},
		},
	}}

	ex := New(model, Config{MinMentions: 2})
	first, err := ex.ExtractFromChunks(context.Background(), "p1", []*types.Chunk{c1}, nil)
	require.NoError(t, err)
	require.Len(t, first.Entities, 1)
	wantCount := first.Entities[0].MentionCount
	wantConfidence := first.Entities[0].Confidence

	// Re-running over the identical chunk set must not double the counts.
	second, err := ex.ExtractFromChunks(context.Background(), "p1", []*types.Chunk{c1}, first.Entities)
	require.NoError(t, err)
	require.Len(t, second.Entities, 1)
	assert.Equal(t, wantCount, second.Entities[0].MentionCount)
	assert.Equal(t, wantConfidence, second.Entities[0].Confidence)
}

func TestExtractFromChunks_ThresholdCountsAcrossFiles(t *testing.T) {
	a := chunkOf("f1", 0, 0, "Mirelle waited by the door.")
	b := chunkOf("f2", 0, 0, "Mirelle answered softly.")
	model := &scriptedModel{spans: map[string][]Span{
		a.Content: {{Label: LabelPerson, Text: "Mirelle", StartPos: 0}},
		b.Content: {{Label: LabelPerson, Text: "Mirelle", StartPos: 0}},
	}}

	ex := New(model, Config{MinMentions: 2})

	// One file alone leaves the name under the threshold.
	res, err := ex.ExtractFromChunks(context.Background(), "p1", []*types.Chunk{a}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
	assert.Equal(t, 1, res.BelowThreshold)

	// The full project set spans both files and clears it.
	res, err = ex.ExtractFromChunks(context.Background(), "p1", []*types.Chunk{a, b}, nil)
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, 2, res.Entities[0].MentionCount)
}

func TestExtractFromChunks_PartialFailureTolerated(t *testing.T) {
	good := chunkOf("f1", 0, 0, "Alice spoke. Alice left.")
	bad := chunkOf("f1", 1, 200, "this chunk breaks the model")

	model := &scriptedModel{
		spans: map[string][]Span{
			good.Content: {
				{Label: LabelPerson, Text: "Alice", StartPos: 0},
				{Label: LabelPerson, Text: "Alice", StartPos: 13},
			},
		},
		failOn: bad.Content,
	}

	ex := New(model, Config{MinMentions: 2})
	res, err := ex.ExtractFromChunks(context.Background(), "p1", []*types.Chunk{bad, good}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.FailedChunks)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "Alice", res.Entities[0].Name)
}

func TestExtractFromChunks_RejectsFalsePositives(t *testing.T) {
	c1 := chunkOf("f1", 0, 0, "She ran. Don't stop.")
	model := &scriptedModel{spans: map[string][]Span{
		c1.Content: {
			{Label: LabelPerson, Text: "She", StartPos: 0},
			{Label: LabelPerson, Text: "Don't", StartPos: 9},
		},
	}}

	ex := New(model, Config{MinMentions: 1})
	res, err := ex.ExtractFromChunks(context.Background(), "p1", []*types.Chunk{c1}, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Entities)
	assert.Equal(t, 2, res.Rejected)
}

func TestHeuristicModel_ProposesCapitalizedSpans(t *testing.T) {
	m := NewHeuristicModel()

	spans, err := m.ExtractEntities(context.Background(), "At dawn Alice rode toward the Ashen Kingdom.")
	require.NoError(t, err)

	var surfaces []string
	for _, s := range spans {
		surfaces = append(surfaces, s.Text)
	}
	assert.Contains(t, surfaces, "Alice")
	assert.Contains(t, surfaces, "Ashen Kingdom")

	for _, s := range spans {
		if s.Text == "Ashen Kingdom" {
			assert.Equal(t, LabelLocation, s.Label)
		}
	}
}

func TestHeuristicModel_EmptyInput(t *testing.T) {
	m := NewHeuristicModel()
	_, err := m.ExtractEntities(context.Background(), "   ")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

package graph

import (
	"context"
	"fmt"

	"github.com/storyloom/narrative-mcp/internal/storage"
	"github.com/storyloom/narrative-mcp/pkg/types"
)

// DefaultNetworkDepth bounds traversal when the caller does not specify one.
const DefaultNetworkDepth = 2

// Network builds the bounded-depth relationship network around one entity.
// Traversal is breadth-first over edges at or above minStrength; each node is
// annotated with its distance from the origin, and an entity is visited at
// its shallowest depth only.
func Network(ctx context.Context, store storage.Store, entityID string, maxDepth int, minStrength float64) (*types.EntityNetwork, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultNetworkDepth
	}

	origin, err := store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load network origin: %w", err)
	}

	network := &types.EntityNetwork{
		Nodes: []types.NetworkNode{{
			EntityID: origin.ID,
			Name:     origin.Name,
			Type:     origin.Type,
			Depth:    0,
		}},
	}

	visited := map[string]bool{origin.ID: true}
	seenEdges := make(map[string]bool)
	frontier := []string{origin.ID}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string

		for _, id := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			rels, err := store.ListRelationshipsByEntity(ctx, id, minStrength)
			if err != nil {
				return nil, fmt.Errorf("failed to expand entity %s: %w", id, err)
			}

			for _, rel := range rels {
				edgeKey := rel.SourceEntityID + "\x00" + rel.TargetEntityID
				if !seenEdges[edgeKey] {
					seenEdges[edgeKey] = true
					network.Edges = append(network.Edges, types.NetworkEdge{
						SourceEntityID: rel.SourceEntityID,
						TargetEntityID: rel.TargetEntityID,
						Type:           rel.Type,
						Strength:       rel.Strength,
					})
				}

				neighbor := rel.TargetEntityID
				if neighbor == id {
					neighbor = rel.SourceEntityID
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true

				entity, err := store.GetEntity(ctx, neighbor)
				if err != nil {
					return nil, fmt.Errorf("failed to load network node %s: %w", neighbor, err)
				}
				network.Nodes = append(network.Nodes, types.NetworkNode{
					EntityID: entity.ID,
					Name:     entity.Name,
					Type:     entity.Type,
					Depth:    depth,
				})
				next = append(next, neighbor)
			}
		}

		frontier = next
	}

	return network, nil
}

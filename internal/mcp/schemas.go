package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexManuscriptTool returns the tool definition for index_manuscript
func indexManuscriptTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_manuscript",
		Description: "Index a manuscript file: segment into chunks, scenes and lines, embed, extract entities, and discover relationships. Returns a task id to poll.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Stable identifier of the manuscript project",
				},
				"file_id": map[string]interface{}{
					"type":        "string",
					"description": "Stable identifier of the file within the project",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Full manuscript text to index",
				},
			},
			Required: []string{"project_id", "file_id", "text"},
		},
	}
}

// getTaskStatusTool returns the tool definition for get_task_status
func getTaskStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_task_status",
		Description: "Query the status, progress, and result of an indexing task",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Task id returned by index_manuscript",
				},
			},
			Required: []string{"task_id"},
		},
	}
}

// searchNarrativeTool returns the tool definition for search_narrative
func searchNarrativeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_narrative",
		Description: "Search indexed manuscripts with semantic, keyword, or hybrid retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_ids": map[string]interface{}{
					"type":        "array",
					"description": "Projects to search",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or exact phrase)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (semantic + keyword boost), semantic (vector only), or keyword (substring only)",
					"enum":        []string{"hybrid", "semantic", "keyword"},
					"default":     "hybrid",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of results to skip, for pagination",
					"default":     0,
					"minimum":     0,
				},
				"file_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one file",
				},
				"min_relevance": map[string]interface{}{
					"type":        "number",
					"description": "Minimum relevance score threshold (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"project_ids", "query"},
		},
	}
}

// getEntityNetworkTool returns the tool definition for get_entity_network
func getEntityNetworkTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_entity_network",
		Description: "Traverse the relationship graph around an entity, bounded by depth and minimum strength",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"entity_id": map[string]interface{}{
					"type":        "string",
					"description": "Origin entity id",
				},
				"max_depth": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum traversal depth from the origin",
					"default":     2,
					"minimum":     1,
				},
				"min_strength": map[string]interface{}{
					"type":        "number",
					"description": "Minimum relationship strength to follow (0.0-1.0)",
					"default":     0.0,
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"entity_id"},
		},
	}
}

// getProjectStatisticsTool returns the tool definition for get_project_statistics
func getProjectStatisticsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_project_statistics",
		Description: "Query index counts and task aggregates for a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Project to report on",
				},
			},
			Required: []string{"project_id"},
		},
	}
}

// assembleContextTool returns the tool definition for assemble_context
func assembleContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "assemble_context",
		Description: "Assemble retrieval context for a query: top-ranked passages plus the entities they mention, for an external prompting layer",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_ids": map[string]interface{}{
					"type":        "array",
					"description": "Projects to draw context from",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What the context should be about",
				},
				"max_chunks": map[string]interface{}{
					"type":        "integer",
					"description": "Passage budget",
					"default":     8,
					"minimum":     1,
				},
				"max_entities": map[string]interface{}{
					"type":        "integer",
					"description": "Entity summary budget",
					"default":     12,
					"minimum":     0,
				},
			},
			Required: []string{"project_ids", "query"},
		},
	}
}

// autocompleteEntitiesTool returns the tool definition for autocomplete_entities
func autocompleteEntitiesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "autocomplete_entities",
		Description: "Suggest entity names matching a partial input, ranked by mention count",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Project whose entities to suggest from",
				},
				"partial": map[string]interface{}{
					"type":        "string",
					"description": "Partial entity name",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of suggestions (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"project_id", "partial"},
		},
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/storyloom/narrative-mcp/internal/graph"
	"github.com/storyloom/narrative-mcp/internal/retrieval"
	"github.com/storyloom/narrative-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound      = -32001 // Referenced task, entity, or project does not exist
	ErrorCodeTaskConflict  = -32002 // Another pipeline run is already active for this slot
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
)

const timeFormat = "2006-01-02T15:04:05Z07:00"

// handleIndexManuscript handles the index_manuscript tool invocation
func (s *Server) handleIndexManuscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return nil, missingParam("project_id")
	}
	fileID, ok := args["file_id"].(string)
	if !ok || fileID == "" {
		return nil, missingParam("file_id")
	}
	text, ok := args["text"].(string)
	if !ok || text == "" {
		return nil, missingParam("text")
	}

	task, err := s.orchestrator.IndexFile(ctx, projectID, fileID, text)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrTaskConflict):
			return nil, newMCPError(ErrorCodeTaskConflict, "an indexing run is already active for this project", map[string]interface{}{
				"error": err.Error(),
			})
		case errors.Is(err, types.ErrInvalidInput):
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid input", map[string]interface{}{
				"error": err.Error(),
			})
		default:
			return nil, newMCPError(ErrorCodeInternalError, "failed to start indexing", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	response := map[string]interface{}{
		"task_id":    task.ID,
		"project_id": task.ProjectID,
		"file_id":    task.FileID,
		"status":     string(task.Status),
		"created_at": task.CreatedAt.Format(timeFormat),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetTaskStatus handles the get_task_status tool invocation
func (s *Server) handleGetTaskStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return nil, missingParam("task_id")
	}

	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotFound, "task not found", map[string]interface{}{
			"task_id": taskID,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load task", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"task_id":    task.ID,
		"project_id": task.ProjectID,
		"file_id":    task.FileID,
		"type":       string(task.Type),
		"status":     string(task.Status),
		"progress": map[string]interface{}{
			"current": task.Progress.Current,
			"total":   task.Progress.Total,
			"message": task.Progress.Message,
		},
		"created_at": task.CreatedAt.Format(timeFormat),
	}
	if task.StartedAt != nil {
		response["started_at"] = task.StartedAt.Format(timeFormat)
	}
	if task.CompletedAt != nil {
		response["completed_at"] = task.CompletedAt.Format(timeFormat)
	}
	if task.Error != "" {
		response["error"] = task.Error
	}
	if task.Result != nil {
		response["result"] = map[string]interface{}{
			"chunks_created":      task.Result.ChunksCreated,
			"entities_extracted":  task.Result.EntitiesExtracted,
			"relationships_found": task.Result.RelationshipsFound,
			"lines_indexed":       task.Result.LinesIndexed,
			"scenes_detected":     task.Result.ScenesDetected,
			"skipped_units":       task.Result.SkippedUnits,
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchNarrative handles the search_narrative tool invocation
func (s *Server) handleSearchNarrative(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectIDs := getStringList(args, "project_ids")
	if len(projectIDs) == 0 {
		return nil, missingParam("project_ids")
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	mode := getStringDefault(args, "mode", string(retrieval.SearchModeHybrid))
	switch retrieval.SearchMode(mode) {
	case retrieval.SearchModeSemantic, retrieval.SearchModeKeyword, retrieval.SearchModeHybrid:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   mode,
			"allowed": []string{"hybrid", "semantic", "keyword"},
		})
	}

	limit := getIntDefault(args, "limit", retrieval.DefaultLimit)
	if limit < 1 || limit > retrieval.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	offset := getIntDefault(args, "offset", 0)
	minRelevance, _ := args["min_relevance"].(float64)
	fileID := getStringDefault(args, "file_id", "")

	resp, err := s.retrieval.Search(ctx, retrieval.SearchRequest{
		ProjectIDs:   projectIDs,
		Query:        query,
		Mode:         retrieval.SearchMode(mode),
		Limit:        limit,
		Offset:       offset,
		FileID:       fileID,
		MinRelevance: minRelevance,
		UseCache:     true,
	})
	if err != nil {
		if errors.Is(err, types.ErrInvalidInput) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid search request", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"chunk_id":         r.ChunkID,
			"rank":             r.Rank,
			"similarity_score": r.SimilarityScore,
			"relevance_score":  r.RelevanceScore,
			"project_id":       r.ProjectID,
			"file_id":          r.FileID,
			"chunk_index":      r.Index,
			"content":          r.Content,
		}
	}
	response := map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"mode":          string(resp.Mode),
		"duration_ms":   resp.Duration.Milliseconds(),
		"cache_hit":     resp.CacheHit,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetEntityNetwork handles the get_entity_network tool invocation
func (s *Server) handleGetEntityNetwork(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	entityID, ok := args["entity_id"].(string)
	if !ok || entityID == "" {
		return nil, missingParam("entity_id")
	}
	maxDepth := getIntDefault(args, "max_depth", graph.DefaultNetworkDepth)
	minStrength, _ := args["min_strength"].(float64)

	network, err := graph.Network(ctx, s.store, entityID, maxDepth, minStrength)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, newMCPError(ErrorCodeNotFound, "entity not found", map[string]interface{}{
				"entity_id": entityID,
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "network traversal failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	nodes := make([]map[string]interface{}, len(network.Nodes))
	for i, n := range network.Nodes {
		nodes[i] = map[string]interface{}{
			"entity_id": n.EntityID,
			"name":      n.Name,
			"type":      string(n.Type),
			"depth":     n.Depth,
		}
	}
	edges := make([]map[string]interface{}, len(network.Edges))
	for i, e := range network.Edges {
		edges[i] = map[string]interface{}{
			"source_entity_id": e.SourceEntityID,
			"target_entity_id": e.TargetEntityID,
			"type":             string(e.Type),
			"strength":         e.Strength,
		}
	}
	response := map[string]interface{}{
		"nodes": nodes,
		"edges": edges,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetProjectStatistics handles the get_project_statistics tool invocation
func (s *Server) handleGetProjectStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return nil, missingParam("project_id")
	}

	stats, err := s.orchestrator.ProjectStatistics(ctx, projectID)
	if errors.Is(err, types.ErrNotFound) {
		response := map[string]interface{}{
			"indexed":    false,
			"project_id": projectID,
			"message":    "Project not indexed. Use index_manuscript to index a file first.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load statistics", map[string]interface{}{
			"error": err.Error(),
		})
	}

	tasksByStatus := make(map[string]interface{}, len(stats.TasksByStatus))
	for status, count := range stats.TasksByStatus {
		tasksByStatus[string(status)] = count
	}

	project := stats.Counts.Project
	response := map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"project_id":      project.ID,
			"name":            project.Name,
			"last_indexed_at": project.LastIndexedAt.Format(timeFormat),
		},
		"counts": map[string]interface{}{
			"files":         stats.Counts.FilesCount,
			"chunks":        stats.Counts.ChunksCount,
			"lines":         stats.Counts.LinesCount,
			"scenes":        stats.Counts.ScenesCount,
			"entities":      stats.Counts.EntitiesCount,
			"relationships": stats.Counts.RelationshipsCount,
			"embeddings":    stats.Counts.EmbeddingsCount,
			"index_size_mb": fmt.Sprintf("%.2f", stats.Counts.IndexSizeMB),
		},
		"tasks": map[string]interface{}{
			"by_status":                 tasksByStatus,
			"avg_completed_duration_ms": stats.AvgCompletedDuration.Milliseconds(),
			"stalled":                   stats.StalledTasks,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAssembleContext handles the assemble_context tool invocation
func (s *Server) handleAssembleContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectIDs := getStringList(args, "project_ids")
	if len(projectIDs) == 0 {
		return nil, missingParam("project_ids")
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	assembled, err := s.retrieval.AssembleContext(ctx, retrieval.ContextRequest{
		ProjectIDs:  projectIDs,
		Query:       query,
		MaxChunks:   getIntDefault(args, "max_chunks", retrieval.DefaultContextChunks),
		MaxEntities: getIntDefault(args, "max_entities", retrieval.DefaultContextEntities),
	})
	if err != nil {
		if errors.Is(err, types.ErrInvalidInput) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid context request", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "context assembly failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	chunks := make([]map[string]interface{}, len(assembled.Chunks))
	for i, c := range assembled.Chunks {
		chunks[i] = map[string]interface{}{
			"chunk_id":        c.ChunkID,
			"rank":            c.Rank,
			"relevance_score": c.RelevanceScore,
			"project_id":      c.ProjectID,
			"file_id":         c.FileID,
			"content":         c.Content,
		}
	}
	entities := make([]map[string]interface{}, len(assembled.Entities))
	for i, e := range assembled.Entities {
		entities[i] = map[string]interface{}{
			"entity_id":     e.ID,
			"name":          e.Name,
			"type":          string(e.Type),
			"aliases":       e.Aliases,
			"mention_count": e.MentionCount,
			"confidence":    e.Confidence,
		}
	}
	response := map[string]interface{}{
		"chunks":   chunks,
		"entities": entities,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAutocompleteEntities handles the autocomplete_entities tool invocation
func (s *Server) handleAutocompleteEntities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return nil, missingParam("project_id")
	}
	partial, ok := args["partial"].(string)
	if !ok || partial == "" {
		return nil, missingParam("partial")
	}

	suggestions, err := s.retrieval.Autocomplete(ctx, projectID, partial, getIntDefault(args, "limit", retrieval.DefaultSuggestionLimit))
	if err != nil {
		if errors.Is(err, types.ErrInvalidInput) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid autocomplete request", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "autocomplete failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	out := make([]map[string]interface{}, len(suggestions))
	for i, sg := range suggestions {
		out[i] = map[string]interface{}{
			"entity_id":     sg.EntityID,
			"name":          sg.Name,
			"type":          string(sg.Type),
			"mention_count": sg.MentionCount,
		}
	}
	response := map[string]interface{}{
		"suggestions": out,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// missingParam builds the invalid-params error for a required parameter.
func missingParam(name string) error {
	return newMCPError(ErrorCodeInvalidParams, name+" parameter is required", map[string]interface{}{
		"param":  name,
		"reason": "missing or empty",
	})
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getStringList extracts a []string parameter
func getStringList(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

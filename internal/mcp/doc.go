// Package mcp exposes the narrative indexing and retrieval engine as MCP
// tools over stdio.
//
// # Tools
//
//   - index_manuscript: start the full pipeline for one file, returns a task id
//   - get_task_status: poll a task's status, progress, and result summary
//   - search_narrative: semantic, keyword, or hybrid chunk search
//   - get_entity_network: bounded BFS over the relationship graph
//   - get_project_statistics: index counts and task aggregates
//   - assemble_context: ranked passages plus mentioned entities for prompting
//   - autocomplete_entities: entity-name suggestions for a partial input
//
// # Server Lifecycle
//
//	server, err := mcp.NewServer(dbPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := server.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// NewServer wires storage, a shared embedder, the orchestrator, and the
// retrieval engine; Serve blocks on stdio until the client disconnects.
//
// # Error Codes
//
// Handlers return JSON-RPC errors with domain codes: -32602 invalid params,
// -32603 internal, -32001 not found, -32002 task conflict, -32004 empty
// query. Tool payloads are indented JSON in a single text content block.
package mcp

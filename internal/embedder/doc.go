// Package embedder generates vector embeddings for narrative chunks using
// pluggable providers.
//
// The embedder supports OpenAI and a deterministic local provider, and adds
// batching, LRU caching, and retry with exponential backoff on top.
//
// # Basic Usage
//
//	// Create embedder (auto-detects provider from environment)
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: chunk.Content,
//	})
//
// # Batch Processing
//
// Indexing pipelines should batch instead of looping single requests:
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: texts,
//	})
//
// Output order matches input order, so resp.Embeddings[i] belongs to
// texts[i].
//
// # Provider Selection
//
//  1. If NARRATIVE_EMBEDDING_PROVIDER is set, use the specified provider
//  2. Else if OPENAI_API_KEY is set, use OpenAI
//  3. Else fall back to the local provider (offline mode)
//
// The local provider produces deterministic hash-derived unit vectors.
// Identical text always yields an identical vector, which keeps result
// ordering reproducible without a network dependency.
//
// # Caching
//
// Embeddings are cached in-memory by a hash of whitespace-normalized text,
// so re-indexing unchanged chunks never re-calls the provider. A cache hit
// returns a vector bit-identical to the one originally generated.
//
// # Error Handling
//
// Transient provider failures are retried with exponential backoff.
// Exhausted retries surface as types.ErrDependencyUnavailable; malformed
// requests surface as types.ErrInvalidInput before any provider call.
package embedder

// Package embedding converts text chunks and queries into fixed-dimension
// vectors. Two implementations exist: an external worker process and an
// OpenAI-compatible API client, selected by configuration.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when the embedding backend fails or returns a
// vector count that does not match the input count. The whole batch fails;
// no partial embeddings are ever returned.
var ErrEmbedding = errors.New("embedding failed")

// Embedder generates embedding vectors. Embed must return exactly one
// vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

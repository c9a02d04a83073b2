package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// embedBatchSize caps the number of inputs sent per API request.
const embedBatchSize = 64

// OpenAIEmbedder calls the embeddings endpoint of an OpenAI-compatible API
// in-process, batching large inputs across bounded-concurrency requests.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an OpenAIEmbedder against the given base URL.
func NewOpenAIEmbedder(baseURL, apiKey, model string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the endpoint.

	for start := 0; start < len(texts); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		g.Go(func() error {
			resp, err := e.client.CreateEmbeddings(gCtx, openai.EmbeddingRequest{
				Input: batch,
				Model: openai.EmbeddingModel(e.model),
			})
			if err != nil {
				return fmt.Errorf("%w: embeddings request: %v", ErrEmbedding, err)
			}
			if len(resp.Data) != len(batch) {
				return fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbedding, len(resp.Data), len(batch))
			}
			for _, d := range resp.Data {
				if d.Index < 0 || d.Index >= len(batch) {
					return fmt.Errorf("%w: vector index %d out of range", ErrEmbedding, d.Index)
				}
				results[start+d.Index] = d.Embedding
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// EmbedQuery embeds a single query text with the same model.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

package search

import (
	"context"
	"fmt"
	"log/slog"

	"docvault/internal/storage"
	"docvault/internal/vecstore"
)

// DefaultTopK is how many chunks retrieval hands to the re-ranker.
const DefaultTopK = 10

// TextGenerator produces a completion for a prompt. Satisfied by
// llm.Retrier and llm.OpenAIGenerator.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the retrieval side of vecstore.Store.
type VectorIndex interface {
	Query(ctx context.Context, ownerID string, vector []float32, topK int) ([]vecstore.ScoredRecord, error)
}

// DocumentCatalog lists a user's documents, most recent first.
type DocumentCatalog interface {
	ListDocuments(ownerID string) ([]storage.Document, error)
}

// Result is the outcome of one search: the answer plus the passages it is
// grounded on. Sources is nil when nothing relevant was found.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Service wires the pipeline stages together.
type Service struct {
	embedder    QueryEmbedder
	index       VectorIndex
	catalog     DocumentCatalog
	analyzer    *Analyzer
	reranker    *Reranker
	synthesizer *Synthesizer
	topK        int
}

// NewService builds the pipeline. gen should already wrap retries.
// topK <= 0 falls back to DefaultTopK.
func NewService(embedder QueryEmbedder, index VectorIndex, catalog DocumentCatalog, gen TextGenerator, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		embedder:    embedder,
		index:       index,
		catalog:     catalog,
		analyzer:    NewAnalyzer(gen),
		reranker:    NewReranker(gen),
		synthesizer: NewSynthesizer(gen),
		topK:        topK,
	}
}

// Search answers question over ownerID's documents. history is the prior
// conversation, oldest first; the caller owns and persists it.
//
// When retrieval finds nothing the method short-circuits: no re-ranking,
// no synthesis, just the refusal answer with nil sources.
func (s *Service) Search(ctx context.Context, ownerID, question string, history []Turn) (Result, error) {
	docs, err := s.catalog.ListDocuments(ownerID)
	if err != nil {
		return Result{}, fmt.Errorf("listing documents for analysis: %w", err)
	}
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}

	query := question
	if len(history) > 0 || len(names) > 0 {
		query, err = s.analyzer.Analyze(ctx, question, history, names)
		if err != nil {
			return Result{}, err
		}
		if query != question {
			slog.Debug("rewrote question", "original", question, "rewritten", query)
		}
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}

	records, err := s.index.Query(ctx, ownerID, vector, s.topK)
	if err != nil {
		return Result{}, fmt.Errorf("retrieving chunks: %w", err)
	}
	if len(records) == 0 {
		return Result{Answer: NotFoundAnswer}, nil
	}

	passages := make([]string, len(records))
	for i, r := range records {
		passages[i] = r.Text
	}

	// The rewrite is for embedding similarity only; the generative stages
	// see the user's own wording.
	indexes, err := s.reranker.Rerank(ctx, question, passages)
	if err != nil {
		return Result{}, err
	}

	sources := make([]Source, 0, len(indexes))
	for _, idx := range indexes {
		r := records[idx]
		sources = append(sources, Source{
			Text:         r.Text,
			DocumentID:   r.DocumentID,
			DocumentName: r.DocumentName,
			PageNumber:   r.PageNumber,
		})
	}

	answer, err := s.synthesizer.Synthesize(ctx, question, sources)
	if err != nil {
		return Result{}, err
	}

	return Result{Answer: answer, Sources: sources}, nil
}

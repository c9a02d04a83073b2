package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const fallbackKeep = 3

const rerankPromptTemplate = `You are re-ranking search results. Below is a question and a numbered list of text passages. Pick the passages that actually help answer the question and return ONLY a JSON array of their numbers, best first, e.g. [2, 0]. Return [] if none are relevant. No other text.`

// Reranker asks the generative model to order retrieved passages by
// relevance to the question.
type Reranker struct {
	gen TextGenerator
}

func NewReranker(gen TextGenerator) *Reranker {
	return &Reranker{gen: gen}
}

// Rerank returns the indexes into passages the model considers relevant,
// in the model's order. Indexes outside [0, len(passages)) are dropped.
// An unparseable response falls back to the first min(3, n) passages in
// their retrieval order; the pipeline never fails on a malformed ranking.
func (r *Reranker) Rerank(ctx context.Context, question string, passages []string) ([]int, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(rerankPromptTemplate)
	fmt.Fprintf(&sb, "\n\nQuestion: %s\n\nPassages:\n", question)
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n", i, p)
	}

	out, err := r.gen.Complete(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("re-ranking passages: %w", err)
	}

	indexes, err := parseIndexes(out, len(passages))
	if err != nil {
		slog.Warn("reranker: unparseable ranking, falling back to retrieval order",
			"response", out, "error", err)
		return fallbackIndexes(len(passages)), nil
	}
	if len(indexes) == 0 {
		// Retrieval already found matches; an empty ranking loses them all.
		return fallbackIndexes(len(passages)), nil
	}
	return indexes, nil
}

// parseIndexes extracts the first bracketed JSON array from resp. Models
// often wrap the array in prose or markdown fences, so everything outside
// the outermost brackets is ignored.
func parseIndexes(resp string, n int) ([]int, error) {
	start := strings.Index(resp, "[")
	end := strings.LastIndex(resp, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var raw []int
	if err := json.Unmarshal([]byte(resp[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decoding index array: %w", err)
	}

	indexes := make([]int, 0, len(raw))
	for _, idx := range raw {
		if idx < 0 || idx >= n {
			continue
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func fallbackIndexes(n int) []int {
	if n > fallbackKeep {
		n = fallbackKeep
	}
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	return indexes
}

// Package search runs the question answering pipeline: query analysis,
// retrieval, re-ranking and answer synthesis over a user's documents.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Turn is one prior message of the conversation, owned by the caller.
// Sender is "user" or "assistant".
type Turn struct {
	Sender string
	Text   string
}

const analyzePromptTemplate = `You rewrite search questions to be self-contained. The user is searching their own uploaded documents. Using the conversation history and the document list, rewrite the question so it can be understood without any context. Resolve references like "it", "that document" or "the last file" to concrete document names. If the question is already self-contained, return it unchanged. Return ONLY the rewritten question, no prose, no quotes.`

// Analyzer rewrites follow-up questions into standalone ones so that
// embedding-based retrieval sees the full intent.
type Analyzer struct {
	gen TextGenerator
}

// NewAnalyzer builds an Analyzer on top of a text generator, usually a
// retrying one.
func NewAnalyzer(gen TextGenerator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Analyze returns a standalone rewrite of question. catalog lists the
// user's document names, most recent first, so "the last document" resolves
// to catalog[0]. Both history and catalog may be empty.
func (a *Analyzer) Analyze(ctx context.Context, question string, history []Turn, catalog []string) (string, error) {
	var sb strings.Builder
	sb.WriteString(analyzePromptTemplate)

	if len(catalog) > 0 {
		sb.WriteString("\n\nUser's documents, most recent first:\n")
		for _, name := range catalog {
			fmt.Fprintf(&sb, "- %s\n", name)
		}
	}

	if len(history) > 0 {
		sb.WriteString("\nConversation history:\n")
		for _, t := range history {
			fmt.Fprintf(&sb, "%s: %s\n", t.Sender, t.Text)
		}
	}

	fmt.Fprintf(&sb, "\nQuestion: %s", question)

	out, err := a.gen.Complete(ctx, sb.String())
	if err != nil {
		return "", fmt.Errorf("analyzing question: %w", err)
	}

	rewritten := strings.TrimSpace(out)
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

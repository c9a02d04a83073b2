package search

import (
	"context"
	"fmt"
	"strings"
)

// NotFoundAnswer is returned verbatim when retrieval yields nothing, and
// instructed as the refusal phrase when the sources don't cover the question.
const NotFoundAnswer = "I cannot find the answer in the provided documents."

const synthesizePromptTemplate = `Answer the question using ONLY the sources below. Every claim in your answer must be supported by a source. If the sources do not contain the answer, reply exactly: "` + NotFoundAnswer + `"`

// Source is one passage the answer is grounded on.
type Source struct {
	Text         string `json:"text"`
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName"`
	PageNumber   int    `json:"pageNumber"`
}

// Synthesizer produces the final grounded answer from re-ranked sources.
type Synthesizer struct {
	gen TextGenerator
}

func NewSynthesizer(gen TextGenerator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

// Synthesize answers question from the given sources. Each source is
// labeled with its document name and page so the model can cite them.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, sources []Source) (string, error) {
	var sb strings.Builder
	sb.WriteString(synthesizePromptTemplate)
	sb.WriteString("\n\nSources:\n")
	for i, src := range sources {
		fmt.Fprintf(&sb, "Source %d (%s, page %d): %s\n", i+1, src.DocumentName, src.PageNumber, src.Text)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s", question)

	out, err := s.gen.Complete(ctx, sb.String())
	if err != nil {
		return "", fmt.Errorf("synthesizing answer: %w", err)
	}
	return strings.TrimSpace(out), nil
}

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// ProcessEmbedder spawns an external worker process per batch. The protocol
// is line-oriented JSON: stdin receives a JSON array of strings, stdout must
// produce a JSON array of equal-length numeric vectors in input order.
// A non-zero exit or malformed output fails the whole batch.
type ProcessEmbedder struct {
	command []string
}

// NewProcessEmbedder creates a ProcessEmbedder running the given command
// (program plus arguments).
func NewProcessEmbedder(command []string) (*ProcessEmbedder, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("embedding worker command is empty")
	}
	return &ProcessEmbedder{command: command}, nil
}

// Embed serializes texts to the worker's stdin and parses its stdout.
func (e *ProcessEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling input: %v", ErrEmbedding, err)
	}

	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%w: worker: %v: %s", ErrEmbedding, err, detail)
		}
		return nil, fmt.Errorf("%w: worker: %v", ErrEmbedding, err)
	}

	var vectors [][]float32
	if err := json.Unmarshal(stdout.Bytes(), &vectors); err != nil {
		return nil, fmt.Errorf("%w: parsing worker output: %v", ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: worker returned %d vectors for %d inputs", ErrEmbedding, len(vectors), len(texts))
	}

	return vectors, nil
}

// EmbedQuery embeds a single query text.
func (e *ProcessEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

package embedding

import (
	"context"
	"errors"
	"testing"
)

func shWorker(script string) []string {
	return []string{"sh", "-c", script}
}

func TestProcessEmbedder_MatchingOutput(t *testing.T) {
	e, err := NewProcessEmbedder(shWorker(`cat >/dev/null; echo '[[0.1,0.2],[0.3,0.4]]'`))
	if err != nil {
		t.Fatal(err)
	}

	vectors, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if len(vectors[0]) != 2 || vectors[0][0] != 0.1 {
		t.Errorf("vectors[0] = %v, want [0.1 0.2]", vectors[0])
	}
}

func TestProcessEmbedder_CountMismatch(t *testing.T) {
	e, err := NewProcessEmbedder(shWorker(`cat >/dev/null; echo '[[0.1,0.2]]'`))
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Embed(context.Background(), []string{"first", "second"})
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("got %v, want ErrEmbedding on input/output count mismatch", err)
	}
}

func TestProcessEmbedder_NonZeroExit(t *testing.T) {
	e, err := NewProcessEmbedder(shWorker(`cat >/dev/null; echo boom >&2; exit 3`))
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Embed(context.Background(), []string{"text"})
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("got %v, want ErrEmbedding on worker failure", err)
	}
}

func TestProcessEmbedder_MalformedOutput(t *testing.T) {
	e, err := NewProcessEmbedder(shWorker(`cat >/dev/null; echo 'not json'`))
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Embed(context.Background(), []string{"text"})
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("got %v, want ErrEmbedding on malformed output", err)
	}
}

func TestProcessEmbedder_EmptyInput(t *testing.T) {
	// The worker must not even be spawned for an empty batch.
	e, err := NewProcessEmbedder([]string{"/does/not/exist"})
	if err != nil {
		t.Fatal(err)
	}

	vectors, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("got %v, want nil for empty input", vectors)
	}
}

func TestProcessEmbedder_EmptyCommand(t *testing.T) {
	if _, err := NewProcessEmbedder(nil); err == nil {
		t.Fatal("expected error for empty worker command")
	}
}

func TestProcessEmbedder_EmbedQuery(t *testing.T) {
	e, err := NewProcessEmbedder(shWorker(`cat >/dev/null; echo '[[1,2,3]]'`))
	if err != nil {
		t.Fatal(err)
	}

	vec, err := e.EmbedQuery(context.Background(), "what is alpha?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[2] != 3 {
		t.Errorf("vec = %v, want [1 2 3]", vec)
	}
}

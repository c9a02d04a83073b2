// Package vecstore persists chunk embeddings with their metadata and serves
// owner-scoped similarity search.
package vecstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is returned when the vector index backend cannot be
// reached or fails. Callers treat the enclosing operation as failed; no
// internal retries happen here.
var ErrUnavailable = errors.New("vector index unavailable")

// Record is one stored chunk embedding plus its metadata.
type Record struct {
	ID           string
	OwnerID      string
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	PageNumber   int
	Text         string
	Embedding    []float32
	CreatedAt    time.Time
}

// ScoredRecord is a Record with a cosine similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}

// Chunk is the per-chunk input to Upsert.
type Chunk struct {
	Index      int
	PageNumber int
	Text       string
	Vector     []float32
}

// Store is the interface for vector storage and similarity search backends.
// Every query is scoped to a single owner: returning another owner's
// records is a correctness violation, not just a privacy concern.
type Store interface {
	// Upsert writes one record per chunk. Re-upserting the same
	// (owner, document, chunk index) overwrites rather than duplicates.
	// Zero chunks is a valid no-op.
	Upsert(ctx context.Context, ownerID, documentID, documentName string, chunks []Chunk) error

	// Query returns the topK records owned by ownerID most similar to
	// vector, ranked by similarity descending.
	Query(ctx context.Context, ownerID string, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteDocument removes all records of one document owned by ownerID.
	DeleteDocument(ctx context.Context, ownerID, documentID string) error

	// Count returns the number of records owned by ownerID.
	Count(ctx context.Context, ownerID string) (int, error)
}

// RecordID builds the composite key that makes re-indexing idempotent:
// the same owner, document, and chunk index always map to the same row.
func RecordID(ownerID, documentID string, chunkIndex int) string {
	return fmt.Sprintf("user_%s_doc_%s_chunk_%d", ownerID, documentID, chunkIndex)
}

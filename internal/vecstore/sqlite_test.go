package vecstore

import (
	"context"
	"testing"

	"docvault/internal/storage"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewSQLiteStore(s.DB())
}

func chunksOf(vectors ...[]float32) []Chunk {
	chunks := make([]Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = Chunk{Index: i, PageNumber: i + 1, Text: "chunk text", Vector: v}
	}
	return chunks
}

func TestUpsertAndQuery(t *testing.T) {
	vs := openTestStore(t)
	ctx := context.Background()

	chunks := chunksOf([]float32{1, 0}, []float32{0, 1}, []float32{0.9, 0.1})
	if err := vs.Upsert(ctx, "user-a", "doc-1", "report.pdf", chunks); err != nil {
		t.Fatalf("upserting: %v", err)
	}

	results, err := vs.Query(ctx, "user-a", []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("querying: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// [1,0] is a perfect match; [0.9,0.1] is next; [0,1] must not appear.
	if results[0].ChunkIndex != 0 {
		t.Errorf("results[0].ChunkIndex = %d, want 0", results[0].ChunkIndex)
	}
	if results[1].ChunkIndex != 2 {
		t.Errorf("results[1].ChunkIndex = %d, want 2", results[1].ChunkIndex)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not ordered by similarity descending")
	}
	if results[0].DocumentName != "report.pdf" || results[0].PageNumber != 1 {
		t.Errorf("metadata = %q/page %d, want report.pdf/page 1", results[0].DocumentName, results[0].PageNumber)
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	vs := openTestStore(t)
	ctx := context.Background()

	chunks := chunksOf([]float32{1, 0}, []float32{0, 1})
	for i := 0; i < 3; i++ {
		if err := vs.Upsert(ctx, "user-a", "doc-1", "report.pdf", chunks); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	count, err := vs.Count(ctx, "user-a")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d after re-upserts, want 2 (no duplicates)", count)
	}
}

func TestUpsert_OverwritesInPlace(t *testing.T) {
	vs := openTestStore(t)
	ctx := context.Background()

	if err := vs.Upsert(ctx, "user-a", "doc-1", "v1.pdf", []Chunk{{Index: 0, PageNumber: 1, Text: "old", Vector: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}
	if err := vs.Upsert(ctx, "user-a", "doc-1", "v2.pdf", []Chunk{{Index: 0, PageNumber: 2, Text: "new", Vector: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}

	results, err := vs.Query(ctx, "user-a", []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Text != "new" || results[0].DocumentName != "v2.pdf" || results[0].PageNumber != 2 {
		t.Errorf("record not overwritten: %+v", results[0].Record)
	}
}

func TestUpsert_ZeroChunksIsNoOp(t *testing.T) {
	vs := openTestStore(t)
	ctx := context.Background()

	if err := vs.Upsert(ctx, "user-a", "doc-1", "empty.pdf", nil); err != nil {
		t.Fatalf("zero-chunk upsert: %v", err)
	}
	count, err := vs.Count(ctx, "user-a")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestQuery_OwnerIsolation(t *testing.T) {
	vs := openTestStore(t)
	ctx := context.Background()

	// B's vector is an exact match for the query; A's is not. A must still
	// only ever see A's records.
	if err := vs.Upsert(ctx, "user-a", "doc-a", "a.pdf", []Chunk{{Index: 0, PageNumber: 1, Text: "confidential alpha", Vector: []float32{0.5, 0.5}}}); err != nil {
		t.Fatal(err)
	}
	if err := vs.Upsert(ctx, "user-b", "doc-b", "b.pdf", []Chunk{{Index: 0, PageNumber: 1, Text: "confidential beta", Vector: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}

	results, err := vs.Query(ctx, "user-a", []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	for _, r := range results {
		if r.OwnerID != "user-a" {
			t.Fatalf("query for user-a returned record owned by %q", r.OwnerID)
		}
	}
	if results[0].Text != "confidential alpha" {
		t.Errorf("text = %q, want user-a's chunk", results[0].Text)
	}
}

func TestQuery_NoRecords(t *testing.T) {
	vs := openTestStore(t)

	results, err := vs.Query(context.Background(), "user-a", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("got %v, want nil for empty index", results)
	}
}

func TestDeleteDocument(t *testing.T) {
	vs := openTestStore(t)
	ctx := context.Background()

	if err := vs.Upsert(ctx, "user-a", "doc-1", "a.pdf", chunksOf([]float32{1, 0}, []float32{0, 1})); err != nil {
		t.Fatal(err)
	}
	if err := vs.Upsert(ctx, "user-a", "doc-2", "b.pdf", chunksOf([]float32{1, 1})); err != nil {
		t.Fatal(err)
	}

	if err := vs.DeleteDocument(ctx, "user-a", "doc-1"); err != nil {
		t.Fatalf("deleting: %v", err)
	}

	count, err := vs.Count(ctx, "user-a")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d after delete, want 1", count)
	}
}

func TestRecordID(t *testing.T) {
	got := RecordID("u1", "d2", 7)
	want := "user_u1_doc_d2_chunk_7"
	if got != want {
		t.Errorf("RecordID = %q, want %q", got, want)
	}
}

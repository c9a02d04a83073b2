package vecstore

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore provides vector storage and brute-force cosine similarity
// search backed by SQLite. Search scans only rows belonging to the querying
// owner, so isolation holds even if scoring were to misbehave.
//
// When per-owner vector counts exceed ~100K and query latency becomes
// noticeable, consider an ANN-capable backend behind the same Store
// interface.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
// The chunk_vectors table must already exist (created via migrations).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Upsert writes chunk records inside one transaction. The composite id
// makes re-ingestion of the same document overwrite in place.
func (s *SQLiteStore) Upsert(ctx context.Context, ownerID, documentID, documentName string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning upsert transaction: %v", ErrUnavailable, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chunk_vectors (id, owner_id, document_id, document_name, chunk_index, page_number, text_chunk, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_name = excluded.document_name,
			page_number = excluded.page_number,
			text_chunk = excluded.text_chunk,
			embedding = excluded.embedding,
			created_at = excluded.created_at`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: preparing upsert statement: %v", ErrUnavailable, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, ch := range chunks {
		id := RecordID(ownerID, documentID, ch.Index)
		blob := encodeFloat32s(ch.Vector)
		if _, err := stmt.Exec(id, ownerID, documentID, documentName, ch.Index, ch.PageNumber, ch.Text, blob, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: upserting record %s: %v", ErrUnavailable, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing upsert: %v", ErrUnavailable, err)
	}
	return nil
}

// idScore holds only the ID and score during the scan phase of Query.
// Full record details are fetched only for top-K winners.
type idScore struct {
	ID    string
	Score float32
}

// Query performs brute-force cosine similarity search over the owner's
// vectors, returning the top-K most similar records.
func (s *SQLiteStore) Query(ctx context.Context, ownerID string, vector []float32, topK int) ([]ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only id + embedding for this owner to find top-K candidates.
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunk_vectors WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrUnavailable, err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding embedding for %s: %v", ErrUnavailable, id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", ErrUnavailable, err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full records only for the top-K IDs.
	topIDs := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		topIDs[i] = item.ID
		scores[item.ID] = item.Score
	}

	queryArgs := make([]interface{}, 0, len(topIDs)+1)
	queryArgs = append(queryArgs, ownerID)
	for _, id := range topIDs {
		queryArgs = append(queryArgs, id)
	}
	fullQuery := `SELECT id, owner_id, document_id, document_name, chunk_index, page_number, text_chunk, embedding, created_at
		FROM chunk_vectors WHERE owner_id = ? AND id IN (?` + strings.Repeat(",?", len(topIDs)-1) + `)`

	fullRows, err := s.db.QueryContext(ctx, fullQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching top-K records: %v", ErrUnavailable, err)
	}
	defer fullRows.Close()

	var results []ScoredRecord
	for fullRows.Next() {
		r, err := scanRecord(fullRows)
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredRecord{Record: r, Score: scores[r.ID]})
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating full records: %v", ErrUnavailable, err)
	}

	// Sort results by score descending (IN query doesn't preserve order).
	sortByScore(results)

	return results, nil
}

// DeleteDocument removes all chunk records of one document owned by ownerID.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunk_vectors WHERE owner_id = ? AND document_id = ?`, ownerID, documentID)
	if err != nil {
		return fmt.Errorf("%w: deleting document %s vectors: %v", ErrUnavailable, documentID, err)
	}
	return nil
}

// Count returns the number of records owned by ownerID.
func (s *SQLiteStore) Count(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_vectors WHERE owner_id = ?`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting vectors: %v", ErrUnavailable, err)
	}
	return count, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var blob []byte
	var createdAt string
	if err := rows.Scan(&r.ID, &r.OwnerID, &r.DocumentID, &r.DocumentName, &r.ChunkIndex, &r.PageNumber, &r.Text, &blob, &createdAt); err != nil {
		return Record{}, fmt.Errorf("%w: scanning record: %v", ErrUnavailable, err)
	}
	embedding, err := decodeFloat32s(blob)
	if err != nil {
		return Record{}, fmt.Errorf("%w: decoding embedding for %s: %v", ErrUnavailable, r.ID, err)
	}
	r.Embedding = embedding
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("%w: parsing created_at for %s: %v", ErrUnavailable, r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}

// sortByScore sorts ScoredRecords by Score descending. Used for small slices (topK).
func sortByScore(results []ScoredRecord) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap of idScore ordered by Score.
// Used during the scan phase of Query to track top-K candidates by ID only.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

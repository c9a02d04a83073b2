// Package ingest turns uploaded documents into indexed chunk embeddings.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docvault/internal/chunker"
	"docvault/internal/embedding"
	"docvault/internal/pdfex"
	"docvault/internal/storage"
	"docvault/internal/vecstore"
)

// DocumentStore persists document metadata after a successful indexing run.
type DocumentStore interface {
	SaveDocument(doc storage.Document) error
}

// FileResult reports the outcome of one file in a batch. Err is nil on
// success; a failed file never aborts the rest of the batch.
type FileResult struct {
	Name       string
	DocumentID string
	Err        error
}

// Ingestor runs the extract, chunk, embed, index pipeline for one owner's
// files.
type Ingestor struct {
	extractor pdfex.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	index     vecstore.Store
	docs      DocumentStore
	now       func() time.Time
}

func New(extractor pdfex.Extractor, ch *chunker.Chunker, embedder embedding.Embedder, index vecstore.Store, docs DocumentStore) *Ingestor {
	return &Ingestor{
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		index:     index,
		docs:      docs,
		now:       time.Now,
	}
}

// IngestFile indexes one file already stored at path and records its
// metadata. Returns the new document id. A document whose pages yield no
// chunks is still saved; it is just never retrievable.
func (in *Ingestor) IngestFile(ctx context.Context, ownerID, name, path string) (string, error) {
	pages, err := in.extractor.Extract(path)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", name, err)
	}

	cpages := make([]chunker.Page, len(pages))
	for i, p := range pages {
		cpages[i] = chunker.Page{Number: p.Number, Text: p.Text}
	}
	chunks := in.chunker.ChunkPages(cpages)

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := in.embedder.Embed(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("embedding %s: %w", name, err)
	}

	docID := uuid.NewString()

	records := make([]vecstore.Chunk, len(chunks))
	for i, ch := range chunks {
		records[i] = vecstore.Chunk{
			Index:      ch.Index,
			PageNumber: ch.Page,
			Text:       ch.Text,
			Vector:     vectors[i],
		}
	}
	if err := in.index.Upsert(ctx, ownerID, docID, name, records); err != nil {
		return "", fmt.Errorf("indexing %s: %w", name, err)
	}

	if err := in.docs.SaveDocument(storage.Document{
		ID:         docID,
		OwnerID:    ownerID,
		Name:       name,
		FilePath:   path,
		UploadedAt: in.now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("saving document %s: %w", name, err)
	}

	slog.Info("ingested document",
		"owner", ownerID, "document", docID, "name", name,
		"pages", len(pages), "chunks", len(chunks))
	return docID, nil
}

// File is one pending upload: its display name and where the bytes live.
type File struct {
	Name string
	Path string
}

// IngestBatch processes files in order, one result per file. A failure is
// recorded in that file's result and processing continues.
func (in *Ingestor) IngestBatch(ctx context.Context, ownerID string, files []File) []FileResult {
	results := make([]FileResult, len(files))
	for i, f := range files {
		docID, err := in.IngestFile(ctx, ownerID, f.Name, f.Path)
		if err != nil {
			slog.Error("ingestion failed", "owner", ownerID, "name", f.Name, "error", err)
		}
		results[i] = FileResult{Name: f.Name, DocumentID: docID, Err: err}
	}
	return results
}

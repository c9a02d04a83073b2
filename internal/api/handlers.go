// Package api exposes document upload, management and search over HTTP
// and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"docvault/internal/ingest"
	"docvault/internal/search"
	"docvault/internal/storage"
	"docvault/internal/vecstore"
)

const maxUploadFiles = 10
const maxUploadBodySize = 100 << 20 // 100MB across the whole batch

// Searcher runs the question answering pipeline.
type Searcher interface {
	Search(ctx context.Context, ownerID, question string, history []search.Turn) (search.Result, error)
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store    *storage.Store
	Vectors  vecstore.Store
	Ingestor *ingest.Ingestor
	Searcher Searcher
	Token    string
	DataDir  string
}

// NewHandler builds the HTTP router. All routes require bearer auth and
// an X-User-ID header except /health.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(RequireUser)

		r.Post("/documents", handleUpload(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Get("/documents/{id}", handleGetDocument(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
		r.Post("/search", handleSearch(deps))
	})

	return r
}

type uploadFileStatus struct {
	Name       string `json:"name"`
	DocumentID string `json:"documentId,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no files uploaded")
			return
		}
		if len(headers) > maxUploadFiles {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at most %d files per upload", maxUploadFiles)
			return
		}

		owner := userID(r)
		files, err := saveUploads(deps.DataDir, owner, headers)
		if err != nil {
			slog.Error("storing uploads failed", "owner", owner, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not store uploaded files")
			return
		}

		results := deps.Ingestor.IngestBatch(r.Context(), owner, files)

		code := http.StatusOK
		statuses := make([]uploadFileStatus, len(results))
		for i, res := range results {
			statuses[i] = uploadFileStatus{Name: res.Name, DocumentID: res.DocumentID, Status: "indexed"}
			if res.Err != nil {
				statuses[i].Status = "failed"
				statuses[i].Error = userFacing(res.Err)
				code = http.StatusMultiStatus
				os.Remove(files[i].Path)
			}
		}

		writeJSON(w, code, map[string]any{"files": statuses})
	}
}

// saveUploads writes every upload to the data dir, or none: a failure
// part-way removes the files already written.
func saveUploads(dataDir, owner string, headers []*multipart.FileHeader) ([]ingest.File, error) {
	var files []ingest.File
	for _, hdr := range headers {
		path, err := saveUpload(dataDir, owner, hdr)
		if err != nil {
			for _, f := range files {
				os.Remove(f.Path)
			}
			return nil, fmt.Errorf("storing %s: %w", hdr.Filename, err)
		}
		files = append(files, ingest.File{Name: hdr.Filename, Path: path})
	}
	return files, nil
}

func saveUpload(dataDir, owner string, hdr *multipart.FileHeader) (string, error) {
	src, err := hdr.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("user_%s_%s.pdf", owner, uuid.NewString())
	path := filepath.Join(dataDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments(userID(r))
		if err != nil {
			slog.Error("listing documents failed", "owner", userID(r), "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not list documents")
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Store.GetDocument(userID(r), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			slog.Error("getting document failed", "owner", userID(r), "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not get document")
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Name))
		http.ServeFile(w, r, doc.FilePath)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := userID(r)
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(owner, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			slog.Error("getting document failed", "owner", owner, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not delete document")
			return
		}

		if err := deps.Vectors.DeleteDocument(r.Context(), owner, id); err != nil {
			slog.Error("deleting vectors failed", "owner", owner, "document", id, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not delete document")
			return
		}
		if err := deps.Store.DeleteDocument(owner, id); err != nil {
			slog.Error("deleting document failed", "owner", owner, "document", id, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not delete document")
			return
		}
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("removing stored file failed", "path", doc.FilePath, "error", err)
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type searchRequest struct {
	Question string `json:"question"`
	History  []struct {
		Sender string `json:"sender"`
		Text   string `json:"text"`
	} `json:"history"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		history := make([]search.Turn, len(req.History))
		for i, t := range req.History {
			history[i] = search.Turn{Sender: t.Sender, Text: t.Text}
		}

		res, err := deps.Searcher.Search(r.Context(), userID(r), req.Question, history)
		if err != nil {
			slog.Error("search failed", "owner", userID(r), "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "could not process the question")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DB().PingContext(r.Context()); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "storage unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// userFacing maps pipeline errors to safe, stable messages. Details go to
// the log, not the client.
func userFacing(err error) string {
	switch {
	case errors.Is(err, vecstore.ErrUnavailable):
		return "index unavailable"
	case err != nil:
		return "could not process this file"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"docvault/internal/chunker"
	"docvault/internal/ingest"
	"docvault/internal/pdfex"
	"docvault/internal/search"
	"docvault/internal/storage"
	"docvault/internal/vecstore"
)

const testToken = "secret-token"

type fakeExtractor struct {
	fail bool
}

func (f *fakeExtractor) Extract(path string) ([]pdfex.Page, error) {
	if f.fail {
		return nil, fmt.Errorf("%w: %s", pdfex.ErrParse, path)
	}
	return []pdfex.Page{{Number: 1, Text: "a page with plenty of extractable text"}}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeSearcher struct {
	result search.Result
	err    error
	owner  string
}

func (f *fakeSearcher) Search(ctx context.Context, ownerID, question string, history []search.Turn) (search.Result, error) {
	f.owner = ownerID
	return f.result, f.err
}

func newTestHandler(t *testing.T, extractFail bool, searcher Searcher) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	vectors := vecstore.NewSQLiteStore(store.DB())
	ing := ingest.New(&fakeExtractor{fail: extractFail}, chunker.New(0, 0, 0), fakeEmbedder{}, vectors, store)

	return NewHandler(Deps{
		Store:    store,
		Vectors:  vectors,
		Ingestor: ing,
		Searcher: searcher,
		Token:    testToken,
		DataDir:  t.TempDir(),
	}), store
}

func authed(req *http.Request, user string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-User-ID", user)
	return req
}

func multipartBody(t *testing.T, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("%PDF-1.4 fake body"))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestAuthRejected(t *testing.T) {
	h, _ := newTestHandler(t, false, &fakeSearcher{})

	req := httptest.NewRequest("GET", "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMissingUserHeader(t *testing.T) {
	h, _ := newTestHandler(t, false, &fakeSearcher{})

	req := httptest.NewRequest("GET", "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadAndList(t *testing.T) {
	h, _ := newTestHandler(t, false, &fakeSearcher{})

	body, contentType := multipartBody(t, "a.pdf", "b.pdf")
	req := authed(httptest.NewRequest("POST", "/documents", body), "u1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Files []uploadFileStatus `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Files) != 2 {
		t.Fatalf("got %d file statuses, want 2", len(resp.Files))
	}
	for _, f := range resp.Files {
		if f.Status != "indexed" || f.DocumentID == "" {
			t.Errorf("file %s: status %q id %q", f.Name, f.Status, f.DocumentID)
		}
	}

	listReq := authed(httptest.NewRequest("GET", "/documents", nil), "u1")
	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	var listResp struct {
		Documents []storage.Document `json:"documents"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &listResp); err != nil {
		t.Fatal(err)
	}
	if len(listResp.Documents) != 2 {
		t.Errorf("got %d documents, want 2", len(listResp.Documents))
	}
}

func TestUpload_TooManyFiles(t *testing.T) {
	h, _ := newTestHandler(t, false, &fakeSearcher{})

	names := make([]string, maxUploadFiles+1)
	for i := range names {
		names[i] = fmt.Sprintf("f%d.pdf", i)
	}
	body, contentType := multipartBody(t, names...)
	req := authed(httptest.NewRequest("POST", "/documents", body), "u1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpload_PerFileFailureStatus(t *testing.T) {
	h, _ := newTestHandler(t, true, &fakeSearcher{})

	body, contentType := multipartBody(t, "broken.pdf")
	req := authed(httptest.NewRequest("POST", "/documents", body), "u1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207 when some files fail", rec.Code)
	}
	var resp struct {
		Files []uploadFileStatus `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Files) != 1 || resp.Files[0].Status != "failed" || resp.Files[0].Error == "" {
		t.Errorf("files = %+v, want one failed status with an error message", resp.Files)
	}
}

func TestSaveUploads_CleansUpOnFailure(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	small, err := mw.CreateFormFile("files", "small.pdf")
	if err != nil {
		t.Fatal(err)
	}
	small.Write([]byte("tiny"))
	big, err := mw.CreateFormFile("files", "big.pdf")
	if err != nil {
		t.Fatal(err)
	}
	big.Write(bytes.Repeat([]byte("x"), 64<<10))
	mw.Close()

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1024)
	if err != nil {
		t.Fatal(err)
	}
	// Drop the disk-backed part so opening the second upload fails after
	// the first was already written.
	form.RemoveAll()

	dir := t.TempDir()
	if _, err := saveUploads(dir, "u1", form.File["files"]); err == nil {
		t.Fatal("expected error from unreadable upload")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("data dir holds %d files after failed batch, want 0", len(entries))
	}
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &fakeSearcher{result: search.Result{
		Answer:  "Revenue grew 12%.",
		Sources: []search.Source{{Text: "revenue grew 12%", DocumentID: "d1", DocumentName: "report.pdf", PageNumber: 2}},
	}}
	h, _ := newTestHandler(t, false, searcher)

	body := bytes.NewBufferString(`{"question":"what about revenue?","history":[{"sender":"user","text":"tell me about my report"}]}`)
	req := authed(httptest.NewRequest("POST", "/search", body), "u7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var res search.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Answer != "Revenue grew 12%." || len(res.Sources) != 1 {
		t.Errorf("result = %+v", res)
	}
	if searcher.owner != "u7" {
		t.Errorf("search scoped to %q, want u7", searcher.owner)
	}
}

func TestSearch_EmptyQuestion(t *testing.T) {
	h, _ := newTestHandler(t, false, &fakeSearcher{})

	req := authed(httptest.NewRequest("POST", "/search", bytes.NewBufferString(`{"question":""}`)), "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteDocument_RemovesVectorsAndFile(t *testing.T) {
	h, store := newTestHandler(t, false, &fakeSearcher{})

	body, contentType := multipartBody(t, "a.pdf")
	req := authed(httptest.NewRequest("POST", "/documents", body), "u1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}
	var resp struct {
		Files []uploadFileStatus `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	docID := resp.Files[0].DocumentID

	doc, err := store.GetDocument("u1", docID)
	if err != nil {
		t.Fatal(err)
	}

	delReq := authed(httptest.NewRequest("DELETE", "/documents/"+docID, nil), "u1")
	delRec := httptest.NewRecorder()
	h.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", delRec.Code)
	}

	if _, err := store.GetDocument("u1", docID); err == nil {
		t.Error("document metadata still present after delete")
	}
	vectors := vecstore.NewSQLiteStore(store.DB())
	count, err := vectors.Count(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("vector count = %d after delete, want 0", count)
	}
	if _, err := os.Stat(doc.FilePath); !os.IsNotExist(err) {
		t.Errorf("stored file still present after delete: %v", err)
	}
}

func TestDeleteDocument_WrongOwner(t *testing.T) {
	h, _ := newTestHandler(t, false, &fakeSearcher{})

	body, contentType := multipartBody(t, "a.pdf")
	req := authed(httptest.NewRequest("POST", "/documents", body), "u1")
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp struct {
		Files []uploadFileStatus `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	delReq := authed(httptest.NewRequest("DELETE", "/documents/"+resp.Files[0].DocumentID, nil), "u2")
	delRec := httptest.NewRecorder()
	h.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for another user's document", delRec.Code)
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := newTestHandler(t, false, &fakeSearcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

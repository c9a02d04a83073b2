// Package pdfex extracts per-page plain text from PDF documents.
package pdfex

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrParse is returned when a document cannot be opened or its text cannot
// be extracted. It is fatal for that document's ingestion.
var ErrParse = errors.New("document parse failed")

// Page holds the extracted text of a single page. Numbers are 1-based.
type Page struct {
	Number int
	Text   string
}

// Extractor produces per-page text from a stored document file.
type Extractor interface {
	Extract(path string) ([]Page, error)
}

// PDFExtractor extracts text page by page so downstream chunks keep a
// correct page number.
type PDFExtractor struct{}

// Extract opens the PDF at path and returns one Page per physical page.
// Pages that contain no extractable text are returned with empty Text;
// filtering them is the chunker's decision.
func (PDFExtractor) Extract(path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrParse, path, err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: extracting page %d of %s: %v", ErrParse, i, path, err)
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimSpace(text)})
	}

	return pages, nil
}

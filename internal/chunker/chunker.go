// Package chunker splits document text into bounded, overlapping chunks
// suitable for embedding and retrieval.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// separators, in preference order: paragraph break, line break, word break.
// Text with no structural boundary falls back to fixed-width slicing.
var separators = []string{"\n\n", "\n", " "}

// minChunkChars drops fragments too short to carry meaning after cleaning.
const minChunkChars = 10

// Page is the per-page input to the chunker. Numbers are 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk is a cleaned text span tagged with its source page and its ordinal
// position within the document.
type Chunk struct {
	Text  string
	Page  int
	Index int
}

// Chunker splits text into chunks of at most size characters with overlap
// characters shared between consecutive chunks.
type Chunker struct {
	size         int
	overlap      int
	minPageChars int
}

// New creates a Chunker. Zero or negative values fall back to the defaults
// (size 1000, overlap 100, minimum page length 10).
func New(size, overlap, minPageChars int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if minPageChars <= 0 {
		minPageChars = 10
	}
	return &Chunker{size: size, overlap: overlap, minPageChars: minPageChars}
}

// ChunkPages chunks each page independently so no chunk spans a page
// boundary. Pages whose cleaned text is shorter than the minimum length
// yield zero chunks. Output order follows document reading order.
func (c *Chunker) ChunkPages(pages []Page) []Chunk {
	var chunks []Chunk
	idx := 0
	for _, p := range pages {
		if utf8.RuneCountInString(clean(p.Text)) < c.minPageChars {
			continue
		}
		for _, text := range c.Split(p.Text) {
			chunks = append(chunks, Chunk{Text: text, Page: p.Number, Index: idx})
			idx++
		}
	}
	return chunks
}

// Split splits raw text into cleaned chunks of at most the configured size.
func (c *Chunker) Split(text string) []string {
	var out []string
	for _, piece := range c.split(text, 0) {
		cleaned := clean(piece)
		if utf8.RuneCountInString(cleaned) < minChunkChars {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}

// split tries each separator from sepIdx onward, splitting on the first one
// present and merging the resulting parts back into bounded windows. Text
// with no usable separator is sliced at fixed width.
func (c *Chunker) split(text string, sepIdx int) []string {
	if utf8.RuneCountInString(text) <= c.size {
		return []string{text}
	}
	for ; sepIdx < len(separators); sepIdx++ {
		if strings.Contains(text, separators[sepIdx]) {
			return c.merge(strings.SplitAfter(text, separators[sepIdx]), sepIdx)
		}
	}
	return c.sliceFixed(text)
}

// merge greedily packs parts into chunks of at most size runes, carrying the
// last overlap runes of each emitted chunk into the next so context crossing
// a chunk boundary is preserved. Parts that alone exceed the size are split
// again at the next separator level.
func (c *Chunker) merge(parts []string, sepIdx int) []string {
	var out []string
	var cur []rune
	fresh := 0 // runes in cur that are new content, not carried overlap

	emit := func() {
		if fresh == 0 {
			return
		}
		out = append(out, string(cur))
		k := c.overlap
		if k > len(cur) {
			k = len(cur)
		}
		cur = append([]rune(nil), cur[len(cur)-k:]...)
		fresh = 0
	}

	for _, part := range parts {
		pr := []rune(part)
		if len(pr) > c.size {
			emit()
			cur, fresh = nil, 0 // structural boundary: no overlap into a re-split part
			out = append(out, c.split(part, sepIdx+1)...)
			continue
		}
		if len(cur)+len(pr) > c.size {
			emit()
			if len(cur)+len(pr) > c.size {
				cur, fresh = nil, 0
			}
		}
		cur = append(cur, pr...)
		fresh += len(pr)
	}
	emit()

	return out
}

// sliceFixed cuts text into size-rune windows advancing by size-overlap.
func (c *Chunker) sliceFixed(text string) []string {
	runes := []rune(text)
	step := c.size - c.overlap
	if step <= 0 {
		step = c.size
	}
	var out []string
	for i := 0; i < len(runes); i += step {
		end := i + c.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// clean collapses all whitespace runs to single spaces and trims the ends.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

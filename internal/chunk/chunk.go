// Package chunk implements the character chunker: splitting extracted
// text into overlapping, size-bounded pieces for embedding, the same way
// at ingest time and at retrieval-budget time.
package chunk

import "strings"

// Chunk is one contiguous, size-bounded slice of a longer text.
type Chunk struct {
	Index int
	Total int
	Text  string
}

// Split divides text into chunks of at most size characters, each
// overlapping the previous chunk by overlap characters, cutting on a
// whitespace boundary when one is available past the midpoint so words
// aren't split mid-token.
//
// Totality property: concatenating the chunks while skipping the
// overlapping prefix reconstructs a superstring of text; no chunk exceeds
// size characters; an empty input yields an empty slice.
func Split(text string, size, overlap int) []Chunk {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 850
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var pieces []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else if cut := lastWhitespace(text[start:end]); cut > size/2 {
			end = start + cut
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			pieces = append(pieces, piece)
		}
		if end >= len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Index: i, Total: len(pieces), Text: p}
	}
	return chunks
}

func lastWhitespace(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ' ' || s[i] == '\n' || s[i] == '\t' {
			return i
		}
	}
	return -1
}

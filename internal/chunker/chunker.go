// Package chunker splits long text into bounded pieces suitable for a
// single text-to-speech request.
package chunker

import (
	"strings"
	"unicode"
)

// DefaultMaxSize matches the input limit of the hosted speech endpoints.
const DefaultMaxSize = 4000

// Chunk is one ordered piece of the source text.
type Chunk struct {
	Index   int
	Content string
}

// Split breaks text into chunks of at most maxSize characters (runes).
// A chunk ends after the last sentence terminator inside the window and any
// closing quotes or brackets that follow it, else
// before the last whitespace inside the window, else exactly at the limit.
// Each chunk is trimmed of surrounding whitespace and whitespace-only pieces
// are dropped. A non-positive maxSize disables the limit.
func Split(text string, maxSize int) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if maxSize <= 0 {
		maxSize = n
	}

	var chunks []Chunk
	start := 0
	for start < n {
		for start < n && unicode.IsSpace(runes[start]) {
			start++
		}
		if start == n {
			break
		}

		end := n
		if n-start > maxSize {
			end = breakPoint(runes, start, maxSize)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Content: piece})
		}
		start = end
	}
	return chunks
}

// breakPoint returns the exclusive end of the chunk starting at start. The
// result is always in (start, start+maxSize].
func breakPoint(runes []rune, start, maxSize int) int {
	limit := start + maxSize

	for p := limit - 1; p >= start; p-- {
		if isTerminator(runes[p]) {
			end := p + 1
			for end < limit && isCloser(runes[end]) {
				end++
			}
			return end
		}
	}
	// runes[limit] exists because the caller only asks when more than
	// maxSize runes remain; a space there is a clean cut at the limit.
	for p := limit; p > start; p-- {
		if unicode.IsSpace(runes[p]) {
			return p
		}
	}
	return limit
}

// isCloser matches quotes and brackets that belong to the sentence they close.
func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '\u2019', '\u201d', '\u00bb':
		return true
	}
	return false
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}

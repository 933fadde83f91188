// Package segment splits chapter text into ordered, size-bounded chunks at
// the best available natural boundary.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultWindow is the trailing window, in bytes, searched for a boundary
// before the target chunk end. Restricting the search keeps segmentation
// O(n) on large chapters.
const DefaultWindow = 500

// sentenceEnders terminate a sentence when followed by whitespace or a
// closing quote.
const sentenceEnders = ".!?"

// closingQuotes may follow a sentence terminator.
const closingQuotes = `"'”’)`

// Split divides text into chunks of at most maxSize bytes, cutting at the
// best boundary found within the trailing window. Boundary priority:
// paragraph break, sentence end, line break, word space, hard cut.
//
// Concatenating the returned chunks in order reproduces text exactly.
func Split(text string, maxSize int) []string {
	if maxSize <= 0 || len(text) <= maxSize {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	window := DefaultWindow
	if w := maxSize / 4; w < window {
		window = w
	}
	if window < 1 {
		window = 1
	}

	var chunks []string
	rest := text
	for len(rest) > maxSize {
		cut := boundary(rest, maxSize, window)
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// Halve splits text into two pieces at the best boundary nearest its
// midpoint. Used by the bisection retry path: shrinking the unit of work
// at a natural boundary keeps both halves independently transformable.
func Halve(text string) (string, string) {
	if len(text) < 2 {
		return text, ""
	}
	mid := len(text) / 2
	window := mid / 2
	if window < 1 {
		window = 1
	}
	cut := boundary(text, mid, window)
	return text[:cut], text[cut:]
}

// boundary returns the cut position for a chunk ending at or before target,
// searching only [target-window, target]. Never returns 0 or > len(text).
func boundary(text string, target, window int) int {
	if target >= len(text) {
		return len(text)
	}
	lo := target - window
	if lo < 1 {
		lo = 1
	}
	region := text[lo:target]

	// Paragraph break: cut after the blank line.
	if i := strings.LastIndex(region, "\n\n"); i >= 0 {
		return lo + i + 2
	}

	// Sentence end: terminator followed by whitespace or a closing quote.
	if i := lastSentenceEnd(region); i >= 0 {
		return lo + i + 1
	}

	// Any line break.
	if i := strings.LastIndexByte(region, '\n'); i >= 0 {
		return lo + i + 1
	}

	// Word space. The index is the rune start; cut after the whole rune so
	// multibyte spaces (NBSP and friends) are never split across chunks.
	if i := strings.LastIndexFunc(region, unicode.IsSpace); i >= 0 {
		_, size := utf8.DecodeRuneInString(region[i:])
		return lo + i + size
	}

	// Last resort: cut exactly at the size limit.
	return target
}

// lastSentenceEnd finds the last sentence terminator in region whose next
// character marks the end of a sentence. Returns the index of the character
// after which to cut, or -1.
func lastSentenceEnd(region string) int {
	for i := len(region) - 1; i > 0; i-- {
		if !strings.ContainsRune(sentenceEnders, rune(region[i-1])) {
			continue
		}
		next := rune(region[i])
		if unicode.IsSpace(next) || strings.ContainsRune(closingQuotes, next) {
			return i
		}
	}
	return -1
}

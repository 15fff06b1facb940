// Package chunker splits extracted document text into overlapping windows.
package chunker

import (
	"iter"
	"strings"
)

const (
	DefaultSize    = 1000 // runes
	DefaultOverlap = 200  // runes
)

// Split returns the overlapping windows of text. Windows are measured in runes
// and advance by size-overlap; every window but the last is exactly size runes
// long. The sequence is lazy and can be ranged over any number of times.
func Split(text string, size, overlap int) iter.Seq[string] {
	size, overlap = Normalize(size, overlap)
	return func(yield func(string) bool) {
		runes := []rune(text)
		for start := 0; start < len(runes); start += size - overlap {
			end := min(start+size, len(runes))
			if !yield(string(runes[start:end])) {
				return
			}
			if end == len(runes) {
				return
			}
		}
	}
}

// Collect materializes Split.
func Collect(text string, size, overlap int) []string {
	var chunks []string
	for chunk := range Split(text, size, overlap) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Join strips the overlap from every chunk after the first and concatenates
// the rest, which reproduces the text given to Split.
func Join(chunks []string, overlap int) string {
	var b strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			b.WriteString(chunk)
			continue
		}
		runes := []rune(chunk)
		if overlap < len(runes) {
			b.WriteString(string(runes[overlap:]))
		}
	}
	return b.String()
}

// Normalize repairs invalid window parameters: a non-positive size becomes
// DefaultSize, a negative overlap 0 and an overlap of at least size becomes size/2.
func Normalize(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return size, overlap
}

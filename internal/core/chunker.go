package core

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits document text into overlapping windows of at most size runes.
// Consecutive chunks share exactly overlap runes. A window ends at the last
// paragraph break it contains, else the last sentence end, else the last
// whitespace, else it is cut hard at size.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrValidation, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrValidation, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks returns a lazy sequence over the chunks of text. The sequence can be
// ranged over any number of times. Whitespace-only chunks are skipped.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		start := 0
		for start < len(runes) {
			end := len(runes)
			if end-start > c.size {
				end = c.cut(runes, start)
			}
			chunk := string(runes[start:end])
			if strings.TrimSpace(chunk) != "" {
				if !yield(chunk) {
					return
				}
			}
			if end == len(runes) {
				return
			}
			start = end - c.overlap
		}
	}
}

// Split collects every chunk of text.
func (c *Chunker) Split(text string) []string {
	return slices.Collect(c.Chunks(text))
}

// cut picks the end of the window starting at start. The end always lies past
// start+overlap so the next window makes progress.
func (c *Chunker) cut(runes []rune, start int) int {
	lo := start + c.overlap + 1
	hi := start + c.size

	for _, isBreak := range []func([]rune, int, int) bool{paragraphBreak, sentenceBreak, wordBreak} {
		for p := hi; p >= lo; p-- {
			if isBreak(runes, start, p) {
				return p
			}
		}
	}
	return hi
}

// paragraphBreak reports whether a window ending at p ends with a blank line.
func paragraphBreak(runes []rune, start, p int) bool {
	return p-2 >= start && runes[p-1] == '\n' && runes[p-2] == '\n'
}

// sentenceBreak reports whether a window ending at p ends with terminal
// punctuation followed by whitespace.
func sentenceBreak(runes []rune, start, p int) bool {
	if p-2 < start || !unicode.IsSpace(runes[p-1]) {
		return false
	}
	switch runes[p-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func wordBreak(runes []rune, start, p int) bool {
	return p-1 >= start && unicode.IsSpace(runes[p-1])
}

// Package chunk splits course text into overlapping, sentence-aligned chunks.
//
// Chunks are the unit of embedding and retrieval: each chunk is a slice of
// lesson content bounded by a character budget, with a character overlap
// against its predecessor so that no sentence boundary loses its context.
package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrInvalidSize indicates a non-positive chunk size.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrOverlapTooLarge indicates the overlap is not smaller than the size.
	ErrOverlapTooLarge = errors.New("chunk overlap must be smaller than chunk size")
)

// Chunker packs sentences into character-bounded windows.
//
// Chunker is immutable after construction and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker with the given character budget and overlap.
// overlap >= size is a configuration error: every window would consist
// entirely of repeated content and ingestion would never terminate.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrOverlapTooLarge, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured character budget per chunk.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured character overlap between chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Split divides text into ordered chunks.
//
// Text is first segmented into sentences (terminal punctuation followed by
// whitespace or end of text), then sentences are greedily packed into windows
// of at most Size characters. Every window after the first re-includes whole
// trailing sentences of its predecessor up to Overlap characters.
//
// A single sentence longer than Size is emitted as its own oversized chunk;
// truncating it would silently lose content. Empty or whitespace-only input
// yields nil. The result is deterministic for identical input.
func (c *Chunker) Split(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(sentences) {
		end := start
		width := 0
		for end < len(sentences) {
			next := len(sentences[end])
			if end > start {
				next++ // joining space
			}
			if width+next > c.size && end > start {
				break
			}
			width += next
			end++
		}

		chunks = append(chunks, strings.Join(sentences[start:end], " "))
		if end >= len(sentences) {
			break
		}

		start = c.overlapStart(sentences, start, end)
	}
	return chunks
}

// overlapStart walks backwards from the window end, re-including whole
// sentences while they fit in the overlap budget. The returned start is
// always past the previous one so packing makes forward progress even when
// the overlap budget would cover the entire window.
func (c *Chunker) overlapStart(sentences []string, prevStart, end int) int {
	start := end
	width := 0
	for start > prevStart+1 {
		next := len(sentences[start-1])
		if width > 0 {
			next++
		}
		if width+next > c.overlap {
			break
		}
		width += next
		start--
	}
	return start
}

// SplitSentences segments text into trimmed sentence strings.
// A sentence boundary is terminal punctuation (. ! ?) followed by whitespace
// or end of text; a trailing fragment without terminal punctuation is kept
// as its own sentence. An ellipsis trailing into a lowercase continuation
// ("Wait... really?") is not a boundary.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if !isTerminal(r) {
			continue
		}
		// Consecutive terminal punctuation ("?!", "...") stays in one sentence.
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if endsEllipsis(runes, i) && continuesLowercase(runes, i+1) {
			continue
		}
		flush()
	}
	flush()
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// endsEllipsis reports whether the rune at i closes a run of three periods.
func endsEllipsis(runes []rune, i int) bool {
	return runes[i] == '.' && i >= 2 && runes[i-1] == '.' && runes[i-2] == '.'
}

// continuesLowercase reports whether the next non-space rune from the given
// position starts a lowercase word.
func continuesLowercase(runes []rune, from int) bool {
	for _, r := range runes[from:] {
		if unicode.IsSpace(r) {
			continue
		}
		return unicode.IsLower(r)
	}
	return false
}

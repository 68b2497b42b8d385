package chunking

import (
	"strings"
	"unicode"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// Splitter cuts section text into bounded, overlapping segments,
// preferring sentence boundaries over mid-sentence cuts.
type Splitter struct {
	ChunkSize        int
	Overlap          int
	MinChunkLen      int
	BoundaryLookback int
	SpaceLookback    int
}

func NewSplitter(chunkSize, overlap, minChunkLen int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	if minChunkLen < 0 {
		minChunkLen = 0
	}
	return &Splitter{
		ChunkSize:        chunkSize,
		Overlap:          overlap,
		MinChunkLen:      minChunkLen,
		BoundaryLookback: 100,
		SpaceLookback:    50,
	}
}

// Split returns the ordered pieces of text. Text no longer than the chunk
// size yields exactly one piece equal to the cleaned input. Pieces shorter
// than MinChunkLen after trimming are discarded.
func (s *Splitter) Split(text string) []domain.TextSpan {
	text = cleanText(text)
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	if len(runes) <= s.ChunkSize {
		return s.keep(nil, text, 0, len(runes))
	}

	var out []domain.TextSpan
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			out = s.keep(out, string(runes[start:]), start, len(runes))
			break
		}

		// A cut is only acceptable when the next start still moves
		// forward after the overlap is subtracted.
		minEnd := start + s.Overlap + 1
		if boundary := sentenceBoundary(runes, max(start+s.ChunkSize-s.BoundaryLookback, start), end); boundary >= minEnd {
			end = boundary
		} else if space := lastSpace(runes, max(start+s.ChunkSize-s.SpaceLookback, start), end); space >= minEnd {
			end = space
		}

		out = s.keep(out, string(runes[start:end]), start, end)
		start = end - s.Overlap
	}
	return out
}

func (s *Splitter) keep(out []domain.TextSpan, text string, start, end int) []domain.TextSpan {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < s.MinChunkLen {
		return out
	}
	return append(out, domain.TextSpan{Text: text, Start: start, End: end})
}

// sentenceBoundary finds the last position in runes[from:to) just after
// sentence-ending punctuation followed by whitespace and an upper-case
// letter, so the next piece starts on the capital.
func sentenceBoundary(runes []rune, from, to int) int {
	for i := to - 1; i > from; i-- {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		j := i - 1
		for j >= from && unicode.IsSpace(runes[j]) {
			j--
		}
		if j >= from && j < i-1 && isSentenceEnd(runes[j]) {
			return i
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func lastSpace(runes []rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

// cleanText collapses excessive blank lines and runs of spaces before
// splitting, so offsets refer to the normalized text.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	newlines := 0
	spaces := 0
	for _, r := range text {
		switch r {
		case '\n':
			newlines++
			spaces = 0
			if newlines <= 2 {
				b.WriteRune(r)
			}
		case ' ':
			spaces++
			newlines = 0
			if spaces <= 1 {
				b.WriteRune(r)
			}
		default:
			newlines = 0
			spaces = 0
			b.WriteRune(r)
		}
	}
	return b.String()
}

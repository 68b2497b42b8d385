package lexical

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75

	minTokenLen = 2
)

// Index is an immutable in-process BM25 index over one chunk generation.
// It is built once per reindex and swapped in atomically with the vector
// collection of the same generation.
type Index struct {
	chunks   []domain.Chunk
	termFreq []map[string]int
	docLen   []int
	docFreq  map[string]int
	avgLen   float64
}

// Build tokenizes the corpus and precomputes term statistics. An empty
// corpus yields a valid index that matches nothing.
func Build(chunks []domain.Chunk) *Index {
	ix := &Index{
		chunks:   chunks,
		termFreq: make([]map[string]int, len(chunks)),
		docLen:   make([]int, len(chunks)),
		docFreq:  make(map[string]int),
	}

	totalLen := 0
	for i, chunk := range chunks {
		tokens := Tokenize(chunk.Content)
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		ix.termFreq[i] = tf
		ix.docLen[i] = len(tokens)
		totalLen += len(tokens)
		for token := range tf {
			ix.docFreq[token]++
		}
	}
	if len(chunks) > 0 {
		ix.avgLen = float64(totalLen) / float64(len(chunks))
	}
	return ix
}

func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Search returns up to limit chunks with BM25 score > 0, ordered by score
// descending with ties kept in original corpus order. An empty result is
// valid and means "no lexical match".
func (ix *Index) Search(query string, limit int) []domain.RetrievedPassage {
	if limit <= 0 || len(ix.chunks) == 0 {
		return nil
	}
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score float64
	}
	candidates := make([]scored, 0, len(ix.chunks))
	for i := range ix.chunks {
		score := ix.score(queryTokens, i)
		if score > 0 {
			candidates = append(candidates, scored{idx: i, score: score})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]domain.RetrievedPassage, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.RetrievedPassage{
			Chunk:      ix.chunks[c.idx],
			Score:      c.score,
			TrustLevel: domain.TrustTrusted,
			Method:     domain.MethodLexical,
		})
	}
	return out
}

func (ix *Index) score(queryTokens []string, doc int) float64 {
	n := float64(len(ix.chunks))
	length := float64(ix.docLen[doc])
	norm := bm25K1 * (1 - bm25B + bm25B*length/ix.avgLen)

	var total float64
	for _, token := range queryTokens {
		tf := float64(ix.termFreq[doc][token])
		if tf == 0 {
			continue
		}
		df := float64(ix.docFreq[token])
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)
		total += idf * tf * (bm25K1 + 1) / (tf + norm)
	}
	return total
}

// Tokenize lower-cases text, splits on non-alphanumeric boundaries and
// discards tokens shorter than two characters.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	out := make([]string, 0, 32)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			token := b.String()
			if len([]rune(token)) >= minTokenLen {
				out = append(out, token)
			}
			b.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return out
}

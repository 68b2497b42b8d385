package usecase

import (
	"sort"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// fuseWeighted merges semantic and lexical candidates with a weighted sum.
// Semantic scores are taken as-is and scaled by weight; lexical scores are
// normalized by the best lexical score before scaling by (1-weight), so the
// two signals are comparable. A chunk present in both lists accumulates both
// contributions. Every passage that goes through fusion carries the hybrid
// method tag, whichever side produced it. Order is score descending, ties
// stable.
func fuseWeighted(semantic, lexical []domain.RetrievedPassage, weight float64) []domain.RetrievedPassage {
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}

	acc := make(map[string]domain.RetrievedPassage, len(semantic)+len(lexical))
	order := make([]string, 0, len(semantic)+len(lexical))

	for _, p := range semantic {
		fused := p
		fused.Score = p.Score * weight
		fused.Method = domain.MethodHybrid
		if _, seen := acc[p.Chunk.ChunkID]; !seen {
			order = append(order, p.Chunk.ChunkID)
		}
		acc[p.Chunk.ChunkID] = fused
	}

	maxLexical := 0.0
	for _, p := range lexical {
		if p.Score > maxLexical {
			maxLexical = p.Score
		}
	}
	for _, p := range lexical {
		normalized := 0.0
		if maxLexical > 0 {
			normalized = p.Score / maxLexical
		}
		contribution := (1 - weight) * normalized

		if existing, seen := acc[p.Chunk.ChunkID]; seen {
			existing.Score += contribution
			acc[p.Chunk.ChunkID] = existing
			continue
		}
		fused := p
		fused.Score = contribution
		fused.Method = domain.MethodHybrid
		acc[p.Chunk.ChunkID] = fused
		order = append(order, p.Chunk.ChunkID)
	}

	out := make([]domain.RetrievedPassage, 0, len(order))
	for _, id := range order {
		out = append(out, acc[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

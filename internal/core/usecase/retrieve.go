package usecase

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
	"github.com/maximebr/fraud-assistant/internal/core/ports"
	"github.com/maximebr/fraud-assistant/internal/core/sanitize"
)

var errNoGeneration = errors.New("no active index generation")

// generation binds the dense collection and the lexical index that were
// built from the same corpus snapshot. Readers always see both or neither.
type generation struct {
	collection string
	lexical    ports.LexicalSearcher
	chunkCount int
}

type RetrieveConfig struct {
	TopKSemantic   int
	TopKLexical    int
	SemanticWeight float64
}

func (c *RetrieveConfig) normalize() {
	if c.TopKSemantic <= 0 {
		c.TopKSemantic = 5
	}
	if c.TopKLexical <= 0 {
		c.TopKLexical = 3
	}
	if c.SemanticWeight <= 0 || c.SemanticWeight > 1 {
		c.SemanticWeight = 0.7
	}
}

// RetrieveUseCase runs hybrid retrieval against the active generation and
// sanitizes every passage before it reaches prompt assembly.
type RetrieveUseCase struct {
	embedder ports.Embedder
	vectorDB ports.VectorStore
	checker  *sanitize.Checker
	cfg      RetrieveConfig

	active atomic.Pointer[generation]
}

func NewRetrieveUseCase(
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	checker *sanitize.Checker,
	cfg RetrieveConfig,
) *RetrieveUseCase {
	cfg.normalize()
	return &RetrieveUseCase{
		embedder: embedder,
		vectorDB: vectorDB,
		checker:  checker,
		cfg:      cfg,
	}
}

// SwapGeneration atomically replaces the generation served to readers.
// In-flight retrievals finish against the generation they started with.
func (uc *RetrieveUseCase) SwapGeneration(collection string, lexical ports.LexicalSearcher, chunkCount int) {
	uc.active.Store(&generation{
		collection: collection,
		lexical:    lexical,
		chunkCount: chunkCount,
	})
}

// ActiveCollection reports the served generation name and corpus size.
// Empty name means retrieval is not available yet.
func (uc *RetrieveUseCase) ActiveCollection() (string, int) {
	gen := uc.active.Load()
	if gen == nil {
		return "", 0
	}
	return gen.collection, gen.chunkCount
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, query string) ([]domain.RetrievedPassage, error) {
	gen := uc.active.Load()
	if gen == nil {
		return nil, domain.WrapError(domain.ErrRetrievalTransport, "retrieve", errNoGeneration)
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalTransport, "embed query", err)
	}

	semantic, err := uc.vectorDB.Search(ctx, gen.collection, queryVector, uc.cfg.TopKSemantic)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalTransport, "vector search", err)
	}
	lexical := gen.lexical.Search(query, uc.cfg.TopKLexical)

	fused := fuseWeighted(semantic, lexical, uc.cfg.SemanticWeight)
	for i := range fused {
		sanitized, trust := uc.checker.SanitizePassage(fused[i].Chunk.Content)
		fused[i].Chunk.Content = sanitized
		fused[i].TrustLevel = trust
	}
	return fused, nil
}

package ports

import (
	"context"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// Embedder builds vectors for chunk content and query text. Vectors are
// assumed L2-normalized for cosine comparability.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the external dense index. Collections are named per index
// generation; a rebuild populates a fresh collection and the old one is
// dropped after the swap.
type VectorStore interface {
	CreateCollection(ctx context.Context, collection string, vectorSize int) error
	DeleteCollection(ctx context.Context, collection string) error
	IndexChunks(ctx context.Context, collection string, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, collection string, queryVector []float32, limit int) ([]domain.RetrievedPassage, error)
}

// LexicalSearcher scores chunks against a query with term-frequency
// ranking. Implementations are immutable once built.
type LexicalSearcher interface {
	Search(query string, limit int) []domain.RetrievedPassage
	Len() int
}

// Generator performs one chat-style generation call. No structural
// guarantee is made about the returned text.
type Generator interface {
	Generate(ctx context.Context, messages []domain.Message) (string, error)
	Healthy(ctx context.Context) bool
}

// ChunkRepository persists the chunk corpus per index generation so the
// lexical index can be rebuilt at startup without re-reading source files.
type ChunkRepository interface {
	ReplaceGeneration(ctx context.Context, generation string, chunks []domain.Chunk, report domain.IngestReport) error
	ActiveGeneration(ctx context.Context) (string, int, error)
	LoadChunks(ctx context.Context, generation string) ([]domain.Chunk, error)
	LastReport(ctx context.Context) (*domain.IngestReport, error)
}

// MessageQueue decouples reindex requests from the rebuild itself.
type MessageQueue interface {
	PublishReindexRequested(ctx context.Context, reason string) error
	SubscribeReindexRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// Chunker splits cleaned section text into bounded, overlapping spans.
type Chunker interface {
	Split(text string) []domain.TextSpan
}

// SectionExtractor turns one source file into (text, location, title)
// sections. Extraction failures are per-file, never fatal to a batch.
type SectionExtractor interface {
	Supports(ext string) bool
	Extract(ctx context.Context, path string) ([]domain.SourceSection, error)
}

package ports

import (
	"context"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// ChatService is the inbound contract for one assisted fraud conversation
// turn. It never returns an error for malformed model output; that is
// resolved internally into a safe fallback answer.
type ChatService interface {
	Chat(ctx context.Context, req domain.ChatRequest) *domain.ChatResult
}

// Reindexer rebuilds the whole retrieval corpus as a fresh generation and
// swaps it in atomically.
type Reindexer interface {
	Reindex(ctx context.Context, reason string) (*domain.IngestReport, error)
}

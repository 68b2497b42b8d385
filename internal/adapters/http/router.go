package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
	"github.com/maximebr/fraud-assistant/internal/core/ports"
	"github.com/maximebr/fraud-assistant/internal/observability/metrics"
)

const serviceName = "api"

// reindexPublisher is the slice of the message queue the API needs: it
// only requests rebuilds, the indexer performs them.
type reindexPublisher interface {
	PublishReindexRequested(ctx context.Context, reason string) error
}

// activeIndex exposes the currently served index generation.
type activeIndex interface {
	ActiveCollection() (string, int)
}

type Router struct {
	chat      ports.ChatService
	publisher reindexPublisher
	repo      ports.ChunkRepository
	generator ports.Generator
	index     activeIndex
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
	limiter   *rate.Limiter
}

func NewRouter(
	chat ports.ChatService,
	publisher reindexPublisher,
	repo ports.ChunkRepository,
	generator ports.Generator,
	index activeIndex,
	m *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	rps float64,
	burst int,
) *Router {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = int(rps)
	}
	return &Router{
		chat:      chat,
		publisher: publisher,
		repo:      repo,
		generator: generator,
		index:     index,
		metrics:   m,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/chat", rt.handleChat)
	mux.HandleFunc("/v1/reindex", rt.handleReindex)
	mux.HandleFunc("/v1/index/stats", rt.indexStats)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(rt.limiter, handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	collection, chunkCount := rt.index.ActiveCollection()

	status := "ok"
	llmStatus := "ok"
	if !rt.generator.Healthy(r.Context()) {
		status = "degraded"
		llmStatus = "unavailable"
	}
	indexStatus := "ok"
	if collection == "" {
		status = "degraded"
		indexStatus = "empty"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"llm":         llmStatus,
		"index":       indexStatus,
		"generation":  collection,
		"chunk_count": chunkCount,
	})
}

func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_message is required"})
		return
	}

	start := time.Now()
	result := rt.chat.Chat(r.Context(), req)
	if rt.metrics != nil {
		rt.metrics.RecordChatOutcome(serviceName, chatOutcome(result), time.Since(start))
		if result.Diagnostics.InjectionDetected {
			rt.metrics.RecordInjectionDetected(serviceName, "user")
		}
		if result.Diagnostics.RepairAttempted {
			rt.metrics.RecordParseRepair(serviceName)
		}
		if result.Diagnostics.ParseFallback {
			rt.metrics.RecordParseFallback(serviceName)
		}
		if result.Answer != nil {
			rt.metrics.RecordRetrieval(serviceName, result.Answer.PassagesUsed)
			for _, citation := range result.Answer.Citations {
				binding := "bound"
				if strings.HasPrefix(citation.ChunkID, "unverified_") {
					binding = "placeholder"
				}
				rt.metrics.RecordCitationBinding(serviceName, binding)
			}
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func chatOutcome(result *domain.ChatResult) string {
	switch {
	case result == nil || !result.Success:
		return "error"
	case result.Answer != nil && result.Answer.InfoNotFound:
		return "info_not_found"
	default:
		return "answered"
	}
}

func (rt *Router) handleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual"
	}

	if err := rt.publisher.PublishReindexRequested(r.Context(), reason); err != nil {
		rt.logger.Error("reindex publish failed", "error", err)
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": "failed to enqueue reindex"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"reason": reason,
	})
}

func (rt *Router) indexStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	collection, chunkCount := rt.index.ActiveCollection()
	report, err := rt.repo.LastReport(r.Context())
	if err != nil {
		rt.logger.Error("index stats lookup failed", "error", err)
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": "failed to load index stats"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"generation":  collection,
		"chunk_count": chunkCount,
		"last_report": report,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
	"github.com/maximebr/fraud-assistant/internal/core/ports"
	"github.com/maximebr/fraud-assistant/internal/infrastructure/resilience"
)

// ResilientGenerator retries transient chat failures with backoff and trips
// the shared circuit breaker on persistent ones. The JSON-repair retry in
// the chat pipeline is separate and sits above this wrapper.
type ResilientGenerator struct {
	inner    *Generator
	executor *resilience.Executor
}

func NewResilientGenerator(inner *Generator, executor *resilience.Executor) *ResilientGenerator {
	return &ResilientGenerator{inner: inner, executor: executor}
}

var _ ports.Generator = (*ResilientGenerator)(nil)

func (g *ResilientGenerator) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	var out string
	err := g.executor.Execute(ctx, "ollama.chat", func(ctx context.Context) error {
		var callErr error
		out, callErr = g.inner.Generate(ctx, messages)
		return callErr
	}, classifyOllamaError)
	if err != nil {
		return "", wrapGenerationError("ollama chat", err)
	}
	return out, nil
}

// wrapGenerationError marks a failed generation call once the retry budget
// is spent. Caller-side cancellation passes through untouched.
func wrapGenerationError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if domain.IsKind(err, domain.ErrGenerationTransport) {
		return err
	}
	return domain.WrapError(domain.ErrGenerationTransport, operation, err)
}

func (g *ResilientGenerator) Healthy(ctx context.Context) bool {
	return g.inner.Healthy(ctx)
}

// ResilientEmbedder applies the same policy to embedding calls, which are
// on the critical path of both queries and reindexing.
type ResilientEmbedder struct {
	inner    *Embedder
	executor *resilience.Executor
}

func NewResilientEmbedder(inner *Embedder, executor *resilience.Executor) *ResilientEmbedder {
	return &ResilientEmbedder{inner: inner, executor: executor}
}

var _ ports.Embedder = (*ResilientEmbedder)(nil)

func (e *ResilientEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := e.executor.Execute(ctx, "ollama.embed", func(ctx context.Context) error {
		var callErr error
		out, callErr = e.inner.Embed(ctx, texts)
		return callErr
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	return out, nil
}

func (e *ResilientEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func classifyOllamaError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}

	class := classifyOllamaError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

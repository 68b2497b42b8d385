package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
	"github.com/maximebr/fraud-assistant/internal/core/ports"
	"github.com/maximebr/fraud-assistant/internal/core/sanitize"
)

// passageRetriever is what the chat pipeline needs from retrieval. Satisfied
// by RetrieveUseCase.
type passageRetriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.RetrievedPassage, error)
}

type ChatConfig struct {
	// MinRelevance separates strong passages from noise. Below it the
	// pipeline answers with a clarification instead of calling generation.
	MinRelevance float64
}

func (c *ChatConfig) normalize() {
	if c.MinRelevance <= 0 {
		c.MinRelevance = 0.35
	}
}

// ChatUseCase is the request-scoped pipeline: sanitize, gate, retrieve,
// generate, reconcile. Chat never returns a Go error; every failure mode
// resolves to a structured result with a safe customer-facing message.
type ChatUseCase struct {
	retriever passageRetriever
	generator ports.Generator
	checker   *sanitize.Checker
	cfg       ChatConfig
	logger    *slog.Logger
}

func NewChatUseCase(
	retriever passageRetriever,
	generator ports.Generator,
	checker *sanitize.Checker,
	cfg ChatConfig,
	logger *slog.Logger,
) *ChatUseCase {
	cfg.normalize()
	return &ChatUseCase{
		retriever: retriever,
		generator: generator,
		checker:   checker,
		cfg:       cfg,
		logger:    logger,
	}
}

func (uc *ChatUseCase) Chat(ctx context.Context, req domain.ChatRequest) *domain.ChatResult {
	start := time.Now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()[:8]
	}
	log := uc.logger.With("session_id", sessionID)

	var diag domain.ChatDiagnostics
	result := func(success bool, answer *domain.StructuredAnswer, errMsg string) *domain.ChatResult {
		return &domain.ChatResult{
			Success:          success,
			Answer:           answer,
			Error:            errMsg,
			SessionID:        sessionID,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
			Diagnostics:      diag,
		}
	}

	screened := uc.checker.CheckInjection(req.UserMessage)
	if screened.Suspicious {
		diag.InjectionDetected = true
		log.Warn("suspicious user input", "patterns", screened.PatternsFound)
	}
	message := screened.Sanitized

	if sensitive, categories := uc.checker.CheckSensitiveRequest(message); sensitive {
		log.Warn("sensitive data request refused", "categories", categories)
		return result(true, sensitiveRefusalAnswer(), "")
	}

	if !req.FraudConfirmed && !sanitize.IsFraudConfirmation(message) {
		return result(true, confirmationAnswer(), "")
	}

	query := buildRetrievalQuery(message, req.Transaction)
	passages, err := uc.retriever.Retrieve(ctx, query)
	if err != nil {
		log.Error("retrieval failed", "error", err)
		return result(false, fallbackAnswer("retrieval unavailable", 0), err.Error())
	}

	if !hasStrongPassage(passages, uc.cfg.MinRelevance) {
		log.Info("retrieval below relevance threshold", "passages", len(passages))
		return result(true, clarificationAnswer(len(passages)), "")
	}

	messages := []domain.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserMessage(message, req.Transaction, passages, req.History)},
	}

	raw, err := uc.generator.Generate(ctx, messages)
	if err != nil {
		log.Error("generation failed", "error", err)
		return result(false, fallbackAnswer("generation unavailable", len(passages)), err.Error())
	}

	parsed := parseStructuredAnswer(raw)
	if parsed == nil {
		// One repair retry with the raw output and a corrective instruction
		// appended, then the fallback.
		diag.RepairAttempted = true
		messages = append(messages,
			domain.Message{Role: "assistant", Content: raw},
			domain.Message{Role: "user", Content: repairInstruction},
		)
		raw, err = uc.generator.Generate(ctx, messages)
		if err != nil {
			log.Error("repair generation failed", "error", err)
			return result(false, fallbackAnswer("generation unavailable", len(passages)), err.Error())
		}
		parsed = parseStructuredAnswer(raw)
	}

	if parsed == nil {
		diag.ParseFallback = true
		log.Warn("structured parse failed after repair retry")
		return result(true, fallbackAnswer("invalid model output", len(passages)), "")
	}

	answer := reconcileAnswer(parsed, passages, uc.cfg.MinRelevance)
	log.Info("chat answered",
		"actions", len(answer.Actions),
		"citations", len(answer.Citations),
		"info_not_found", answer.InfoNotFound,
	)
	return result(true, answer, "")
}

func hasStrongPassage(passages []domain.RetrievedPassage, minRelevance float64) bool {
	for _, p := range passages {
		if p.Score >= minRelevance {
			return true
		}
	}
	return false
}

// confirmationAnswer gates the procedure flow until the client confirms the
// transaction is fraudulent.
func confirmationAnswer() *domain.StructuredAnswer {
	return &domain.StructuredAnswer{
		Message: "Je suis là pour vous aider en cas de fraude confirmée. " +
			"Pouvez-vous confirmer qu'il s'agit bien d'une transaction frauduleuse?",
		MissingInfoQuestions: []string{
			"S'agit-il bien d'une transaction que vous n'avez pas effectuée?",
		},
	}
}

// sensitiveRefusalAnswer answers a request for data the assistant must
// never handle, without calling retrieval or generation.
func sensitiveRefusalAnswer() *domain.StructuredAnswer {
	return &domain.StructuredAnswer{
		Message: "Pour votre sécurité, je ne peux ni demander ni traiter de numéro de carte complet, " +
			"de code PIN, de CVV ou de mot de passe. Votre banque ne vous les demandera jamais non plus.",
		Actions: []string{
			"Ne communiquez jamais vos codes confidentiels, même à votre banque",
		},
		RiskFlags: []domain.RiskFlag{{
			Type:        "sensitive_data_request",
			Description: "request for confidential credentials refused",
			Severity:    "high",
		}},
		InfoNotFound: true,
	}
}

// clarificationAnswer is the short-circuit when the corpus has nothing
// strong enough to ground an answer.
func clarificationAnswer(passagesUsed int) *domain.StructuredAnswer {
	return &domain.StructuredAnswer{
		Message: "Je n'ai pas trouvé de procédure correspondant précisément à votre situation " +
			"dans la documentation actuelle.",
		MissingInfoQuestions: []string{
			"Pouvez-vous préciser le type d'opération concernée (carte, virement, prélèvement)?",
			"Quand la transaction a-t-elle eu lieu?",
		},
		PassagesUsed: passagesUsed,
		InfoNotFound: true,
	}
}

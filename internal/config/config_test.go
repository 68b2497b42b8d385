package config

import "testing"

func TestLoadRetrievalDefaults(t *testing.T) {
	t.Setenv("TOP_K_SEMANTIC", "")
	t.Setenv("TOP_K_LEXICAL", "")
	t.Setenv("SEMANTIC_WEIGHT", "")
	t.Setenv("MIN_RELEVANCE", "")
	t.Setenv("CHUNK_SIZE", "")

	cfg := Load()
	if cfg.TopKSemantic != 5 {
		t.Fatalf("expected default semantic top k 5, got %d", cfg.TopKSemantic)
	}
	if cfg.TopKLexical != 3 {
		t.Fatalf("expected default lexical top k 3, got %d", cfg.TopKLexical)
	}
	if cfg.SemanticWeight != 0.7 {
		t.Fatalf("expected default semantic weight 0.7, got %f", cfg.SemanticWeight)
	}
	if cfg.MinRelevance != 0.35 {
		t.Fatalf("expected default min relevance 0.35, got %f", cfg.MinRelevance)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 50 || cfg.MinChunkLen != 20 {
		t.Fatalf("chunking defaults = %d/%d/%d", cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkLen)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("SEMANTIC_WEIGHT", "0.5")
	t.Setenv("TOP_K_SEMANTIC", "8")
	t.Setenv("OLLAMA_GEN_MODEL", "mistral-small")
	t.Setenv("API_RATE_LIMIT_RPS", "3.5")

	cfg := Load()
	if cfg.SemanticWeight != 0.5 {
		t.Fatalf("expected semantic weight override, got %f", cfg.SemanticWeight)
	}
	if cfg.TopKSemantic != 8 {
		t.Fatalf("expected semantic top k 8, got %d", cfg.TopKSemantic)
	}
	if cfg.OllamaGenModel != "mistral-small" {
		t.Fatalf("expected gen model override, got %q", cfg.OllamaGenModel)
	}
	if cfg.APIRateLimitRPS != 3.5 {
		t.Fatalf("expected rate limit rps 3.5, got %f", cfg.APIRateLimitRPS)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("TOP_K_SEMANTIC", "beaucoup")
	t.Setenv("SEMANTIC_WEIGHT", "nan ratio")

	cfg := Load()
	if cfg.TopKSemantic != 5 {
		t.Fatalf("malformed int must fall back, got %d", cfg.TopKSemantic)
	}
	if cfg.SemanticWeight != 0.7 {
		t.Fatalf("malformed float must fall back, got %f", cfg.SemanticWeight)
	}
}

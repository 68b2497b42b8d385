package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// parsedAnswer mirrors the JSON contract announced in the system prompt.
// Citations and risk flags are kept raw so one malformed element degrades
// to a skip instead of failing the whole parse.
type parsedAnswer struct {
	CustomerMessage      string            `json:"customer_message"`
	Actions              []string          `json:"actions"`
	MissingInfoQuestions []string          `json:"missing_info_questions"`
	Citations            []json.RawMessage `json:"citations"`
	RiskFlags            []json.RawMessage `json:"risk_flags"`
	InfoNotFound         bool              `json:"info_not_found"`
}

type claimedCitation struct {
	DocID    string `json:"doc_id"`
	Title    string `json:"title"`
	Location string `json:"page_or_section"`
	Excerpt  string `json:"excerpt"`
}

var fencedBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseStructuredAnswer runs the parse cascade: strict parse, then every
// fenced code block, then the outermost brace-delimited substring. A nil
// result means all stages failed and the caller owes one repair retry.
func parseStructuredAnswer(raw string) *parsedAnswer {
	if parsed := tryParse(raw); parsed != nil {
		return parsed
	}

	for _, match := range fencedBlockRe.FindAllStringSubmatch(raw, -1) {
		if parsed := tryParse(match[1]); parsed != nil {
			return parsed
		}
	}

	open := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if open >= 0 && end > open {
		if parsed := tryParse(raw[open : end+1]); parsed != nil {
			return parsed
		}
	}
	return nil
}

func tryParse(text string) *parsedAnswer {
	text = strings.TrimSpace(text)
	if text == "" || text[0] != '{' {
		return nil
	}
	var parsed parsedAnswer
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil
	}
	return &parsed
}

// reconcileAnswer turns a parsed payload into a verified StructuredAnswer:
// claimed citations are re-bound to actual retrieved passages, duplicates
// are dropped, and the evidence policy is enforced last.
func reconcileAnswer(parsed *parsedAnswer, passages []domain.RetrievedPassage, minRelevance float64) *domain.StructuredAnswer {
	answer := &domain.StructuredAnswer{
		Message:              parsed.CustomerMessage,
		Actions:              parsed.Actions,
		MissingInfoQuestions: parsed.MissingInfoQuestions,
		PassagesUsed:         len(passages),
		InfoNotFound:         parsed.InfoNotFound,
	}
	if answer.Message == "" {
		answer.Message = "Je n'ai pas pu traiter votre demande. Veuillez contacter votre banque directement."
	}

	for i, raw := range parsed.Citations {
		var claimed claimedCitation
		if err := json.Unmarshal(raw, &claimed); err != nil {
			continue
		}
		answer.Citations = append(answer.Citations, bindCitation(claimed, i, passages))
	}
	answer.Citations = dedupeCitations(answer.Citations)

	for _, raw := range parsed.RiskFlags {
		var flag domain.RiskFlag
		if err := json.Unmarshal(raw, &flag); err != nil {
			continue
		}
		if flag.Type == "" {
			flag.Type = "unknown"
		}
		if flag.Severity == "" {
			flag.Severity = "medium"
		}
		answer.RiskFlags = append(answer.RiskFlags, flag)
	}

	enforceEvidence(answer, passages, minRelevance)
	return answer
}

// bindCitation matches one claimed citation against the retrieved candidate
// set. Base score is the passage's fusion score, an exact location match
// adds 0.5, and excerpt token overlap adds up to 1.0. When a doc_id was
// claimed the candidates are restricted to it unless none carry that id.
// With no candidates at all the claim is kept as an unverified placeholder.
func bindCitation(claimed claimedCitation, index int, passages []domain.RetrievedPassage) domain.Citation {
	if len(passages) == 0 {
		return domain.Citation{
			ChunkID:    fmt.Sprintf("unverified_%d", index),
			DocID:      claimed.DocID,
			Title:      orDefault(claimed.Title, claimed.DocID),
			Location:   orDefault(claimed.Location, "N/A"),
			Excerpt:    truncateRunes(claimed.Excerpt, 200),
			Score:      0,
			TrustLevel: domain.TrustTrusted,
		}
	}

	candidates := passages
	if claimed.DocID != "" {
		restricted := make([]domain.RetrievedPassage, 0, len(passages))
		for _, p := range passages {
			if p.Chunk.DocID == claimed.DocID {
				restricted = append(restricted, p)
			}
		}
		if len(restricted) > 0 {
			candidates = restricted
		}
	}

	excerptTokens := citationTokens(claimed.Excerpt)
	best := candidates[0]
	bestScore := -1.0
	for _, p := range candidates {
		score := p.Score
		if claimed.Location != "" && claimed.Location == p.Chunk.Location {
			score += 0.5
		}
		score += tokenOverlap(excerptTokens, p.Chunk.Content)
		if score > bestScore {
			best = p
			bestScore = score
		}
	}

	citation := best.AsCitation()
	if claimed.Excerpt != "" {
		citation.Excerpt = truncateRunes(claimed.Excerpt, 200)
	}
	return citation
}

// tokenOverlap is the share of the claimed excerpt's distinct tokens that
// also occur in the passage content. Tokens shorter than 3 runes are noise
// and ignored.
func tokenOverlap(excerptTokens map[string]struct{}, content string) float64 {
	if len(excerptTokens) == 0 {
		return 0
	}
	contentTokens := citationTokens(content)
	shared := 0
	for token := range excerptTokens {
		if _, ok := contentTokens[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(excerptTokens))
}

func citationTokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			token := b.String()
			if len([]rune(token)) >= 3 {
				out[token] = struct{}{}
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

func dedupeCitations(citations []domain.Citation) []domain.Citation {
	if len(citations) == 0 {
		return citations
	}
	type key struct {
		chunkID  string
		docID    string
		location string
	}
	seen := make(map[key]struct{}, len(citations))
	out := citations[:0]
	for _, c := range citations {
		k := key{c.ChunkID, c.DocID, c.Location}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// enforceEvidence is the terminal policy gate: guidance may leave the
// pipeline only citation-backed or explicitly marked unresolved.
func enforceEvidence(answer *domain.StructuredAnswer, passages []domain.RetrievedPassage, minRelevance float64) {
	if len(answer.Actions) > 0 && len(answer.Citations) == 0 {
		attached := 0
		for _, p := range passages {
			if p.Score < minRelevance {
				continue
			}
			answer.Citations = append(answer.Citations, p.AsCitation())
			attached++
			if attached == 2 {
				break
			}
		}
	}

	hasGuidance := answer.Message != "" || len(answer.Actions) > 0
	if hasGuidance && len(answer.Citations) == 0 && !answer.InfoNotFound {
		answer.InfoNotFound = true
		if len(answer.MissingInfoQuestions) == 0 {
			answer.MissingInfoQuestions = append(answer.MissingInfoQuestions,
				"Pouvez-vous préciser votre demande (opposition, contestation, délais de remboursement)?")
		}
	}
}

// fallbackAnswer is the safe terminal answer when generation output could
// not be parsed or the pipeline failed downstream of retrieval.
func fallbackAnswer(reason string, passagesUsed int) *domain.StructuredAnswer {
	return &domain.StructuredAnswer{
		Message: "Je rencontre actuellement des difficultés techniques. " +
			"Pour votre sécurité, je vous recommande de contacter directement " +
			"votre banque via les numéros officiels figurant sur votre carte bancaire " +
			"ou sur votre espace client.",
		Actions: []string{
			"Appelez le numéro au dos de votre carte bancaire",
			"Connectez-vous à votre espace bancaire en ligne",
			"Ne communiquez jamais vos codes confidentiels",
		},
		RiskFlags: []domain.RiskFlag{{
			Type:        "technical_issue",
			Description: reason,
			Severity:    "low",
		}},
		PassagesUsed: passagesUsed,
		InfoNotFound: true,
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

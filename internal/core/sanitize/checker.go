package sanitize

import (
	"strings"
	"unicode"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// Result is the outcome of one injection screen. Content is always passed
// through sanitized, never dropped; the trust level is an annotation for
// downstream prompting and citation preference.
type Result struct {
	Suspicious    bool
	PatternsFound []string
	Sanitized     string
	TrustLevel    domain.TrustLevel
}

// Checker screens text against the injection and sensitive-data tables.
// The zero value is not usable; build it with New.
type Checker struct {
	injection []Rule
	sensitive []Rule
}

func New() *Checker {
	return &Checker{
		injection: injectionRules,
		sensitive: sensitiveRules,
	}
}

// CheckInjection screens text for injection, jailbreak, exfiltration and
// delimiter-attack phrasing. Control characters are stripped and whitespace
// collapsed regardless of match outcome.
func (c *Checker) CheckInjection(text string) Result {
	if text == "" {
		return Result{Sanitized: text, TrustLevel: domain.TrustTrusted}
	}

	var found []string
	seen := make(map[string]struct{})
	for _, rule := range c.injection {
		if !rule.Pattern.MatchString(text) {
			continue
		}
		if _, dup := seen[rule.Category]; dup {
			continue
		}
		seen[rule.Category] = struct{}{}
		found = append(found, rule.Category)
	}

	trust := domain.TrustTrusted
	if len(found) > 0 {
		trust = domain.TrustUntrusted
	}

	return Result{
		Suspicious:    len(found) > 0,
		PatternsFound: found,
		Sanitized:     collapseWhitespace(stripControl(text)),
		TrustLevel:    trust,
	}
}

// CheckSensitiveRequest reports whether text is trying to request data the
// assistant must never handle (PAN, CVV, PIN, password).
func (c *Checker) CheckSensitiveRequest(text string) (bool, []string) {
	var found []string
	seen := make(map[string]struct{})
	for _, rule := range c.sensitive {
		if !rule.Pattern.MatchString(text) {
			continue
		}
		if _, dup := seen[rule.Category]; dup {
			continue
		}
		seen[rule.Category] = struct{}{}
		found = append(found, rule.Category)
	}
	return len(found) > 0, found
}

// SanitizePassage screens one retrieved passage. Passages are citation
// material only; a suspicious passage stays in the candidate set but is
// demoted to untrusted.
func (c *Checker) SanitizePassage(content string) (string, domain.TrustLevel) {
	result := c.CheckInjection(content)
	return result.Sanitized, result.TrustLevel
}

// IsFraudConfirmation matches variations of "yes, it's fraud" in French
// and English.
func IsFraudConfirmation(message string) bool {
	message = strings.ToLower(strings.TrimSpace(message))
	for _, re := range fraudConfirmationPatterns {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

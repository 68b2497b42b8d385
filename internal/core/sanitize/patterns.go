package sanitize

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule maps one detection regex to an auditable category name. Keeping the
// tables data-driven makes the screening auditable and extensible without
// touching control flow.
type Rule struct {
	Pattern  *regexp.Regexp
	Category string
}

// Injection, jailbreak, exfiltration and delimiter-attack phrasing. Matched
// case-insensitively against passages and user messages alike.
var injectionRules = mustRules([]rawRule{
	{`ignore\s+(previous|above|all|the)\s+(instructions?|prompts?|rules?)`, "ignore_instructions"},
	{`forget\s+(everything|all|what)`, "forget_command"},
	{`disregard\s+(previous|above|the|all)`, "disregard_command"},

	{`(new\s+)?system\s*(prompt|instruction|message)`, "system_override"},
	{`you\s+are\s+(now|a)\s+`, "role_override"},
	{`act\s+as\s+(if\s+you\s+are|a)`, "role_override"},
	{`pretend\s+(to\s+be|you\s+are)`, "role_override"},

	{`(output|print|say|respond\s+with)\s*[:\-]?\s*["']`, "output_injection"},
	{`your\s+(new\s+)?response\s+(should|must|will)\s+be`, "output_override"},

	{`\b(dan|stan|dude)\b\s*(mode)?`, "jailbreak_alias"},
	{`developer\s+mode`, "jailbreak_alias"},
	{`(no|without)\s+(restrictions?|limits?|rules?)`, "jailbreak_alias"},

	{"```\\s*(python|bash|shell|cmd|exec)", "code_injection"},
	{`(execute|run|eval)\s*\(`, "code_injection"},

	{`<\|?(end|start|system|im_end|im_start)\|?>`, "delimiter_attack"},
	{`\[inst\]|\[/inst\]`, "delimiter_attack"},
	{`###\s*(system|user|assistant)`, "delimiter_attack"},

	{`(show|reveal|display)\s+(the\s+)?(system|full|original)\s+(prompt|instructions?)`, "exfiltration"},
	{`what\s+(are|is)\s+your\s+(instructions?|system\s+prompt)`, "exfiltration"},
})

// Requests for data the assistant must never ask for or relay.
var sensitiveRules = mustRules([]rawRule{
	{`(card|carte)\s*(number|numero|n°|num)`, "card_number_request"},
	{`(cvv|cvc|cvv2|cvc2|code\s+sécurité)`, "cvv_request"},
	{`(\bpin\b|code\s+secret|code\s+confidentiel)`, "pin_request"},
	{`(password|mot\s+de\s+passe|mdp)`, "password_request"},
	{`(full|complet|entier)\s*(pan|numéro)`, "full_pan_request"},
})

var fraudConfirmationPatterns = compileAll([]string{
	`oui.*fraude`,
	`je\s+confirme.*fraude`,
	`(c'est|c est)\s+(bien\s+)?(une\s+)?fraude`,
	`fraude\s+confirm[ée]e?`,
	`effectivement.*fraude`,

	`yes.*fraud`,
	`it('?s| is)\s+(a\s+)?fraud`,
	`confirm.*fraud`,
	`fraud\s+confirmed`,
})

type rawRule struct {
	Pattern  string
	Category string
}

func mustRules(raw []rawRule) []Rule {
	out := make([]Rule, 0, len(raw))
	for _, r := range raw {
		out = append(out, Rule{
			Pattern:  regexp.MustCompile(`(?i)` + r.Pattern),
			Category: r.Category,
		})
	}
	return out
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

type patternFile struct {
	Injection []struct {
		Pattern  string `yaml:"pattern"`
		Category string `yaml:"category"`
	} `yaml:"injection"`
	Sensitive []struct {
		Pattern  string `yaml:"pattern"`
		Category string `yaml:"category"`
	} `yaml:"sensitive"`
}

// LoadExtraRules merges operator-maintained patterns from a YAML file into
// the built-in tables. A missing path is not an error.
func (c *Checker) LoadExtraRules(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pattern file: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse pattern file: %w", err)
	}

	for _, entry := range file.Injection {
		re, err := regexp.Compile(`(?i)` + entry.Pattern)
		if err != nil {
			return fmt.Errorf("compile injection pattern %q: %w", entry.Pattern, err)
		}
		c.injection = append(c.injection, Rule{Pattern: re, Category: entry.Category})
	}
	for _, entry := range file.Sensitive {
		re, err := regexp.Compile(`(?i)` + entry.Pattern)
		if err != nil {
			return fmt.Errorf("compile sensitive pattern %q: %w", entry.Pattern, err)
		}
		c.sensitive = append(c.sensitive, Rule{Pattern: re, Category: entry.Category})
	}
	return nil
}

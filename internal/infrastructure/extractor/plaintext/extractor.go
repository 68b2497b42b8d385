package plaintext

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// Extractor reads UTF-8 text files as a single section.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Supports(ext string) bool {
	return strings.ToLower(ext) == ".txt"
}

func (e *Extractor) Extract(ctx context.Context, path string) ([]domain.SourceSection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("not valid utf-8: %s", path)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("empty file: %s", path)
	}
	return []domain.SourceSection{{Text: text, Location: "document"}}, nil
}

package pdfsrc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// Extractor reads PDF documents page by page; each page becomes one
// section so citations can point at page numbers.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Supports(ext string) bool {
	return strings.ToLower(ext) == ".pdf"
}

func (e *Extractor) Extract(ctx context.Context, path string) ([]domain.SourceSection, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))

	var out []domain.SourceSection
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A broken page is skipped, not fatal for the document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, domain.SourceSection{
			Text:     text,
			Location: fmt.Sprintf("page %d", pageNum),
			Title:    title,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no extractable text: %s", path)
	}
	return out, nil
}

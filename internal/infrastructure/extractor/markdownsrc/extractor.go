package markdownsrc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// Extractor splits markdown documents into sections along level 1 and 2
// headings, so chunk locations line up with the document's own structure.
type Extractor struct {
	parser goldmark.Markdown
}

func New() *Extractor {
	return &Extractor{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

func (e *Extractor) Supports(ext string) bool {
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		return true
	default:
		return false
	}
}

func (e *Extractor) Extract(ctx context.Context, path string) ([]domain.SourceSection, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown file: %w", err)
	}

	base := filepath.Base(path)
	docTitle := strings.TrimSuffix(base, filepath.Ext(base))

	doc := e.parser.Parser().Parse(text.NewReader(content))

	type section struct {
		title string
		body  strings.Builder
	}
	sections := []*section{{title: docTitle}}
	current := sections[0]

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if heading, ok := node.(*ast.Heading); ok && heading.Level <= 2 {
			title := nodeText(heading, content)
			if title == "" {
				title = docTitle
			}
			if current.body.Len() == 0 && current == sections[0] {
				// Leading heading names the first section instead of
				// opening an empty one.
				current.title = title
				continue
			}
			current = &section{title: title}
			sections = append(sections, current)
			continue
		}
		if body := nodeText(node, content); body != "" {
			if current.body.Len() > 0 {
				current.body.WriteString("\n\n")
			}
			current.body.WriteString(body)
		}
	}

	out := make([]domain.SourceSection, 0, len(sections))
	for i, s := range sections {
		body := strings.TrimSpace(s.body.String())
		if body == "" {
			continue
		}
		out = append(out, domain.SourceSection{
			Text:     body,
			Location: fmt.Sprintf("section %d: %s", i+1, s.title),
			Title:    s.title,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable text: %s", path)
	}
	return out, nil
}

// nodeText flattens one AST subtree back to plain text, keeping list and
// paragraph breaks as newlines.
func nodeText(node ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Paragraph, *ast.ListItem, *ast.TextBlock:
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(content))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteString(" ")
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(content))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

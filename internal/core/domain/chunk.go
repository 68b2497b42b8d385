package domain

// TrustLevel classifies a passage or message after injection screening.
type TrustLevel string

const (
	TrustTrusted   TrustLevel = "trusted"
	TrustUntrusted TrustLevel = "untrusted"
)

// RetrievalMethod records which search strategy produced a passage.
type RetrievalMethod string

const (
	MethodSemantic RetrievalMethod = "semantic"
	MethodLexical  RetrievalMethod = "lexical"
	MethodHybrid   RetrievalMethod = "hybrid"
)

// TextSpan is one split segment with rune offsets into the cleaned
// section text.
type TextSpan struct {
	Text  string
	Start int
	End   int
}

// SourceSection is one extracted unit of a source document, page for PDF
// and heading section for Markdown.
type SourceSection struct {
	Text     string
	Location string
	Title    string
}

// Chunk is an immutable, content-addressed unit of indexed document text.
// ChunkID is derived from content and position; a collision across the
// corpus is a fatal ingestion error.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Location   string `json:"location"`
	SourcePath string `json:"source_path"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	FileType   string `json:"file_type"`
}

// RetrievedPassage is a chunk enriched with query-time scoring. It lives
// only for the duration of one request.
type RetrievedPassage struct {
	Chunk
	Score      float64         `json:"score"`
	TrustLevel TrustLevel      `json:"trust_level"`
	Method     RetrievalMethod `json:"retrieval_method"`
}

const citationExcerptLimit = 200

// AsCitation converts a passage into its auditable citation form.
func (p RetrievedPassage) AsCitation() Citation {
	excerpt := p.Content
	if runes := []rune(excerpt); len(runes) > citationExcerptLimit {
		excerpt = string(runes[:citationExcerptLimit]) + "..."
	}
	return Citation{
		ChunkID:    p.ChunkID,
		DocID:      p.DocID,
		Title:      p.Title,
		Location:   p.Location,
		Excerpt:    excerpt,
		Score:      p.Score,
		SourcePath: p.SourcePath,
		TrustLevel: p.TrustLevel,
	}
}

// Citation binds one factual claim in an answer to a retrieved passage.
// A citation always resolves to a passage from the request's candidate
// set, or is explicitly an unverified placeholder with score 0.
type Citation struct {
	ChunkID    string     `json:"chunk_id"`
	DocID      string     `json:"doc_id"`
	Title      string     `json:"title"`
	Location   string     `json:"page_or_section"`
	Excerpt    string     `json:"excerpt"`
	Score      float64    `json:"score"`
	SourcePath string     `json:"source_path"`
	TrustLevel TrustLevel `json:"trust_level"`
}

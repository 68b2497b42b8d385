package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
	"github.com/maximebr/fraud-assistant/internal/core/ports"
)

type fakeExtractor struct {
	failOn string
}

func (f *fakeExtractor) Supports(ext string) bool { return ext == ".txt" }

func (f *fakeExtractor) Extract(ctx context.Context, path string) ([]domain.SourceSection, error) {
	if filepath.Base(path) == f.failOn {
		return nil, errors.New("corrupted file")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []domain.SourceSection{{Text: string(raw), Location: "section 1"}}, nil
}

type spanChunker struct{}

func (spanChunker) Split(text string) []domain.TextSpan {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []domain.TextSpan{{Text: text, Start: 0, End: len([]rune(text))}}
}

type recordingVectorStore struct {
	created  []string
	deleted  []string
	indexed  map[string]int
	indexErr error
}

func newRecordingVectorStore() *recordingVectorStore {
	return &recordingVectorStore{indexed: map[string]int{}}
}

func (r *recordingVectorStore) CreateCollection(ctx context.Context, collection string, vectorSize int) error {
	r.created = append(r.created, collection)
	return nil
}

func (r *recordingVectorStore) DeleteCollection(ctx context.Context, collection string) error {
	r.deleted = append(r.deleted, collection)
	return nil
}

func (r *recordingVectorStore) IndexChunks(ctx context.Context, collection string, chunks []domain.Chunk, vectors [][]float32) error {
	if r.indexErr != nil {
		return r.indexErr
	}
	r.indexed[collection] = len(chunks)
	return nil
}

func (r *recordingVectorStore) Search(ctx context.Context, collection string, queryVector []float32, limit int) ([]domain.RetrievedPassage, error) {
	return nil, nil
}

type fakeChunkRepo struct {
	generation string
	count      int
	chunks     []domain.Chunk
	report     *domain.IngestReport
}

func (f *fakeChunkRepo) ReplaceGeneration(ctx context.Context, generation string, chunks []domain.Chunk, report domain.IngestReport) error {
	f.generation = generation
	f.count = len(chunks)
	f.chunks = chunks
	f.report = &report
	return nil
}

func (f *fakeChunkRepo) ActiveGeneration(ctx context.Context) (string, int, error) {
	return f.generation, f.count, nil
}

func (f *fakeChunkRepo) LoadChunks(ctx context.Context, generation string) ([]domain.Chunk, error) {
	return f.chunks, nil
}

func (f *fakeChunkRepo) LastReport(ctx context.Context) (*domain.IngestReport, error) {
	return f.report, nil
}

type fakeSwapper struct {
	collection string
	count      int
	swaps      int
}

func (f *fakeSwapper) SwapGeneration(collection string, lexical ports.LexicalSearcher, chunkCount int) {
	f.collection = collection
	f.count = chunkCount
	f.swaps++
}

func (f *fakeSwapper) ActiveCollection() (string, int) { return f.collection, f.count }

func noopLexicalBuilder(chunks []domain.Chunk) ports.LexicalSearcher {
	return &stubLexical{}
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newReindexUseCase(dir string, store *recordingVectorStore, repo *fakeChunkRepo, swapper *fakeSwapper, failOn string) *ReindexUseCase {
	return NewReindexUseCase(
		[]ports.SectionExtractor{&fakeExtractor{failOn: failOn}},
		spanChunker{},
		&stubEmbedder{queryVector: []float32{0.1, 0.2}},
		store,
		repo,
		swapper,
		noopLexicalBuilder,
		ReindexConfig{DocsDir: dir, CollectionBase: "fraud_kb"},
		testLogger(),
	)
}

func TestReindexBuildsAndSwapsGeneration(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "opposition.txt", "Pour faire opposition, appelez le numero au dos de votre carte bancaire.")
	writeDoc(t, dir, "delais.txt", "Le remboursement intervient sous dix jours ouvres apres la contestation.")
	writeDoc(t, dir, "ignored.bin", "pas un format supporte")

	store := newRecordingVectorStore()
	repo := &fakeChunkRepo{}
	swapper := &fakeSwapper{}
	uc := newReindexUseCase(dir, store, repo, swapper, "")

	report, err := uc.Reindex(context.Background(), "test")
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if report.FilesProcessed != 2 || report.FilesFailed != 0 {
		t.Fatalf("report files = %d/%d", report.FilesProcessed, report.FilesFailed)
	}
	if report.ChunksCreated != 2 {
		t.Fatalf("chunks created = %d", report.ChunksCreated)
	}
	if !strings.HasPrefix(report.Generation, "fraud_kb_") {
		t.Fatalf("generation = %q", report.Generation)
	}
	if len(store.created) != 1 || store.created[0] != report.Generation {
		t.Fatalf("created collections = %v", store.created)
	}
	if store.indexed[report.Generation] != 2 {
		t.Fatalf("indexed chunks = %d", store.indexed[report.Generation])
	}
	if repo.generation != report.Generation || repo.count != 2 {
		t.Fatalf("persisted %q/%d", repo.generation, repo.count)
	}
	if swapper.swaps != 1 || swapper.collection != report.Generation {
		t.Fatalf("swapper = %+v", swapper)
	}

	for _, c := range repo.chunks {
		if c.ChunkID == "" || c.DocID == "" || c.Location != "section 1" {
			t.Fatalf("incomplete chunk: %+v", c)
		}
	}
}

func TestReindexIsolatesPerFileFailures(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "good.txt", "Une procedure valide avec du contenu exploitable.")
	writeDoc(t, dir, "bad.txt", "peu importe")

	uc := newReindexUseCase(dir, newRecordingVectorStore(), &fakeChunkRepo{}, &fakeSwapper{}, "bad.txt")

	report, err := uc.Reindex(context.Background(), "test")
	if err != nil {
		t.Fatalf("per-file failure must not abort the batch: %v", err)
	}
	if report.FilesProcessed != 1 || report.FilesFailed != 1 {
		t.Fatalf("report files = %d/%d", report.FilesProcessed, report.FilesFailed)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "bad.txt") {
		t.Fatalf("report errors = %v", report.Errors)
	}
}

func TestReindexDuplicateChunkIDsFatal(t *testing.T) {
	dir := t.TempDir()
	// Same base filename in two subdirectories produces identical chunk
	// identities for identical content.
	for _, sub := range []string{"a", "b"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
		writeDoc(t, filepath.Join(dir, sub), "guide.txt", "Contenu strictement identique dans les deux fichiers.")
	}

	uc := newReindexUseCase(dir, newRecordingVectorStore(), &fakeChunkRepo{}, &fakeSwapper{}, "")

	_, err := uc.Reindex(context.Background(), "test")
	if !domain.IsKind(err, domain.ErrDuplicateChunkID) {
		t.Fatalf("expected duplicate chunk id error, got %v", err)
	}
}

func TestReindexEmptyCorpusFails(t *testing.T) {
	uc := newReindexUseCase(t.TempDir(), newRecordingVectorStore(), &fakeChunkRepo{}, &fakeSwapper{}, "")
	if _, err := uc.Reindex(context.Background(), "test"); !domain.IsKind(err, domain.ErrIngestion) {
		t.Fatalf("expected ingestion error on empty corpus, got %v", err)
	}
}

func TestReindexDeletesPreviousCollection(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "doc.txt", "Du contenu documentaire suffisant pour produire un chunk.")

	store := newRecordingVectorStore()
	swapper := &fakeSwapper{collection: "fraud_kb_old", count: 10}
	uc := newReindexUseCase(dir, store, &fakeChunkRepo{}, swapper, "")

	report, err := uc.Reindex(context.Background(), "test")
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "fraud_kb_old" {
		t.Fatalf("deleted = %v", store.deleted)
	}
	if swapper.collection != report.Generation {
		t.Fatalf("swapper still on %q", swapper.collection)
	}
}

func TestRestoreRebuildsFromRepository(t *testing.T) {
	repo := &fakeChunkRepo{
		generation: "fraud_kb_prev",
		count:      3,
		chunks: []domain.Chunk{
			{ChunkID: "c1", DocID: "d", Content: "contenu un"},
			{ChunkID: "c2", DocID: "d", Content: "contenu deux"},
			{ChunkID: "c3", DocID: "d", Content: "contenu trois"},
		},
	}
	swapper := &fakeSwapper{}
	uc := newReindexUseCase(t.TempDir(), newRecordingVectorStore(), repo, swapper, "")

	if err := uc.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if swapper.swaps != 1 || swapper.collection != "fraud_kb_prev" || swapper.count != 3 {
		t.Fatalf("swapper = %+v", swapper)
	}
}

func TestRestoreWithoutGenerationIsNoop(t *testing.T) {
	swapper := &fakeSwapper{}
	uc := newReindexUseCase(t.TempDir(), newRecordingVectorStore(), &fakeChunkRepo{}, swapper, "")
	if err := uc.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if swapper.swaps != 0 {
		t.Fatal("no generation persisted, no swap expected")
	}
}

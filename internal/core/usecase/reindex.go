package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
	"github.com/maximebr/fraud-assistant/internal/core/ports"
)

// generationSwapper is what reindexing needs from the retrieval side.
// Satisfied by RetrieveUseCase.
type generationSwapper interface {
	SwapGeneration(collection string, lexical ports.LexicalSearcher, chunkCount int)
	ActiveCollection() (string, int)
}

// LexicalBuilder builds the in-process lexical index for one corpus
// snapshot.
type LexicalBuilder func(chunks []domain.Chunk) ports.LexicalSearcher

type ReindexConfig struct {
	DocsDir        string
	CollectionBase string
	VectorSize     int
}

func (c *ReindexConfig) normalize() {
	if c.CollectionBase == "" {
		c.CollectionBase = "fraud_kb"
	}
}

// ReindexUseCase rebuilds the whole corpus into a fresh index generation
// and swaps it in atomically. Queries never observe a half-built index;
// they keep hitting the previous generation until the swap.
type ReindexUseCase struct {
	extractors   []ports.SectionExtractor
	chunker      ports.Chunker
	embedder     ports.Embedder
	vectorDB     ports.VectorStore
	repo         ports.ChunkRepository
	swapper      generationSwapper
	buildLexical LexicalBuilder
	cfg          ReindexConfig
	logger       *slog.Logger

	mu sync.Mutex
}

func NewReindexUseCase(
	extractors []ports.SectionExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	repo ports.ChunkRepository,
	swapper generationSwapper,
	buildLexical LexicalBuilder,
	cfg ReindexConfig,
	logger *slog.Logger,
) *ReindexUseCase {
	cfg.normalize()
	return &ReindexUseCase{
		extractors:   extractors,
		chunker:      chunker,
		embedder:     embedder,
		vectorDB:     vectorDB,
		repo:         repo,
		swapper:      swapper,
		buildLexical: buildLexical,
		cfg:          cfg,
		logger:       logger,
	}
}

// Reindex walks the documents directory, chunks and embeds every supported
// file, builds a new generation and swaps it in. Per-file failures are
// recorded in the report and never abort the batch; a duplicate chunk id
// across the corpus is the one fatal ingestion error.
func (uc *ReindexUseCase) Reindex(ctx context.Context, reason string) (*domain.IngestReport, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	start := time.Now()
	gen := fmt.Sprintf("%s_%s_%s", uc.cfg.CollectionBase,
		start.UTC().Format("20060102t150405"), uuid.NewString()[:8])
	report := &domain.IngestReport{Generation: gen}
	uc.logger.Info("reindex started", "generation", gen, "reason", reason)

	files, err := uc.listSupportedFiles()
	if err != nil {
		return nil, domain.WrapError(domain.ErrIngestion, "list documents", err)
	}

	var chunks []domain.Chunk
	for _, path := range files {
		fileChunks, err := uc.processFile(ctx, path)
		if err != nil {
			report.FilesFailed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			uc.logger.Warn("file skipped", "path", path, "error", err)
			continue
		}
		report.FilesProcessed++
		chunks = append(chunks, fileChunks...)
	}

	if dups := duplicateChunkIDs(chunks); len(dups) > 0 {
		return nil, domain.WrapError(domain.ErrDuplicateChunkID, "reindex",
			fmt.Errorf("duplicate chunk ids: %s", strings.Join(dups, ", ")))
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrIngestion, "reindex", errors.New("no chunks produced"))
	}
	report.ChunksCreated = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIngestion, "embed corpus", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(domain.ErrIngestion, "embed corpus",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)))
	}

	vectorSize := uc.cfg.VectorSize
	if vectorSize <= 0 && len(vectors) > 0 {
		vectorSize = len(vectors[0])
	}
	if err := uc.vectorDB.CreateCollection(ctx, gen, vectorSize); err != nil {
		return nil, domain.WrapError(domain.ErrIngestion, "create collection", err)
	}
	if err := uc.vectorDB.IndexChunks(ctx, gen, chunks, vectors); err != nil {
		return nil, domain.WrapError(domain.ErrIngestion, "index chunks", err)
	}

	report.DurationMS = time.Since(start).Milliseconds()
	if err := uc.repo.ReplaceGeneration(ctx, gen, chunks, *report); err != nil {
		return nil, domain.WrapError(domain.ErrIngestion, "persist generation", err)
	}

	oldGen, _ := uc.swapper.ActiveCollection()
	uc.swapper.SwapGeneration(gen, uc.buildLexical(chunks), len(chunks))

	if oldGen != "" && oldGen != gen {
		if err := uc.vectorDB.DeleteCollection(ctx, oldGen); err != nil {
			uc.logger.Warn("old collection not deleted", "collection", oldGen, "error", err)
		}
	}

	uc.logger.Info("reindex finished",
		"generation", gen,
		"files", report.FilesProcessed,
		"failed", report.FilesFailed,
		"chunks", report.ChunksCreated,
		"duration_ms", report.DurationMS,
	)
	return report, nil
}

// Restore reloads the last persisted generation at startup so retrieval
// works without a full rebuild. No generation yet is not an error.
func (uc *ReindexUseCase) Restore(ctx context.Context) error {
	gen, count, err := uc.repo.ActiveGeneration(ctx)
	if err != nil {
		return fmt.Errorf("load active generation: %w", err)
	}
	if gen == "" {
		uc.logger.Info("no persisted generation to restore")
		return nil
	}

	chunks, err := uc.repo.LoadChunks(ctx, gen)
	if err != nil {
		return fmt.Errorf("load chunks for %s: %w", gen, err)
	}
	uc.swapper.SwapGeneration(gen, uc.buildLexical(chunks), count)
	uc.logger.Info("generation restored", "generation", gen, "chunks", len(chunks))
	return nil
}

func (uc *ReindexUseCase) listSupportedFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(uc.cfg.DocsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if uc.extractorFor(filepath.Ext(path)) != nil {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (uc *ReindexUseCase) extractorFor(ext string) ports.SectionExtractor {
	ext = strings.ToLower(ext)
	for _, ex := range uc.extractors {
		if ex.Supports(ext) {
			return ex
		}
	}
	return nil
}

func (uc *ReindexUseCase) processFile(ctx context.Context, path string) ([]domain.Chunk, error) {
	extractor := uc.extractorFor(filepath.Ext(path))
	sections, err := extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	docID := strings.TrimSuffix(base, filepath.Ext(base))
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), ".")

	var chunks []domain.Chunk
	index := 0
	for _, section := range sections {
		title := section.Title
		if title == "" {
			title = docID
		}
		for _, span := range uc.chunker.Split(section.Text) {
			chunks = append(chunks, domain.Chunk{
				ChunkID:    domain.ChunkID(base, section.Location, index, span.Text),
				DocID:      docID,
				Title:      title,
				Content:    span.Text,
				Location:   section.Location,
				SourcePath: path,
				StartChar:  span.Start,
				EndChar:    span.End,
				FileType:   fileType,
			})
			index++
		}
	}
	if len(chunks) == 0 {
		return nil, errors.New("no usable text")
	}
	return chunks, nil
}

func duplicateChunkIDs(chunks []domain.Chunk) []string {
	seen := make(map[string]int, len(chunks))
	var dups []string
	for _, c := range chunks {
		seen[c.ChunkID]++
		if seen[c.ChunkID] == 2 {
			dups = append(dups, c.ChunkID)
		}
	}
	sort.Strings(dups)
	return dups
}

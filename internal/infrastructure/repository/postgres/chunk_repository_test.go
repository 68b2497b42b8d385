package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChunkRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestReplaceGenerationIsTransactional(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	chunks := []domain.Chunk{
		{ChunkID: "c1", DocID: "opposition", Title: "Guide", Content: "texte un", Location: "page 1", SourcePath: "opposition.md", FileType: "md"},
		{ChunkID: "c2", DocID: "opposition", Title: "Guide", Content: "texte deux", Location: "page 2", SourcePath: "opposition.md", FileType: "md"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM index_generations").
		WithArgs("fraud_kb_g2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO index_generations").
		WithArgs("fraud_kb_g2", 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("fraud_kb_g2", 0, "c1", "opposition", "Guide", "texte un", "page 1", "opposition.md", 0, 0, "md").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("fraud_kb_g2", 1, "c2", "opposition", "Guide", "texte deux", "page 2", "opposition.md", 0, 0, "md").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReplaceGeneration(context.Background(), "fraud_kb_g2", chunks, domain.IngestReport{Generation: "fraud_kb_g2"})
	if err != nil {
		t.Fatalf("ReplaceGeneration: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceGenerationRollsBackOnInsertFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM index_generations").
		WithArgs("fraud_kb_g2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO index_generations").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.ReplaceGeneration(context.Background(), "fraud_kb_g2", nil, domain.IngestReport{})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestActiveGenerationEmptyTableIsNotAnError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT generation, chunk_count").
		WillReturnError(sql.ErrNoRows)

	generation, count, err := repo.ActiveGeneration(context.Background())
	if err != nil {
		t.Fatalf("ActiveGeneration: %v", err)
	}
	if generation != "" || count != 0 {
		t.Fatalf("expected empty result, got %q/%d", generation, count)
	}
}

func TestLoadChunksPreservesOrder(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"chunk_id", "doc_id", "title", "content", "location", "source_path", "start_char", "end_char", "file_type",
	}).
		AddRow("c1", "opposition", "Guide", "texte un", "page 1", "opposition.md", 0, 10, "md").
		AddRow("c2", "opposition", "Guide", "texte deux", "page 2", "opposition.md", 10, 20, "md")

	mock.ExpectQuery("SELECT chunk_id, doc_id, title, content").
		WithArgs("fraud_kb_g2").
		WillReturnRows(rows)

	chunks, err := repo.LoadChunks(context.Background(), "fraud_kb_g2")
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if len(chunks) != 2 || chunks[0].ChunkID != "c1" || chunks[1].ChunkID != "c2" {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestLastReportRoundTrip(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT report").
		WillReturnRows(sqlmock.NewRows([]string{"report"}).
			AddRow([]byte(`{"generation":"fraud_kb_g2","files_processed":3,"chunks_created":42}`)))

	report, err := repo.LastReport(context.Background())
	if err != nil {
		t.Fatalf("LastReport: %v", err)
	}
	if report == nil || report.Generation != "fraud_kb_g2" || report.ChunksCreated != 42 {
		t.Fatalf("report = %+v", report)
	}
}

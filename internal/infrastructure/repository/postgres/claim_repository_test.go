package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

func newClaimRepoWithMock(t *testing.T) (*ClaimRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ClaimRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestClaimGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newClaimRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, storage_path, status").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrClaimNotFound) {
		t.Fatalf("expected ErrClaimNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimGetByIDScansFile(t *testing.T) {
	repo, mock, done := newClaimRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, filename, storage_path, status").
		WithArgs("f-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "filename", "storage_path", "status", "error_message", "created_at", "updated_at",
		}).AddRow("f-1", "LOTE 481.xml", "f-1_LOTE_481.xml", "ready", "", now, now))

	file, err := repo.GetByID(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if file.Filename != "LOTE 481.xml" || file.Status != domain.StatusReady {
		t.Fatalf("unexpected file: %+v", file)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newClaimRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE claim_files").
		WithArgs("missing", string(domain.StatusProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusProcessing, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrClaimNotFound) {
		t.Fatalf("expected ErrClaimNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveSummaryReplacesAuditRows(t *testing.T) {
	repo, mock, done := newClaimRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO claim_summaries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM guide_audits").
		WithArgs("f-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO guide_audits").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO guide_audits").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	summary := &domain.FileSummary{
		FileID:          "f-1",
		Lot:             "481",
		Kind:            domain.KindConsultation,
		GuideCount:      2,
		Total:           decimal.RequireFromString("300"),
		DuplicateGuides: []string{"G-1"},
	}
	audits := []domain.GuideAudit{
		{FileID: "f-1", GuideNumber: "G-1"},
		{FileID: "f-1", GuideNumber: "G-2"},
	}
	if err := repo.SaveSummary(context.Background(), summary, audits); err != nil {
		t.Fatalf("SaveSummary() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveSummaryRollsBackOnAuditInsertError(t *testing.T) {
	repo, mock, done := newClaimRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO claim_summaries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM guide_audits").
		WithArgs("f-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO guide_audits").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	summary := &domain.FileSummary{FileID: "f-1", Kind: domain.KindConsultation}
	audits := []domain.GuideAudit{{FileID: "f-1", GuideNumber: "G-1"}}

	err := repo.SaveSummary(context.Background(), summary, audits)
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSummaryReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newClaimRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT s.file_id, f.filename, s.lot").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetSummary(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrClaimNotFound) {
		t.Fatalf("expected ErrClaimNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSummaryScansDuplicates(t *testing.T) {
	repo, mock, done := newClaimRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT s.file_id, f.filename, s.lot").
		WithArgs("f-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"file_id", "filename", "lot", "filename_lot", "kind", "guide_count", "total",
			"strategy", "protocol", "lot_matches_filename", "suspicious", "duplicate_guides",
		}).AddRow("f-1", "LOTE 481.xml", "481", "481", "CONSULTA", 3, "450.50",
			"consultation-procedure-value", "", true, false, []byte(`["G-1","G-7"]`)))

	summary, err := repo.GetSummary(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Kind != domain.KindConsultation || summary.GuideCount != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Total.String() != "450.5" {
		t.Fatalf("total = %s, want 450.5", summary.Total)
	}
	if len(summary.DuplicateGuides) != 2 || summary.DuplicateGuides[0] != "G-1" {
		t.Fatalf("unexpected duplicates: %v", summary.DuplicateGuides)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListSummariesKeepsFailedSlots(t *testing.T) {
	repo, mock, done := newClaimRepoWithMock(t)
	defer done()

	cols := []string{
		"id", "filename", "error_message",
		"lot", "filename_lot", "kind", "guide_count", "total", "strategy", "protocol",
		"lot_matches_filename", "suspicious", "duplicate_guides",
	}
	mock.ExpectQuery("SELECT f.id, f.filename, f.error_message").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("f-1", "LOTE 481.xml", nil,
				"481", "481", "CONSULTA", 3, "450.50", "consultation-procedure-value", "",
				true, false, []byte(`[]`)).
			AddRow("f-2", "quebrado.xml", "parse claim document: lot number missing",
				nil, nil, nil, nil, nil, nil, nil,
				nil, nil, nil))

	out, err := repo.ListSummaries(context.Background())
	if err != nil {
		t.Fatalf("ListSummaries() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(out))
	}
	if out[0].Lot != "481" || out[0].Total.String() != "450.5" {
		t.Fatalf("unexpected processed slot: %+v", out[0])
	}
	if out[1].Error == "" || out[1].GuideCount != 0 || !out[1].Total.IsZero() {
		t.Fatalf("failed slot must keep zero numbers: %+v", out[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListAuditsScansRows(t *testing.T) {
	repo, mock, done := newClaimRepoWithMock(t)
	defer done()

	cols := []string{
		"file_id", "filename", "lot", "kind", "guide_number", "origin_guide", "operator_guide",
		"patient", "professional", "service_date", "amount", "strategy", "declared_total",
		"itemized_procedures", "itemized_expenses", "glosa_code", "justification",
	}
	mock.ExpectQuery("SELECT file_id, filename, lot, kind, guide_number").
		WithArgs("f-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("f-1", "LOTE 481.xml", "481", "CONSULTA", "G-1", "", "",
				"Maria Souza", "Dr. Silva", "2026-06-02", "150.00", "consultation-procedure-value", "0",
				"0", "0", "", ""))

	audits, err := repo.ListAudits(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("ListAudits() error = %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("expected 1 audit, got %d", len(audits))
	}
	if audits[0].Patient != "Maria Souza" || audits[0].Amount.String() != "150" {
		t.Fatalf("unexpected audit: %+v", audits[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

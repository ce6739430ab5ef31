package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

func sampleReport() domain.Report {
	return domain.Report{
		Summaries: []domain.FileSummary{
			{
				Filename:           "LOTE 481.xml",
				Lot:                "481",
				FilenameLot:        "481",
				Kind:               domain.KindConsultation,
				GuideCount:         3,
				Total:              decimal.RequireFromString("450.50"),
				Strategy:           "consultation-procedure-value",
				LotMatchesFilename: true,
				DuplicateGuides:    []string{"G-1"},
			},
			{Filename: "quebrado.xml", Error: "lot number missing"},
		},
		Lots: []domain.LotAggregate{
			{Lot: "481", Kind: domain.KindConsultation, FileCount: 1, GuideCount: 3, Total: decimal.RequireFromString("450.50")},
		},
		Records: []domain.ReconciliationRecord{
			{
				Key:              "481__CONSULTA",
				Lot:              "481",
				Kind:             domain.KindConsultation,
				Period:           "2026-06",
				FileCount:        1,
				GuideCount:       3,
				XMLTotal:         decimal.RequireFromString("450.50"),
				StatementFound:   true,
				Presented:        decimal.RequireFromString("450.50"),
				PresentedMatches: true,
			},
		},
		Audits: []domain.GuideAudit{
			{Filename: "LOTE 481.xml", Lot: "481", Kind: domain.KindConsultation, GuideNumber: "G-1", Patient: "Maria Souza", Amount: decimal.RequireFromString("150")},
		},
	}
}

func TestReconciliationWorkbookSheets(t *testing.T) {
	data, err := NewBuilder().ReconciliationWorkbook(sampleReport())
	if err != nil {
		t.Fatalf("ReconciliationWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	want := []string{"Resumo por arquivo", "Agregado por lote", "Baixa por lote", "Auditoria"}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sheet[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReconciliationWorkbookSummaryRows(t *testing.T) {
	data, err := NewBuilder().ReconciliationWorkbook(sampleReport())
	if err != nil {
		t.Fatalf("ReconciliationWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Resumo por arquivo")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Arquivo" || rows[0][5] != "Total" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "LOTE 481.xml" || rows[1][8] != "sim" {
		t.Fatalf("unexpected first row: %v", rows[1])
	}
	// The failed file keeps its slot with the error in the last column.
	last := rows[2][len(rows[2])-1]
	if last != "lot number missing" {
		t.Fatalf("expected error slot, got %v", rows[2])
	}
}

func TestReconciliationWorkbookReconciliationSheet(t *testing.T) {
	data, err := NewBuilder().ReconciliationWorkbook(sampleReport())
	if err != nil {
		t.Fatalf("ReconciliationWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Baixa por lote")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}
	row := rows[1]
	if row[0] != "481__CONSULTA" || row[3] != "2026-06" {
		t.Fatalf("unexpected record row: %v", row)
	}
	if row[7] != "sim" || row[13] != "sim" {
		t.Fatalf("boolean columns must render sim/não: %v", row)
	}
}

func TestReconciliationWorkbookEmptyReport(t *testing.T) {
	data, err := NewBuilder().ReconciliationWorkbook(domain.Report{})
	if err != nil {
		t.Fatalf("ReconciliationWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Auditoria")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("empty report must still carry headers, got %d rows", len(rows))
	}
}

func TestSummariesCSVRoundTrips(t *testing.T) {
	report := sampleReport()
	data, err := NewBuilder().SummariesCSV(report.Summaries)
	if err != nil {
		t.Fatalf("SummariesCSV() error = %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("csv read: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if records[0][0] != "arquivo" || records[0][5] != "total" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][5] != "450.50" {
		t.Fatalf("amounts must use dot decimals, got %q", records[1][5])
	}
	if records[1][10] != "G-1" {
		t.Fatalf("unexpected duplicates column: %v", records[1])
	}
	if records[2][11] != "lot number missing" {
		t.Fatalf("failed slot must keep its error: %v", records[2])
	}
}

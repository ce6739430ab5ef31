// Package export renders the report artifacts served by the API.
package export

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

const (
	sheetSummaries      = "Resumo por arquivo"
	sheetLots           = "Agregado por lote"
	sheetReconciliation = "Baixa por lote"
	sheetAudits         = "Auditoria"

	moneyFormat = `"R$ "#,##0.00`
)

// Builder renders the XLSX workbook and the CSV summary export.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// ReconciliationWorkbook writes the four report sheets into a fresh
// workbook: per-file summaries, per-lot aggregates, the reconciliation
// itself and the guide audit trail.
func (b *Builder) ReconciliationWorkbook(report domain.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummaries); err != nil {
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	for _, name := range []string{sheetLots, sheetReconciliation, sheetAudits} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	numFmt := moneyFormat
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}

	st := styles{header: headerStyle, money: moneyStyle}
	if err := writeSummariesSheet(f, st, report.Summaries); err != nil {
		return nil, err
	}
	if err := writeLotsSheet(f, st, report.Lots); err != nil {
		return nil, err
	}
	if err := writeReconciliationSheet(f, st, report.Records); err != nil {
		return nil, err
	}
	if err := writeAuditsSheet(f, st, report.Audits); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type styles struct {
	header int
	money  int
}

func writeSummariesSheet(f *excelize.File, st styles, summaries []domain.FileSummary) error {
	headers := []string{
		"Arquivo", "Lote XML", "Lote do arquivo", "Tipo", "Guias", "Total",
		"Estratégia", "Protocolo", "Lote confere", "Suspeito",
		"Guias duplicadas", "Erro",
	}
	rows := make([][]interface{}, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []interface{}{
			s.Filename, s.Lot, s.FilenameLot, string(s.Kind), s.GuideCount,
			money(s.Total), s.Strategy, s.Protocol,
			simNao(s.LotMatchesFilename), simNao(s.Suspicious),
			strings.Join(s.DuplicateGuides, "; "), s.Error,
		})
	}
	return writeSheet(f, sheetSummaries, st, headers, []int{6}, rows)
}

func writeLotsSheet(f *excelize.File, st styles, lots []domain.LotAggregate) error {
	headers := []string{"Lote", "Tipo", "Arquivos", "Guias", "Total"}
	rows := make([][]interface{}, 0, len(lots))
	for _, l := range lots {
		rows = append(rows, []interface{}{
			l.Lot, string(l.Kind), l.FileCount, l.GuideCount, money(l.Total),
		})
	}
	return writeSheet(f, sheetLots, st, headers, []int{5}, rows)
}

func writeReconciliationSheet(f *excelize.File, st styles, records []domain.ReconciliationRecord) error {
	headers := []string{
		"Chave", "Lote", "Tipo", "Competência", "Arquivos", "Guias",
		"Total XML", "Demonstrativo", "Apresentado", "Apurado", "Glosa",
		"Linhas", "Diferença", "Apresentado confere",
		"Demonstrativo consistente",
	}
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, []interface{}{
			r.Key, r.Lot, string(r.Kind), r.Period, r.FileCount, r.GuideCount,
			money(r.XMLTotal), simNao(r.StatementFound), money(r.Presented),
			money(r.Approved), money(r.Withheld), r.StatementRows,
			money(r.PresentedDiff), simNao(r.PresentedMatches),
			simNao(r.StatementConsistent),
		})
	}
	return writeSheet(f, sheetReconciliation, st, headers, []int{7, 9, 10, 11, 13}, rows)
}

func writeAuditsSheet(f *excelize.File, st styles, audits []domain.GuideAudit) error {
	headers := []string{
		"Arquivo", "Lote", "Tipo", "Guia", "Guia origem", "Guia operadora",
		"Beneficiário", "Profissional", "Data", "Valor", "Estratégia",
		"Total declarado", "Procedimentos", "Outras despesas", "Glosa",
		"Justificativa",
	}
	rows := make([][]interface{}, 0, len(audits))
	for _, a := range audits {
		rows = append(rows, []interface{}{
			a.Filename, a.Lot, string(a.Kind), a.GuideNumber, a.OriginGuide,
			a.OperatorGuide, a.Patient, a.Professional, a.ServiceDate,
			money(a.Amount), a.Strategy, money(a.DeclaredTotal),
			money(a.ItemizedProcedures), money(a.ItemizedExpenses),
			a.GlosaCode, a.Justification,
		})
	}
	return writeSheet(f, sheetAudits, st, headers, []int{10, 12, 13, 14}, rows)
}

// writeSheet fills one sheet: bold header, data rows, currency format on the
// money columns and a frozen top row.
func writeSheet(f *excelize.File, sheet string, st styles, headers []string, moneyCols []int, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("sheet %q header: %w", sheet, err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastHeader, st.header); err != nil {
		return fmt.Errorf("sheet %q header style: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %q row %d: %w", sheet, i+2, err)
		}
	}
	for _, col := range moneyCols {
		if len(rows) == 0 {
			break
		}
		top, err := excelize.CoordinatesToCellName(col, 2)
		if err != nil {
			return err
		}
		bottom, err := excelize.CoordinatesToCellName(col, len(rows)+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, top, bottom, st.money); err != nil {
			return fmt.Errorf("sheet %q money style: %w", sheet, err)
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func simNao(v bool) string {
	if v {
		return "sim"
	}
	return "não"
}

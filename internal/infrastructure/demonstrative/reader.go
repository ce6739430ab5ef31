// Package demonstrative reads operadora payment-statement workbooks
// (demonstrativo de análise de contas) into statement rows.
package demonstrative

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

// Layout maps a statement workbook onto the fields the aggregator needs.
// The zero value is unusable; DefaultLayout matches the ANS demonstrativo.
type Layout struct {
	Sheet           string
	HeaderAnchor    string
	LotColumn       string
	PeriodColumn    string
	PresentedColumn string
	ApprovedColumn  string
	WithheldColumn  string
}

func DefaultLayout() Layout {
	return Layout{
		Sheet:           "DemonstrativoAnaliseDeContas",
		HeaderAnchor:    "CPF/CNPJ",
		LotColumn:       "Lote",
		PeriodColumn:    "Competência",
		PresentedColumn: "Valor Apresentado",
		ApprovedColumn:  "Valor Apurado",
		WithheldColumn:  "Valor Glosa",
	}
}

// Reader parses XLSX statements according to a layout.
type Reader struct {
	layout Layout
}

func NewReader(layout Layout) *Reader {
	return &Reader{layout: layout}
}

// Read extracts the statement rows below the header row. Structural problems
// (sheet, anchor or columns missing) are fatal; unparseable value cells
// coerce to zero because glosa rows routinely carry dashes or blanks.
func (r *Reader) Read(_ context.Context, src io.Reader) ([]domain.StatementRow, error) {
	wb, err := excelize.OpenReader(src)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStatementFormat, "open statement workbook", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(r.layout.Sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, domain.WrapError(domain.ErrStatementFormat, "read statement sheet",
			fmt.Errorf("sheet %q: %w", r.layout.Sheet, err))
	}

	headerIdx := -1
	for i, row := range rows {
		if len(row) > 0 && strings.TrimSpace(row[0]) == r.layout.HeaderAnchor {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, domain.WrapError(domain.ErrStatementFormat, "read statement sheet",
			fmt.Errorf("header row with anchor %q not found", r.layout.HeaderAnchor))
	}

	cols, err := r.columnIndexes(rows[headerIdx])
	if err != nil {
		return nil, domain.WrapError(domain.ErrStatementFormat, "read statement sheet", err)
	}

	var out []domain.StatementRow
	for _, row := range rows[headerIdx+1:] {
		lot := domain.NormalizeLot(cell(row, cols.lot))
		if lot == "" {
			continue
		}
		out = append(out, domain.StatementRow{
			Lot:       lot,
			Period:    strings.TrimSpace(cell(row, cols.period)),
			Presented: coerceAmount(cell(row, cols.presented)),
			Approved:  coerceAmount(cell(row, cols.approved)),
			Withheld:  coerceAmount(cell(row, cols.withheld)),
		})
	}
	return out, nil
}

type columnSet struct {
	lot, period, presented, approved, withheld int
}

func (r *Reader) columnIndexes(header []string) (columnSet, error) {
	byLabel := make(map[string]int, len(header))
	for i, label := range header {
		t := strings.TrimSpace(label)
		if _, ok := byLabel[t]; !ok {
			byLabel[t] = i
		}
	}

	var missing []string
	lookup := func(label string) int {
		if i, ok := byLabel[label]; ok {
			return i
		}
		missing = append(missing, label)
		return -1
	}
	cs := columnSet{
		lot:       lookup(r.layout.LotColumn),
		period:    lookup(r.layout.PeriodColumn),
		presented: lookup(r.layout.PresentedColumn),
		approved:  lookup(r.layout.ApprovedColumn),
		withheld:  lookup(r.layout.WithheldColumn),
	}
	if len(missing) > 0 {
		return columnSet{}, fmt.Errorf("required columns missing: %s", strings.Join(missing, ", "))
	}
	return cs, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func coerceAmount(text string) decimal.Decimal {
	v, err := domain.ParseAmount(text)
	if err != nil {
		return decimal.Zero
	}
	return v
}

package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

var csvHeader = []string{
	"arquivo", "lote_xml", "lote_arquivo", "tipo", "guias", "total",
	"estrategia", "protocolo", "lote_confere", "suspeito",
	"guias_duplicadas", "erro",
}

// SummariesCSV renders the per-file summaries as machine-readable CSV with
// dot-decimal amounts.
func (b *Builder) SummariesCSV(summaries []domain.FileSummary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range summaries {
		record := []string{
			s.Filename,
			s.Lot,
			s.FilenameLot,
			string(s.Kind),
			strconv.Itoa(s.GuideCount),
			s.Total.StringFixed(2),
			s.Strategy,
			s.Protocol,
			strconv.FormatBool(s.LotMatchesFilename),
			strconv.FormatBool(s.Suspicious),
			strings.Join(s.DuplicateGuides, ";"),
			s.Error,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

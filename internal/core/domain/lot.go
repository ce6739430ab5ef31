package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	lotInFilename = regexp.MustCompile(`(?i)lote\s*[-_]*\s*(\d+)`)
	nonDigits     = regexp.MustCompile(`\D`)
)

// NormalizeLot canonicalizes a batch identifier so spreadsheet-sourced and
// XML-sourced values compare equal: "123", "000123" and "123.0" all
// normalize to "123". Strings without digits pass through unchanged.
func NormalizeLot(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil &&
		!math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	digits := nonDigits.ReplaceAllString(s, "")
	if digits == "" {
		return s
	}
	return digits
}

// LotFromFilename extracts the batch identifier candidate embedded in a
// file name ("LOTE 132238 Recurso X.xml" yields "132238"). Returns "" when
// the name carries no lot token.
func LotFromFilename(name string) string {
	m := lotInFilename.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

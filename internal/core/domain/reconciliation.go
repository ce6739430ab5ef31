package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// KeySeparator joins the chosen lot and the document kind in the composite
// reconciliation key, so an appeal and a regular batch sharing the same
// number never collide.
const KeySeparator = "__"

// DefaultTolerance is the absolute conference threshold in currency units.
func DefaultTolerance() decimal.Decimal {
	return decimal.New(1, -2)
}

// ReconciliationRecord joins one group of claim summaries with the
// statement aggregate it matched, if any.
type ReconciliationRecord struct {
	Key                  string          `json:"key"`
	Lot                  string          `json:"lot"`
	Kind                 DocumentKind    `json:"kind"`
	Period               string          `json:"period,omitempty"`
	FileCount            int             `json:"file_count"`
	GuideCount           int             `json:"guide_count"`
	XMLTotal             decimal.Decimal `json:"xml_total"`
	XMLLot               string          `json:"xml_lot,omitempty"`
	FilenameLot          string          `json:"filename_lot,omitempty"`
	StatementFound       bool            `json:"statement_found"`
	Presented            decimal.Decimal `json:"presented"`
	Approved             decimal.Decimal `json:"approved"`
	Withheld             decimal.Decimal `json:"withheld"`
	StatementRows        int             `json:"statement_rows"`
	PresentedDiff        decimal.Decimal `json:"presented_diff"`
	PresentedMatches     bool            `json:"presented_matches"`
	ApprovedPlusWithheld decimal.Decimal `json:"approved_plus_withheld"`
	StatementConsistent  bool            `json:"statement_consistent"`
}

// keyRule is one step of the lot preference chain. The first rule that
// yields a candidate decides which identifier keys the statement lookup.
type keyRule struct {
	name  string
	apply func(xmlLot, fileLot string, known map[string]struct{}) (string, bool)
}

func isKnown(lot string, known map[string]struct{}) bool {
	if lot == "" {
		return false
	}
	_, ok := known[lot]
	return ok
}

// Appeal files often carry the payer's batch number in the file name while
// the XML echoes an internal routing number, so the filename identifier
// leads the chain.
var appealKeyRules = []keyRule{
	{name: "filename-known", apply: func(_, fileLot string, known map[string]struct{}) (string, bool) {
		return fileLot, isKnown(fileLot, known)
	}},
	{name: "filename-prefix-known", apply: func(xmlLot, fileLot string, known map[string]struct{}) (string, bool) {
		return fileLot, fileLot != "" && strings.HasPrefix(xmlLot, fileLot) && isKnown(fileLot, known)
	}},
	{name: "filename", apply: func(_, fileLot string, _ map[string]struct{}) (string, bool) {
		return fileLot, fileLot != ""
	}},
	{name: "xml", apply: func(xmlLot, _ string, _ map[string]struct{}) (string, bool) {
		return xmlLot, xmlLot != ""
	}},
}

var defaultKeyRules = []keyRule{
	{name: "xml-known", apply: func(xmlLot, _ string, known map[string]struct{}) (string, bool) {
		return xmlLot, isKnown(xmlLot, known)
	}},
	{name: "filename-prefix-known", apply: func(xmlLot, fileLot string, known map[string]struct{}) (string, bool) {
		return fileLot, fileLot != "" && strings.HasPrefix(xmlLot, fileLot) && isKnown(fileLot, known)
	}},
	{name: "filename-known", apply: func(_, fileLot string, known map[string]struct{}) (string, bool) {
		return fileLot, isKnown(fileLot, known)
	}},
	{name: "xml", apply: func(xmlLot, _ string, _ map[string]struct{}) (string, bool) {
		return xmlLot, xmlLot != ""
	}},
	{name: "filename", apply: func(_, fileLot string, _ map[string]struct{}) (string, bool) {
		return fileLot, fileLot != ""
	}},
}

// ChooseStatementLot picks the identifier used to look a document group up
// in the statement bank. Both lots must already be normalized.
func ChooseStatementLot(kind DocumentKind, xmlLot, fileLot string, known map[string]struct{}) string {
	rules := defaultKeyRules
	if kind == KindAppeal {
		rules = appealKeyRules
	}
	for _, rule := range rules {
		if lot, ok := rule.apply(xmlLot, fileLot, known); ok {
			return lot
		}
	}
	return ""
}

// CompositeKey builds the reconciliation grouping key. When no statement
// lot was chosen it falls back to the XML lot, then the filename lot.
func CompositeKey(chosenLot, xmlLot, fileLot string, kind DocumentKind) string {
	lot := chosenLot
	if lot == "" {
		lot = xmlLot
	}
	if lot == "" {
		lot = fileLot
	}
	return lot + KeySeparator + string(kind)
}

// Report bundles everything the export artifacts render.
type Report struct {
	Summaries []FileSummary
	Lots      []LotAggregate
	Records   []ReconciliationRecord
	Audits    []GuideAudit
}

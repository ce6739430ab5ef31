package tiss

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

// Strategy labels reported on summaries and audits.
const (
	StrategyConsultation = "consultation-procedure-value"
	StrategyDeclared     = "declared-grand-total"
	StrategyItemized     = "itemized-sum"
	StrategyComponents   = "component-sum"
	StrategyZero         = "zero"
	StrategyAppeal       = "appeal-recursed-amount"
)

// guideTier is one tier of the SADT fallback chain. Tiers run in order and
// the first positive amount wins.
type guideTier struct {
	label  string
	amount func(guide *element) (decimal.Decimal, error)
}

var sadtTiers = []guideTier{
	{label: StrategyDeclared, amount: declaredGrandTotal},
	{label: StrategyItemized, amount: itemizedSum},
	{label: StrategyComponents, amount: componentSum},
}

// sadtGuideTotal resolves one SP-SADT guide through the tier chain.
func sadtGuideTotal(guide *element) (decimal.Decimal, string, error) {
	for _, tier := range sadtTiers {
		v, err := tier.amount(guide)
		if err != nil {
			return decimal.Decimal{}, "", err
		}
		if v.IsPositive() {
			return v, tier.label, nil
		}
	}
	return decimal.Zero, StrategyZero, nil
}

func declaredGrandTotal(guide *element) (decimal.Decimal, error) {
	return domain.ParseAmount(guide.pathText("valorTotal", "valorTotalGeral"))
}

// itemizedSum adds executed procedure items and "other expense" entries.
func itemizedSum(guide *element) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, item := range guide.deepAll("procedimentosExecutados", "procedimentoExecutado") {
		v, err := executedItemAmount(item)
		if err != nil {
			return decimal.Decimal{}, err
		}
		sum = sum.Add(v)
	}
	for _, exp := range guide.deepAll("outrasDespesas", "despesa") {
		v, err := domain.ParseAmount(exp.pathText("servicosExecutados", "valorTotal"))
		if err != nil {
			return decimal.Decimal{}, err
		}
		sum = sum.Add(v)
	}
	return sum, nil
}

// executedItemAmount prefers the item's declared total; otherwise it falls
// back to unit value times executed quantity when both are present.
func executedItemAmount(item *element) (decimal.Decimal, error) {
	if vt := item.child("valorTotal"); vt != nil && vt.text() != "" {
		return domain.ParseAmount(vt.text())
	}
	unit := item.child("valorUnitario")
	qty := item.child("quantidadeExecutada")
	if unit == nil || qty == nil {
		return decimal.Zero, nil
	}
	u, err := domain.ParseAmount(unit.text())
	if err != nil {
		return decimal.Decimal{}, err
	}
	q, err := domain.ParseAmount(qty.text())
	if err != nil {
		return decimal.Decimal{}, err
	}
	return u.Mul(q), nil
}

// totalComponents are the named monetary fields of a guide's valorTotal
// block, summed as the last-resort tier.
var totalComponents = []string{
	"valorProcedimentos",
	"valorDiarias",
	"valorTaxasAlugueis",
	"valorMateriais",
	"valorMedicamentos",
	"valorGasesMedicinais",
}

func componentSum(guide *element) (decimal.Decimal, error) {
	block := guide.child("valorTotal")
	if block == nil {
		return decimal.Zero, nil
	}
	sum := decimal.Zero
	for _, name := range totalComponents {
		field := block.child(name)
		if field == nil {
			continue
		}
		v, err := domain.ParseAmount(field.text())
		if err != nil {
			return decimal.Decimal{}, err
		}
		sum = sum.Add(v)
	}
	return sum, nil
}

// documentStrategy reduces per-guide strategy counts to the document label.
// A single strategy reports itself; mixtures list every strategy with its
// guide count, descending count first and label order on ties.
func documentStrategy(counts map[string]int) string {
	switch len(counts) {
	case 0:
		return StrategyZero
	case 1:
		for label := range counts {
			return label
		}
	}

	type entry struct {
		label string
		n     int
	}
	entries := make([]entry, 0, len(counts))
	for label, n := range counts {
		entries = append(entries, entry{label: label, n: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].n != entries[j].n {
			return entries[i].n > entries[j].n
		}
		return entries[i].label < entries[j].label
	})

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.label + "=" + strconv.Itoa(e.n)
	}
	return "mixed: " + strings.Join(parts, ", ")
}

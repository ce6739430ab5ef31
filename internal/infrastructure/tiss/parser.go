package tiss

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

const (
	appealTransactionType = "RECURSO_GLOSA"
	justificationLimit    = 250
)

// Parser extracts billing facts from TISS claim documents.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse classifies the document, resolves every guide total through the
// kind-specific fallback chain and assembles the summary plus its audit
// trail. Errors are per document; the caller decides how to capture them.
func (p *Parser) Parse(_ context.Context, filename string, data []byte) (*domain.ParsedClaim, error) {
	root, err := parseTree(data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse claim xml", err)
	}

	kind := classify(root)
	lot := extractLot(root)
	if lot == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract batch", errors.New("numeroLote not found in document"))
	}

	ex := extraction{filename: filename, lot: lot, kind: kind}
	switch kind {
	case domain.KindConsultation:
		err = ex.consultation(root)
	case domain.KindSADT:
		err = ex.sadt(root)
	case domain.KindAppeal:
		err = ex.appeal(root)
	}
	if err != nil {
		return nil, err
	}

	return ex.result(), nil
}

// classify assigns exactly one kind. Appeal wins first because an appeal
// block can structurally coexist with consultation or SADT markers.
func classify(root *element) domain.DocumentKind {
	switch {
	case isAppeal(root):
		return domain.KindAppeal
	case len(root.deepAll("guiaConsulta")) > 0:
		return domain.KindConsultation
	case len(root.deepAll("guiaSP-SADT")) > 0:
		return domain.KindSADT
	default:
		return domain.KindUnknown
	}
}

func isAppeal(root *element) bool {
	transaction := root.deepText("cabecalho", "identificacaoTransacao", "tipoTransacao")
	if strings.EqualFold(strings.TrimSpace(transaction), appealTransactionType) {
		return true
	}
	return root.deep("prestadorParaOperadora", "recursoGlosa", "guiaRecursoGlosa") != nil
}

// extractLot reads the batch identifier from the guide-lot header, falling
// back to the appeal guide header.
func extractLot(root *element) string {
	if lot := root.deepText("prestadorParaOperadora", "loteGuias", "numeroLote"); lot != "" {
		return lot
	}
	return root.deepText("prestadorParaOperadora", "recursoGlosa", "guiaRecursoGlosa", "numeroLote")
}

// extraction accumulates per-guide results while a document is walked.
type extraction struct {
	filename string
	lot      string
	kind     domain.DocumentKind

	guideCount int
	total      decimal.Decimal
	strategies map[string]int
	protocol   string
	audits     []domain.GuideAudit
	guideKeys  []string
}

func (ex *extraction) addStrategy(label string) {
	if ex.strategies == nil {
		ex.strategies = make(map[string]int)
	}
	ex.strategies[label]++
}

func (ex *extraction) consultation(root *element) error {
	guides := root.deepAll("prestadorParaOperadora", "loteGuias", "guiasTISS", "guiaConsulta")
	for _, guide := range guides {
		value, err := domain.ParseAmount(guide.deepText("procedimento", "valorProcedimento"))
		if err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "consultation guide value", err)
		}
		ex.guideCount++
		ex.total = ex.total.Add(value)
		ex.addStrategy(StrategyConsultation)

		number := guide.deepText("numeroGuiaPrestador")
		ex.guideKeys = append(ex.guideKeys, number)
		ex.audits = append(ex.audits, domain.GuideAudit{
			Filename:     ex.filename,
			Lot:          ex.lot,
			Kind:         ex.kind,
			GuideNumber:  number,
			Patient:      guide.deepText("dadosBeneficiario", "nomeBeneficiario"),
			Professional: guide.deepText("dadosProfissionaisResponsaveis", "nomeProfissional"),
			ServiceDate:  guide.deepText("dataAtendimento"),
			Amount:       value,
			Strategy:     StrategyConsultation,
		})
	}
	return nil
}

func (ex *extraction) sadt(root *element) error {
	guides := root.deepAll("prestadorParaOperadora", "loteGuias", "guiasTISS", "guiaSP-SADT")
	for _, guide := range guides {
		value, label, err := sadtGuideTotal(guide)
		if err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "sadt guide value", err)
		}
		ex.guideCount++
		ex.total = ex.total.Add(value)
		ex.addStrategy(label)

		declared, err := declaredGrandTotal(guide)
		if err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "sadt guide value", err)
		}
		procedures, expenses, err := itemizedSubtotals(guide)
		if err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "sadt guide value", err)
		}

		number := guide.deepText("cabecalhoGuia", "numeroGuiaPrestador")
		if number == "" {
			number = guide.deepText("numeroGuiaPrestador")
		}
		ex.guideKeys = append(ex.guideKeys, number)
		ex.audits = append(ex.audits, domain.GuideAudit{
			Filename:           ex.filename,
			Lot:                ex.lot,
			Kind:               ex.kind,
			GuideNumber:        number,
			Patient:            guide.deepText("dadosBeneficiario", "nomeBeneficiario"),
			Professional:       guide.deepText("dadosProfissionaisResponsaveis", "nomeProfissional"),
			ServiceDate:        guide.deepText("dataAtendimento"),
			Amount:             value,
			Strategy:           label,
			DeclaredTotal:      declared,
			ItemizedProcedures: procedures,
			ItemizedExpenses:   expenses,
		})
	}
	return nil
}

// itemizedSubtotals splits the itemized tier into its procedure and other
// expense components for the audit trail.
func itemizedSubtotals(guide *element) (procedures, expenses decimal.Decimal, err error) {
	for _, item := range guide.deepAll("procedimentosExecutados", "procedimentoExecutado") {
		v, err := executedItemAmount(item)
		if err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, err
		}
		procedures = procedures.Add(v)
	}
	for _, exp := range guide.deepAll("outrasDespesas", "despesa") {
		v, err := domain.ParseAmount(exp.pathText("servicosExecutados", "valorTotal"))
		if err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, err
		}
		expenses = expenses.Add(v)
	}
	return procedures, expenses, nil
}

func (ex *extraction) appeal(root *element) error {
	base := root.deep("prestadorParaOperadora", "recursoGlosa", "guiaRecursoGlosa")
	if base == nil {
		// Appeal classified by transaction type alone; nothing to sum.
		ex.addStrategy(StrategyAppeal)
		return nil
	}

	total, err := domain.ParseAmount(base.pathText("valorTotalRecursado"))
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "appeal recursed amount", err)
	}
	ex.total = total
	ex.protocol = base.pathText("numeroProtocolo")
	ex.addStrategy(StrategyAppeal)

	for _, guide := range base.pathAll("opcaoRecurso", "recursoGuia") {
		ex.guideCount++
		origin := guide.deepText("numeroGuiaOrigem")
		operator := guide.deepText("numeroGuiaOperadora")
		key := origin
		if key == "" {
			key = operator
		}
		ex.guideKeys = append(ex.guideKeys, key)
		ex.audits = append(ex.audits, domain.GuideAudit{
			Filename:      ex.filename,
			Lot:           ex.lot,
			Kind:          ex.kind,
			GuideNumber:   key,
			OriginGuide:   origin,
			OperatorGuide: operator,
			Strategy:      StrategyAppeal,
			GlosaCode:     guide.deepText("codGlosaGuia"),
			Justification: truncate(guide.deepText("justificativaGuia"), justificationLimit),
		})
	}
	return nil
}

func (ex *extraction) result() *domain.ParsedClaim {
	filenameLot := domain.LotFromFilename(ex.filename)
	summary := domain.FileSummary{
		Filename:        ex.filename,
		Lot:             ex.lot,
		FilenameLot:     filenameLot,
		Kind:            ex.kind,
		GuideCount:      ex.guideCount,
		Total:           ex.total,
		Strategy:        ex.label(),
		Protocol:        ex.protocol,
		Suspicious:      ex.guideCount > 0 && ex.total.IsZero(),
		DuplicateGuides: duplicateKeys(ex.guideKeys),
	}
	summary.LotMatchesFilename = filenameLot != "" &&
		domain.NormalizeLot(ex.lot) == domain.NormalizeLot(filenameLot)

	return &domain.ParsedClaim{Summary: summary, Audits: ex.audits}
}

func (ex *extraction) label() string {
	if ex.kind == domain.KindAppeal {
		return StrategyAppeal
	}
	if ex.kind == domain.KindUnknown {
		return StrategyZero
	}
	return documentStrategy(ex.strategies)
}

// duplicateKeys reports every guide key that occurs more than once,
// preserving first-seen order.
func duplicateKeys(keys []string) []string {
	counts := make(map[string]int, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		counts[k]++
	}
	var out []string
	seen := make(map[string]struct{})
	for _, k := range keys {
		if k == "" || counts[k] < 2 {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return fmt.Sprintf("%s…", string(runes[:limit]))
}

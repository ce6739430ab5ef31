package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
)

// ReconcileUseCase joins processed claim summaries against the statement
// bank. The join itself never fails; only the surrounding reads and the
// snapshot write can.
type ReconcileUseCase struct {
	claims    ports.ClaimRepository
	snapshots ports.ReconciliationRepository
	bank      *domain.StatementBank
	tolerance decimal.Decimal
}

func NewReconcileUseCase(
	claims ports.ClaimRepository,
	snapshots ports.ReconciliationRepository,
	bank *domain.StatementBank,
	tolerance decimal.Decimal,
) *ReconcileUseCase {
	return &ReconcileUseCase{
		claims:    claims,
		snapshots: snapshots,
		bank:      bank,
		tolerance: tolerance,
	}
}

type claimGroup struct {
	key     string
	lot     string
	kind    domain.DocumentKind
	files   int
	guides  int
	total   decimal.Decimal
	xmlLot  string
	fileLot string
}

func (uc *ReconcileUseCase) Build(ctx context.Context) ([]domain.ReconciliationRecord, error) {
	summaries, err := uc.claims.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list claim summaries: %w", err)
	}

	groups := groupSummaries(summaries, uc.bank.KnownLots())
	byLot := aggregatesByLot(uc.bank.Snapshot())

	var records []domain.ReconciliationRecord
	for _, g := range groups {
		records = append(records, uc.join(g, byLot[g.lot])...)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Lot != records[j].Lot {
			return records[i].Lot < records[j].Lot
		}
		if records[i].Kind != records[j].Kind {
			return records[i].Kind < records[j].Kind
		}
		return records[i].Period < records[j].Period
	})

	if err := uc.snapshots.ReplaceRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("persist reconciliation records: %w", err)
	}
	return records, nil
}

// groupSummaries folds the ready summaries into one group per
// (composite key, chosen lot, kind), keeping first-seen order.
func groupSummaries(summaries []domain.FileSummary, known map[string]struct{}) []*claimGroup {
	type groupKey struct {
		key  string
		lot  string
		kind domain.DocumentKind
	}
	index := make(map[groupKey]*claimGroup)
	var ordered []*claimGroup

	for _, s := range summaries {
		if s.Error != "" {
			continue
		}
		xmlLot := domain.NormalizeLot(s.Lot)
		fileLot := domain.NormalizeLot(s.FilenameLot)
		chosen := domain.ChooseStatementLot(s.Kind, xmlLot, fileLot, known)
		key := domain.CompositeKey(chosen, xmlLot, fileLot, s.Kind)

		gk := groupKey{key: key, lot: chosen, kind: s.Kind}
		g, ok := index[gk]
		if !ok {
			g = &claimGroup{key: key, lot: chosen, kind: s.Kind, xmlLot: xmlLot, fileLot: fileLot}
			index[gk] = g
			ordered = append(ordered, g)
		}
		g.files++
		g.guides += s.GuideCount
		g.total = g.total.Add(s.Total)
	}
	return ordered
}

func aggregatesByLot(aggs []domain.StatementAggregate) map[string][]domain.StatementAggregate {
	out := make(map[string][]domain.StatementAggregate)
	for _, agg := range aggs {
		out[agg.Lot] = append(out[agg.Lot], agg)
	}
	return out
}

// join left-joins one claim group with its statement aggregates. A lot paid
// across several periods fans out to one record per period; a group with no
// statement keeps empty statement fields and compares against zero.
func (uc *ReconcileUseCase) join(g *claimGroup, aggs []domain.StatementAggregate) []domain.ReconciliationRecord {
	base := domain.ReconciliationRecord{
		Key:         g.key,
		Lot:         g.lot,
		Kind:        g.kind,
		FileCount:   g.files,
		GuideCount:  g.guides,
		XMLTotal:    g.total,
		XMLLot:      g.xmlLot,
		FilenameLot: g.fileLot,
	}

	if len(aggs) == 0 {
		rec := base
		rec.PresentedDiff = g.total
		rec.PresentedMatches = uc.withinTolerance(g.total)
		return []domain.ReconciliationRecord{rec}
	}

	records := make([]domain.ReconciliationRecord, 0, len(aggs))
	for _, agg := range aggs {
		rec := base
		rec.Period = agg.Period
		rec.StatementFound = true
		rec.Presented = agg.Presented
		rec.Approved = agg.Approved
		rec.Withheld = agg.Withheld
		rec.StatementRows = agg.RowCount
		rec.PresentedDiff = g.total.Sub(agg.Presented)
		rec.PresentedMatches = uc.withinTolerance(rec.PresentedDiff)
		rec.ApprovedPlusWithheld = agg.Approved.Add(agg.Withheld)
		rec.StatementConsistent = uc.withinTolerance(agg.Presented.Sub(rec.ApprovedPlusWithheld))
		records = append(records, rec)
	}
	return records
}

func (uc *ReconcileUseCase) withinTolerance(diff decimal.Decimal) bool {
	return diff.Abs().LessThanOrEqual(uc.tolerance)
}

// LotAggregates rolls the ready summaries up by their XML-declared lot and
// kind, in lot order.
func (uc *ReconcileUseCase) LotAggregates(ctx context.Context) ([]domain.LotAggregate, error) {
	summaries, err := uc.claims.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list claim summaries: %w", err)
	}

	type lotKey struct {
		lot  string
		kind domain.DocumentKind
	}
	index := make(map[lotKey]*domain.LotAggregate)
	var ordered []*domain.LotAggregate
	for _, s := range summaries {
		if s.Error != "" {
			continue
		}
		k := lotKey{lot: s.Lot, kind: s.Kind}
		agg, ok := index[k]
		if !ok {
			agg = &domain.LotAggregate{Lot: s.Lot, Kind: s.Kind}
			index[k] = agg
			ordered = append(ordered, agg)
		}
		agg.FileCount++
		agg.GuideCount += s.GuideCount
		agg.Total = agg.Total.Add(s.Total)
	}

	out := make([]domain.LotAggregate, 0, len(ordered))
	for _, agg := range ordered {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lot != out[j].Lot {
			return out[i].Lot < out[j].Lot
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

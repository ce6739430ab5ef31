package domain

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// StatementRow is one raw line of a payment statement after column mapping
// and lot normalization.
type StatementRow struct {
	Lot       string          `json:"lot"`
	Period    string          `json:"period"`
	Presented decimal.Decimal `json:"presented"`
	Approved  decimal.Decimal `json:"approved"`
	Withheld  decimal.Decimal `json:"withheld"`
}

// StatementKey addresses one aggregate bucket.
type StatementKey struct {
	Lot    string `json:"lot"`
	Period string `json:"period"`
}

// StatementAggregate is the additive rollup of statement rows per
// (lot, period).
type StatementAggregate struct {
	Lot       string          `json:"lot"`
	Period    string          `json:"period"`
	Presented decimal.Decimal `json:"presented"`
	Approved  decimal.Decimal `json:"approved"`
	Withheld  decimal.Decimal `json:"withheld"`
	RowCount  int             `json:"row_count"`
}

// StatementBank accumulates every statement ingested in the current
// session. Merge, Restore and Clear are serialized against reads so a
// reconciliation pass never sees a half-applied statement.
type StatementBank struct {
	mu   sync.Mutex
	aggs map[StatementKey]*StatementAggregate
}

func NewStatementBank() *StatementBank {
	return &StatementBank{aggs: make(map[StatementKey]*StatementAggregate)}
}

// Merge folds rows into the bank. Merging statement A then statement B
// equals merging the concatenation of their rows.
func (b *StatementBank) Merge(rows []StatementRow) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		agg := b.bucket(StatementKey{Lot: row.Lot, Period: row.Period})
		agg.Presented = agg.Presented.Add(row.Presented)
		agg.Approved = agg.Approved.Add(row.Approved)
		agg.Withheld = agg.Withheld.Add(row.Withheld)
		agg.RowCount++
	}
}

// Restore folds previously persisted aggregates back in, preserving their
// row counts.
func (b *StatementBank) Restore(aggs []StatementAggregate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, in := range aggs {
		agg := b.bucket(StatementKey{Lot: in.Lot, Period: in.Period})
		agg.Presented = agg.Presented.Add(in.Presented)
		agg.Approved = agg.Approved.Add(in.Approved)
		agg.Withheld = agg.Withheld.Add(in.Withheld)
		agg.RowCount += in.RowCount
	}
}

func (b *StatementBank) bucket(key StatementKey) *StatementAggregate {
	agg, ok := b.aggs[key]
	if !ok {
		agg = &StatementAggregate{Lot: key.Lot, Period: key.Period}
		b.aggs[key] = agg
	}
	return agg
}

// Snapshot returns a consistent copy of every aggregate, sorted by lot then
// period.
func (b *StatementBank) Snapshot() []StatementAggregate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]StatementAggregate, 0, len(b.aggs))
	for _, agg := range b.aggs {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lot != out[j].Lot {
			return out[i].Lot < out[j].Lot
		}
		return out[i].Period < out[j].Period
	})
	return out
}

// KnownLots returns the set of lot identifiers the bank has seen; the
// reconciliation key builder matches candidates against it.
func (b *StatementBank) KnownLots() map[string]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]struct{}, len(b.aggs))
	for key := range b.aggs {
		out[key.Lot] = struct{}{}
	}
	return out
}

func (b *StatementBank) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aggs = make(map[StatementKey]*StatementAggregate)
}

// Size reports the number of aggregate buckets.
func (b *StatementBank) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.aggs)
}

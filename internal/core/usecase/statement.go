package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
)

// StatementUseCase folds payment statements into the shared bank and keeps
// the persisted snapshot in step with it.
type StatementUseCase struct {
	reader ports.StatementReader
	repo   ports.StatementRepository
	bank   *domain.StatementBank
}

func NewStatementUseCase(
	reader ports.StatementReader,
	repo ports.StatementRepository,
	bank *domain.StatementBank,
) *StatementUseCase {
	return &StatementUseCase{
		reader: reader,
		repo:   repo,
		bank:   bank,
	}
}

// Ingest parses one statement workbook and merges its rows into the bank.
// The merge itself cannot fail; a snapshot persistence failure surfaces so
// the caller knows the restart state is behind, but the bank keeps the
// merge and the next successful ingestion heals the snapshot.
func (uc *StatementUseCase) Ingest(ctx context.Context, filename string, body io.Reader) ([]domain.StatementAggregate, error) {
	rows, err := uc.reader.Read(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("read statement %q: %w", filename, err)
	}

	uc.bank.Merge(rows)

	snapshot := uc.bank.Snapshot()
	if err := uc.repo.ReplaceAggregates(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persist statement snapshot: %w", err)
	}
	return snapshot, nil
}

func (uc *StatementUseCase) List(_ context.Context) []domain.StatementAggregate {
	return uc.bank.Snapshot()
}

func (uc *StatementUseCase) Clear(ctx context.Context) error {
	uc.bank.Clear()
	if err := uc.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear statement snapshot: %w", err)
	}
	return nil
}

// Restore loads the persisted aggregates back into the bank. Bootstrap
// calls it once before the API starts serving.
func (uc *StatementUseCase) Restore(ctx context.Context) error {
	aggs, err := uc.repo.ListAggregates(ctx)
	if err != nil {
		return fmt.Errorf("load statement snapshot: %w", err)
	}
	uc.bank.Restore(aggs)
	return nil
}

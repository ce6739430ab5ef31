package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

// StatementRepository persists the statement bank snapshot so a restart
// does not lose ingested statements.
type StatementRepository struct {
	db *sql.DB
}

func NewStatementRepository(db *sql.DB) *StatementRepository {
	return &StatementRepository{db: db}
}

func (r *StatementRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082002)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS statement_aggregates (
	lot TEXT NOT NULL,
	period TEXT NOT NULL,
	presented NUMERIC(14,2) NOT NULL DEFAULT 0,
	approved NUMERIC(14,2) NOT NULL DEFAULT 0,
	withheld NUMERIC(14,2) NOT NULL DEFAULT 0,
	row_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (lot, period)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// ReplaceAggregates swaps the persisted snapshot for the given one.
func (r *StatementRepository) ReplaceAggregates(ctx context.Context, aggs []domain.StatementAggregate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM statement_aggregates`); err != nil {
		return fmt.Errorf("clear statement aggregates: %w", err)
	}

	for _, agg := range aggs {
		_, err := tx.ExecContext(ctx, `
INSERT INTO statement_aggregates (lot, period, presented, approved, withheld, row_count)
VALUES ($1,$2,$3,$4,$5,$6)
`, agg.Lot, agg.Period, agg.Presented, agg.Approved, agg.Withheld, agg.RowCount)
		if err != nil {
			return fmt.Errorf("insert statement aggregate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

func (r *StatementRepository) ListAggregates(ctx context.Context) ([]domain.StatementAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT lot, period, presented, approved, withheld, row_count
FROM statement_aggregates
ORDER BY lot ASC, period ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list statement aggregates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StatementAggregate, 0)
	for rows.Next() {
		var agg domain.StatementAggregate
		err := rows.Scan(&agg.Lot, &agg.Period, &agg.Presented, &agg.Approved, &agg.Withheld, &agg.RowCount)
		if err != nil {
			return nil, fmt.Errorf("scan statement aggregate: %w", err)
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statement aggregates: %w", err)
	}
	return out, nil
}

func (r *StatementRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM statement_aggregates`); err != nil {
		return fmt.Errorf("clear statement aggregates: %w", err)
	}
	return nil
}

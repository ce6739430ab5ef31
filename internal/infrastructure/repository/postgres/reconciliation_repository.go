package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

// ReconciliationRepository stores the latest reconciliation run. The
// service only writes it; the table exists for SQL consumers.
type ReconciliationRepository struct {
	db *sql.DB
}

func NewReconciliationRepository(db *sql.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

func (r *ReconciliationRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082003)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS reconciliation_records (
	key TEXT NOT NULL,
	lot TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	period TEXT NOT NULL DEFAULT '',
	file_count INTEGER NOT NULL DEFAULT 0,
	guide_count INTEGER NOT NULL DEFAULT 0,
	xml_total NUMERIC(14,2) NOT NULL DEFAULT 0,
	xml_lot TEXT NOT NULL DEFAULT '',
	filename_lot TEXT NOT NULL DEFAULT '',
	statement_found BOOLEAN NOT NULL DEFAULT FALSE,
	presented NUMERIC(14,2) NOT NULL DEFAULT 0,
	approved NUMERIC(14,2) NOT NULL DEFAULT 0,
	withheld NUMERIC(14,2) NOT NULL DEFAULT 0,
	statement_rows INTEGER NOT NULL DEFAULT 0,
	presented_diff NUMERIC(14,2) NOT NULL DEFAULT 0,
	presented_matches BOOLEAN NOT NULL DEFAULT FALSE,
	approved_plus_withheld NUMERIC(14,2) NOT NULL DEFAULT 0,
	statement_consistent BOOLEAN NOT NULL DEFAULT FALSE,
	built_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reconciliation_records_key ON reconciliation_records(key);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// ReplaceRecords swaps the stored run for the given one.
func (r *ReconciliationRepository) ReplaceRecords(ctx context.Context, records []domain.ReconciliationRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin records tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reconciliation_records`); err != nil {
		return fmt.Errorf("clear reconciliation records: %w", err)
	}

	builtAt := time.Now().UTC()
	for _, rec := range records {
		_, err := tx.ExecContext(ctx, `
INSERT INTO reconciliation_records (
	key, lot, kind, period, file_count, guide_count, xml_total, xml_lot, filename_lot,
	statement_found, presented, approved, withheld, statement_rows, presented_diff,
	presented_matches, approved_plus_withheld, statement_consistent, built_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
`,
			rec.Key, rec.Lot, string(rec.Kind), rec.Period, rec.FileCount, rec.GuideCount,
			rec.XMLTotal, rec.XMLLot, rec.FilenameLot, rec.StatementFound, rec.Presented,
			rec.Approved, rec.Withheld, rec.StatementRows, rec.PresentedDiff,
			rec.PresentedMatches, rec.ApprovedPlusWithheld, rec.StatementConsistent, builtAt,
		)
		if err != nil {
			return fmt.Errorf("insert reconciliation record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records tx: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

type ClaimRepository struct {
	db *sql.DB
}

func NewClaimRepository(db *sql.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ClaimRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS claim_files (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claim_files_status ON claim_files(status);
CREATE INDEX IF NOT EXISTS idx_claim_files_filename ON claim_files(filename);

CREATE TABLE IF NOT EXISTS claim_summaries (
	file_id TEXT PRIMARY KEY REFERENCES claim_files(id) ON DELETE CASCADE,
	lot TEXT NOT NULL DEFAULT '',
	filename_lot TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	guide_count INTEGER NOT NULL DEFAULT 0,
	total NUMERIC(14,2) NOT NULL DEFAULT 0,
	strategy TEXT NOT NULL DEFAULT '',
	protocol TEXT NOT NULL DEFAULT '',
	lot_matches_filename BOOLEAN NOT NULL DEFAULT FALSE,
	suspicious BOOLEAN NOT NULL DEFAULT FALSE,
	duplicate_guides JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claim_summaries_lot ON claim_summaries(lot);

CREATE TABLE IF NOT EXISTS guide_audits (
	id BIGSERIAL PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES claim_files(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	filename TEXT NOT NULL DEFAULT '',
	lot TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT '',
	guide_number TEXT NOT NULL DEFAULT '',
	origin_guide TEXT NOT NULL DEFAULT '',
	operator_guide TEXT NOT NULL DEFAULT '',
	patient TEXT NOT NULL DEFAULT '',
	professional TEXT NOT NULL DEFAULT '',
	service_date TEXT NOT NULL DEFAULT '',
	amount NUMERIC(14,2) NOT NULL DEFAULT 0,
	strategy TEXT NOT NULL DEFAULT '',
	declared_total NUMERIC(14,2) NOT NULL DEFAULT 0,
	itemized_procedures NUMERIC(14,2) NOT NULL DEFAULT 0,
	itemized_expenses NUMERIC(14,2) NOT NULL DEFAULT 0,
	glosa_code TEXT NOT NULL DEFAULT '',
	justification TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_guide_audits_file_id ON guide_audits(file_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ClaimRepository) Create(ctx context.Context, file *domain.ClaimFile) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO claim_files (id, filename, storage_path, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		file.ID, file.Filename, file.StoragePath, string(file.Status), file.Error, file.CreatedAt, file.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert claim file: %w", err)
	}
	return nil
}

func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*domain.ClaimFile, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, storage_path, status, error_message, created_at, updated_at
FROM claim_files
WHERE id = $1
`, id)

	var file domain.ClaimFile
	var status string

	err := row.Scan(&file.ID, &file.Filename, &file.StoragePath, &status, &file.Error, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrClaimNotFound, "get claim file", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan claim file: %w", err)
	}

	file.Status = domain.FileStatus(status)
	return &file, nil
}

func (r *ClaimRepository) UpdateStatus(ctx context.Context, id string, status domain.FileStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE claim_files
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update claim status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update claim status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrClaimNotFound, "update claim status", fmt.Errorf("id=%s", id))
	}
	return nil
}

// SaveSummary upserts the parse result and replaces the audit rows in one
// transaction, so a reprocessed file never shows a mixed trail.
func (r *ClaimRepository) SaveSummary(ctx context.Context, summary *domain.FileSummary, audits []domain.GuideAudit) error {
	duplicatesJSON, err := json.Marshal(summary.DuplicateGuides)
	if err != nil {
		return fmt.Errorf("marshal duplicate guides: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summary tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO claim_summaries (
	file_id, lot, filename_lot, kind, guide_count, total, strategy, protocol,
	lot_matches_filename, suspicious, duplicate_guides, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (file_id) DO UPDATE SET
	lot = EXCLUDED.lot,
	filename_lot = EXCLUDED.filename_lot,
	kind = EXCLUDED.kind,
	guide_count = EXCLUDED.guide_count,
	total = EXCLUDED.total,
	strategy = EXCLUDED.strategy,
	protocol = EXCLUDED.protocol,
	lot_matches_filename = EXCLUDED.lot_matches_filename,
	suspicious = EXCLUDED.suspicious,
	duplicate_guides = EXCLUDED.duplicate_guides,
	updated_at = EXCLUDED.updated_at
`,
		summary.FileID, summary.Lot, summary.FilenameLot, string(summary.Kind), summary.GuideCount,
		summary.Total, summary.Strategy, summary.Protocol, summary.LotMatchesFilename,
		summary.Suspicious, duplicatesJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert claim summary: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM guide_audits WHERE file_id = $1`, summary.FileID); err != nil {
		return fmt.Errorf("delete old guide audits: %w", err)
	}

	for i, audit := range audits {
		_, err := tx.ExecContext(ctx, `
INSERT INTO guide_audits (
	file_id, position, filename, lot, kind, guide_number, origin_guide, operator_guide,
	patient, professional, service_date, amount, strategy, declared_total,
	itemized_procedures, itemized_expenses, glosa_code, justification
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`,
			audit.FileID, i, audit.Filename, audit.Lot, string(audit.Kind), audit.GuideNumber,
			audit.OriginGuide, audit.OperatorGuide, audit.Patient, audit.Professional,
			audit.ServiceDate, audit.Amount, audit.Strategy, audit.DeclaredTotal,
			audit.ItemizedProcedures, audit.ItemizedExpenses, audit.GlosaCode, audit.Justification,
		)
		if err != nil {
			return fmt.Errorf("insert guide audit %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summary tx: %w", err)
	}
	return nil
}

func (r *ClaimRepository) GetSummary(ctx context.Context, fileID string) (*domain.FileSummary, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT s.file_id, f.filename, s.lot, s.filename_lot, s.kind, s.guide_count, s.total,
	s.strategy, s.protocol, s.lot_matches_filename, s.suspicious, s.duplicate_guides
FROM claim_summaries s
JOIN claim_files f ON f.id = s.file_id
WHERE s.file_id = $1
`, fileID)

	var s domain.FileSummary
	var kind string
	var duplicatesRaw []byte

	err := row.Scan(
		&s.FileID, &s.Filename, &s.Lot, &s.FilenameLot, &kind, &s.GuideCount, &s.Total,
		&s.Strategy, &s.Protocol, &s.LotMatchesFilename, &s.Suspicious, &duplicatesRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrClaimNotFound, "get claim summary", fmt.Errorf("file_id=%s", fileID))
		}
		return nil, fmt.Errorf("scan claim summary: %w", err)
	}

	if err := json.Unmarshal(duplicatesRaw, &s.DuplicateGuides); err != nil {
		return nil, fmt.Errorf("unmarshal duplicate guides: %w", err)
	}
	s.Kind = domain.DocumentKind(kind)
	return &s, nil
}

// ListSummaries returns one row per uploaded file in filename order. Files
// without a summary yet, or failed ones, come back with the status error in
// the slot and zeroed numeric fields.
func (r *ClaimRepository) ListSummaries(ctx context.Context) ([]domain.FileSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT f.id, f.filename, f.error_message,
	s.lot, s.filename_lot, s.kind, s.guide_count, s.total, s.strategy, s.protocol,
	s.lot_matches_filename, s.suspicious, s.duplicate_guides
FROM claim_files f
LEFT JOIN claim_summaries s ON s.file_id = f.id
ORDER BY f.filename ASC, f.created_at ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list claim summaries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.FileSummary, 0)
	for rows.Next() {
		var (
			s             domain.FileSummary
			errMessage    sql.NullString
			lot           sql.NullString
			filenameLot   sql.NullString
			kind          sql.NullString
			guideCount    sql.NullInt64
			total         decimal.NullDecimal
			strategy      sql.NullString
			protocol      sql.NullString
			lotMatches    sql.NullBool
			suspicious    sql.NullBool
			duplicatesRaw []byte
		)
		err := rows.Scan(
			&s.FileID, &s.Filename, &errMessage,
			&lot, &filenameLot, &kind, &guideCount, &total, &strategy, &protocol,
			&lotMatches, &suspicious, &duplicatesRaw,
		)
		if err != nil {
			return nil, fmt.Errorf("scan claim summary row: %w", err)
		}

		s.Error = errMessage.String
		s.Lot = lot.String
		s.FilenameLot = filenameLot.String
		s.Kind = domain.DocumentKind(kind.String)
		s.GuideCount = int(guideCount.Int64)
		s.Total = total.Decimal
		s.Strategy = strategy.String
		s.Protocol = protocol.String
		s.LotMatchesFilename = lotMatches.Bool
		s.Suspicious = suspicious.Bool
		if len(duplicatesRaw) > 0 {
			if err := json.Unmarshal(duplicatesRaw, &s.DuplicateGuides); err != nil {
				return nil, fmt.Errorf("unmarshal duplicate guides: %w", err)
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim summaries: %w", err)
	}
	return out, nil
}

func (r *ClaimRepository) ListAudits(ctx context.Context, fileID string) ([]domain.GuideAudit, error) {
	rows, err := r.db.QueryContext(ctx, auditSelect+`
WHERE file_id = $1
ORDER BY position ASC
`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list guide audits: %w", err)
	}
	return collectAudits(rows)
}

func (r *ClaimRepository) ListAllAudits(ctx context.Context) ([]domain.GuideAudit, error) {
	rows, err := r.db.QueryContext(ctx, auditSelect+`
ORDER BY filename ASC, file_id ASC, position ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list guide audits: %w", err)
	}
	return collectAudits(rows)
}

const auditSelect = `
SELECT file_id, filename, lot, kind, guide_number, origin_guide, operator_guide,
	patient, professional, service_date, amount, strategy, declared_total,
	itemized_procedures, itemized_expenses, glosa_code, justification
FROM guide_audits
`

func collectAudits(rows *sql.Rows) ([]domain.GuideAudit, error) {
	defer rows.Close()

	out := make([]domain.GuideAudit, 0)
	for rows.Next() {
		var a domain.GuideAudit
		var kind string
		err := rows.Scan(
			&a.FileID, &a.Filename, &a.Lot, &kind, &a.GuideNumber, &a.OriginGuide, &a.OperatorGuide,
			&a.Patient, &a.Professional, &a.ServiceDate, &a.Amount, &a.Strategy, &a.DeclaredTotal,
			&a.ItemizedProcedures, &a.ItemizedExpenses, &a.GlosaCode, &a.Justification,
		)
		if err != nil {
			return nil, fmt.Errorf("scan guide audit: %w", err)
		}
		a.Kind = domain.DocumentKind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guide audits: %w", err)
	}
	return out, nil
}

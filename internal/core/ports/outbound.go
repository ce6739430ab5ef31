package ports

import (
	"context"
	"io"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

// ClaimRepository persists claim files, summaries and guide audits.
type ClaimRepository interface {
	Create(ctx context.Context, file *domain.ClaimFile) error
	GetByID(ctx context.Context, id string) (*domain.ClaimFile, error)
	UpdateStatus(ctx context.Context, id string, status domain.FileStatus, errMessage string) error
	SaveSummary(ctx context.Context, summary *domain.FileSummary, audits []domain.GuideAudit) error
	GetSummary(ctx context.Context, fileID string) (*domain.FileSummary, error)
	// ListSummaries returns one row per uploaded file in filename order;
	// failed files come back as error slots without numeric fields.
	ListSummaries(ctx context.Context) ([]domain.FileSummary, error)
	ListAudits(ctx context.Context, fileID string) ([]domain.GuideAudit, error)
	ListAllAudits(ctx context.Context) ([]domain.GuideAudit, error)
}

// StatementRepository persists the statement aggregate snapshot.
type StatementRepository interface {
	ReplaceAggregates(ctx context.Context, aggs []domain.StatementAggregate) error
	ListAggregates(ctx context.Context) ([]domain.StatementAggregate, error)
	Clear(ctx context.Context) error
}

// ReconciliationRepository keeps the latest reconciliation snapshot. The
// service only writes it; the table exists for SQL consumers.
type ReconciliationRepository interface {
	ReplaceRecords(ctx context.Context, records []domain.ReconciliationRecord) error
}

// ObjectStorage stores source and derived claim files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes file-received events.
type MessageQueue interface {
	PublishFileReceived(ctx context.Context, fileID string) error
	SubscribeFileReceived(ctx context.Context, handler func(context.Context, string) error) error
}

// ClaimParser extracts the billing facts from one TISS document.
type ClaimParser interface {
	Parse(ctx context.Context, filename string, data []byte) (*domain.ParsedClaim, error)
}

// GuideRemover splices guide elements out of the original document bytes.
type GuideRemover interface {
	RemoveGuides(data []byte, keys []string) ([]byte, int, error)
}

// StatementReader parses a payment statement workbook into raw rows.
type StatementReader interface {
	Read(ctx context.Context, src io.Reader) ([]domain.StatementRow, error)
}

// ReportBuilder renders export artifacts from a report bundle.
type ReportBuilder interface {
	ReconciliationWorkbook(report domain.Report) ([]byte, error)
	SummariesCSV(summaries []domain.FileSummary) ([]byte, error)
}

package ports

import (
	"context"
	"io"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

// BatchFile is one claim document submitted for synchronous parsing.
type BatchFile struct {
	Filename string
	Data     io.Reader
}

// ClaimIngestor is the inbound contract for claim file intake.
type ClaimIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.ClaimFile, error)
	// ParseBatch parses files in request order. Failed documents keep
	// their slot with the error recorded instead of numeric fields.
	ParseBatch(ctx context.Context, files []BatchFile) []domain.FileSummary
}

// ClaimProcessor is the inbound contract for asynchronous claim parsing.
// ProcessByID returns what it processed so the worker can label its
// metrics without a second lookup.
type ClaimProcessor interface {
	ProcessByID(ctx context.Context, fileID string) (*domain.ClaimDetail, error)
}

// ClaimReader is the inbound read model for claim files and summaries.
type ClaimReader interface {
	GetDetail(ctx context.Context, id string) (*domain.ClaimDetail, error)
	ListSummaries(ctx context.Context) ([]domain.FileSummary, error)
}

// StatementService ingests, lists and clears payment statements.
type StatementService interface {
	Ingest(ctx context.Context, filename string, body io.Reader) ([]domain.StatementAggregate, error)
	List(ctx context.Context) []domain.StatementAggregate
	Clear(ctx context.Context) error
}

// ReconciliationService computes the settlement views.
type ReconciliationService interface {
	Build(ctx context.Context) ([]domain.ReconciliationRecord, error)
	LotAggregates(ctx context.Context) ([]domain.LotAggregate, error)
}

// GuideRewriter produces a derived claim XML with guide elements removed.
type GuideRewriter interface {
	RemoveGuides(ctx context.Context, fileID string, keys []string) (*domain.RewriteResult, error)
}

// ReportService renders the export artifacts.
type ReportService interface {
	ReconciliationWorkbook(ctx context.Context) ([]byte, error)
	SummariesCSV(ctx context.Context) ([]byte, error)
}

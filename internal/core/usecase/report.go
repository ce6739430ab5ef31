package usecase

import (
	"context"
	"fmt"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
)

// ReportUseCase gathers the current state of the pipeline and hands it to
// the artifact builder.
type ReportUseCase struct {
	claims  ports.ClaimRepository
	recon   ports.ReconciliationService
	builder ports.ReportBuilder
}

func NewReportUseCase(
	claims ports.ClaimRepository,
	recon ports.ReconciliationService,
	builder ports.ReportBuilder,
) *ReportUseCase {
	return &ReportUseCase{
		claims:  claims,
		recon:   recon,
		builder: builder,
	}
}

func (uc *ReportUseCase) ReconciliationWorkbook(ctx context.Context) ([]byte, error) {
	summaries, err := uc.claims.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list claim summaries: %w", err)
	}
	lots, err := uc.recon.LotAggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate lots: %w", err)
	}
	records, err := uc.recon.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build reconciliation: %w", err)
	}
	audits, err := uc.claims.ListAllAudits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list guide audits: %w", err)
	}

	data, err := uc.builder.ReconciliationWorkbook(domain.Report{
		Summaries: summaries,
		Lots:      lots,
		Records:   records,
		Audits:    audits,
	})
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return data, nil
}

func (uc *ReportUseCase) SummariesCSV(ctx context.Context) ([]byte, error) {
	summaries, err := uc.claims.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list claim summaries: %w", err)
	}
	data, err := uc.builder.SummariesCSV(summaries)
	if err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}
	return data, nil
}

package usecase

import (
	"context"
	"fmt"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
)

// ClaimQueryUseCase is the read side: file detail with audits, and the
// summary listing.
type ClaimQueryUseCase struct {
	repo ports.ClaimRepository
}

func NewClaimQueryUseCase(repo ports.ClaimRepository) *ClaimQueryUseCase {
	return &ClaimQueryUseCase{repo: repo}
}

func (uc *ClaimQueryUseCase) GetDetail(ctx context.Context, id string) (*domain.ClaimDetail, error) {
	file, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch claim file by id: %w", err)
	}

	detail := &domain.ClaimDetail{File: *file}

	summary, err := uc.repo.GetSummary(ctx, id)
	switch {
	case err == nil:
		detail.Summary = summary
	case domain.IsKind(err, domain.ErrClaimNotFound):
		// Not processed yet; the file record alone is the answer.
		return detail, nil
	default:
		return nil, fmt.Errorf("fetch claim summary: %w", err)
	}

	audits, err := uc.repo.ListAudits(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list guide audits: %w", err)
	}
	detail.Audits = audits

	return detail, nil
}

func (uc *ClaimQueryUseCase) ListSummaries(ctx context.Context) ([]domain.FileSummary, error) {
	summaries, err := uc.repo.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list claim summaries: %w", err)
	}
	return summaries, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
)

// RewriteClaimUseCase produces a cleaned copy of a stored claim file with
// selected guides removed.
type RewriteClaimUseCase struct {
	repo    ports.ClaimRepository
	storage ports.ObjectStorage
	remover ports.GuideRemover
}

func NewRewriteClaimUseCase(
	repo ports.ClaimRepository,
	storage ports.ObjectStorage,
	remover ports.GuideRemover,
) *RewriteClaimUseCase {
	return &RewriteClaimUseCase{
		repo:    repo,
		storage: storage,
		remover: remover,
	}
}

// RemoveGuides rewrites the stored document without the given guide keys.
// An empty key list falls back to the duplicates detected at parse time.
func (uc *RewriteClaimUseCase) RemoveGuides(ctx context.Context, fileID string, keys []string) (*domain.RewriteResult, error) {
	file, err := uc.repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("fetch claim file by id: %w", err)
	}

	if len(keys) == 0 {
		keys, err = uc.detectedDuplicates(ctx, fileID)
		if err != nil {
			return nil, err
		}
	}

	data, err := uc.readSource(ctx, file)
	if err != nil {
		return nil, err
	}

	out, removed, err := uc.remover.RemoveGuides(data, keys)
	if err != nil {
		return nil, fmt.Errorf("remove guides: %w", err)
	}

	return &domain.RewriteResult{
		Filename: derivedFilename(file.Filename),
		Removed:  removed,
		XML:      out,
	}, nil
}

func (uc *RewriteClaimUseCase) detectedDuplicates(ctx context.Context, fileID string) ([]string, error) {
	summary, err := uc.repo.GetSummary(ctx, fileID)
	if domain.IsKind(err, domain.ErrClaimNotFound) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve duplicate guides", errors.New("file has not been processed"))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch claim summary: %w", err)
	}
	if len(summary.DuplicateGuides) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve duplicate guides", errors.New("no duplicate guides detected"))
	}
	return summary.DuplicateGuides, nil
}

func (uc *RewriteClaimUseCase) readSource(ctx context.Context, file *domain.ClaimFile) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, file.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	return data, nil
}

func derivedFilename(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".xml"
	}
	return base + "_sem_duplicadas" + ext
}

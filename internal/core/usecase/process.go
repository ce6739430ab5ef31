package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
)

type ProcessClaimUseCase struct {
	repo    ports.ClaimRepository
	storage ports.ObjectStorage
	parser  ports.ClaimParser
}

func NewProcessClaimUseCase(
	repo ports.ClaimRepository,
	storage ports.ObjectStorage,
	parser ports.ClaimParser,
) *ProcessClaimUseCase {
	return &ProcessClaimUseCase{
		repo:    repo,
		storage: storage,
		parser:  parser,
	}
}

func (uc *ProcessClaimUseCase) ProcessByID(ctx context.Context, fileID string) (*domain.ClaimDetail, error) {
	if err := uc.markStatus(ctx, fileID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("set status=processing: %w", err)
	}

	file, parsed, err := uc.parsePipeline(ctx, fileID)
	if err != nil {
		if failErr := uc.markFailed(ctx, fileID, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	if err := uc.persistSummary(ctx, fileID, parsed); err != nil {
		if failErr := uc.markFailed(ctx, fileID, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	if err := uc.markStatus(ctx, fileID, domain.StatusReady, ""); err != nil {
		return nil, fmt.Errorf("set status=ready: %w", err)
	}

	file.Status = domain.StatusReady
	summary := parsed.Summary
	summary.FileID = fileID
	return &domain.ClaimDetail{
		File:    *file,
		Summary: &summary,
		Audits:  parsed.Audits,
	}, nil
}

func (uc *ProcessClaimUseCase) parsePipeline(ctx context.Context, fileID string) (*domain.ClaimFile, *domain.ParsedClaim, error) {
	file, err := uc.loadFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}

	data, err := uc.readSource(ctx, file)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := uc.parser.Parse(ctx, file.Filename, data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse claim document: %w", err)
	}

	return file, parsed, nil
}

func (uc *ProcessClaimUseCase) loadFile(ctx context.Context, fileID string) (*domain.ClaimFile, error) {
	file, err := uc.repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("fetch claim file by id: %w", err)
	}
	return file, nil
}

func (uc *ProcessClaimUseCase) readSource(ctx context.Context, file *domain.ClaimFile) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, file.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read stored file", errors.New("file is empty"))
	}
	return data, nil
}

func (uc *ProcessClaimUseCase) persistSummary(ctx context.Context, fileID string, parsed *domain.ParsedClaim) error {
	summary := parsed.Summary
	summary.FileID = fileID

	audits := make([]domain.GuideAudit, len(parsed.Audits))
	copy(audits, parsed.Audits)
	for i := range audits {
		audits[i].FileID = fileID
	}

	if err := uc.repo.SaveSummary(ctx, &summary, audits); err != nil {
		return fmt.Errorf("save claim summary: %w", err)
	}
	return nil
}

func (uc *ProcessClaimUseCase) markStatus(ctx context.Context, fileID string, status domain.FileStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, fileID, status, errMessage)
}

func (uc *ProcessClaimUseCase) markFailed(ctx context.Context, fileID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, fileID, domain.StatusFailed, processErr.Error())
}

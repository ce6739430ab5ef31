package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
)

type IngestClaimUseCase struct {
	repo    ports.ClaimRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	parser  ports.ClaimParser
}

func NewIngestClaimUseCase(
	repo ports.ClaimRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	parser ports.ClaimParser,
) *IngestClaimUseCase {
	return &IngestClaimUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		parser:  parser,
	}
}

func (uc *IngestClaimUseCase) Upload(
	ctx context.Context,
	filename string,
	body io.Reader,
) (*domain.ClaimFile, error) {
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	file := &domain.ClaimFile{
		ID:          id,
		Filename:    filename,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("create claim file record: %w", err)
	}

	if err := uc.queue.PublishFileReceived(ctx, file.ID); err != nil {
		return nil, fmt.Errorf("publish file received event: %w", err)
	}

	return file, nil
}

// ParseBatch parses the submitted documents in request order without
// persisting anything. A document that fails keeps its slot with the error
// recorded, so callers can line results up with what they sent.
func (uc *IngestClaimUseCase) ParseBatch(ctx context.Context, files []ports.BatchFile) []domain.FileSummary {
	out := make([]domain.FileSummary, 0, len(files))
	for _, f := range files {
		out = append(out, uc.parseOne(ctx, f))
	}
	return out
}

func (uc *IngestClaimUseCase) parseOne(ctx context.Context, f ports.BatchFile) domain.FileSummary {
	data, err := io.ReadAll(f.Data)
	if err != nil {
		return domain.FileSummary{Filename: f.Filename, Error: fmt.Sprintf("read file: %v", err)}
	}
	parsed, err := uc.parser.Parse(ctx, f.Filename, data)
	if err != nil {
		return domain.FileSummary{Filename: f.Filename, Error: err.Error()}
	}
	return parsed.Summary
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "claim.xml"
	}
	return base
}

package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
)

type ingestRepoFake struct {
	created *domain.ClaimFile
	err     error
}

func (f *ingestRepoFake) Create(_ context.Context, file *domain.ClaimFile) error {
	if f.err != nil {
		return f.err
	}
	copyFile := *file
	f.created = &copyFile
	return nil
}

func (f *ingestRepoFake) GetByID(context.Context, string) (*domain.ClaimFile, error) {
	return nil, errors.New("not implemented")
}
func (f *ingestRepoFake) UpdateStatus(context.Context, string, domain.FileStatus, string) error {
	return errors.New("not implemented")
}
func (f *ingestRepoFake) SaveSummary(context.Context, *domain.FileSummary, []domain.GuideAudit) error {
	return errors.New("not implemented")
}
func (f *ingestRepoFake) GetSummary(context.Context, string) (*domain.FileSummary, error) {
	return nil, errors.New("not implemented")
}
func (f *ingestRepoFake) ListSummaries(context.Context) ([]domain.FileSummary, error) {
	return nil, errors.New("not implemented")
}
func (f *ingestRepoFake) ListAudits(context.Context, string) ([]domain.GuideAudit, error) {
	return nil, errors.New("not implemented")
}
func (f *ingestRepoFake) ListAllAudits(context.Context) ([]domain.GuideAudit, error) {
	return nil, errors.New("not implemented")
}

type ingestStorageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *ingestStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *ingestStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type ingestQueueFake struct {
	fileID string
	err    error
}

func (f *ingestQueueFake) PublishFileReceived(_ context.Context, fileID string) error {
	if f.err != nil {
		return f.err
	}
	f.fileID = fileID
	return nil
}

func (f *ingestQueueFake) SubscribeFileReceived(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type ingestParserFake struct {
	summaries map[string]domain.FileSummary
	errs      map[string]error
}

func (f *ingestParserFake) Parse(_ context.Context, filename string, _ []byte) (*domain.ParsedClaim, error) {
	if err := f.errs[filename]; err != nil {
		return nil, err
	}
	summary := f.summaries[filename]
	return &domain.ParsedClaim{Summary: summary}, nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestUploadSuccess(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{}
	queue := &ingestQueueFake{}
	uc := NewIngestClaimUseCase(repo, storage, queue, &ingestParserFake{})

	file, err := uc.Upload(context.Background(), "LOTE 48100.xml", bytes.NewBufferString("<xml/>"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if file.ID == "" {
		t.Fatalf("expected file id")
	}
	if file.Status != domain.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", file.Status)
	}
	if repo.created == nil {
		t.Fatalf("expected repo.Create call")
	}
	if queue.fileID != file.ID {
		t.Fatalf("expected queued file id %s, got %s", file.ID, queue.fileID)
	}
	if !strings.HasSuffix(storage.savedKey, "_LOTE_48100.xml") {
		t.Fatalf("expected sanitized key suffix, got %s", storage.savedKey)
	}
	if storage.savedBody != "<xml/>" {
		t.Fatalf("expected stored body, got %s", storage.savedBody)
	}
}

func TestUploadQueueError(t *testing.T) {
	queue := &ingestQueueFake{err: errors.New("queue down")}
	uc := NewIngestClaimUseCase(&ingestRepoFake{}, &ingestStorageFake{}, queue, &ingestParserFake{})

	_, err := uc.Upload(context.Background(), "lote.xml", bytes.NewBufferString("<xml/>"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish file received event") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestUploadStorageError(t *testing.T) {
	storage := &ingestStorageFake{err: errors.New("disk full")}
	uc := NewIngestClaimUseCase(&ingestRepoFake{}, storage, &ingestQueueFake{}, &ingestParserFake{})

	_, err := uc.Upload(context.Background(), "lote.xml", bytes.NewBufferString("<xml/>"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "save to object storage") {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestParseBatchKeepsRequestOrder(t *testing.T) {
	parser := &ingestParserFake{
		summaries: map[string]domain.FileSummary{
			"LOTE 481.xml": {
				Filename:   "LOTE 481.xml",
				Lot:        "481",
				Kind:       domain.KindConsultation,
				GuideCount: 2,
				Total:      decimal.RequireFromString("450.50"),
			},
		},
		errs: map[string]error{
			"broken.xml": errors.New("lot number missing"),
		},
	}
	uc := NewIngestClaimUseCase(&ingestRepoFake{}, &ingestStorageFake{}, &ingestQueueFake{}, parser)

	out := uc.ParseBatch(context.Background(), []ports.BatchFile{
		{Filename: "LOTE 481.xml", Data: strings.NewReader("<xml/>")},
		{Filename: "broken.xml", Data: strings.NewReader("<xml/>")},
		{Filename: "truncated.xml", Data: failingReader{err: errors.New("connection reset")}},
	})

	if len(out) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(out))
	}
	if out[0].Filename != "LOTE 481.xml" || out[0].Error != "" {
		t.Fatalf("unexpected first slot: %+v", out[0])
	}
	if out[0].Total.String() != "450.5" {
		t.Fatalf("total = %s, want 450.5", out[0].Total)
	}
	if out[1].Filename != "broken.xml" || out[1].Error != "lot number missing" {
		t.Fatalf("unexpected second slot: %+v", out[1])
	}
	if out[1].GuideCount != 0 || !out[1].Total.IsZero() {
		t.Fatalf("failed slot must keep zero numbers: %+v", out[1])
	}
	if !strings.Contains(out[2].Error, "read file") {
		t.Fatalf("expected read error slot, got %+v", out[2])
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"LOTE 481 Hospital São João.xml", "LOTE_481_Hospital_S_o_Jo_o.xml"},
		{"../../etc/passwd", "passwd"},
		{"", "claim.xml"},
		{"fatura-06_2026.xml", "fatura-06_2026.xml"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/asoliveira/tiss-reconciler/internal/config"
	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
)

type ingestFake struct {
	err error
}

func (f *ingestFake) Upload(_ context.Context, filename string, body io.Reader) (*domain.ClaimFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := io.ReadAll(body); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &domain.ClaimFile{
		ID:          "f-1",
		Filename:    filename,
		StoragePath: "f-1_" + filename,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (f *ingestFake) ParseBatch(_ context.Context, files []ports.BatchFile) []domain.FileSummary {
	out := make([]domain.FileSummary, 0, len(files))
	for _, file := range files {
		out = append(out, domain.FileSummary{Filename: file.Filename, GuideCount: 1})
	}
	return out
}

type claimsFake struct {
	gotID string
	err   error
}

func (f *claimsFake) GetDetail(_ context.Context, id string) (*domain.ClaimDetail, error) {
	f.gotID = id
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ClaimDetail{
		File:    domain.ClaimFile{ID: id, Status: domain.StatusReady},
		Summary: &domain.FileSummary{FileID: id, Lot: "481", Kind: domain.KindConsultation},
	}, nil
}

func (f *claimsFake) ListSummaries(context.Context) ([]domain.FileSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.FileSummary{
		{Filename: "LOTE 481.xml", Lot: "481", Total: decimal.RequireFromString("450.50")},
		{Filename: "quebrado.xml", Error: "not xml"},
	}, nil
}

type statementsFake struct {
	gotFilename string
	cleared     bool
	err         error
}

func (f *statementsFake) Ingest(_ context.Context, filename string, body io.Reader) ([]domain.StatementAggregate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := io.ReadAll(body); err != nil {
		return nil, err
	}
	f.gotFilename = filename
	return []domain.StatementAggregate{
		{Lot: "481", Period: "2026-06", Presented: decimal.RequireFromString("1500"), RowCount: 2},
	}, nil
}

func (f *statementsFake) List(context.Context) []domain.StatementAggregate {
	return []domain.StatementAggregate{{Lot: "481", Period: "2026-06"}}
}

func (f *statementsFake) Clear(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.cleared = true
	return nil
}

type reconFake struct {
	err error
}

func (f *reconFake) Build(context.Context) ([]domain.ReconciliationRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.ReconciliationRecord{
		{Key: "481__CONSULTA", Lot: "481", Kind: domain.KindConsultation, StatementFound: true},
	}, nil
}

func (f *reconFake) LotAggregates(context.Context) ([]domain.LotAggregate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.LotAggregate{{Lot: "481", Kind: domain.KindConsultation, FileCount: 1}}, nil
}

type rewriterFake struct {
	gotID   string
	gotKeys []string
	err     error
}

func (f *rewriterFake) RemoveGuides(_ context.Context, fileID string, keys []string) (*domain.RewriteResult, error) {
	f.gotID = fileID
	f.gotKeys = keys
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RewriteResult{
		Filename: "LOTE 481_sem_duplicadas.xml",
		Removed:  len(keys) + 1,
		XML:      []byte("<ans:mensagemTISS/>"),
	}, nil
}

type reportsFake struct {
	err error
}

func (f *reportsFake) ReconciliationWorkbook(context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("xlsx-bytes"), nil
}

func (f *reportsFake) SummariesCSV(context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("csv-bytes"), nil
}

type routerFakes struct {
	ingest     *ingestFake
	claims     *claimsFake
	statements *statementsFake
	recon      *reconFake
	rewriter   *rewriterFake
	reports    *reportsFake
}

func newTestRouter() (http.Handler, *routerFakes) {
	fakes := &routerFakes{
		ingest:     &ingestFake{},
		claims:     &claimsFake{},
		statements: &statementsFake{},
		recon:      &reconFake{},
		rewriter:   &rewriterFake{},
		reports:    &reportsFake{},
	}
	handler := NewRouter(
		config.Config{},
		fakes.ingest,
		fakes.claims,
		fakes.statements,
		fakes.recon,
		fakes.rewriter,
		fakes.reports,
		nil,
	).Handler()
	return handler, fakes
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestUploadClaimAccepted(t *testing.T) {
	handler, _ := newTestRouter()

	body, contentType := multipartBody(t, "file", map[string]string{"LOTE 481.xml": "<xml/>"})
	req := httptest.NewRequest(http.MethodPost, "/v1/claims", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	var claim map[string]any
	if err := json.NewDecoder(res.Body).Decode(&claim); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if claim["id"] != "f-1" || claim["status"] != "uploaded" {
		t.Fatalf("unexpected response: %+v", claim)
	}
}

func TestUploadClaimMissingMultipartField(t *testing.T) {
	handler, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/claims", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestListClaimsKeepsFailedSlots(t *testing.T) {
	handler, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/claims", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var summaries []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&summaries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(summaries))
	}
	if summaries[1]["error"] != "not xml" {
		t.Fatalf("failed slot missing: %+v", summaries[1])
	}
}

func TestPreviewParsesBatchInOrder(t *testing.T) {
	handler, _ := newTestRouter()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, name := range []string{"LOTE 481.xml", "LOTE 482.xml"} {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte("<xml/>")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/claims/preview", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var slots []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&slots); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0]["filename"] != "LOTE 481.xml" || slots[1]["filename"] != "LOTE 482.xml" {
		t.Fatalf("slots out of order: %+v", slots)
	}
}

func TestPreviewRequiresFiles(t *testing.T) {
	handler, _ := newTestRouter()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("note", "no files here"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/claims/preview", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetClaimByID(t *testing.T) {
	handler, fakes := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/claims/f-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fakes.claims.gotID != "f-1" {
		t.Fatalf("expected lookup for f-1, got %q", fakes.claims.gotID)
	}
}

func TestClaimsCollectionMethodNotAllowed(t *testing.T) {
	handler, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPut, "/v1/claims", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestRewriteClaimResponseHeaders(t *testing.T) {
	handler, fakes := newTestRouter()

	payload, _ := json.Marshal(map[string]any{"keys": []string{"481__CONSULTA__G-1"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/claims/f-1/rewrite", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fakes.rewriter.gotID != "f-1" || len(fakes.rewriter.gotKeys) != 1 {
		t.Fatalf("unexpected rewrite call: id=%q keys=%v", fakes.rewriter.gotID, fakes.rewriter.gotKeys)
	}
	if got := res.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/xml") {
		t.Fatalf("content type = %q", got)
	}
	if got := res.Header().Get("Content-Disposition"); !strings.Contains(got, "_sem_duplicadas") {
		t.Fatalf("content disposition = %q", got)
	}
	if got := res.Header().Get("X-Removed-Guides"); got != "2" {
		t.Fatalf("removed header = %q, want 2", got)
	}
	if !strings.Contains(res.Body.String(), "mensagemTISS") {
		t.Fatalf("body must carry the rewritten document: %s", res.Body.String())
	}
}

func TestRewriteClaimWithoutBodyUsesDetectedDuplicates(t *testing.T) {
	handler, fakes := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/claims/f-1/rewrite", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fakes.rewriter.gotKeys != nil {
		t.Fatalf("expected nil keys, got %v", fakes.rewriter.gotKeys)
	}
}

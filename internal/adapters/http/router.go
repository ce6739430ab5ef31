package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/asoliveira/tiss-reconciler/internal/config"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
	"github.com/asoliveira/tiss-reconciler/internal/observability/metrics"
)

const serviceName = "api"

const maxPreviewMemory = 32 << 20

type Router struct {
	ingest     ports.ClaimIngestor
	claims     ports.ClaimReader
	statements ports.StatementService
	recon      ports.ReconciliationService
	rewriter   ports.GuideRewriter
	reports    ports.ReportService

	metrics *metrics.HTTPServerMetrics

	rateLimiter   *rate.Limiter
	maxConcurrent int
	overloadWait  time.Duration
}

func NewRouter(
	cfg config.Config,
	ingest ports.ClaimIngestor,
	claims ports.ClaimReader,
	statements ports.StatementService,
	recon ports.ReconciliationService,
	rewriter ports.GuideRewriter,
	reports ports.ReportService,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	var limiter *rate.Limiter
	if cfg.APIRateLimitRPS > 0 {
		burst := cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = cfg.APIRateLimitRPS
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.APIRateLimitRPS), burst)
	}

	return &Router{
		ingest:        ingest,
		claims:        claims,
		statements:    statements,
		recon:         recon,
		rewriter:      rewriter,
		reports:       reports,
		metrics:       serverMetrics,
		rateLimiter:   limiter,
		maxConcurrent: cfg.APIMaxConcurrent,
		overloadWait:  time.Duration(cfg.APIOverloadWaitMS) * time.Millisecond,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("/v1/claims", rt.claimsCollection)
	mux.HandleFunc("/v1/claims/preview", rt.previewClaims)
	mux.HandleFunc("/v1/claims/", rt.claimSubtree)
	mux.HandleFunc("/v1/statements", rt.statementsCollection)
	mux.HandleFunc("/v1/lots", rt.listLots)
	mux.HandleFunc("/v1/reconciliation", rt.buildReconciliation)
	mux.HandleFunc("/v1/reports/reconciliation.xlsx", rt.downloadWorkbook)
	mux.HandleFunc("/v1/reports/summaries.csv", rt.downloadSummariesCSV)

	handler := http.Handler(mux)
	if rt.maxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.maxConcurrent, rt.overloadWait)
	}
	if rt.rateLimiter != nil {
		handler = rateLimitMiddleware(rt.rateLimiter, handler)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) claimsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.uploadClaim(w, r)
	case http.MethodGet:
		rt.listClaims(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadClaim(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	claim, err := rt.ingest.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, claim)
}

func (rt *Router) listClaims(w http.ResponseWriter, r *http.Request) {
	summaries, err := rt.claims.ListSummaries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// previewClaims parses a batch in one request without storing anything.
// Every file keeps its slot in the response, failed parses included.
func (rt *Router) previewClaims(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := r.ParseMultipartForm(maxPreviewMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	batch := make([]ports.BatchFile, 0, len(headers))
	for _, header := range headers {
		part, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("open %q: %v", header.Filename, err)})
			return
		}
		defer part.Close()
		batch = append(batch, ports.BatchFile{Filename: header.Filename, Data: part})
	}

	writeJSON(w, http.StatusOK, rt.ingest.ParseBatch(r.Context(), batch))
}

func (rt *Router) claimSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/claims/")
	if id, ok := strings.CutSuffix(rest, "/rewrite"); ok {
		rt.rewriteClaim(w, r, id)
		return
	}
	rt.getClaimByID(w, r, rest)
}

func (rt *Router) getClaimByID(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "claim id is required"})
		return
	}

	detail, err := rt.claims.GetDetail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) rewriteClaim(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "claim id is required"})
		return
	}

	var req struct {
		Keys []string `json:"keys"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}

	result, err := rt.rewriter.RemoveGuides(r.Context(), id, req.Keys)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordGuideRemoval(serviceName, result.Removed)
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("X-Removed-Guides", strconv.Itoa(result.Removed))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.XML)
}

func (rt *Router) statementsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.uploadStatement(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, rt.statements.List(r.Context()))
	case http.MethodDelete:
		if err := rt.statements.Clear(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadStatement(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	snapshot, err := rt.statements.Ingest(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordStatementMerge(serviceName, len(snapshot))
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (rt *Router) listLots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	lots, err := rt.recon.LotAggregates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lots)
}

func (rt *Router) buildReconciliation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	records, err := rt.recon.Build(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordReconcileRun(serviceName, len(records))
	}
	writeJSON(w, http.StatusOK, records)
}

func (rt *Router) downloadWorkbook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	payload, err := rt.reports.ReconciliationWorkbook(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExportDownload(serviceName, "xlsx")
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="conciliacao_tiss.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (rt *Router) downloadSummariesCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	payload, err := rt.reports.SummariesCSV(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExportDownload(serviceName, "csv")
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="resumo_arquivos.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

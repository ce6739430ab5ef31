package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type FileStatus string

const (
	StatusUploaded   FileStatus = "uploaded"
	StatusProcessing FileStatus = "processing"
	StatusReady      FileStatus = "ready"
	StatusFailed     FileStatus = "failed"
)

// DocumentKind identifies the TISS transaction carried by a claim file.
// Values follow the ANS vocabulary so exports and keys read like the
// source documents.
type DocumentKind string

const (
	KindConsultation DocumentKind = "CONSULTA"
	KindSADT         DocumentKind = "SADT"
	KindAppeal       DocumentKind = "RECURSO"
	KindUnknown      DocumentKind = "DESCONHECIDO"
)

// ClaimFile is one uploaded TISS XML file tracked through the pipeline.
type ClaimFile struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	StoragePath string     `json:"storage_path"`
	Status      FileStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FileSummary is the per-document extraction result. A failed parse keeps
// its slot: Error is set and the numeric fields stay zero.
type FileSummary struct {
	FileID             string          `json:"file_id,omitempty"`
	Filename           string          `json:"filename"`
	Lot                string          `json:"lot,omitempty"`
	FilenameLot        string          `json:"filename_lot,omitempty"`
	Kind               DocumentKind    `json:"kind,omitempty"`
	GuideCount         int             `json:"guide_count"`
	Total              decimal.Decimal `json:"total"`
	Strategy           string          `json:"strategy,omitempty"`
	Protocol           string          `json:"protocol,omitempty"`
	LotMatchesFilename bool            `json:"lot_matches_filename"`
	Suspicious         bool            `json:"suspicious"`
	DuplicateGuides    []string        `json:"duplicate_guides,omitempty"`
	Error              string          `json:"error,omitempty"`
}

// GuideAudit is one row of the per-guide audit trail. Kind-specific fields
// stay empty for the other kinds; the struct is flat because it feeds the
// audit export sheet directly.
type GuideAudit struct {
	FileID             string          `json:"file_id,omitempty"`
	Filename           string          `json:"filename"`
	Lot                string          `json:"lot"`
	Kind               DocumentKind    `json:"kind"`
	GuideNumber        string          `json:"guide_number,omitempty"`
	OriginGuide        string          `json:"origin_guide,omitempty"`
	OperatorGuide      string          `json:"operator_guide,omitempty"`
	Patient            string          `json:"patient,omitempty"`
	Professional       string          `json:"professional,omitempty"`
	ServiceDate        string          `json:"service_date,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Strategy           string          `json:"strategy"`
	DeclaredTotal      decimal.Decimal `json:"declared_total"`
	ItemizedProcedures decimal.Decimal `json:"itemized_procedures"`
	ItemizedExpenses   decimal.Decimal `json:"itemized_expenses"`
	GlosaCode          string          `json:"glosa_code,omitempty"`
	Justification      string          `json:"justification,omitempty"`
}

// ParsedClaim bundles everything one parse pass extracts from a document.
type ParsedClaim struct {
	Summary FileSummary  `json:"summary"`
	Audits  []GuideAudit `json:"audits,omitempty"`
}

// ClaimDetail is the full read model for one processed file.
type ClaimDetail struct {
	File    ClaimFile    `json:"file"`
	Summary *FileSummary `json:"summary,omitempty"`
	Audits  []GuideAudit `json:"audits,omitempty"`
}

// LotAggregate groups ready summaries by their XML-declared lot and kind.
type LotAggregate struct {
	Lot        string          `json:"lot"`
	Kind       DocumentKind    `json:"kind"`
	FileCount  int             `json:"file_count"`
	GuideCount int             `json:"guide_count"`
	Total      decimal.Decimal `json:"total"`
}

// RewriteResult is the outcome of removing guide elements from a claim file.
type RewriteResult struct {
	Filename string `json:"filename"`
	Removed  int    `json:"removed"`
	XML      []byte `json:"-"`
}

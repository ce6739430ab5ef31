package config

import (
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Policy carries the operadora-specific knobs: how the payment statement
// workbook is laid out and how strict the value conference is. Everything
// defaults to the ANS demonstrativo contract; a YAML file overrides fields
// for operadoras with their own export layout.
type Policy struct {
	Statement      StatementPolicy      `yaml:"statement"`
	Reconciliation ReconciliationPolicy `yaml:"reconciliation"`
}

type StatementPolicy struct {
	Sheet           string `yaml:"sheet"`
	HeaderAnchor    string `yaml:"header_anchor"`
	LotColumn       string `yaml:"lot_column"`
	PeriodColumn    string `yaml:"period_column"`
	PresentedColumn string `yaml:"presented_column"`
	ApprovedColumn  string `yaml:"approved_column"`
	WithheldColumn  string `yaml:"withheld_column"`
}

type ReconciliationPolicy struct {
	// Tolerance is an absolute amount in currency units, e.g. "0.01".
	Tolerance string `yaml:"tolerance"`
}

func DefaultPolicy() Policy {
	return Policy{
		Statement: StatementPolicy{
			Sheet:           "DemonstrativoAnaliseDeContas",
			HeaderAnchor:    "CPF/CNPJ",
			LotColumn:       "Lote",
			PeriodColumn:    "Competência",
			PresentedColumn: "Valor Apresentado",
			ApprovedColumn:  "Valor Apurado",
			WithheldColumn:  "Valor Glosa",
		},
		Reconciliation: ReconciliationPolicy{
			Tolerance: "0.01",
		},
	}
}

// LoadPolicy reads the policy file over the defaults. A missing path means
// defaults; an unreadable or invalid file logs a warning and falls back so
// a bad deploy never takes the service down.
func LoadPolicy(path string, logger *slog.Logger) Policy {
	if logger == nil {
		logger = slog.Default()
	}
	policy := DefaultPolicy()
	if path == "" {
		return policy
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("policy file unreadable, using defaults", "path", path, "error", err)
		return DefaultPolicy()
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		logger.Warn("policy file invalid, using defaults", "path", path, "error", err)
		return DefaultPolicy()
	}

	policy = policy.fillEmpty()
	if _, err := decimal.NewFromString(policy.Reconciliation.Tolerance); err != nil {
		logger.Warn("policy tolerance invalid, using default", "tolerance", policy.Reconciliation.Tolerance)
		policy.Reconciliation.Tolerance = DefaultPolicy().Reconciliation.Tolerance
	}
	return policy
}

// Tolerance returns the conference threshold as a decimal. LoadPolicy has
// already validated the text.
func (p Policy) Tolerance() decimal.Decimal {
	tol, err := decimal.NewFromString(p.Reconciliation.Tolerance)
	if err != nil {
		return decimal.New(1, -2)
	}
	return tol
}

// fillEmpty restores defaults for fields the file left blank, so a partial
// override does not wipe the contract values.
func (p Policy) fillEmpty() Policy {
	def := DefaultPolicy()
	out := p
	if out.Statement.Sheet == "" {
		out.Statement.Sheet = def.Statement.Sheet
	}
	if out.Statement.HeaderAnchor == "" {
		out.Statement.HeaderAnchor = def.Statement.HeaderAnchor
	}
	if out.Statement.LotColumn == "" {
		out.Statement.LotColumn = def.Statement.LotColumn
	}
	if out.Statement.PeriodColumn == "" {
		out.Statement.PeriodColumn = def.Statement.PeriodColumn
	}
	if out.Statement.PresentedColumn == "" {
		out.Statement.PresentedColumn = def.Statement.PresentedColumn
	}
	if out.Statement.ApprovedColumn == "" {
		out.Statement.ApprovedColumn = def.Statement.ApprovedColumn
	}
	if out.Statement.WithheldColumn == "" {
		out.Statement.WithheldColumn = def.Statement.WithheldColumn
	}
	if out.Reconciliation.Tolerance == "" {
		out.Reconciliation.Tolerance = def.Reconciliation.Tolerance
	}
	return out
}

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asoliveira/tiss-reconciler/internal/config"
	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
	"github.com/asoliveira/tiss-reconciler/internal/core/ports"
	"github.com/asoliveira/tiss-reconciler/internal/core/usecase"
	"github.com/asoliveira/tiss-reconciler/internal/infrastructure/demonstrative"
	"github.com/asoliveira/tiss-reconciler/internal/infrastructure/export"
	"github.com/asoliveira/tiss-reconciler/internal/infrastructure/queue/nats"
	"github.com/asoliveira/tiss-reconciler/internal/infrastructure/repository/postgres"
	"github.com/asoliveira/tiss-reconciler/internal/infrastructure/resilience"
	"github.com/asoliveira/tiss-reconciler/internal/infrastructure/storage/localfs"
	"github.com/asoliveira/tiss-reconciler/internal/infrastructure/tiss"
	"github.com/asoliveira/tiss-reconciler/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue ports.MessageQueue

	IngestUC    ports.ClaimIngestor
	ProcessUC   ports.ClaimProcessor
	ClaimsUC    ports.ClaimReader
	StatementUC ports.StatementService
	ReconcileUC ports.ReconciliationService
	RewriteUC   ports.GuideRewriter
	ReportUC    ports.ReportService

	closeFn func()
}

// New wires the full application graph for one process. The service name
// only labels the logger; api and worker share everything else.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	claimRepo := postgres.NewClaimRepository(db)
	if err := claimRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure claim schema: %w", err)
	}
	statementRepo := postgres.NewStatementRepository(db)
	if err := statementRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure statement schema: %w", err)
	}
	reconciliationRepo := postgres.NewReconciliationRepository(db)
	if err := reconciliationRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure reconciliation schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	policy := config.LoadPolicy(cfg.PolicyPath, logger)
	statementReader := demonstrative.NewReader(demonstrative.Layout{
		Sheet:           policy.Statement.Sheet,
		HeaderAnchor:    policy.Statement.HeaderAnchor,
		LotColumn:       policy.Statement.LotColumn,
		PeriodColumn:    policy.Statement.PeriodColumn,
		PresentedColumn: policy.Statement.PresentedColumn,
		ApprovedColumn:  policy.Statement.ApprovedColumn,
		WithheldColumn:  policy.Statement.WithheldColumn,
	})

	parser := tiss.NewParser()
	rewriter := tiss.NewRewriter()
	builder := export.NewBuilder()
	bank := domain.NewStatementBank()

	ingestUC := usecase.NewIngestClaimUseCase(claimRepo, storage, queue, parser)
	processUC := usecase.NewProcessClaimUseCase(claimRepo, storage, parser)
	claimsUC := usecase.NewClaimQueryUseCase(claimRepo)
	statementUC := usecase.NewStatementUseCase(statementReader, statementRepo, bank)
	reconcileUC := usecase.NewReconcileUseCase(claimRepo, reconciliationRepo, bank, policy.Tolerance())
	rewriteUC := usecase.NewRewriteClaimUseCase(claimRepo, storage, rewriter)
	reportUC := usecase.NewReportUseCase(claimRepo, reconcileUC, builder)

	// The bank lives in memory; reload the persisted aggregates so a
	// restart does not silently reconcile against an empty statement set.
	if err := statementUC.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore statement bank: %w", err)
	}

	return &App{
		Config: cfg,
		Logger: logger,
		Queue:  queue,

		IngestUC:    ingestUC,
		ProcessUC:   processUC,
		ClaimsUC:    claimsUC,
		StatementUC: statementUC,
		ReconcileUC: reconcileUC,
		RewriteUC:   rewriteUC,
		ReportUC:    reportUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asoliveira/tiss-reconciler/internal/bootstrap"
	"github.com/asoliveira/tiss-reconciler/internal/config"
	"github.com/asoliveira/tiss-reconciler/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics)

	processTimeout := time.Duration(cfg.WorkerTimeoutSeconds) * time.Second
	if processTimeout <= 0 {
		processTimeout = time.Minute
	}

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeFileReceived(ctx, func(handlerCtx context.Context, fileID string) error {
		workerMetrics.StartFile()
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		detail, processErr := app.ProcessUC.ProcessByID(processCtx, fileID)

		kind := ""
		guides := 0
		if detail != nil {
			workerMetrics.ObserveQueueLag(serviceName, start.Sub(detail.File.CreatedAt))
			if detail.Summary != nil {
				kind = string(detail.Summary.Kind)
				guides = detail.Summary.GuideCount
			}
		}
		workerMetrics.FinishFile(serviceName, kind, time.Since(start), guides, processErr)
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("worker metrics shutdown error: %v", err)
	}
}

func startMetricsServer(port string, workerMetrics *metrics.WorkerMetrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", workerMetrics.Handler())

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("worker metrics listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()
	return server
}

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maximebr/fraud-assistant/internal/bootstrap"
	"github.com/maximebr/fraud-assistant/internal/config"
	"github.com/maximebr/fraud-assistant/internal/observability/metrics"
)

func main() {
	once := flag.Bool("once", false, "run a single reindex and exit")
	reason := flag.String("reason", "cli", "reason recorded for a one-shot reindex")
	flag.Parse()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "indexer")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	m := metrics.NewIndexerMetrics("indexer")

	runReindex := func(runCtx context.Context, runReason string) error {
		reindexCtx, cancel := context.WithTimeout(runCtx, 10*time.Minute)
		defer cancel()

		m.StartReindex()
		start := time.Now()
		report, err := app.ReindexUC.Reindex(reindexCtx, runReason)
		m.FinishReindex("indexer", time.Since(start), err)
		if err != nil {
			return err
		}

		m.SetActiveChunks("indexer", report.ChunksCreated)
		m.RecordSkippedFiles("indexer", report.FilesFailed)
		return nil
	}

	if *once {
		if err := runReindex(ctx, *reason); err != nil {
			log.Fatalf("reindex error: %v", err)
		}
		return
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}
	go func() {
		app.Logger.Info("metrics listening", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()

	app.Logger.Info("indexer subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeReindexRequested(ctx, func(handlerCtx context.Context, requestReason string) error {
		if err := runReindex(handlerCtx, requestReason); err != nil {
			app.Logger.Error("reindex failed", "reason", requestReason, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		log.Fatalf("indexer subscribe error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/billbuster/billpoints/internal/api"
	"github.com/billbuster/billpoints/internal/billstore"
	"github.com/billbuster/billpoints/internal/config"
	"github.com/billbuster/billpoints/internal/extract"
	"github.com/billbuster/billpoints/internal/pipeline"
	"github.com/billbuster/billpoints/internal/queue"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := extract.NewClient(cfg.AnthropicAPIKey, cfg.ModelName, cfg.RequestTimeout, cfg.RequestsPerSecond)

	var sink queue.Sink
	var store *billstore.Client
	if cfg.BillstoreURL != "" {
		store = billstore.NewClient(cfg.BillstoreURL, cfg.BillstoreAPIKey)
		sink = store
	}
	q := queue.NewManager(sink, cfg.SinkMaxAttempts)

	processor := pipeline.NewProcessor(model, q, log, pipeline.Options{
		ChunkSize:       cfg.ChunkSize,
		Overlap:         cfg.ChunkOverlap,
		MemoryWindow:    cfg.MemoryWindow,
		MaxRetries:      cfg.MaxRetries,
		RequestTimeout:  cfg.RequestTimeout,
		GenerateSummary: cfg.GenerateSummary,
	})
	if store != nil {
		processor.SetAnalysisSink(store)
	}

	orch := pipeline.NewOrchestrator(processor, log, cfg.WorkerCount, cfg.MaxQueueSize, cfg.JobTTL)
	orch.Start(ctx)

	srv := api.NewServer(orch, model, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		// Stop accepting requests before the job queue closes, so no
		// in-flight submit races the shutdown.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		model.Close()
		if store != nil {
			store.Close()
		}
	}()

	log.Info("starting billpoints", "port", cfg.Port, "model", cfg.ModelName)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ofx-ingest/internal/api"
	"github.com/dvloznov/ofx-ingest/internal/api/handlers"
	"github.com/dvloznov/ofx-ingest/internal/app"
	"github.com/dvloznov/ofx-ingest/internal/config"
	"github.com/dvloznov/ofx-ingest/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithLevel(cfg.Log.Level, cfg.Log.JSON)
	ctx := context.Background()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if a.Warehouse != nil {
		if err := a.Warehouse.EnsureTables(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare warehouse tables")
		}
	}

	// Worker context is separate from the server so in-flight uploads can be
	// interrupted between chunks on shutdown and resumed on next start.
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := a.Queue.Start(workerCtx, a.Ingest.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	n, err := a.Ingest.Recover(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to recover stranded uploads")
	} else if n > 0 {
		log.Info().Int("uploads", n).Msg("Recovered stranded uploads")
	}

	handler := api.NewRouter(api.Handlers{
		Uploads: handlers.NewUploadsHandler(a.Ingest, cfg.Upload.MaxBytes, log),
		Rules:   handlers.NewRulesHandler(a.Rules, log),
		Jobs:    handlers.NewJobsHandler(a.JobStore, log),
	}, cfg.Company.DefaultID, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancelWorker()

	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to release resources")
	}

	log.Info().Msg("Server exited")
}

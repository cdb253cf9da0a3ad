package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ofx-ingest/internal/app"
	"github.com/dvloznov/ofx-ingest/internal/config"
	"github.com/dvloznov/ofx-ingest/internal/logger"
)

// The worker processes uploads without serving HTTP. It picks up uploads left
// pending by `cli ingest --wait=false` or by an interrupted run. Run it instead
// of the API server against the same database, never alongside it.
func main() {
	poll := flag.Duration("poll", 10*time.Second, "how often to look for pending uploads")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.Log.Level, cfg.Log.JSON)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if err := a.Queue.Start(ctx, a.Ingest.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Dur("poll", *poll).Msg("Worker service started, waiting for uploads...")

	go func() {
		ticker := time.NewTicker(*poll)
		defer ticker.Stop()
		for {
			n, err := a.Ingest.Recover(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Failed to enqueue pending uploads")
			} else if n > 0 {
				log.Info().Int("uploads", n).Msg("Enqueued pending uploads")
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Running uploads stop between chunks and stay resumable.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to release resources")
	}

	log.Info().Msg("Worker service exited")
}

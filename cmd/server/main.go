package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"closeout/internal/config"
	"closeout/internal/infra"
	"closeout/internal/repository"
	"closeout/internal/router"
	"closeout/internal/service"
	"closeout/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Start goroutine worker pool for async tasks (closing notifications,
	// queued batch regenerations). Worker handlers are wired here (composition
	// root) so that the pool has full access to all infrastructure deps.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailer := infra.NewMailer(cfg)
	webhookCB := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	webhookClient := infra.NewWebhookClient(cfg.WebhookURL, webhookCB)
	dispatcher := worker.NewDispatcher(rdb)

	// Worker-side regeneration stack. Queued jobs must never re-trigger
	// notifications, so this repo gets no observer.
	sessionRepo := repository.NewSessionRepository(db, nil)
	finder := service.NewOrphanFinder(
		repository.NewChargeRepository(db),
		repository.NewReceiptRepository(db),
		repository.NewEventRepository(db),
		log.With().Str("component", "orphan_finder").Logger(),
	)
	totals := service.NewTotalsRecalculator(service.DrawerCashCalculator{})
	regenSvc := service.NewRegenerationService(sessionRepo, finder, totals,
		service.NewReportGenerator(),
		log.With().Str("component", "regeneration").Logger())

	workerHandlers := &worker.WorkerHandlers{
		Notify: worker.NewNotifyWorker(mailer, webhookClient, cfg.SummaryEmail,
			log.With().Str("component", "notify_worker").Logger()),
		Regenerate: worker.NewRegenerateWorker(regenSvc,
			log.With().Str("component", "regenerate_worker").Logger()),
	}
	worker.StartWorkerPool(ctx, rdb, workerHandlers, cfg.WorkerPoolSize, cfg.MaxJobAttempts)

	r := router.New(cfg, db, rdb, dispatcher, webhookCB)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("closeout backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}

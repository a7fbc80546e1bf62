package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retailpos/internal/config"
	"retailpos/internal/infra"
	"retailpos/internal/metrics"
	"retailpos/internal/repository"
	"retailpos/internal/router"
	"retailpos/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	db, err := infra.NewDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	m := metrics.New(metrics.DefaultConfig())

	smtpCBConfig := infra.DefaultCBConfig("smtp")
	smtpCBConfig.OnStateChange = func(name string, to infra.CBState) {
		m.SetCircuitBreakerState(name, int(to))
	}
	smtpCB := infra.NewCircuitBreaker(smtpCBConfig)
	mailer := infra.NewMailer(cfg, smtpCB)
	if !mailer.Enabled() {
		log.Warn().Msg("SMTP_HOST not set, receipt emails disabled")
	}

	// Receipt and email workers are wired here (composition root) so the pool
	// has full access to the infrastructure dependencies.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := worker.NewDispatcher(rdb)
	receiptRepo := repository.NewReceiptRepository(db)
	receiptWorker := worker.NewReceiptWorker(receiptRepo, repository.NewSaleRepository(db), dispatcher, m, worker.ReceiptWorkerConfig{
		StoragePath: cfg.PDFStoragePath,
		StoreName:   cfg.StoreName,
		MaxRetries:  cfg.ReceiptMaxRetries,
	})
	emailWorker := worker.NewEmailWorker(mailer, receiptRepo, m)

	worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, map[string]worker.Handler{
		worker.JobReceipt: receiptWorker.Process,
		worker.JobEmail:   emailWorker.Process,
	})
	worker.StartRetryCron(ctx, worker.RetryCronConfig{Receipts: receiptRepo, Worker: receiptWorker})

	r := router.New(cfg, router.Deps{
		DB:          db,
		Redis:       rdb,
		Metrics:     m,
		Dispatcher:  dispatcher,
		SMTPBreaker: smtpCB,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("RetailPOS listening on :%d", cfg.Port)
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
		log.Error().Err(err).Msg("forced shutdown")
	}
	// Stop the worker pool and retry cron after in-flight requests drain.
	cancel()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = rdb.Close()
	log.Info().Msg("server exited")
}

// setupLogger: pretty console output in development, JSON in production.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "production" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "retailpos").Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedpipe/internal/config"
	"feedpipe/internal/database"
	"feedpipe/internal/dedup"
	"feedpipe/internal/domain"
	"feedpipe/internal/feed"
	"feedpipe/internal/ingest"
	"feedpipe/internal/notifier"
	"feedpipe/internal/scheduler"
	"feedpipe/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("Failed to load config",
			"error", err)

		return 1
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return 1
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	svc, closeService := initService(ctx, cfg, db, log)
	defer closeService()

	if len(os.Args) > 1 {
		return runCommand(ctx, svc, os.Args[1:], log)
	}

	stopMetrics := startMetricsServer(ctx, cfg.MetricsAddr, log)
	defer stopMetrics()

	sched := scheduler.New(ctx, db, svc, scheduler.Options{
		Spec:          cfg.SchedulerSpec,
		RetryBackoff:  cfg.SchedulerRetryBackoff,
		RetryAttempts: cfg.SchedulerRetryAttempts,
		BatchTimeout:  cfg.BatchTimeout,
	}, log)

	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", cfg.SchedulerSpec,
			"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())

		return 1
	}
	log.InfoContext(ctx, "Scheduler is started",
		"spec", cfg.SchedulerSpec,
		"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.InfoContext(ctx, "Shutdown signal is received",
		"signal", sig.String())
	cancel()

	sched.Stop()
	log.InfoContext(ctx, "Scheduler is stopped",
		"signal", sig.String(),
		"uptimeSeconds", time.Since(start).Seconds())

	return 0
}

func initService(
	ctx context.Context,
	cfg config.Config,
	db *database.Database,
	log *slog.Logger,
) (*service.Service, func()) {
	fetcher := feed.NewFetcher(feed.Options{
		Timeout:          cfg.FetchTimeout,
		HostInterval:     cfg.HostMinInterval,
		MaxDocumentBytes: cfg.MaxDocumentBytes,
		UserAgent:        cfg.UserAgent,
		CacheSize:        cfg.FeedCacheSize,
	}, log)

	opts := ingest.Options{
		MaxConcurrent: cfg.MaxConcurrentFetches,
		FeedTimeout:   cfg.FeedTimeout,
		StoreTimeout:  cfg.StoreTimeout,
	}

	closeFn := func() {}
	if n := initNotifier(ctx, cfg, log); n != nil {
		opts.Reporter = n
		closeFn = n.Close
	}

	orchestrator := ingest.New(fetcher, dedup.New(db), db, opts, log)

	return service.New(db, orchestrator, log), closeFn
}

func initNotifier(ctx context.Context, cfg config.Config, log *slog.Logger) *notifier.Notifier {
	if !cfg.NotifierEnabled() {
		log.InfoContext(ctx, "Telegram notifier is disabled",
			"envVars", []string{"TELEGRAM_TOKEN", "TELEGRAM_ADMIN_CHAT_ID"})

		return nil
	}

	n, err := notifier.New(cfg.TelegramToken, cfg.TelegramAdminChatID, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create Telegram notifier so reports are disabled",
			"error", err,
			"chatID", cfg.TelegramAdminChatID)

		return nil
	}

	log.InfoContext(ctx, "Telegram notifier is initialized",
		"chatID", cfg.TelegramAdminChatID)

	return n
}

// runCommand handles one-shot CLI modes. Only "trigger <TIER>" exists.
func runCommand(ctx context.Context, svc *service.Service, args []string, log *slog.Logger) int {
	if len(args) != 2 || args[0] != "trigger" {
		_, _ = fmt.Fprintln(os.Stderr, "usage: feedpipe [trigger HOURLY|DAILY|WEEKLY]")

		return 2
	}

	tier, err := domain.ParseFrequency(args[1])
	if err != nil {
		log.ErrorContext(ctx, "Failed to parse tier",
			"error", err,
			"tier", args[1])

		return 2
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcomes, err := svc.TriggerIngestion(ctx, tier)

	stored, failed := 0, 0
	for _, outcome := range outcomes {
		stored += outcome.Stored
		if outcome.Failed() {
			failed++
		}
	}

	if err != nil {
		log.ErrorContext(ctx, "Failed to trigger ingestion",
			"error", err,
			"tier", tier,
			"feedCount", len(outcomes),
			"failedCount", failed)

		return 1
	}

	log.InfoContext(ctx, "Ingestion is done",
		"tier", tier,
		"feedCount", len(outcomes),
		"failedCount", failed,
		"storedCount", stored)

	return 0
}

func startMetricsServer(ctx context.Context, addr string, log *slog.Logger) func() {
	if addr == "" {
		log.InfoContext(ctx, "Metrics server is disabled",
			"envVar", "METRICS_ADDR")

		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Failed to serve metrics",
				"error", err,
				"addr", addr)
		}
	}()
	log.InfoContext(ctx, "Metrics server is started",
		"addr", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.ErrorContext(shutdownCtx, "Failed to stop metrics server",
				"error", err,
				"addr", addr)
		}
	}
}

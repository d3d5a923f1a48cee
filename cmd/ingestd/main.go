package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"PortfolioPulse/internal/analytics"
	"PortfolioPulse/internal/collector"
	"PortfolioPulse/internal/config"
	"PortfolioPulse/internal/ingest"
	"PortfolioPulse/internal/logging"
	"PortfolioPulse/internal/notifier"
	"PortfolioPulse/internal/orchestrator"
	"PortfolioPulse/internal/recorder"
	"PortfolioPulse/internal/scheduler"
	"PortfolioPulse/internal/server"
	"PortfolioPulse/internal/store"
	"PortfolioPulse/internal/universe"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("PortfolioPulse starting", zap.String("config", cfgPath))

	// Cancelled on SIGINT/SIGTERM; running jobs stop starting new tickers.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prices, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open price store", zap.Error(err))
	}
	defer prices.Close()

	source := newSource(cfg, logger)
	logger.Info("quote source", zap.String("provider", source.Name()))

	u, err := newUniverse(cfg, prices)
	if err != nil {
		logger.Fatal("init universe", zap.Error(err))
	}

	rec := newRecorder(ctx, cfg, logger)
	defer rec.Close()

	orch := orchestrator.New(source, prices, cfg.RetryPolicy(), logger)
	jobs := ingest.NewJobs(orch, u, prices, rec,
		ingest.BackfillSettings{
			Pacing:       ingest.Pacing(cfg.Backfill.Pacing),
			LookbackDays: cfg.Backfill.LookbackDays,
			Incremental:  cfg.Backfill.Incremental,
		},
		ingest.Pacing(cfg.Daily),
		logger)
	signals := analytics.NewService(prices)

	var sender scheduler.Sender
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(notifier.Options{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			APIBase:  cfg.Telegram.APIBase,
			Proxy:    cfg.Proxy,
		}, logger)
		sender = tn
	}
	runs, _ := rec.(recorder.Reader)

	sched := scheduler.NewScheduler(ctx, jobs, sender, runs, signals, logger)
	if err := sched.RegisterAll(cfg.Schedule.DailyCron, cfg.Schedule.BackfillCron); err != nil {
		logger.Fatal("register cron tasks", zap.Error(err))
	}
	sched.Start()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		router := server.NewRouter(server.Deps{
			Trigger: sched,
			Runs:    runs,
			Prices:  prices,
			Signals: signals,
			Jobs:    scheduler.Jobs,
		}, logger)
		srv = server.New(cfg.Server.Addr, router, logger)
		srv.Start()
	}

	switch os.Getenv("RUN_ON_START") {
	case "true", ingest.JobDaily:
		logger.Info("RUN_ON_START enabled, running daily refresh now")
		go sched.RunDailyNow()
	case ingest.JobBackfill:
		logger.Info("RUN_ON_START enabled, running backfill now")
		go sched.RunBackfillNow()
	}

	logger.Info("PortfolioPulse is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	logger.Info("shutdown signal received, stopping...")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
		cancel()
	}
	sched.Stop()
	logger.Info("PortfolioPulse stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.PriceStore, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Database.PostgresURL, logger)
	default:
		return store.NewSQLiteStore(cfg.Database.SQLitePath, logger)
	}
}

func newSource(cfg *config.Config, logger *zap.Logger) collector.QuoteSource {
	opts := collector.Options{
		BaseURL:           cfg.Source.BaseURL,
		APIKey:            cfg.Source.APIKey,
		Timeout:           cfg.Source.Timeout,
		Proxy:             cfg.Proxy,
		UserAgent:         cfg.Source.UserAgent,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
		SymbolMap:         cfg.Source.SymbolMap,
	}
	if cfg.Source.Provider == "polygon" {
		return collector.NewPolygonSource(opts, logger)
	}
	return collector.NewYahooSource(opts, logger)
}

func newUniverse(cfg *config.Config, prices store.PriceStore) (universe.Source, error) {
	switch cfg.Universe.Kind {
	case "file":
		return universe.File{Path: cfg.Universe.File}, nil
	case "registry":
		return universe.NewSQLRegistry(prices.SQLDB(), cfg.Universe.Query), nil
	case "static":
		return universe.Static(cfg.Universe.Tickers), nil
	default:
		return nil, fmt.Errorf("unknown universe kind %q", cfg.Universe.Kind)
	}
}

// newRecorder falls back to a noop recorder when the run history cannot be
// opened; ingestion does not depend on it.
func newRecorder(ctx context.Context, cfg *config.Config, logger *zap.Logger) recorder.Recorder {
	var recs recorder.Multi
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.RecorderPath, logger)
	if err != nil {
		logger.Warn("init sqlite recorder failed", zap.Error(err))
	} else {
		recs = append(recs, sr)
	}

	if cfg.Archive.Enabled {
		a, err := recorder.NewS3Archiver(ctx, recorder.S3Config{
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			UseSSL:          cfg.Archive.UseSSL,
			Prefix:          cfg.Archive.Prefix,
		}, logger)
		if err != nil {
			logger.Warn("init report archive failed", zap.Error(err))
		} else {
			recs = append(recs, a)
		}
	}

	if len(recs) == 0 {
		return recorder.NewNoopRecorder()
	}
	return recs
}

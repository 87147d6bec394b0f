package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deusflow/trendhunter/internal/config"
	"github.com/deusflow/trendhunter/internal/digest"
	"github.com/deusflow/trendhunter/internal/fetch"
	"github.com/deusflow/trendhunter/internal/logger"
	"github.com/deusflow/trendhunter/internal/metrics"
	"github.com/deusflow/trendhunter/internal/newsfeed"
	"github.com/deusflow/trendhunter/internal/notify"
	"github.com/deusflow/trendhunter/internal/ratelimit"
	"github.com/deusflow/trendhunter/internal/scanner"
	"github.com/deusflow/trendhunter/internal/scraper"
	"github.com/deusflow/trendhunter/internal/server"
	"github.com/deusflow/trendhunter/internal/storage"
	"github.com/deusflow/trendhunter/internal/trends"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(false)
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}

	httpClient := fetch.NewClient(cfg.FetchTimeout)
	news := newsfeed.NewReader(httpClient, cfg.Sources)
	trendingFeed := trends.NewFeedReader(httpClient, cfg.Sources)
	trendsClient := trends.NewClient(httpClient, cfg.Sources)
	trendsSvc := trends.NewService(trendsClient, cfg.Sources, cfg.InterestCacheTTL, cfg.RelatedCacheTTL)

	m := metrics.New()
	coordinator := scanner.NewCoordinator()
	orchestrator := scanner.NewOrchestrator(store, news, trendingFeed, coordinator, m)

	if telegram := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, cfg.RetryAttempts, cfg.RetryDelay); telegram != nil {
		orchestrator.SetNotifier(telegram, cfg.AlertMinScore)
		logger.Info("telegram alerts enabled", "min_score", cfg.AlertMinScore)
	}

	digestSvc, err := digest.NewService(
		ctx,
		cfg.GeminiAPIKey,
		store,
		scraper.NewExtractor(httpClient),
		ratelimit.New(cfg.MaxGeminiRequests, 24*time.Hour),
		cfg.DigestCacheTTL,
	)
	if err != nil {
		logger.Error("init digest service", "error", err)
		os.Exit(1)
	}
	if digestSvc != nil {
		defer digestSvc.Close()
		logger.Info("digest enabled", "daily_budget", cfg.MaxGeminiRequests)
	}

	scheduler := scanner.NewScheduler(store, orchestrator, coordinator)
	go scheduler.Run(ctx)

	srv := server.New(store, orchestrator, coordinator, news, trendsSvc, digestSvc, m, cfg.DefaultMaxItems)
	go func() {
		if err := srv.Start(cfg.Host + ":" + cfg.Port); err != nil {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
}

// openStore connects to Postgres when DATABASE_URL is set, otherwise falls
// back to the in-memory store for local runs.
func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		return storage.NewMemory(), nil
	}
	return storage.NewPostgres(cfg.DatabaseURL)
}

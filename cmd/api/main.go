package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/almatkai/woolet-sub004/internal/cache"
	"github.com/almatkai/woolet-sub004/internal/client/twelvedata"
	"github.com/almatkai/woolet-sub004/internal/config"
	"github.com/almatkai/woolet-sub004/internal/handler"
	"github.com/almatkai/woolet-sub004/internal/logger"
	"github.com/almatkai/woolet-sub004/internal/metrics"
	"github.com/almatkai/woolet-sub004/internal/service"
	"github.com/almatkai/woolet-sub004/internal/store"
)

func main() {
	log.Println("Starting Woolet Investing Service...")

	// .env is optional; real deployments use environment variables
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.SetLogLevel(cfg.App.LogLevel)
	structuredLogger := logger.GetLogger()

	structuredLogger.Info("Initializing service components...")

	// Cache backend first; the Redis ping inside may race a container
	// that is still starting, so retry briefly.
	var investCache *cache.Cache
	err = retry.Do(
		func() error {
			var cacheErr error
			investCache, cacheErr = cache.NewFromConfig(
				cfg.Cache.Backend,
				cfg.Redis.Addr,
				cfg.Redis.Password,
				cfg.Redis.DB,
				cache.Options{Capacity: cfg.Cache.Capacity, BaseTTL: cfg.Cache.BaseTTL},
			)
			return cacheErr
		},
		retry.Attempts(5),
		retry.Delay(2*time.Second),
	)
	if err != nil {
		structuredLogger.WithField("error", err.Error()).Fatal("Failed to create cache")
	}
	defer investCache.Close()

	structuredLogger.WithField("backend", cfg.Cache.Backend).Info("Cache initialized successfully")

	var db *store.DB
	err = retry.Do(
		func() error {
			var openErr error
			db, openErr = store.Open(cfg.Database.Path)
			return openErr
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
	)
	if err != nil {
		structuredLogger.WithField("error", err.Error()).Fatal("Failed to open price database")
	}
	defer db.Close()

	structuredLogger.WithField("path", cfg.Database.Path).Info("Price database opened")

	metrics.SetServiceInfo("1.0.0", cfg.Cache.Backend)

	tdClient := twelvedata.NewClient(twelvedata.Config{
		APIKey:      cfg.TwelveData.APIKey,
		BaseURL:     cfg.TwelveData.BaseURL,
		Timeout:     cfg.TwelveData.Timeout,
		MinInterval: cfg.TwelveData.MinInterval,
	})

	ttls := service.TTLs{
		Search:             cfg.Cache.TTL.Search,
		Quote:              cfg.Cache.TTL.Quote,
		Prices:             cfg.Cache.TTL.Prices,
		PricesRecent:       cfg.Cache.TTL.PricesRecent,
		EOD:                cfg.Cache.TTL.EOD,
		PortfolioSummary:   cfg.Cache.TTL.PortfolioSummary,
		PortfolioChart:     cfg.Cache.TTL.PortfolioChart,
		PortfolioBenchmark: cfg.Cache.TTL.PortfolioBenchmark,
	}

	portfolioRepo := store.NewPortfolioRepository(db)
	priceService := service.NewPriceService(tdClient, store.NewPriceStore(db), portfolioRepo, investCache, service.PriceServiceOptions{
		TTL:                ttls,
		StaleToleranceDays: cfg.Analytics.StaleToleranceDays,
		RecentWindowDays:   cfg.Analytics.RecentWindowDays,
	})
	analyticsService := service.NewAnalyticsService(portfolioRepo, priceService, investCache, ttls)

	investingHandler := handler.NewInvestingHandler(priceService, analyticsService, investCache)
	server := handler.CreateServer(investingHandler, cfg.Server.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			structuredLogger.WithField("error", err.Error()).Fatal("Failed to start server")
		}
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Cache.RefreshSchedule, func() {
		refreshQuotes(investCache, priceService)
	}); err != nil {
		structuredLogger.WithField("error", err.Error()).Fatal("Invalid refresh schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	structuredLogger.WithFields(map[string]interface{}{
		"port":             cfg.Server.Port,
		"refresh_schedule": cfg.Cache.RefreshSchedule,
		"endpoints": map[string]string{
			"health":    "/health",
			"search":    "/api/v1/search",
			"quote":     "/api/v1/quote",
			"prices":    "/api/v1/prices",
			"portfolio": "/api/v1/portfolio/{userID}/summary",
			"metrics":   "/metrics",
		},
	}).Info("Woolet Investing Service is running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	structuredLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.WithField("error", err.Error()).Fatal("Server forced to shutdown")
	}

	structuredLogger.Info("Server shutdown completed")
}

// refreshQuotes drains a snapshot of the refresh worklist and re-fetches
// each symbol's quote through the aggregator, so every fetch passes
// through the provider rate gate. Per-symbol failures are logged and the
// job moves on.
func refreshQuotes(investCache *cache.Cache, prices *service.PriceService) {
	structuredLogger := logger.GetLogger()
	symbols := investCache.RefreshQueue()
	if len(symbols) == 0 {
		return
	}

	structuredLogger.WithField("symbols", len(symbols)).Info("Starting background quote refresh")

	failed := 0
	for _, symbol := range symbols {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := prices.RefreshQuote(ctx, symbol)
		cancel()
		if err != nil {
			failed++
			structuredLogger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"error":  err.Error(),
			}).Error("Background quote refresh failed")
		}
	}

	metrics.RecordRefreshJob(failed == 0)
	structuredLogger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"failed":  failed,
	}).Info("Background quote refresh completed")
}

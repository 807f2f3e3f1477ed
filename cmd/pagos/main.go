package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"pagos/internal/cache"
	"pagos/internal/cli"
	"pagos/internal/core"
	apphttp "pagos/internal/http"
	"pagos/internal/log"
	"pagos/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg)

	snapshot := cache.NewLRUCache[core.Table](1, cfg.LedgerCacheTTL)
	caches := cache.NewManager()
	caches.Register(snapshot)
	caches.StartCleanup(time.Minute)

	opts := []services.Option{
		services.WithCache(snapshot),
		services.WithLogger(logger),
		services.WithBackendName(cfg.DataBackend),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	ledger := services.NewLedgerService(res.Store, opts...)

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := ledger.Init(initCtx)
	cancel()
	if err != nil {
		logger.LogError(ctx, "Failed to prepare ledger worksheet", err, log.ErrorTypeStore, log.OpStartup,
			log.LogFields{log.FieldBackend: cfg.DataBackend})
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, ledger, apphttp.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting pagos server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// Package main is the entrypoint for the SkyBid API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kiranshivaraju/skybid/internal/accounts"
	"github.com/kiranshivaraju/skybid/internal/api"
	"github.com/kiranshivaraju/skybid/internal/api/handler"
	mw "github.com/kiranshivaraju/skybid/internal/api/middleware"
	"github.com/kiranshivaraju/skybid/internal/api/response"
	"github.com/kiranshivaraju/skybid/internal/cache"
	"github.com/kiranshivaraju/skybid/internal/config"
	"github.com/kiranshivaraju/skybid/internal/gateway"
	"github.com/kiranshivaraju/skybid/internal/lifecycle"
	"github.com/kiranshivaraju/skybid/internal/outbox"
	"github.com/kiranshivaraju/skybid/internal/settlement"
	"github.com/kiranshivaraju/skybid/internal/store"
	"github.com/kiranshivaraju/skybid/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "hold_duration", cfg.Settlement.HoldDuration)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. External services
	funds := gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	lookup := accounts.NewCachedLookup(
		accounts.NewHTTPClient(cfg.Accounts.BaseURL, cfg.Accounts.Timeout),
		redisCache, cfg.Accounts.CacheTTL)

	// 6. Engine
	pgStore := store.NewPostgresStore(pool)
	manager := lifecycle.NewManager(pgStore, funds, lookup, cfg.Fees,
		lifecycle.WithHoldDuration(cfg.Settlement.HoldDuration),
		lifecycle.WithGatewayTimeout(cfg.Gateway.Timeout),
	)
	processor := settlement.NewProcessor(pgStore, funds, cfg.Settlement, nil)
	dispatcher := outbox.NewDispatcher(pgStore, outbox.MultiSink{
		outbox.NewRedisStreamSink(redisCache.Client(), cfg.Outbox.Stream, cfg.Outbox.StreamMaxLen),
		outbox.NewLogSink(nil),
	}, cfg.Outbox.BatchSize, cfg.Outbox.Interval)

	// 7. Background workers
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "settlement scheduler",
		settlement.NewScheduler(processor, cfg.Settlement.Interval).Run)
	startWorker(ctx, &wg, "outbox dispatcher", dispatcher.Run)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute),

		HealthHandler:  healthHandler(pgStore, redisCache),
		MetricsHandler: telemetry.Handler(),

		CreateJob:        handler.NewCreateJobHandler(manager),
		GetJob:           handler.NewGetJobHandler(manager),
		UpdateJob:        handler.NewUpdateJobHandler(manager),
		ActivateJob:      handler.NewActivateJobHandler(manager),
		CancelJob:        handler.NewCancelJobHandler(manager),
		CompleteJob:      handler.NewCompleteJobHandler(manager),
		ListTransactions: handler.NewListTransactionsHandler(manager),

		SubmitBid: handler.NewSubmitBidHandler(manager),
		ListBids:  handler.NewListBidsHandler(manager),
		AcceptBid: handler.NewAcceptBidHandler(manager),

		RevenueReport:      handler.NewRevenueHandler(manager),
		RunSettlements:     handler.NewRunSettlementsHandler(processor),
		RescheduleTransfer: handler.NewRescheduleTransferHandler(processor),
		CreateKeyHandler:   handler.NewCreateKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
		stop()
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown: %w", err)
	}
	wg.Wait()

	if serveErr != nil {
		return serveErr
	}
	slog.Info("server stopped gracefully")
	return nil
}

// startWorker runs fn until ctx is cancelled.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil {
			slog.Error("worker stopped with error", "worker", name, "error", err)
		}
	}()
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}

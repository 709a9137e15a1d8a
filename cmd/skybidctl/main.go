// Command skybidctl runs SkyBid maintenance tasks against the production
// database: settlement batches, transfer rescheduling, outbox draining,
// API key minting and schema migrations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kiranshivaraju/skybid/internal/cache"
	"github.com/kiranshivaraju/skybid/internal/config"
	"github.com/kiranshivaraju/skybid/internal/gateway"
	"github.com/kiranshivaraju/skybid/internal/outbox"
	"github.com/kiranshivaraju/skybid/internal/store"
	"github.com/spf13/cobra"
)

var Version = "dev"

const migrationsDir = "migrations"

// backend is the set of live dependencies a command operates on.
type backend struct {
	store   store.Store
	gateway gateway.Gateway
	sink    outbox.Sink
	close   func()
}

// app carries the hooks commands use to reach configuration and storage.
// Tests replace them with in-memory versions.
type app struct {
	loadConfig  func() (*config.Config, error)
	open        func(ctx context.Context, cfg *config.Config) (*backend, error)
	migrateUp   func(databaseURL, dir string) error
	migrateDown func(databaseURL, dir string, steps int) error
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	a := &app{
		loadConfig:  config.Load,
		open:        openBackend,
		migrateUp:   store.RunMigrations,
		migrateDown: store.RollbackMigrations,
	}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "skybidctl",
		Short:         "SkyBid marketplace maintenance tool",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(a.settleCmd())
	root.AddCommand(a.outboxCmd())
	root.AddCommand(a.apiKeyCmd())
	root.AddCommand(a.migrateCmd())
	return root
}

// withBackend loads config, opens the backend and runs fn against it.
func (a *app) withBackend(cmd *cobra.Command, fn func(cfg *config.Config, b *backend) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	b, err := a.open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer b.close()
	return fn(cfg, b)
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create redis cache: %w", err)
	}

	return &backend{
		store:   store.NewPostgresStore(pool),
		gateway: gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout),
		sink: outbox.MultiSink{
			outbox.NewRedisStreamSink(redisCache.Client(), cfg.Outbox.Stream, cfg.Outbox.StreamMaxLen),
			outbox.NewLogSink(nil),
		},
		close: func() {
			redisCache.Close()
			pool.Close()
		},
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

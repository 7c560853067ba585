package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alqatri/tbilltracker/internal/ingest"
	"github.com/alqatri/tbilltracker/internal/scraper"
	"github.com/alqatri/tbilltracker/internal/store"
	"github.com/alqatri/tbilltracker/pkg/config"
	"github.com/alqatri/tbilltracker/pkg/database"
	"github.com/alqatri/tbilltracker/pkg/logger"
	"github.com/alqatri/tbilltracker/pkg/redis"
)

var (
	// Global flags
	env     string
	verbose bool

	// exitCode lets commands report outcomes beyond ok/error, e.g. a
	// partial ingestion. Zero unless a command sets it.
	exitCode int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tbill",
	Short: "Egyptian treasury bill auction tracker",
	Long: `tbill tracks Egyptian T-bill auction results.

It fetches the central bank's auction listing, stores the history
locally or in PostgreSQL, and answers return calculations for
buy-and-hold and early-sale scenarios.

Usage:
  go run ./cmd/tbill [command]

Examples:
  go run ./cmd/tbill update --force
  go run ./cmd/tbill status
  go run ./cmd/tbill calc primary --amount 100000 --tenor 364
  go run ./cmd/tbill serve`,
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads configuration, applying the global flag overrides.
func loadConfig() (*config.Config, *logger.Logger, error) {
	if env != "" {
		os.Setenv("ENV", env)
	}
	if verbose {
		os.Setenv("LOG_LEVEL", "debug")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg), nil
}

// openStore builds the configured storage backend, wrapped with the cache
// layer when Redis is enabled. The returned cleanup releases everything.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, func(), error) {
	var backend store.Store

	switch cfg.Backend {
	case "postgres":
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		backend, err = store.NewPostgresStore(ctx, db, log)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
	default:
		var err error
		backend, err = store.NewSQLiteStore(ctx, cfg.SQLite.Path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
	}

	if !cfg.Redis.Enabled {
		return backend, func() { _ = backend.Close() }, nil
	}

	client, err := redis.New(ctx, cfg)
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	cache := redis.NewCache(client, "tbill")
	cached := store.NewCachedStore(backend, cache, cfg.Redis.TTL, log)

	cleanup := func() {
		_ = cached.Close()
		_ = client.Close()
	}
	return cached, cleanup, nil
}

// buildOrchestrator wires the full ingestion pipeline over a store.
func buildOrchestrator(cfg *config.Config, log *logger.Logger, st store.Store) *ingest.Orchestrator {
	fetcher := scraper.NewChromeFetcher(cfg, log)
	parser := scraper.NewParser(log)
	return ingest.New(fetcher, parser, st, cfg.Ingest, log)
}

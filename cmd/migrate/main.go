package main

import (
	"context"
	"fmt"
	"os"

	"VaultLedger/internal/app"
	"VaultLedger/internal/config"
	"VaultLedger/internal/observability"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|status> [config-file]")
		fmt.Println("  up     - apply all pending migrations")
		fmt.Println("  down   - roll back the last migration")
		fmt.Println("  status - list migrations and whether they are applied")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  VAULT_STORE_POSTGRES_DSN             - Postgres connection string (required)")
		fmt.Println("  VAULT_STORE_POSTGRES_MIGRATIONS_PATH - migrations directory (default: compiled-in schema)")
		os.Exit(1)
	}

	var path string
	if len(os.Args) > 2 {
		path = os.Args[2]
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLoggerFromConfig(cfg.Logging)
	if err := app.NewApp(cfg, logger).Migrate(context.Background(), os.Args[1], os.Stdout); err != nil {
		logger.Fatal().Err(err).Str("direction", os.Args[1]).Msg("migration failed")
	}
	logger.Info().Str("direction", os.Args[1]).Msg("migration complete")
}

// Package main provides a CLI tool to encrypt OAuth tokens that were linked
// before ENCRYPTION_KEY was configured.
//
// Rows with encryption_version=0 (plaintext) are rewritten as version 1
// (AES-256-GCM).
//
// Usage:
//
//	migrate-tokens [--dry-run] [--provider PROVIDER]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
//
// Example:
//
//	export ENCRYPTION_KEY="$(openssl rand -base64 32)"
//	./migrate-tokens --dry-run
//	./migrate-tokens
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/onnwee/twitchbot/config"
	"github.com/onnwee/twitchbot/db"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	provider := flag.String("provider", "", "Migrate only this provider's token (default: all)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.DBDsn == "" || cfg.EncryptionKey == "" {
		slog.Error("DB_DSN and ENCRYPTION_KEY are required for migration")
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	store, err := db.NewTokenStore(database, cfg.EncryptionKey)
	if err != nil {
		slog.Error("failed to initialize encryption", slog.Any("error", err))
		os.Exit(1)
	}

	if err := migrateTokens(ctx, store, *dryRun, *provider); err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := reportStatus(ctx, store); err != nil {
		slog.Warn("status report failed", slog.Any("error", err))
	}
	slog.Info("migration completed successfully")
}

// sealer is the part of *db.TokenStore the migration needs.
type sealer interface {
	PlaintextProviders(ctx context.Context) ([]string, error)
	Seal(ctx context.Context, provider string) error
}

// migrateTokens encrypts every plaintext token, or only filter's when set.
func migrateTokens(ctx context.Context, store sealer, dryRun bool, filter string) error {
	providers, err := store.PlaintextProviders(ctx)
	if err != nil {
		return err
	}
	if filter != "" {
		providers = slices.DeleteFunc(providers, func(p string) bool { return p != filter })
	}
	if len(providers) == 0 {
		slog.Info("no plaintext tokens found to migrate")
		return nil
	}
	slog.Info("found plaintext tokens to migrate", slog.Int("count", len(providers)), slog.Bool("dry_run", dryRun))

	var errs []error
	for i, p := range providers {
		logger := slog.With(slog.String("provider", p), slog.Int("index", i+1), slog.Int("total", len(providers)))
		if dryRun {
			logger.Info("would migrate token (dry-run)")
			continue
		}
		if err := store.Seal(ctx, p); err != nil {
			logger.Error("failed to migrate token", slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		logger.Info("migrated token successfully")
	}

	slog.Info("migration summary",
		slog.Int("total", len(providers)),
		slog.Int("errors", len(errs)),
		slog.Bool("dry_run", dryRun))
	if len(errs) > 0 {
		return fmt.Errorf("migration completed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func reportStatus(ctx context.Context, store *db.TokenStore) error {
	status, err := store.EncryptionStatus(ctx)
	if err != nil {
		return err
	}
	slog.Info("token encryption status",
		slog.Int("plaintext", status[0]),
		slog.Int("encrypted", status[1]))
	return nil
}

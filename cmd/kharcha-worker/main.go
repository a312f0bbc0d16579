package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kharcha/internal/config"
	"kharcha/internal/export"
	"kharcha/internal/feed"
	"kharcha/internal/storage"
	"kharcha/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting kharcha-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		logger.Error("Nothing to do - no GOOGLE_SPREADSHEET_ID provided")
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	sheetsWriter, err := export.NewSheetsWriterFromEnv(context.Background(), cfg.SheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets writer", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets writer initialized", "sheet", cfg.SheetName)

	var feedClient *feed.Client
	if cfg.AMQPURL != "" {
		feedClient, err = feed.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue+".export")
		if err != nil {
			logger.Error("Failed to initialize change feed client", "error", err)
			os.Exit(1)
		}
		defer feedClient.Close()
	} else {
		logger.Info("Change feed disabled - relying on periodic export only")
	}

	// The spreadsheet mirrors the whole database, so any change triggers a
	// full re-export. The ticker catches messages the feed lost.
	exportAll := func(ctx context.Context) error {
		snap, err := repo.ListAllExpenses(ctx)
		if err != nil {
			return err
		}
		if err := sheetsWriter.WriteRows(ctx, export.Rows(snap)); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Ledger exported", "rows", len(snap))
		return nil
	}

	w := worker.New(feedClient,
		func(ctx context.Context, msg *feed.ChangeMessage) error {
			slog.InfoContext(ctx, "Ledger change received", "user_id", msg.UserID)
			return exportAll(ctx)
		},
		exportAll,
		cfg.RefreshInterval,
		nil,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Export once on startup so a fresh deployment starts from a full sheet.
	if err := exportAll(ctx); err != nil {
		logger.Error("Startup export failed", "error", err)
	}

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

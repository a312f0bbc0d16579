package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"kharcha/internal/budget"
	"kharcha/internal/config"
	"kharcha/internal/export"
	"kharcha/internal/feed"
	"kharcha/internal/httpapi"
	"kharcha/internal/ledger"
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

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// The change feed is optional: without it the server still works, it just
	// won't see changes made by other processes until the periodic refresh.
	var feedClient *feed.Client
	if cfg.AMQPURL != "" {
		// Fanout exchange, so each consumer binds its own queue.
		feedClient, err = feed.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue+".api")
		if err != nil {
			logger.Error("Failed to initialize change feed client", "error", err)
			os.Exit(1)
		}
		defer feedClient.Close()
		logger.Info("Change feed connected", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("Change feed disabled - no AMQP_URL provided")
	}

	store := ledger.NewStore(repo, feedClient)
	budgets := budget.NewManager(repo)

	var sheetsWriter *export.SheetsWriter
	if os.Getenv("GOOGLE_SPREADSHEET_ID") != "" {
		sheetsWriter, err = export.NewSheetsWriterFromEnv(context.Background(), cfg.SheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets writer", "error", err)
			os.Exit(1)
		}
		logger.Info("Google Sheets export enabled", "sheet", cfg.SheetName)
	}

	srv := httpapi.NewServer(":"+cfg.Port, []byte(cfg.JWTSecret), store, budgets, sheetsWriter)
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Refresh worker: applies cross-process ledger changes to in-process
	// subscriptions, with a periodic full refresh as backstop.
	refresher := worker.New(feedClient,
		func(ctx context.Context, msg *feed.ChangeMessage) error {
			return store.Refresh(ctx, msg.UserID)
		},
		func(ctx context.Context) error {
			for _, userID := range store.ActiveUsers() {
				if err := store.Refresh(ctx, userID); err != nil {
					return err
				}
			}
			return nil
		},
		cfg.RefreshInterval,
		store.NotifySyncError,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting kharcha server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return refresher.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

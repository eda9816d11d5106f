// Package main запускает HTTP-сервер библиотечного сервиса.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/library-system/internal/cache"
	"github.com/mmeshcher/library-system/internal/config"
	"github.com/mmeshcher/library-system/internal/handler"
	"github.com/mmeshcher/library-system/internal/holds"
	"github.com/mmeshcher/library-system/internal/middleware"
	"github.com/mmeshcher/library-system/internal/openlibrary"
	"github.com/mmeshcher/library-system/internal/repository"
	"github.com/mmeshcher/library-system/internal/service"
)

const openLibraryRPS = 1

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		sugar.Warnw("failed to load .env", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var mirror holds.Mirror
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer client.Close()
		mirror = cache.NewHoldMirror(client)
	}

	holder := holds.NewHolder(repo, mirror, logger, holds.Options{
		Window:     cfg.HoldWindow,
		LoanPeriod: cfg.LoanPeriod,
	})
	if err := holder.Load(ctx); err != nil {
		sugar.Fatalw("hold registry initialization error", "error", err.Error())
	}

	svc := service.NewService(repo, holder, openlibrary.NewClient(cfg.OpenLibraryURL, openLibraryRPS))
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	h := handler.NewHandler(svc, logger, authMiddleware, rateLimiter)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновое снятие просроченных броней
	g.Go(func() error {
		holder.Run(ctx, cfg.SweepInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting library server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при сигнале или ошибке в другой горутине
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

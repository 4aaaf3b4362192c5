// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/imposter/internal/cache"
	"github.com/jason-s-yu/imposter/internal/config"
	"github.com/jason-s-yu/imposter/internal/database"
	"github.com/jason-s-yu/imposter/internal/game"
	"github.com/jason-s-yu/imposter/internal/handlers"
	"github.com/jason-s-yu/imposter/internal/janitor"
	"github.com/jason-s-yu/imposter/internal/memstore"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/randutil"
	"github.com/jason-s-yu/imposter/internal/realtime"
	"github.com/jason-s-yu/imposter/internal/words"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	logger := logrus.New()
	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Warnf("failed to load .env: %v", err)
	}

	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "imposter",
		Short:         "Lobby and round coordination server for the imposter party game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, logger)
		},
	}
	config.RegisterFlags(cmd, cfg)
	cmd.CompletionOptions.HiddenDefaultCmd = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	logger.SetLevel(logrus.InfoLevel)
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	journal, closeJournal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeJournal()

	coord := game.NewCoordinator(store, randutil.NewRandom(), logger)
	hub := realtime.NewRegistry(logger)
	srv := handlers.NewServer(coord, hub, journal, logger, handlers.Options{
		BaseURL:     cfg.BaseURL(),
		CORSOrigins: cfg.CORSOrigins,
	})

	notify := srv.Notifier()
	j := janitor.New(coord, cfg.StaleAfter, func(l models.Lobby) {
		notify.LobbyEnded(context.Background(), l)
	}, logger)
	if err := j.Start(cfg.JanitorSchedule); err != nil {
		return err
	}
	defer j.Stop()

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s (store: %s)", httpSrv.Addr, cfg.Store)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (game.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using the in-memory store; state is lost on restart")
		return memstore.New(words.Default), func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	store := database.NewStore(pool)

	n, err := store.CountWordPairs(ctx)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if n == 0 {
		added, err := store.SeedWordPairs(ctx, words.Default)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.WithField("pairs", added).Info("seeded empty word pair catalog")
	}
	return store, pool.Close, nil
}

func openJournal(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (cache.Journal, func(), error) {
	if cfg.RedisAddr == "" {
		return cache.Nop{}, func() {}, nil
	}
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	logger.WithFields(logrus.Fields{"addr": cfg.RedisAddr, "queue": cfg.EventsQueue}).Info("lobby event journal enabled")
	return cache.NewRedisJournal(rdb, cfg.EventsQueue), func() { _ = rdb.Close() }, nil
}

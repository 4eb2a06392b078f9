package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Muhammad-Alii2/vibeverse/internal/auth"
	"github.com/Muhammad-Alii2/vibeverse/internal/config"
	"github.com/Muhammad-Alii2/vibeverse/internal/database"
	"github.com/Muhammad-Alii2/vibeverse/internal/events"
	"github.com/Muhammad-Alii2/vibeverse/internal/geoip"
	"github.com/Muhammad-Alii2/vibeverse/internal/ratelimit"
	"github.com/Muhammad-Alii2/vibeverse/internal/server"
	"github.com/Muhammad-Alii2/vibeverse/internal/storage"
	"github.com/Muhammad-Alii2/vibeverse/internal/webhook"
)

const eventsExchange = "vibeverse.events"

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Migrate the database and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := database.Connect(startCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	slog.Info("database migrations applied")

	blobs, err := storage.New(startCtx, storage.Config{
		Endpoint:       cfg.S3Endpoint,
		PublicEndpoint: cfg.S3PublicEndpoint,
		Bucket:         cfg.S3Bucket,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		Region:         cfg.S3Region,
		Timeout:        cfg.StorageTimeout,
	})
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	if err := blobs.EnsureBucket(startCtx); err != nil {
		return fmt.Errorf("storage bucket check failed: %w", err)
	}
	slog.Info("storage bucket ready", "bucket", cfg.S3Bucket)

	srvCfg := server.Config{
		DB:               db.Pool,
		Pinger:           db,
		Blobs:            blobs,
		Signer:           auth.NewSigner(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL),
		BaseURL:          cfg.BaseURL,
		StoragePublicURL: cfg.S3PublicEndpoint,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		RequestTimeout:   cfg.RequestTimeout,
	}

	var publishers events.Fanout
	if cfg.AMQPURL != "" {
		publisher, err := events.DialAMQP(cfg.AMQPURL, eventsExchange)
		if err != nil {
			return err
		}
		defer func() { _ = publisher.Close() }()
		publishers = append(publishers, publisher)
		slog.Info("event publishing enabled", "exchange", eventsExchange)
	}
	if cfg.WebhookURL != "" {
		publishers = append(publishers, webhook.New(cfg.WebhookURL, cfg.WebhookSecret))
		slog.Info("webhook delivery enabled")
	}
	if len(publishers) > 0 {
		srvCfg.Emitter = events.NewEmitter(publishers, 15*time.Second)
		defer srvCfg.Emitter.Wait()
	}

	if cfg.RedisURL != "" {
		rdb, err := ratelimit.DialRedis(startCtx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, rate limiting per instance", "error", err)
		} else {
			defer func() { _ = rdb.Close() }()
			srvCfg.AuthLimits = ratelimit.NewRedisStore(rdb, 0.5, 5)
			srvCfg.APILimits = ratelimit.NewRedisStore(rdb, 10, 40)
			slog.Info("shared rate limiting enabled")
		}
	}

	if cfg.GeoIPPath != "" {
		geo := geoip.New(cfg.GeoIPPath)
		defer func() { _ = geo.Close() }()
		srvCfg.Geo = geo
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.New(srvCfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vibeverse listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}
